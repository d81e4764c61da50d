// Package ws is the primary transport: a reconnecting websocket client
// exchanging JSON envelopes with the game server.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"chessbot/internal/config"
	"chessbot/internal/core"
	"chessbot/internal/transport"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var ErrBufferFull = errors.New("write buffer full")

// Client implements transport.Primary over a websocket connection
type Client struct {
	url       string
	reconnect time.Duration
	buffer    int
	aux       map[string]any
	dispatch  transport.InboundHandler
	validate  *validator.Validate
	dialer    *websocket.Dialer
	log       *zap.Logger

	mu   sync.Mutex
	send chan []byte
}

// New creates a client. dispatch is called on the read goroutine for every
// valid inbound envelope.
func New(cfg config.TransportConfig, dispatch transport.InboundHandler, log *zap.Logger) *Client {
	return &Client{
		url:       cfg.URL,
		reconnect: cfg.ReconnectDelay,
		buffer:    cfg.WriteBuffer,
		aux:       cfg.Aux,
		dispatch:  dispatch,
		validate:  validator.New(),
		dialer:    websocket.DefaultDialer,
		log:       log,
	}
}

// Connected reports whether a connection is currently established
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send != nil
}

// Send queues a move for writing. It fails when disconnected or when the
// write buffer is full.
func (c *Client) Send(m transport.OutboundMove) error {
	data := make(map[string]any, len(c.aux)+len(m.Aux)+1)
	maps.Copy(data, c.aux)
	maps.Copy(data, m.Aux)
	data["u"] = m.Move

	b, err := json.Marshal(core.OutboundEnvelope{Type: "move", Data: data})
	if err != nil {
		return fmt.Errorf("encode move: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.send == nil {
		return core.ErrNotConnected
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run connects and keeps reconnecting until ctx is cancelled
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("websocket disconnected",
			zap.String("url", c.url),
			zap.Error(err),
			zap.Duration("retry_in", c.reconnect),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnect):
		}
	}
}

// session runs one connection until it fails
func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.log.Info("websocket connected", zap.String("url", c.url))

	send := make(chan []byte, c.buffer)
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		c.mu.Lock()
		c.send = nil
		c.mu.Unlock()
		close(done)
		conn.Close()
	}()

	// Unblock the reader on shutdown
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go c.writePump(conn, send, done)

	return c.readPump(conn)
}

func (c *Client) readPump(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env core.InboundEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.log.Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		if err := c.validate.Struct(env); err != nil {
			c.log.Warn("dropping invalid frame", zap.String("type", env.Type), zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("websocket write failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
