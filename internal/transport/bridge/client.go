// Package bridge talks to the host-surface bridge that resolves board squares
// to interactive elements and fires simulated interactions on them.
package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chessbot/internal/core"
	"chessbot/internal/transport"

	"go.uber.org/zap"
)

var errNotFound = errors.New("not found")

type EndpointResponse struct {
	Handle string `json:"handle"`
}

type InteractionRequest struct {
	Handle string `json:"handle"`
}

// Client implements transport.Surface over the bridge HTTP API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	log        *zap.Logger
}

func New(baseURL string, log *zap.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: log,
	}
}

func (c *Client) doRequest(method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	c.log.Debug("bridge request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 400 {
		var errResp core.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("bridge returned %d", resp.StatusCode)
	}

	if result != nil && len(respBody) > 0 {
		return json.Unmarshal(respBody, result)
	}
	return nil
}

func (c *Client) ResolveEndpoint(label string) (transport.Handle, bool) {
	var resp EndpointResponse
	err := c.doRequest(http.MethodGet, "/endpoints/"+url.PathEscape(label), nil, &resp)
	if err != nil {
		if !errors.Is(err, errNotFound) {
			c.log.Warn("endpoint lookup failed", zap.String("label", label), zap.Error(err))
		}
		return "", false
	}
	if resp.Handle == "" {
		return "", false
	}
	return transport.Handle(resp.Handle), true
}

func (c *Client) TriggerInteraction(h transport.Handle) error {
	return c.doRequest(http.MethodPost, "/interactions", &InteractionRequest{Handle: string(h)}, nil)
}
