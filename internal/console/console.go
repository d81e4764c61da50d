// Package console is a local transport: positions and opponent moves are typed
// at a readline prompt and the bot's moves are printed with the board.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"chessbot/internal/board"
	"chessbot/internal/core"
	"chessbot/internal/rules"
	"chessbot/internal/transport"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
)

var errQuit = errors.New("quit")

// LineReader is the prompt the console reads from; *readline.Instance
// satisfies it
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Controls exposes orchestrator operations to console commands
type Controls interface {
	State(ctx context.Context) (core.StateResponse, error)
	Reset(ctx context.Context) error
	Search(ctx context.Context) (uint64, error)
}

type Console struct {
	rl       LineReader
	out      io.Writer
	dispatch transport.InboundHandler
	controls Controls
	colored  bool
	log      *zap.Logger

	commands map[string]*Command

	mu     sync.Mutex
	oracle *rules.ChessOracle
	fen    string
}

// NewReadline opens the interactive prompt
func NewReadline(historyFile string, colored bool) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          Prompt("chessbot", colored),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
}

// New builds a console. controls may be nil, in which case the state, reset
// and search commands are unavailable.
func New(rl LineReader, out io.Writer, dispatch transport.InboundHandler, controls Controls,
	colored bool, log *zap.Logger) *Console {
	c := &Console{
		rl:       rl,
		out:      out,
		dispatch: dispatch,
		controls: controls,
		colored:  colored,
		log:      log,
		oracle:   rules.NewChessOracle(),
	}
	c.registerCommands()
	return c
}

// Run reads commands until EOF, interrupt on an empty line, quit or ctx
// cancellation. Closing the underlying readline unblocks a pending read.
func (c *Console) Run(ctx context.Context) error {
	c.showWelcome()

	for {
		if ctx.Err() != nil {
			return nil
		}

		c.rl.SetPrompt(c.prompt())
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("console read: %w", err)
		}

		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			c.println(paint(c.colored, Red, "Error: "+err.Error()))
		}
	}
}

// Send implements transport.Primary. The move is played on the console
// board and the resulting position is fed back as the next inbound frame.
func (c *Console) Send(m transport.OutboundMove) error {
	c.mu.Lock()
	if c.fen == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: no game on console", core.ErrNotConnected)
	}
	next, err := c.apply(m.Move)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", core.ErrTransportFailure, err)
	}
	c.printf("%s %s\n", paint(c.colored, Magenta, "bot plays"), m.Move)
	c.showBoardLocked()
	c.mu.Unlock()

	// Send runs on the control loop; dispatching posts back onto it
	go c.dispatch(core.InboundEnvelope{Type: "move", Data: core.InboundState{FEN: next}})
	return nil
}

// Execute runs one input line
func (c *Console) Execute(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	parts := strings.Fields(input)
	if cmd, ok := c.commands[parts[0]]; ok {
		return cmd.Handler(ctx, c, parts[1:])
	}

	// Bare FEN or bare move
	if strings.Contains(parts[0], "/") {
		return c.loadPosition("fen", input)
	}
	return c.playMove(input)
}

func (c *Console) loadPosition(kind, fen string) error {
	fen = strings.Join(strings.Fields(fen), " ")

	c.mu.Lock()
	if err := c.oracle.Load(fen); err != nil {
		c.mu.Unlock()
		return err
	}
	c.fen = fen
	c.showBoardLocked()
	c.mu.Unlock()

	c.dispatch(core.InboundEnvelope{Type: kind, Data: core.InboundState{FEN: fen}})
	return nil
}

func (c *Console) playMove(move string) error {
	c.mu.Lock()
	if c.fen == "" {
		c.mu.Unlock()
		return errors.New("no game in progress, use 'start' or paste a FEN")
	}
	next, err := c.apply(move)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.showBoardLocked()
	c.mu.Unlock()

	c.dispatch(core.InboundEnvelope{Type: "move", Data: core.InboundState{FEN: next}})
	return nil
}

func (c *Console) endGame() {
	c.mu.Lock()
	c.fen = ""
	c.mu.Unlock()

	c.dispatch(core.InboundEnvelope{Type: "gameEnd"})
}

// apply plays move on the console position. Caller holds mu.
func (c *Console) apply(move string) (string, error) {
	if err := c.oracle.Load(c.fen); err != nil {
		return "", err
	}
	next, err := c.oracle.Apply(move)
	if err != nil {
		return "", err
	}
	c.fen = next
	return next, nil
}

// FEN returns the console's current position, empty when no game is loaded
func (c *Console) FEN() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fen
}

func (c *Console) showBoardLocked() {
	b, err := board.ParseFEN(c.fen)
	if err != nil {
		c.log.Warn("cannot render console board", zap.Error(err))
		return
	}
	renderBoard(c.out, b.ToASCII(), c.colored)
	c.printf("%s to move\n", colorName(b.Turn().String(), c.colored))
}

func (c *Console) prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fen == "" {
		return Prompt("chessbot", c.colored)
	}
	b, err := board.ParseFEN(c.fen)
	if err != nil {
		return Prompt("chessbot", c.colored)
	}
	return Prompt(fmt.Sprintf("chessbot [ply %d]", b.Ply()), c.colored)
}

func (c *Console) showWelcome() {
	c.println(paint(c.colored, Cyan, "chessbot console"))
	c.println("Paste a FEN or type 'start' to begin, then enter opponent moves (e.g. e7e5).")
	c.println("Type 'help' for commands")
	c.println("")
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
