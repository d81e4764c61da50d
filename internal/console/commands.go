package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"chessbot/internal/board"
)

var errNoControls = errors.New("orchestrator controls unavailable")

// Command defines a console command with its handler
type Command struct {
	Name        string
	ShortName   string
	Description string
	Usage       string
	Handler     func(ctx context.Context, c *Console, args []string) error
}

func (c *Console) register(cmd *Command) {
	c.commands[cmd.Name] = cmd
	if cmd.ShortName != "" {
		c.commands[cmd.ShortName] = cmd
	}
}

func (c *Console) registerCommands() {
	c.commands = make(map[string]*Command)

	c.register(&Command{
		Name:        "start",
		ShortName:   "n",
		Description: "Start a game from a FEN (default: initial position)",
		Usage:       "start [FEN]",
		Handler:     startHandler,
	})
	c.register(&Command{
		Name:        "fen",
		ShortName:   "f",
		Description: "Report a new position",
		Usage:       "fen <FEN>",
		Handler:     fenHandler,
	})
	c.register(&Command{
		Name:        "move",
		ShortName:   "m",
		Description: "Play a move on the console board",
		Usage:       "move <uci|san>",
		Handler:     moveHandler,
	})
	c.register(&Command{
		Name:        "end",
		ShortName:   "e",
		Description: "End the current game",
		Usage:       "end",
		Handler: func(_ context.Context, c *Console, _ []string) error {
			c.endGame()
			return nil
		},
	})
	c.register(&Command{
		Name:        "board",
		ShortName:   "b",
		Description: "Show the console board",
		Usage:       "board",
		Handler:     boardHandler,
	})
	c.register(&Command{
		Name:        "state",
		ShortName:   "s",
		Description: "Show orchestrator state",
		Usage:       "state",
		Handler:     stateHandler,
	})
	c.register(&Command{
		Name:        "reset",
		ShortName:   "r",
		Description: "Abandon the game and clear a halt",
		Usage:       "reset",
		Handler:     resetHandler,
	})
	c.register(&Command{
		Name:        "search",
		ShortName:   "g",
		Description: "Force a search for the current position",
		Usage:       "search",
		Handler:     searchHandler,
	})
	c.register(&Command{
		Name:        "help",
		ShortName:   "?",
		Description: "Show available commands",
		Usage:       "help [command]",
		Handler:     helpHandler,
	})
	c.register(&Command{
		Name:        "quit",
		ShortName:   "x",
		Description: "Exit the console",
		Usage:       "quit",
		Handler: func(context.Context, *Console, []string) error {
			return errQuit
		},
	})
}

func startHandler(_ context.Context, c *Console, args []string) error {
	fen := board.StartingFEN
	if len(args) > 0 {
		fen = strings.Join(args, " ")
	}
	return c.loadPosition("gameStart", fen)
}

func fenHandler(_ context.Context, c *Console, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: fen <FEN>")
	}
	return c.loadPosition("fen", strings.Join(args, " "))
}

func moveHandler(_ context.Context, c *Console, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: move <uci|san>")
	}
	return c.playMove(strings.Join(args, " "))
}

func boardHandler(_ context.Context, c *Console, _ []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fen == "" {
		return errors.New("no game in progress")
	}
	c.showBoardLocked()
	return nil
}

func stateHandler(ctx context.Context, c *Console, _ []string) error {
	if c.controls == nil {
		return errNoControls
	}
	st, err := c.controls.State(ctx)
	if err != nil {
		return err
	}

	c.printf("%s %s\n", paint(c.colored, Cyan, "game:"), orDash(st.GameID))
	c.printf("%s %s  ply %d  phase %s  my turn %t\n",
		paint(c.colored, Cyan, "color:"), colorName(st.MyColor, c.colored), st.Ply, st.Phase, st.MyTurn)
	c.printf("%s %s (generation %d)\n", paint(c.colored, Cyan, "engine:"), st.Engine, st.Generation)
	c.printf("%s %d queued  head %s  consecutive failures %d\n",
		paint(c.colored, Cyan, "delivery:"), st.QueueDepth, orDash(st.Head), st.Consecutive)
	if st.LastMove != "" {
		c.printf("%s %s\n", paint(c.colored, Cyan, "last move:"), st.LastMove)
	}
	if st.Halted {
		c.println(paint(c.colored, Red, "halted: "+st.HaltReason))
	}
	return nil
}

func resetHandler(ctx context.Context, c *Console, _ []string) error {
	if c.controls == nil {
		return errNoControls
	}
	if err := c.controls.Reset(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.fen = ""
	c.mu.Unlock()
	c.println(paint(c.colored, Green, "game reset"))
	return nil
}

func searchHandler(ctx context.Context, c *Console, _ []string) error {
	if c.controls == nil {
		return errNoControls
	}
	gen, err := c.controls.Search(ctx)
	if err != nil {
		return err
	}
	c.printf("search requested (generation %d)\n", gen)
	return nil
}

func helpHandler(_ context.Context, c *Console, args []string) error {
	if len(args) > 0 {
		cmd, ok := c.commands[args[0]]
		if !ok {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		c.printf("\n%s - %s\n", paint(c.colored, Cyan, cmd.Name), cmd.Description)
		if cmd.ShortName != "" {
			c.printf("Short form: %s\n", paint(c.colored, Cyan, cmd.ShortName))
		}
		c.printf("Usage: %s\n", cmd.Usage)
		return nil
	}

	seen := make(map[string]bool)
	var names []string
	for _, cmd := range c.commands {
		if !seen[cmd.Name] {
			seen[cmd.Name] = true
			names = append(names, cmd.Name)
		}
	}
	sort.Strings(names)

	c.printf("\n%s\n\n", paint(c.colored, Cyan, "Available Commands:"))
	for _, name := range names {
		cmd := c.commands[name]
		c.printf("  [%s] %-8s %s\n", paint(c.colored, Cyan, cmd.ShortName), cmd.Name, cmd.Description)
	}
	c.println("\nA bare FEN reports a position, anything else is played as a move.")
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
