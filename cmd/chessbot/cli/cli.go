package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"chessbot/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Run is the entry point for the db mini-app
func Run(args []string) error {
	return run(args, os.Stdout)
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("subcommand required: init, delete, query")
	}

	switch args[0] {
	case "init":
		return runInit(args[1:], out)
	case "delete":
		return runDelete(args[1:], out)
	case "query":
		return runQuery(args[1:], out)
	default:
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func openStore(fs *flag.FlagSet, args []string) (*storage.Store, string, error) {
	path := fs.String("path", "", "Database file path (required)")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	if *path == "" {
		return nil, "", fmt.Errorf("database path required")
	}

	store, err := storage.NewStore(*path, false, zap.NewNop())
	if err != nil {
		return nil, "", fmt.Errorf("failed to open store: %w", err)
	}
	return store, *path, nil
}

func runInit(args []string, out io.Writer) error {
	store, path, err := openStore(flag.NewFlagSet("init", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	fmt.Fprintf(out, "Database initialized at: %s\n", path)
	return nil
}

func runDelete(args []string, out io.Writer) error {
	store, path, err := openStore(flag.NewFlagSet("delete", flag.ContinueOnError), args)
	if err != nil {
		return err
	}

	if err := store.DeleteDB(); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}

	fmt.Fprintf(out, "Database deleted: %s\n", path)
	return nil
}

func runQuery(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	gameID := fs.String("gameId", "", "Game ID to filter (optional, * for all)")

	store, _, err := openStore(fs, args)
	if err != nil {
		return err
	}
	defer store.Close()

	if *gameID != "" && *gameID != "*" {
		if _, err := uuid.Parse(*gameID); err != nil {
			return fmt.Errorf("invalid game ID %q: %w", *gameID, err)
		}
	}

	games, err := store.QueryGames(*gameID)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if len(games) == 0 {
		fmt.Fprintln(out, "No games found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Game ID\tColor\tStart Time\tEnd Time\tReason")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, g := range games {
		end := "-"
		if g.EndTimeUTC.Valid {
			end = g.EndTimeUTC.Time.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			g.GameID[:8]+"...",
			g.MyColor,
			g.StartTimeUTC.Format("2006-01-02 15:04:05"),
			end,
			g.EndReason,
		)
	}
	w.Flush()
	fmt.Fprintf(out, "\nFound %d game(s)\n", len(games))

	// Delivery detail only for a single game
	if *gameID == "" || *gameID == "*" {
		return nil
	}

	deliveries, err := store.QueryDeliveries(*gameID)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Ply\tMove\tStatus\tVia\tRetries\tError")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, d := range deliveries {
		via := d.Via
		if via == "" {
			via = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", d.Ply, d.MoveUCI, d.Status, via, d.Retries, d.Error)
	}
	w.Flush()
	fmt.Fprintf(out, "\nFound %d deliveries\n", len(deliveries))
	return nil
}
