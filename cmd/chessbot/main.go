// Package main runs the chess move orchestrator: it follows a game through a
// websocket feed (or the local console), searches with a UCI engine and
// delivers validated moves back to the game.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chessbot/cmd/chessbot/cli"
	"chessbot/internal/clock"
	"chessbot/internal/config"
	"chessbot/internal/console"
	"chessbot/internal/core"
	"chessbot/internal/delivery"
	"chessbot/internal/engine"
	apihttp "chessbot/internal/http"
	"chessbot/internal/processor"
	"chessbot/internal/rules"
	"chessbot/internal/storage"
	"chessbot/internal/tracker"
	"chessbot/internal/transport"
	"chessbot/internal/transport/bridge"
	"chessbot/internal/transport/ws"
	"chessbot/internal/validator"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	loopBuffer              = 256
	consoleHistoryFile      = ".chessbot_history"
)

func main() {
	// Check for CLI database commands
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "db" {
		if err := cli.Run(args[1:]); err != nil {
			log.Fatalf("CLI error: %v", err)
		}
		os.Exit(0)
	}

	consoleMode := false
	if len(args) > 0 && args[0] == "console" {
		consoleMode = true
		args = args[1:]
	}

	fs := flag.NewFlagSet("chessbot", flag.ExitOnError)
	var (
		configPath = fs.String("config", "chessbot.yaml", "Path to config file (optional)")
		dev        = fs.Bool("dev", false, "Development mode (request logging, relaxed rate limits)")
		pidPath    = fs.String("pid", "", "Optional path to write PID file")
		pidLock    = fs.Bool("pid-lock", false, "Lock PID file to allow only one instance (requires -pid)")
	)
	fs.Parse(args)

	// Validate PID flags
	if *pidLock && *pidPath == "" {
		log.Fatal("Error: -pid-lock flag requires the -pid flag to be set")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if *pidPath != "" {
		cleanup, err := managePIDFile(*pidPath, *pidLock)
		if err != nil {
			logger.Fatal("failed to manage PID file", zap.Error(err))
		}
		defer cleanup()
		logger.Info("PID file created", zap.String("path", *pidPath), zap.Bool("lock", *pidLock))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, consoleMode, *dev, logger); err != nil {
		logger.Error("chessbot exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("chessbot stopped")
}

func run(ctx context.Context, cfg *config.Config, consoleMode, dev bool, logger *zap.Logger) error {
	// 1. Journal (optional)
	var (
		store   *storage.Store
		journal processor.Journal
		history apihttp.History
	)
	if cfg.Storage.Path != "" {
		var err error
		store, err = storage.NewStore(cfg.Storage.Path, true, logger.Named("storage"))
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := store.InitDB(); err != nil {
			store.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close storage cleanly", zap.Error(err))
			}
		}()
		journal, history = store, store
		logger.Info("game journal enabled", zap.String("path", cfg.Storage.Path))
	} else {
		logger.Info("game journal disabled (set storage.path to enable)")
	}

	// 2. Control loop and the components it owns
	loop := processor.NewLoop(loopBuffer, logger.Named("loop"))
	sched := clock.OnLoop(loop)
	registry := transport.NewRegistry()

	tr := tracker.New(cfg.Search, logger.Named("tracker"))
	resolver := validator.New(rules.NewChessOracle(), cfg.Validator, logger.Named("validator"))
	queue := delivery.NewQueue(cfg.Delivery, registry, registry, sched, tr.Current, logger.Named("delivery"))
	session := engine.NewSession(cfg.Engine, engine.ExecLauncher(cfg.Engine.Path), sched, loop.Post, logger.Named("engine"))
	proc := processor.New(tr, session, resolver, queue, journal, time.Now, logger.Named("processor"))

	session.OnResult = proc.OnSearchResult
	session.OnReady = proc.OnEngineReady
	session.OnFatal = proc.OnEngineFatal

	registry.Subscribe(func(env core.InboundEnvelope) {
		loop.Post(func() { proc.HandleEnvelope(env) })
	})

	// 3. Transports
	if cfg.Transport.BridgeURL != "" {
		surface := bridge.New(cfg.Transport.BridgeURL, logger.Named("bridge"))
		registry.RegisterSecondary(transport.NewInteraction(surface, sched, loop.Post,
			cfg.Transport.InteractionDelay, logger.Named("interaction")))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return loop.Run(ctx) })
	loop.Post(session.Start)

	if consoleMode {
		colored := console.ColorSupported(os.Stdout)
		rl, err := console.NewReadline(consoleHistoryFile, colored)
		if err != nil {
			cancel()
			g.Wait()
			return fmt.Errorf("failed to open console: %w", err)
		}
		con := console.New(rl, rl.Stdout(), registry.Dispatch, processor.NewRemote(loop, proc), colored, logger.Named("console"))
		registry.RegisterPrimary("console", con)

		g.Go(func() error {
			// Leaving the console stops the bot
			defer cancel()
			return con.Run(ctx)
		})
		g.Go(func() error {
			<-ctx.Done()
			return rl.Close()
		})
	} else {
		wsClient := ws.New(cfg.Transport, registry.Dispatch, logger.Named("ws"))
		registry.RegisterPrimary("ws", wsClient)
		g.Go(func() error { return wsClient.Run(ctx) })
	}
	logger.Info("transports registered", zap.Strings("primary", registry.Primaries()))

	// 4. Status and control API (optional)
	if cfg.HTTP.Enabled {
		app := apihttp.NewFiberApp(loop, proc, history, dev)
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

		g.Go(func() error {
			logger.Info("control API listening",
				zap.String("addr", "http://"+addr),
				zap.String("health", "http://"+addr+"/health"),
				zap.String("state", "http://"+addr+"/api/v1/state"),
			)
			if err := app.Listen(addr); err != nil && ctx.Err() == nil {
				return fmt.Errorf("control API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
			defer shutdownCancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				logger.Warn("control API forced to shutdown", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()

	// The loop has stopped, nothing else touches the session
	if cerr := session.Close(); cerr != nil {
		logger.Warn("engine close error", zap.Error(cerr))
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// initLogger builds the zap logger from the logging config
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
