package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/quartz"
	"github.com/lox/teenpatti/internal/gameid"
	"github.com/lox/teenpatti/internal/server"
	"github.com/lox/teenpatti/internal/session"
	"github.com/lox/teenpatti/internal/store"
	"golang.org/x/sync/errgroup"
)

// ServeCmd runs the websocket server. Flags override the config file.
type ServeCmd struct {
	Config   string `short:"c" default:"teenpatti.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Server address to bind to (overrides config)"`
	Port     int    `short:"p" help:"Server port (overrides config)"`
	LogLevel string `short:"l" help:"Log level: debug, info, warn, error (overrides config)"`
	Store    string `help:"Store driver: sqlite, postgres, memory (overrides config)"`
	DSN      string `help:"Store data source name (overrides config)"`
	Seed     *int64 `help:"Deterministic deal seed (optional)"`
}

func (c *ServeCmd) Run() error {
	cfg, err := server.LoadServerConfig(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	defer func() { _ = st.Close() }()

	clock := quartz.NewReal()
	ids := gameid.NewGenerator(nil, clock)
	registry := session.NewRegistry(session.Config{
		Game:          cfg.GameConfig(),
		DefaultRounds: cfg.Game.DefaultRounds,
		Store:         st,
		Clock:         clock,
		Logger:        logger,
		IDs:           ids,
	})
	recorder := server.NewRecorder(server.RecorderConfig{Store: st, Clock: clock, Logger: logger})
	srv := server.NewServer(cfg.GetServerAddress(), server.Config{
		Registry:  registry,
		Validator: cfg.Validator(),
		Recorder:  recorder,
		Clock:     clock,
		Logger:    logger,
		IDs:       ids,
	})

	logger.Info("Starting Teen Patti server",
		"addr", cfg.GetServerAddress(),
		"store", cfg.Store.Driver,
		"boot", cfg.Game.Boot,
		"stake", cfg.Game.InitialStake,
		"rounds", cfg.Game.DefaultRounds,
		"requestTimeout", cfg.Game.RequestTimeout)

	// The recorder outlives the server so hands finished during shutdown
	// are still written.
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stopRecorder()
		err := srv.Run(gctx)
		registry.Close()
		return err
	})
	g.Go(func() error {
		return recorder.Run(recorderCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func (c *ServeCmd) apply(cfg *server.ServerConfig) {
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.Store != "" {
		cfg.Store.Driver = c.Store
		if c.Store != store.DriverSQLite || c.DSN != "" {
			cfg.Store.DSN = c.DSN
		}
	}
	if c.DSN != "" {
		cfg.Store.DSN = c.DSN
	}
	if c.Seed != nil {
		cfg.Game.Seed = *c.Seed
	}
}
