package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/piglig/silicon-casino/internal/auth"
	"github.com/piglig/silicon-casino/internal/ledger"
	"github.com/piglig/silicon-casino/internal/server"
	"github.com/piglig/silicon-casino/internal/session"
	"github.com/piglig/silicon-casino/internal/store"
)

// ServeCmd runs the arena: gateway, matchmaker, tables and ledger.
type ServeCmd struct {
	Config string `kong:"default='silicon-casino.hcl',help='Path to HCL config file'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
	Memory bool   `kong:"help='Use the in-memory store instead of sqlite'"`
}

func (c *ServeCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	level, err := log.ParseLevel(cfg.Server.LogLevel)
	if err == nil {
		logger.SetLevel(level)
	}
	if c.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	var st store.Store
	if c.Memory {
		st = store.NewMemoryStore()
		logger.Warn("using in-memory store, state is lost on exit")
	} else {
		st, err = store.NewSQLiteStore(cfg.Server.DatabasePath)
		if err != nil {
			return err
		}
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	led := ledger.New(st, logger)
	if err := led.EnsureHouseAccount(ctx); err != nil {
		return err
	}
	authSvc := auth.NewService(st, logger)

	sessions := session.NewManager(session.Config{
		SmallBlind:  cfg.Table.SmallBlind,
		BigBlind:    cfg.Table.BigBlind,
		MinBuyIn:    cfg.Table.BuyInMin,
		MaxBuyIn:    cfg.Table.BuyInMax,
		RakeBPS:     cfg.Table.RakeBPS,
		TurnTimeout: time.Duration(cfg.Server.TurnTimeoutSecs) * time.Second,
	}, st, led, quartz.NewReal(), logger)

	// Hands left open by a crashed process never settled; void them
	// before accepting traffic.
	if err := sessions.Recover(ctx); err != nil {
		return err
	}

	gateway := server.New(cfg, authSvc, led, sessions, logger)

	logger.Info("starting arena",
		"version", version,
		"address", cfg.Server.Address,
		"port", cfg.Server.Port,
		"small_blind", cfg.Table.SmallBlind,
		"big_blind", cfg.Table.BigBlind,
		"rake_bps", cfg.Table.RakeBPS,
		"turn_timeout_s", cfg.Server.TurnTimeoutSecs,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gateway.ListenAndServe(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		sessions.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("arena stopped")
	return nil
}
