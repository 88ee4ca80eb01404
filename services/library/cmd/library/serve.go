package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"musiclib/internal/util"
	"musiclib/services/library/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API",
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	trusted, err := util.NewTrustedProxies(rt.cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}
	loginLimiter, err := rt.newLimiter("login", rt.cfg.LoginRateLimitPerMinute)
	if err != nil {
		return fmt.Errorf("init login limiter: %w", err)
	}
	resetLimiter, err := rt.newLimiter("password-reset", rt.cfg.ResetRateLimitPerMinute)
	if err != nil {
		return fmt.Errorf("init reset limiter: %w", err)
	}
	httpServer := server.New(server.Config{
		App:            rt.app,
		LoginLimiter:   loginLimiter,
		ResetLimiter:   resetLimiter,
		TrustedProxies: trusted,
	})

	addr := ":" + rt.cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Info("library server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
