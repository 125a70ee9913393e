package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/deal-assistant/internal/adapters/http"
	"github.com/PabloGalante/deal-assistant/internal/config"
	"github.com/PabloGalante/deal-assistant/internal/domain"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (overrides config and PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Error("closing storage", "error", err)
		}
	}()

	opts := []httpadapter.Option{httpadapter.WithDefaultVariant(domain.Variant(cfg.DefaultVariant))}
	if a.hosted != nil {
		opts = append(opts, httpadapter.WithDealChat(a.hosted))
	}
	var limiter *httpadapter.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = httpadapter.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		opts = append(opts, httpadapter.WithRateLimiter(limiter))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpadapter.NewServer(a.sessions, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("deal assistant listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := a.sessions.SweepIdle(); n > 0 {
					a.log.Info("expired idle sessions", "count", n)
				}
			}
		}
	})

	if limiter != nil {
		g.Go(func() error {
			limiter.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
