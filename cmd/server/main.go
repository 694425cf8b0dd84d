package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/janisto/citizen-profiles/internal/platform/config"
	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

func main() {
	defer func() {
		if err := applog.Sync(); err != nil {
			applog.LogError(context.Background(), "logger sync error", err)
		}
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(context.Background(), "logger init error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		applog.LogFatal(context.Background(), "invalid configuration", err)
	}
	if !applog.SetLevel(cfg.LogLevel) {
		applog.LogWarn(context.Background(), "unknown LOG_LEVEL, keeping info", zap.String("level", cfg.LogLevel))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := connect(ctx, cfg)
	if err != nil {
		applog.LogFatal(ctx, "backend initialization failed", err)
	}
	a := build(cfg, backends)
	defer func() {
		if err := a.Close(); err != nil {
			applog.LogError(context.Background(), "backend close error", err)
		}
	}()

	applog.LogInfo(ctx, "service wired", zap.String("backends", describe(cfg)), zap.String("version", Version))
	if err := run(ctx, cfg, a); err != nil {
		applog.LogError(context.Background(), "server exited with error", err)
		os.Exit(1)
	}
	applog.LogInfo(context.Background(), "server exited")
}

// run serves HTTP and runs the workflow host and the validated email watcher
// until ctx is done or one of them fails.
func run(ctx context.Context, cfg *config.Config, a *app) error {
	router, _ := newRouter(routerDeps{
		projectID:   cfg.Firebase.ProjectID,
		corsOrigins: cfg.Server.CORSOrigins,
		verifier:    a.verify,
		profiles:    a.engine,
		tokens:      a.tokens,
		checks:      a.checks,
		metrics:     promhttp.Handler(),
	})
	srv := newHTTPServer(cfg.Server.Port, router)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return serve(ctx, srv, ln, cfg.Server.ShutdownTimeout, a)
}

func serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, a *app) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.host.Run(gctx)
	})
	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		applog.LogInfo(gctx, "server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		applog.LogInfo(context.Background(), "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
