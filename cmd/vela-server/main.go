package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vela/internal/auth"
	"vela/internal/config"
	"vela/internal/httpapi"
	"vela/internal/marketdata"
	"vela/internal/store"
	"vela/internal/util"
)

func main() {
	cfgPath := "config/vela.yaml"
	if p := os.Getenv("VELA_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	var session auth.Session
	if cfg.Auth.Token != "" {
		session = auth.NewStaticSession(cfg.Auth.Token)
	} else {
		session = auth.NewPasswordSession(cfg.Auth.BaseURL, cfg.Auth.APIKey, cfg.Auth.Email, cfg.Auth.Password)
	}

	var persister marketdata.Persister
	if cfg.Cache.Persist {
		mirror, err := store.NewSQLiteMirror(cfg.Cache.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open cache mirror: %v", err)
		}
		defer mirror.Close()
		persister = mirror
	}

	md := marketdata.NewClient(marketdata.ClientOpts{
		BaseURL:    cfg.Backend.BaseURL,
		Session:    session,
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL(),
		HTTPClient: &http.Client{Timeout: cfg.Backend.Timeout()},
		Persister:  persister,
		Logger:     logger,
	})

	var archive *store.ParquetArchive
	if cfg.Archive.DataDir != "" {
		archive = store.NewParquetArchive(cfg.Archive.DataDir)
	}

	api := httpapi.NewServer(md, archive, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("vela-server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("vela-server stopped")
}
