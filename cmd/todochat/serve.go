package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"todochat/internal/app"
	"todochat/internal/events"
	"todochat/internal/repo"
	"todochat/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (task store, chat, change stream)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			var r repo.Repo
			if cfg.Server.Upstream == "" {
				conn, opened, version, err := app.OpenRepoVersion(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer conn.Close()
				r = opened
				logger.Info("task store ready", zap.String("db", cfg.Server.DBPath), zap.Int("schema_version", version))
			}

			handler, err := server.New(server.Config{
				Repo:            r,
				Upstream:        cfg.Server.Upstream,
				UpstreamToken:   cfg.Store.Token,
				BasePath:        cfg.Server.BasePath,
				Auth:            server.AuthConfig{JWTSecret: cfg.Server.JWTSecret, Logger: logger.Named("auth")},
				Bus:             events.NewBus(registry),
				Registry:        registry,
				Logger:          logger,
				ListLimit:       cfg.Chat.ListLimit,
				SessionTTL:      cfg.Chat.SessionTTL,
				SessionCapacity: cfg.Chat.SessionCapacity,
			})
			if err != nil {
				return err
			}
			defer handler.Close()

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			mode := "local store " + cfg.Server.DBPath
			if cfg.Server.Upstream != "" {
				mode = "proxy to " + cfg.Server.Upstream
			}
			logger.Info("serving todochat API",
				zap.String("url", "http://"+cfg.Server.Addr+cfg.Server.BasePath),
				zap.String("mode", mode),
				zap.Bool("auth", cfg.Server.JWTSecret != ""))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("base-path", "", "API base path")
	cmd.Flags().String("upstream", "", "forward task routes to this store base path instead of the local database")
	cmd.Flags().String("db", "", "SQLite database path")
	viperFlag(cmd, "server.addr", "addr")
	viperFlag(cmd, "server.base_path", "base-path")
	viperFlag(cmd, "server.upstream", "upstream")
	viperFlag(cmd, "server.db_path", "db")
	return cmd
}
