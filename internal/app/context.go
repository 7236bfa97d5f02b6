package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"todochat/internal/config"
	"todochat/internal/db"
	"todochat/internal/migrate"
	"todochat/internal/repo"
)

// EnvPrefix scopes environment overrides, e.g. TODOCHAT_STORE_BASE_URL.
const EnvPrefix = "TODOCHAT"

// NewViper returns a viper instance reading TODOCHAT_* variables for dotted keys.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ResolveConfig loads todochat.yml from workspace (defaults when absent) and
// overlays every key set in v through flags or environment.
func ResolveConfig(workspace string, v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if v != nil {
		overlay(cfg, v)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlay(cfg *config.Config, v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setString("user_id", &cfg.UserID)
	setString("store.base_url", &cfg.Store.BaseURL)
	setString("store.token", &cfg.Store.Token)
	setString("server.addr", &cfg.Server.Addr)
	setString("server.base_path", &cfg.Server.BasePath)
	setString("server.upstream", &cfg.Server.Upstream)
	setString("server.jwt_secret", &cfg.Server.JWTSecret)
	setString("server.db_path", &cfg.Server.DBPath)
	setString("log.level", &cfg.Log.Level)
	if v.IsSet("log.json") {
		cfg.Log.JSON = v.GetBool("log.json")
	}
	if v.IsSet("store.timeout") {
		cfg.Store.Timeout = v.GetDuration("store.timeout")
	}
	if v.IsSet("chat.list_limit") {
		cfg.Chat.ListLimit = v.GetInt("chat.list_limit")
	}
	if v.IsSet("chat.debounce") {
		cfg.Chat.Debounce = v.GetDuration("chat.debounce")
	}
	if v.IsSet("chat.session_ttl") {
		cfg.Chat.SessionTTL = v.GetDuration("chat.session_ttl")
	}
}

// OpenRepo opens the configured SQLite database and applies migrations.
// The caller closes the returned handle.
func OpenRepo(ctx context.Context, cfg *config.Config) (*sql.DB, repo.Repo, error) {
	conn, r, _, err := OpenRepoVersion(ctx, cfg)
	return conn, r, err
}

// OpenRepoVersion is OpenRepo that also reports the schema version.
func OpenRepoVersion(ctx context.Context, cfg *config.Config) (*sql.DB, repo.Repo, int, error) {
	conn, err := db.Open(db.Config{Path: cfg.Server.DBPath})
	if err != nil {
		return nil, repo.Repo{}, 0, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, repo.Repo{}, 0, fmt.Errorf("open %s: %w", cfg.Server.DBPath, err)
	}
	version, err := migrate.Migrate(conn)
	if err != nil {
		conn.Close()
		return nil, repo.Repo{}, 0, fmt.Errorf("migrate: %w", err)
	}
	return conn, repo.Repo{DB: conn}, version, nil
}
