package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"todochat/internal/app"
	"todochat/internal/config"
	"todochat/internal/logging"
	todosdk "todochat/sdk/go"
)

var v = app.NewViper()

var rootCmd = &cobra.Command{
	Use:   "todochat",
	Short: "Chat with your todo list",
	Long: `todochat drives a remote task store through short chat commands.

Chat commands:
  add <title> [description <text>] [due YYYY-MM-DD]
  list [pending|completed]    stats
  complete <id|title>         uncomplete <id|title>
  delete <id|title>           help

The same operations are available directly as 'todochat task list|add|done|undo|rm|clear'.

Run 'todochat serve' to host the task store, chat endpoint and change
stream locally, or 'todochat chat' for an interactive session.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "directory holding todochat.yml")
	flags.StringP("user", "u", "", "user id (overrides user_id)")
	flags.String("base-url", "", "task store base path, e.g. http://127.0.0.1:8080/api")
	flags.String("token", "", "bearer token for the task store")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.Bool("json", false, "output JSON")
	_ = v.BindPFlag("workspace", flags.Lookup("workspace"))
	_ = v.BindPFlag("user_id", flags.Lookup("user"))
	_ = v.BindPFlag("store.base_url", flags.Lookup("base-url"))
	_ = v.BindPFlag("store.token", flags.Lookup("token"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("json", flags.Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(configCmd())
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return app.ResolveConfig(v.GetString("workspace"), v)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.JSON)
}

func newClient(cfg *config.Config) *todosdk.Client {
	client := todosdk.New(cfg.Store.BaseURL)
	client.BearerToken = cfg.Store.Token
	client.Timeout = cfg.Store.Timeout
	client.HTTPClient = &http.Client{Timeout: cfg.Store.Timeout}
	return client
}

func withClient(cmd *cobra.Command, fn func(context.Context, *config.Config, *todosdk.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.UserID == "" {
		return fmt.Errorf("user id required; set user_id or pass --user")
	}
	return fn(cmd.Context(), cfg, newClient(cfg))
}

// viperFlag binds a command-local flag to a config key.
func viperFlag(cmd *cobra.Command, key, flag string) {
	_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
}
