package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/tapestry"
	"github.com/aretw0/tapestry/internal/config"
	"github.com/aretw0/tapestry/internal/logging"
	"github.com/aretw0/tapestry/pkg/adapters/redis"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tapestry",
	Short: "Tapestry records the edit history of workflow graphs",
	Long: `Tapestry turns editor events into a coalesced, labelled undo/redo history.
It can serve sessions over HTTP or MCP, and replay scripted edits locally.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().Duration("debounce", 0, "History coalescing window (overrides config)")
}

// loadConfig reads the config file and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("debounce") {
		cfg.Debounce, _ = cmd.Flags().GetDuration("debounce")
		if err := cfg.Validate(); err != nil {
			return config.Config{}, nil, err
		}
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logging.New(level), nil
}

// newApp builds the application from cfg.
func newApp(cfg config.Config, logger *slog.Logger) (*tapestry.App, error) {
	opts := []tapestry.Option{
		tapestry.WithDebounce(cfg.Debounce),
		tapestry.WithLogger(logger),
	}
	if cfg.Redis.Enabled() {
		storeOpts := []redis.Option{
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		}
		active, fallbacks, err := cfg.Redis.Keys()
		if err != nil {
			return nil, err
		}
		if active != nil {
			storeOpts = append(storeOpts, redis.WithEncryption(redis.Encryption{
				ActiveKey:    active,
				FallbackKeys: fallbacks,
			}))
			logger.Info("History encrypted at rest", "fallback_keys", len(fallbacks))
		}
		client := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		opts = append(opts, tapestry.WithRedis(client, storeOpts...))
	}
	return tapestry.New(opts...)
}
