package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leadhub/leadhub/internal/config"
	"github.com/leadhub/leadhub/internal/logging"
	"github.com/leadhub/leadhub/internal/store"
)

type globalFlags struct {
	configFile string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "leadhub",
		Short:         "Lead notification and webhook dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configFile, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before env overrides (missing file is ignored)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(g),
		newMigrateCmd(g),
		newChannelsCmd(g),
		newWebhooksCmd(g),
		newConfigCmd(g),
	)
	return root
}

// loadConfig applies defaults, then the file, then the environment, then
// flags.
func loadConfig(g *globalFlags) (*config.Config, error) {
	if g.envFile != "" {
		// a missing dotenv file is normal outside development
		_ = godotenv.Load(g.envFile)
	}
	cfg := config.DefaultConfig()
	if g.configFile != "" {
		c, err := config.LoadConfigFromFile(g.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed loading config: %w", err)
		}
		cfg = c
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment configuration: %w", err)
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}

// setup loads config, initializes logging and opens the migrated store.
func setup(ctx context.Context, g *globalFlags) (*config.Config, *store.Store, func(), error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, nil, nil, err
	}
	cleanupLog, err := logging.Init(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel, Console: cfg.LogConsole})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	st, err := store.Open(store.Options{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		cleanupLog()
		return nil, nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		cleanupLog()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	cleanup := func() {
		_ = st.Close()
		cleanupLog()
	}
	return cfg, st, cleanup, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
