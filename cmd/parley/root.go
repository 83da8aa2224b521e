package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/examples/onboarding"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley is a phase-gated workflow orchestration engine",
	Long: `Parley drives multi-agent conversational workflows through a strict
phase lifecycle, with validated node execution, loop protection, and an
append-only audit trail. The bundled onboarding workflow runs without
any model backend.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("user", "local", "User ID to act as")
}

func loadConfig(cmd *cobra.Command) config.Config {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.New(cfg.SlogLevel())
}

// newStore builds the session backend from the configuration. A nil
// return means in-memory sessions.
func newStore(cfg config.Config) ports.CacheStore {
	if cfg.Redis.Address == "" {
		return nil
	}
	opts := []redis.Option{}
	if cfg.Redis.Environment != "" {
		opts = append(opts, redis.WithEnvironment(cfg.Redis.Environment))
	}
	if cfg.Redis.TTL > 0 {
		opts = append(opts, redis.WithTTL(cfg.Redis.TTL))
	}
	if cfg.Redis.HashKey != "" {
		opts = append(opts, redis.WithHashedKeys([]byte(cfg.Redis.HashKey)))
	}
	return redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, opts...)
}

// buildEngine assembles the engine around the bundled onboarding
// workflow, applying the configured safety bounds and exceptions.
func buildEngine(cfg config.Config, logger *slog.Logger) (*parley.Engine, error) {
	wf := onboarding.Workflow()
	for _, exc := range cfg.Exceptions {
		phase, ok := domain.ParsePhase(exc.Phase)
		if !ok {
			return nil, fmt.Errorf("config exception references unknown phase %q", exc.Phase)
		}
		wf.AllowInPhase(phase, exc.Node)
	}

	opts := []parley.Option{
		parley.WithLogger(logger),
	}
	if store := newStore(cfg); store != nil {
		opts = append(opts, parley.WithStore(store))
	}
	if cfg.Engine.MaxVisits > 0 {
		opts = append(opts, parley.WithMaxVisits(cfg.Engine.MaxVisits))
	}
	if cfg.Engine.VisitWindow > 0 {
		opts = append(opts, parley.WithVisitWindow(cfg.Engine.VisitWindow))
	}
	if cfg.Engine.RecursionBudget > 0 {
		opts = append(opts, parley.WithRecursionBudget(cfg.Engine.RecursionBudget))
	}
	if cfg.Engine.MaxRetries > 0 {
		opts = append(opts, parley.WithMaxRetries(cfg.Engine.MaxRetries))
	}
	return parley.New(wf, opts...)
}
