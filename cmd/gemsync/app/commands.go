// Package app wires gemsync's commands.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/git-pkgs/gemsync/client"
	"github.com/git-pkgs/gemsync/fetch"
	"github.com/git-pkgs/gemsync/internal/config"
	"github.com/git-pkgs/gemsync/internal/core"
	"github.com/git-pkgs/gemsync/internal/logger"
	_ "github.com/git-pkgs/gemsync/internal/rubygems"
)

// app carries the configuration and shared dependencies of one invocation.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *zap.Logger
}

// NewRootCmd creates the gemsync command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:               "gemsync",
		Short:             "Keep package entries in sync with rubygems.org",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to configuration file (YAML)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (console, json)")
	flags.String("registry-url", "", "Registry base URL")
	flags.String("database-url", "", "PostgreSQL connection string")

	for key, flag := range map[string]string{
		"log.level":    "log-level",
		"log.format":   "log-format",
		"registry.url": "registry-url",
		"database.url": "database-url",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", flag, err))
		}
	}

	root.AddCommand(a.syncCmd(), a.serveCmd(), a.migrateCmd())
	return root
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(a.v, path)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) newClient() *client.Client {
	return client.NewClient(
		client.WithTimeout(a.cfg.Registry.Timeout),
		client.WithMaxRetries(a.cfg.Registry.MaxRetries),
		client.WithLogger(a.log),
	).WithUserAgent(a.cfg.Registry.UserAgent)
}

// lookupFactory builds breaker-guarded lookups that share c and breakers.
func lookupFactory(c *client.Client, breakers *fetch.CircuitBreakers) func(t target) (*fetch.CircuitBreakerLookup, error) {
	return func(t target) (*fetch.CircuitBreakerLookup, error) {
		reg, err := core.New(t.ecosystem, t.baseURL, c)
		if err != nil {
			return nil, err
		}
		baseURL := t.baseURL
		if baseURL == "" {
			baseURL = core.DefaultURL(t.ecosystem)
		}
		return breakers.Wrap(baseURL, core.MetadataLookup{Registry: reg}), nil
	}
}

func (a *app) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}
