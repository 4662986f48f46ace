package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/git-pkgs/gemsync/fetch"
	"github.com/git-pkgs/gemsync/internal/core"
	"github.com/git-pkgs/gemsync/internal/queue"
	"github.com/git-pkgs/gemsync/internal/store"
	"github.com/git-pkgs/gemsync/internal/sync"
)

const defaultEcosystem = "gem"

// target is one command-line argument resolved to a registry and name.
type target struct {
	ecosystem string
	baseURL   string
	name      string
}

// parseTarget accepts a bare gem name or a package URL. A PURL's version is
// ignored; its repository_url qualifier overrides defaultURL.
func parseTarget(arg, defaultURL string) (target, error) {
	if !core.IsPURL(arg) {
		if arg == "" {
			return target{}, sync.ErrEmptyName
		}
		return target{ecosystem: defaultEcosystem, baseURL: defaultURL, name: arg}, nil
	}

	p, err := core.ParsePURL(arg)
	if err != nil {
		return target{}, fmt.Errorf("invalid package URL %q: %w", arg, err)
	}

	t := target{ecosystem: p.Type, name: p.FullName()}
	if repo := p.Qualifiers.Map()["repository_url"]; repo != "" {
		t.baseURL = repo
	} else if p.Type == defaultEcosystem {
		t.baseURL = defaultURL
	}
	return t, nil
}

func (a *app) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync NAME|PURL...",
		Short: "Refresh entries from the registry",
		Long: `Fetch each package's metadata, write it to the entries table and enqueue a
follow-up job. Arguments are processed in order and the first failure stops
the command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			targets := make([]target, 0, len(args))
			for _, arg := range args {
				t, err := parseTarget(arg, a.cfg.Registry.URL)
				if err != nil {
					return err
				}
				targets = append(targets, t)
			}

			pool, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			st, err := store.NewPostgres(pool)
			if err != nil {
				return err
			}
			q, err := queue.NewPostgres(pool, queue.WithQueue(a.cfg.Queue.Name), queue.WithKind(a.cfg.Queue.Kind))
			if err != nil {
				return err
			}

			breakers := fetch.NewCircuitBreakers(fetch.WithLogger(a.log))
			return syncTargets(cmd, targets, lookupFactory(a.newClient(), breakers), st, q, a.log)
		},
	}
}

func syncTargets(
	cmd *cobra.Command,
	targets []target,
	newLookup func(target) (*fetch.CircuitBreakerLookup, error),
	st store.Store,
	q queue.Enqueuer,
	log *zap.Logger,
) error {
	for _, t := range targets {
		lookup, err := newLookup(t)
		if err != nil {
			return err
		}

		s := sync.New(lookup, st, q, sync.WithLogger(log))
		if err := s.Run(cmd.Context(), t.name); err != nil {
			return fmt.Errorf("sync %s: %w", t.name, err)
		}
		cmd.Printf("synced %s\n", t.name)
	}
	return nil
}
