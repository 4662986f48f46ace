package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/git-pkgs/gemsync/fetch"
	"github.com/git-pkgs/gemsync/internal/queue"
	"github.com/git-pkgs/gemsync/internal/server"
	"github.com/git-pkgs/gemsync/internal/store"
	"github.com/git-pkgs/gemsync/internal/sync"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 2 * time.Minute
	serverIdleTimeout      = 60 * time.Second
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve entry syncs over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("address", "", "Address to listen on")
	if err := a.v.BindPFlag("server.address", cmd.Flags().Lookup("address")); err != nil {
		panic(err)
	}
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	lookup, err := lookupFactory(a.newClient(), breakers)(target{ecosystem: defaultEcosystem, baseURL: a.cfg.Registry.URL})
	if err != nil {
		return err
	}

	s := sync.New(lookup, st, q,
		sync.WithLogger(a.log),
		sync.WithMetrics(sync.NewMetrics(prometheus.DefaultRegisterer)),
	)

	srv := &http.Server{
		Addr: a.cfg.Server.Address,
		Handler: server.NewRouter(s, st,
			server.WithLogger(a.log),
			server.WithBreakers(breakers),
		),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	return nil
}
