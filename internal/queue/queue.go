// Package queue schedules the follow-up job that runs after an entry sync.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultKind is the job kind written for follow-up project updates.
const DefaultKind = "project_update"

// DefaultQueue is the queue name used when none is configured.
const DefaultQueue = "default"

// Enqueuer schedules one follow-up job for a package name.
//
//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks github.com/git-pkgs/gemsync/internal/queue Enqueuer
type Enqueuer interface {
	Enqueue(ctx context.Context, name string) error
}

// Func adapts an ordinary function to an Enqueuer.
type Func func(ctx context.Context, name string) error

// Enqueue calls f(ctx, name).
func (f Func) Enqueue(ctx context.Context, name string) error {
	return f(ctx, name)
}

// Execer is the subset of *pgxpool.Pool used by Postgres.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres writes follow-up jobs as rows in the jobs table, to be picked up
// by whichever worker owns that queue.
type Postgres struct {
	db    Execer
	queue string
	kind  string
	now   func() time.Time
}

// Option configures Postgres.
type Option func(*Postgres)

// WithQueue sets the queue name written on each job.
func WithQueue(name string) Option {
	return func(p *Postgres) {
		p.queue = name
	}
}

// WithKind sets the job kind written on each job.
func WithKind(kind string) Option {
	return func(p *Postgres) {
		p.kind = kind
	}
}

// WithClock sets the clock used for enqueued_at.
func WithClock(now func() time.Time) Option {
	return func(p *Postgres) {
		p.now = now
	}
}

// NewPostgres creates an Enqueuer on db.
func NewPostgres(db Execer, opts ...Option) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	p := &Postgres{
		db:    db,
		queue: DefaultQueue,
		kind:  DefaultKind,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

const insertJob = `INSERT INTO jobs (queue, kind, arg, enqueued_at) VALUES ($1, $2, $3, $4)`

// Enqueue inserts one job row carrying name.
func (p *Postgres) Enqueue(ctx context.Context, name string) error {
	if _, err := p.db.Exec(ctx, insertJob, p.queue, p.kind, name, p.now().UTC()); err != nil {
		return fmt.Errorf("failed to enqueue %s job for %s: %w", p.kind, name, err)
	}
	return nil
}
