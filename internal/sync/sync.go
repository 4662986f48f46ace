package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/git-pkgs/gemsync/internal/core"
	"github.com/git-pkgs/gemsync/internal/queue"
	"github.com/git-pkgs/gemsync/internal/store"
)

// Lookup fetches the registry's metadata for a package name.
//
//go:generate mockgen -destination=mocks/mock_sync.go -package=mocks github.com/git-pkgs/gemsync/internal/sync Lookup
type Lookup interface {
	FetchMetadata(ctx context.Context, name string) (*core.Metadata, error)
}

// EntrySync refreshes one stored entry per Run. It holds no per-run state
// and is safe for concurrent use.
type EntrySync struct {
	lookup   Lookup
	store    store.Store
	enqueuer queue.Enqueuer

	now     func() time.Time
	logger  *zap.Logger
	metrics *Metrics
}

// Option configures an EntrySync.
type Option func(*EntrySync)

// WithClock sets the clock used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *EntrySync) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *EntrySync) {
		s.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(s *EntrySync) {
		s.metrics = m
	}
}

// New creates an EntrySync from its three collaborators.
func New(lookup Lookup, st store.Store, enqueuer queue.Enqueuer, opts ...Option) *EntrySync {
	s := &EntrySync{
		lookup:   lookup,
		store:    st,
		enqueuer: enqueuer,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run fetches the metadata for name, writes it to the stored entry and
// enqueues the follow-up job.
//
// A lookup failure is returned as *RemoteFetchFailure before the store is
// touched. Store and enqueue errors are returned as they are. The entry is
// saved on every successful lookup, even when nothing changed, so updated_at
// always moves forward.
func (s *EntrySync) Run(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}

	start := s.now()
	log := s.logger.With(zap.String("name", name))
	log.Debug("syncing entry")

	md, err := s.lookup.FetchMetadata(ctx, name)
	if err != nil {
		s.fail(log, ResultFetchError, start, err)
		return &RemoteFetchFailure{Name: name, Err: err}
	}

	entry, err := s.store.FindOrCreate(ctx, name)
	if err != nil {
		s.fail(log, ResultStoreError, start, err)
		return err
	}

	apply(entry, md)
	entry.UpdatedAt = s.touch(entry.UpdatedAt)

	if err := s.store.Save(ctx, entry); err != nil {
		s.fail(log, ResultStoreError, start, err)
		return err
	}

	if err := s.enqueuer.Enqueue(ctx, name); err != nil {
		s.fail(log, ResultEnqueueError, start, err)
		return err
	}

	elapsed := s.now().Sub(start)
	s.metrics.observe(ResultSuccess, elapsed)
	log.Info("entry synced",
		zap.String("current_version", entry.CurrentVersion),
		zap.Time("updated_at", entry.UpdatedAt),
		zap.Duration("duration", elapsed),
	)
	return nil
}

func (s *EntrySync) fail(log *zap.Logger, result string, start time.Time, err error) {
	elapsed := s.now().Sub(start)
	s.metrics.observe(result, elapsed)
	log.Warn("entry sync failed",
		zap.String("result", result),
		zap.Duration("duration", elapsed),
		zap.Error(err),
	)
}

// touch returns the new updated_at. It is strictly later than prev, so a run
// landing on the same clock reading still advances the timestamp.
func (s *EntrySync) touch(prev time.Time) time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}

// apply overwrites every mapped attribute of e with md. Licenses is never
// nil, so an empty list reads back as [] from every store.
func apply(e *store.Entry, md *core.Metadata) {
	e.Authors = md.Authors
	e.BugTrackerURL = md.BugTrackerURL
	e.CurrentVersion = md.CurrentVersion
	e.DocumentationURL = md.DocumentationURL
	e.Downloads = md.Downloads
	e.HomepageURL = md.HomepageURL
	e.Licenses = make([]string, len(md.Licenses))
	copy(e.Licenses, md.Licenses)
	e.MailingListURL = md.MailingListURL
	e.SourceCodeURL = md.SourceCodeURL
	e.WikiURL = md.WikiURL
	e.FirstReleaseOn = md.FirstReleaseOn
	e.LatestReleaseOn = md.LatestReleaseOn
	e.ReleasesCount = md.ReleasesCount
	e.ReverseDependenciesCount = md.ReverseDependenciesCount
}
