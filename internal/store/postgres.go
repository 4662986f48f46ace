package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a Store backed by the entries table.
type Postgres struct {
	db DB
}

// NewPostgres creates a store on db. The caller owns the pool.
func NewPostgres(db DB) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	return &Postgres{db: db}, nil
}

const selectEntry = `
SELECT name, authors, bug_tracker_url, current_version, documentation_url,
       downloads, homepage_url, licenses, mailing_list_url, source_code_url,
       wiki_url, first_release_on, latest_release_on, releases_count,
       reverse_dependencies_count, created_at, updated_at
FROM entries
WHERE name = $1`

const upsertEntry = `
INSERT INTO entries (
    name, authors, bug_tracker_url, current_version, documentation_url,
    downloads, homepage_url, licenses, mailing_list_url, source_code_url,
    wiki_url, first_release_on, latest_release_on, releases_count,
    reverse_dependencies_count, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (name) DO UPDATE SET
    authors                    = EXCLUDED.authors,
    bug_tracker_url            = EXCLUDED.bug_tracker_url,
    current_version            = EXCLUDED.current_version,
    documentation_url          = EXCLUDED.documentation_url,
    downloads                  = EXCLUDED.downloads,
    homepage_url               = EXCLUDED.homepage_url,
    licenses                   = EXCLUDED.licenses,
    mailing_list_url           = EXCLUDED.mailing_list_url,
    source_code_url            = EXCLUDED.source_code_url,
    wiki_url                   = EXCLUDED.wiki_url,
    first_release_on           = EXCLUDED.first_release_on,
    latest_release_on          = EXCLUDED.latest_release_on,
    releases_count             = EXCLUDED.releases_count,
    reverse_dependencies_count = EXCLUDED.reverse_dependencies_count,
    updated_at                 = EXCLUDED.updated_at
RETURNING created_at`

func (p *Postgres) FindOrCreate(ctx context.Context, name string) (*Entry, error) {
	e, err := p.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return &Entry{Name: name}, nil
	}
	return e, err
}

func (p *Postgres) Get(ctx context.Context, name string) (*Entry, error) {
	var (
		e                                         Entry
		bugTracker, docs, homepage, mailing, code *string
		wiki                                      *string
		firstRelease, latestRelease               *time.Time
	)

	err := p.db.QueryRow(ctx, selectEntry, name).Scan(
		&e.Name, &e.Authors, &bugTracker, &e.CurrentVersion, &docs,
		&e.Downloads, &homepage, &e.Licenses, &mailing, &code,
		&wiki, &firstRelease, &latestRelease, &e.ReleasesCount,
		&e.ReverseDependenciesCount, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load entry %s: %w", name, err)
	}

	e.BugTrackerURL = fromNull(bugTracker)
	e.DocumentationURL = fromNull(docs)
	e.HomepageURL = fromNull(homepage)
	e.MailingListURL = fromNull(mailing)
	e.SourceCodeURL = fromNull(code)
	e.WikiURL = fromNull(wiki)
	e.FirstReleaseOn = fromNullDate(firstRelease)
	e.LatestReleaseOn = fromNullDate(latestRelease)

	return &e, nil
}

func (p *Postgres) Save(ctx context.Context, e *Entry) error {
	if e == nil || e.Name == "" {
		return fmt.Errorf("entry name is required")
	}

	licenses := e.Licenses
	if licenses == nil {
		licenses = []string{}
	}

	var createdAt time.Time
	err := p.db.QueryRow(ctx, upsertEntry,
		e.Name, e.Authors, toNull(e.BugTrackerURL), e.CurrentVersion, toNull(e.DocumentationURL),
		e.Downloads, toNull(e.HomepageURL), licenses, toNull(e.MailingListURL), toNull(e.SourceCodeURL),
		toNull(e.WikiURL), toNullDate(e.FirstReleaseOn), toNullDate(e.LatestReleaseOn), e.ReleasesCount,
		e.ReverseDependenciesCount, e.UpdatedAt,
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("failed to save entry %s: %w", e.Name, err)
	}

	e.CreatedAt = createdAt
	return nil
}

func toNull(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fromNull(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toNullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullDate(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
