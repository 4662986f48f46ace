// Package store persists registry entries.
package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned by Get for names that have never been saved.
var ErrNotFound = errors.New("entry not found")

// Entry is the local record of one tracked package. Optional URLs are empty
// when the registry does not provide them.
type Entry struct {
	Name                     string    `json:"name"`
	Authors                  string    `json:"authors"`
	BugTrackerURL            string    `json:"bug_tracker_url,omitempty"`
	CurrentVersion           string    `json:"current_version"`
	DocumentationURL         string    `json:"documentation_url,omitempty"`
	Downloads                int64     `json:"downloads"`
	HomepageURL              string    `json:"homepage_url,omitempty"`
	Licenses                 []string  `json:"licenses"`
	MailingListURL           string    `json:"mailing_list_url,omitempty"`
	SourceCodeURL            string    `json:"source_code_url,omitempty"`
	WikiURL                  string    `json:"wiki_url,omitempty"`
	FirstReleaseOn           time.Time `json:"first_release_on"`
	LatestReleaseOn          time.Time `json:"latest_release_on"`
	ReleasesCount            int       `json:"releases_count"`
	ReverseDependenciesCount int       `json:"reverse_dependencies_count"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Licenses = slices.Clone(e.Licenses)
	return &cp
}

// Store locates and persists entries keyed by name.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/git-pkgs/gemsync/internal/store Store
type Store interface {
	// FindOrCreate returns the stored entry for name, or a new entry carrying
	// only the name. A new entry is not persisted until Save.
	FindOrCreate(ctx context.Context, name string) (*Entry, error)

	// Save inserts or replaces the entry keyed by its name.
	Save(ctx context.Context, e *Entry) error

	// Get returns the stored entry for name or ErrNotFound.
	Get(ctx context.Context, name string) (*Entry, error)
}
