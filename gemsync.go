// Package gemsync keeps local package entries in step with rubygems.org.
//
// A sync run fetches a gem's metadata, overwrites the stored entry with it,
// refreshes the entry's updated_at and enqueues a follow-up job:
//
//	reg, _ := gemsync.New("gem", "", gemsync.DefaultClient())
//	s := gemsync.NewEntrySync(gemsync.Lookup(reg), gemsync.NewMemoryStore(), enqueuer)
//	if err := s.Run(ctx, "rspec"); err != nil {
//		var fetchErr *gemsync.RemoteFetchFailure
//		if errors.As(err, &fetchErr) {
//			// upstream failed; nothing was written
//		}
//	}
package gemsync

import (
	"context"

	"github.com/git-pkgs/purl"

	"github.com/git-pkgs/gemsync/client"
	"github.com/git-pkgs/gemsync/internal/core"
	"github.com/git-pkgs/gemsync/internal/queue"
	_ "github.com/git-pkgs/gemsync/internal/rubygems"
	"github.com/git-pkgs/gemsync/internal/store"
	"github.com/git-pkgs/gemsync/internal/sync"
)

// Re-export types from internal/core
type (
	// Registry is the interface implemented by registry clients.
	Registry = core.Registry

	// Package represents metadata about a package from a registry.
	Package = core.Package

	// Version represents a specific version of a package.
	Version = core.Version

	// Metadata is the flattened view of a package that a sync writes.
	Metadata = core.Metadata
)

// Re-export types from client
type (
	// Client is an HTTP client with retry logic for registry APIs.
	Client = client.Client

	// URLBuilder constructs URLs for a registry.
	URLBuilder = client.URLBuilder

	// RateLimiter controls request pacing.
	RateLimiter = client.RateLimiter

	// Option configures a Client.
	Option = client.Option
)

// Error types
type (
	HTTPError          = client.HTTPError
	NotFoundError      = client.NotFoundError
	RateLimitError     = client.RateLimitError
	RemoteFetchFailure = sync.RemoteFetchFailure
)

// Sync types
type (
	EntrySync  = sync.EntrySync
	SyncOption = sync.Option
	Entry      = store.Entry
	Store      = store.Store
	Enqueuer   = queue.Enqueuer
)

var (
	ErrNotFound      = client.ErrNotFound
	ErrEntryNotFound = store.ErrNotFound
)

// Client options
var (
	WithTimeout    = client.WithTimeout
	WithMaxRetries = client.WithMaxRetries
	WithBaseDelay  = client.WithBaseDelay
	WithLogger     = client.WithLogger
)

// Sync options
var (
	WithClock       = sync.WithClock
	WithSyncLogger  = sync.WithLogger
	WithSyncMetrics = sync.WithMetrics
)

// New creates a registry for the given ecosystem.
// If baseURL is empty, the default registry URL is used.
// If client is nil, DefaultClient() is used.
//
// Supported ecosystems: "gem"
func New(ecosystem string, baseURL string, c *Client) (Registry, error) {
	return core.New(ecosystem, baseURL, c)
}

// DefaultClient returns a client with a 30s timeout and 5 retries with
// exponential backoff on 429 and 5xx responses.
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// SupportedEcosystems returns all registered ecosystem types.
func SupportedEcosystems() []string {
	return core.SupportedEcosystems()
}

// DefaultURL returns the default registry URL for an ecosystem.
func DefaultURL(ecosystem string) string {
	return core.DefaultURL(ecosystem)
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "download", "docs", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	return client.BuildURLs(urls, name, version)
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:gem/rails) and version PURLs (pkg:gem/rails@7.1.0).
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// NewFromPURL creates a registry client from a PURL and returns the parsed components.
// Returns the registry, full package name, and version (empty if not in PURL).
func NewFromPURL(purl string, c *Client) (Registry, string, string, error) {
	return core.NewFromPURL(purl, c)
}

// FetchMetadata assembles the Metadata for name from reg.
func FetchMetadata(ctx context.Context, reg Registry, name string) (*Metadata, error) {
	return core.FetchMetadata(ctx, reg, name)
}

// FetchMetadataFromPURL fetches Metadata using a PURL.
func FetchMetadataFromPURL(ctx context.Context, purl string, c *Client) (*Metadata, error) {
	return core.FetchMetadataFromPURL(ctx, purl, c)
}

// Lookup adapts reg to the lookup an EntrySync fetches from.
func Lookup(reg Registry) sync.Lookup {
	return core.MetadataLookup{Registry: reg}
}

// NewEntrySync creates an EntrySync.
func NewEntrySync(lookup sync.Lookup, st Store, enqueuer Enqueuer, opts ...SyncOption) *EntrySync {
	return sync.New(lookup, st, enqueuer, opts...)
}

// NewMemoryStore returns an in-memory Store.
func NewMemoryStore() *store.Memory {
	return store.NewMemory()
}
