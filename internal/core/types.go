// Package core provides shared types and the registry system.
package core

import "time"

// Package represents metadata about a package from a registry.
type Package struct {
	Name          string
	Description   string
	Authors       string
	LatestVersion string
	Downloads     int64
	Licenses      []string
	Homepage      string
	Repository    string
	Documentation string
	BugTracker    string
	MailingList   string
	SourceCode    string
	Wiki          string
	Metadata      map[string]any // registry-specific data
}

// Version represents a specific version of a package.
type Version struct {
	Number      string
	PublishedAt time.Time
	Licenses    []string
	Integrity   string // sha256-..., sha512-...
	Prerelease  bool
	Metadata    map[string]any
}

// Metadata is the registry's canonical view of a package, flattened into the
// attributes tracked for each local entry.
type Metadata struct {
	Authors                  string
	BugTrackerURL            string
	CurrentVersion           string
	DocumentationURL         string
	Downloads                int64
	HomepageURL              string
	Licenses                 []string
	MailingListURL           string
	SourceCodeURL            string
	WikiURL                  string
	FirstReleaseOn           time.Time
	LatestReleaseOn          time.Time
	ReleasesCount            int
	ReverseDependenciesCount int
}
