package core

import (
	"context"
	"slices"
	"time"
)

// FetchMetadata assembles the flattened Metadata for name from the package,
// versions and reverse dependency endpoints of reg. The first failing call
// aborts the assembly and its error is returned unchanged.
func FetchMetadata(ctx context.Context, reg Registry, name string) (*Metadata, error) {
	pkg, err := reg.FetchPackage(ctx, name)
	if err != nil {
		return nil, err
	}

	versions, err := reg.FetchVersions(ctx, name)
	if err != nil {
		return nil, err
	}

	dependents, err := reg.FetchReverseDependencies(ctx, name)
	if err != nil {
		return nil, err
	}

	first, latest := releaseWindow(versions)

	return &Metadata{
		Authors:                  pkg.Authors,
		BugTrackerURL:            pkg.BugTracker,
		CurrentVersion:           pkg.LatestVersion,
		DocumentationURL:         pkg.Documentation,
		Downloads:                pkg.Downloads,
		HomepageURL:              pkg.Homepage,
		Licenses:                 slices.Clone(pkg.Licenses),
		MailingListURL:           pkg.MailingList,
		SourceCodeURL:            pkg.SourceCode,
		WikiURL:                  pkg.Wiki,
		FirstReleaseOn:           first,
		LatestReleaseOn:          latest,
		ReleasesCount:            len(versions),
		ReverseDependenciesCount: len(dependents),
	}, nil
}

// releaseWindow returns the dates of the earliest and latest published
// versions. Versions without a timestamp are skipped.
func releaseWindow(versions []Version) (first, latest time.Time) {
	for _, v := range versions {
		if v.PublishedAt.IsZero() {
			continue
		}
		if first.IsZero() || v.PublishedAt.Before(first) {
			first = v.PublishedAt
		}
		if latest.IsZero() || v.PublishedAt.After(latest) {
			latest = v.PublishedAt
		}
	}
	return Date(first), Date(latest)
}

// Date truncates t to midnight UTC of its calendar day in UTC.
// The zero time is returned unchanged.
func Date(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MetadataLookup adapts a Registry to a single-method metadata lookup.
type MetadataLookup struct {
	Registry Registry
}

// FetchMetadata implements the lookup by delegating to FetchMetadata.
func (l MetadataLookup) FetchMetadata(ctx context.Context, name string) (*Metadata, error) {
	return FetchMetadata(ctx, l.Registry, name)
}
