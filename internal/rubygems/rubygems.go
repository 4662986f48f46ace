// Package rubygems provides a registry client for rubygems.org.
package rubygems

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/git-pkgs/gemsync/internal/core"
)

const (
	DefaultURL = "https://rubygems.org"
	ecosystem  = "gem"
)

func init() {
	core.Register(ecosystem, DefaultURL, func(baseURL string, client *core.Client) core.Registry {
		return New(baseURL, client)
	})
}

type Registry struct {
	baseURL string
	client  *core.Client
	urls    *URLs
}

func New(baseURL string, client *core.Client) *Registry {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if client == nil {
		client = core.DefaultClient()
	}
	r := &Registry{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
	r.urls = &URLs{baseURL: r.baseURL}
	return r
}

func (r *Registry) Ecosystem() string {
	return ecosystem
}

func (r *Registry) URLs() core.URLBuilder {
	return r.urls
}

type gemResponse struct {
	Name           string            `json:"name"`
	Info           string            `json:"info"`
	Authors        string            `json:"authors"`
	Version        string            `json:"version"`
	Downloads      int64             `json:"downloads"`
	Licenses       []string          `json:"licenses"`
	SHA            string            `json:"sha"`
	HomepageURI    string            `json:"homepage_uri"`
	SourceCodeURI  string            `json:"source_code_uri"`
	WikiURI        string            `json:"wiki_uri"`
	DocumentURI    string            `json:"documentation_uri"`
	BugTrackerURI  string            `json:"bug_tracker_uri"`
	MailingListURI string            `json:"mailing_list_uri"`
	ChangelogURI   string            `json:"changelog_uri"`
	FundingURI     string            `json:"funding_uri"`
	Metadata       map[string]string `json:"metadata"`
}

type versionResponse struct {
	Number          string            `json:"number"`
	Platform        string            `json:"platform"`
	CreatedAt       string            `json:"created_at"`
	Downloads       int64             `json:"downloads_count"`
	Licenses        []string          `json:"licenses"`
	SHA             string            `json:"sha"`
	RubyVersion     string            `json:"ruby_version"`
	RubygemsVersion string            `json:"rubygems_version"`
	Prerelease      bool              `json:"prerelease"`
	Metadata        map[string]string `json:"metadata"`
}

func (r *Registry) FetchPackage(ctx context.Context, name string) (*core.Package, error) {
	u := fmt.Sprintf("%s/api/v1/gems/%s.json", r.baseURL, url.PathEscape(name))

	var resp gemResponse
	if err := r.client.GetJSON(ctx, u, &resp); err != nil {
		return nil, notFound(err, name)
	}

	repoURL := extractRepoURL(resp.SourceCodeURI, resp.WikiURI, resp.DocumentURI, resp.BugTrackerURI, resp.ChangelogURI, resp.HomepageURI)

	return &core.Package{
		Name:          resp.Name,
		Description:   resp.Info,
		Authors:       resp.Authors,
		LatestVersion: resp.Version,
		Downloads:     resp.Downloads,
		Licenses:      resp.Licenses,
		Homepage:      resp.HomepageURI,
		Repository:    repoURL,
		Documentation: resp.DocumentURI,
		BugTracker:    resp.BugTrackerURI,
		MailingList:   resp.MailingListURI,
		SourceCode:    resp.SourceCodeURI,
		Wiki:          resp.WikiURI,
		Metadata: map[string]any{
			"changelog_uri": resp.ChangelogURI,
			"funding_uri":   resp.FundingURI,
		},
	}, nil
}

func extractRepoURL(urls ...string) string {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if strings.Contains(u, "github.com") || strings.Contains(u, "gitlab.com") || strings.Contains(u, "bitbucket.org") {
			return u
		}
	}
	for _, u := range urls {
		if u != "" {
			return u
		}
	}
	return ""
}

func (r *Registry) FetchVersions(ctx context.Context, name string) ([]core.Version, error) {
	u := fmt.Sprintf("%s/api/v1/versions/%s.json", r.baseURL, url.PathEscape(name))

	var resp []versionResponse
	if err := r.client.GetJSON(ctx, u, &resp); err != nil {
		return nil, notFound(err, name)
	}

	versions := make([]core.Version, len(resp))
	for i, v := range resp {
		var publishedAt time.Time
		if v.CreatedAt != "" {
			t, err := time.Parse(time.RFC3339, v.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("parsing created_at of %s %s: %w", name, v.Number, err)
			}
			publishedAt = t
		}

		number := v.Number
		if v.Platform != "" && v.Platform != "ruby" {
			number = fmt.Sprintf("%s-%s", v.Number, v.Platform)
		}

		var integrity string
		if v.SHA != "" {
			integrity = "sha256-" + v.SHA
		}

		versions[i] = core.Version{
			Number:      number,
			PublishedAt: publishedAt,
			Licenses:    v.Licenses,
			Integrity:   integrity,
			Prerelease:  v.Prerelease,
			Metadata: map[string]any{
				"platform":         v.Platform,
				"downloads":        v.Downloads,
				"ruby_version":     v.RubyVersion,
				"rubygems_version": v.RubygemsVersion,
			},
		}
	}

	return versions, nil
}

func (r *Registry) FetchReverseDependencies(ctx context.Context, name string) ([]string, error) {
	u := fmt.Sprintf("%s/api/v1/gems/%s/reverse_dependencies.json", r.baseURL, url.PathEscape(name))

	var resp []string
	if err := r.client.GetJSON(ctx, u, &resp); err != nil {
		return nil, notFound(err, name)
	}
	return resp, nil
}

// FetchMetadata returns the flattened metadata for name.
func (r *Registry) FetchMetadata(ctx context.Context, name string) (*core.Metadata, error) {
	return core.FetchMetadata(ctx, r, name)
}

// notFound maps a 404 response onto a NotFoundError and leaves every other
// error untouched.
func notFound(err error, name string) error {
	var httpErr *core.HTTPError
	if errors.As(err, &httpErr) && httpErr.IsNotFound() {
		return &core.NotFoundError{Ecosystem: ecosystem, Name: name}
	}
	return err
}

type URLs struct {
	baseURL string
}

func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("%s/gems/%s/versions/%s", u.baseURL, name, version)
	}
	return fmt.Sprintf("%s/gems/%s", u.baseURL, name)
}

func (u *URLs) Download(name, version string) string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s/downloads/%s-%s.gem", u.baseURL, name, version)
}

func (u *URLs) Documentation(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://www.rubydoc.info/gems/%s/%s", name, version)
	}
	return fmt.Sprintf("https://www.rubydoc.info/gems/%s", name)
}

func (u *URLs) PURL(name, version string) string {
	if version != "" {
		return fmt.Sprintf("pkg:gem/%s@%s", name, version)
	}
	return fmt.Sprintf("pkg:gem/%s", name)
}
