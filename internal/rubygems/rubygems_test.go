package rubygems

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/git-pkgs/gemsync/internal/core"
	"github.com/git-pkgs/gemsync/internal/rubygems/rubygemstest"
)

func TestFetchPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/gems/rails.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(404)
			return
		}

		resp := gemResponse{
			Name:           "rails",
			Info:           "Ruby on Rails is a full-stack web framework",
			Authors:        "David Heinemeier Hansson",
			Version:        "7.1.0",
			Downloads:      500000000,
			Licenses:       []string{"MIT"},
			HomepageURI:    "https://rubyonrails.org",
			SourceCodeURI:  "https://github.com/rails/rails",
			BugTrackerURI:  "https://github.com/rails/rails/issues",
			MailingListURI: "https://discuss.rubyonrails.org/c/rubyonrails-talk",
			DocumentURI:    "https://api.rubyonrails.org/v7.1.0/",
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	pkg, err := reg.FetchPackage(context.Background(), "rails")
	if err != nil {
		t.Fatalf("FetchPackage failed: %v", err)
	}

	if pkg.Name != "rails" {
		t.Errorf("expected name 'rails', got %q", pkg.Name)
	}
	if pkg.Authors != "David Heinemeier Hansson" {
		t.Errorf("unexpected authors: %q", pkg.Authors)
	}
	if pkg.LatestVersion != "7.1.0" {
		t.Errorf("unexpected version: %q", pkg.LatestVersion)
	}
	if pkg.Downloads != 500000000 {
		t.Errorf("unexpected downloads: %d", pkg.Downloads)
	}
	if pkg.Repository != "https://github.com/rails/rails" {
		t.Errorf("unexpected repository: %q", pkg.Repository)
	}
	if len(pkg.Licenses) != 1 || pkg.Licenses[0] != "MIT" {
		t.Errorf("unexpected licenses: %v", pkg.Licenses)
	}
	if pkg.BugTracker != "https://github.com/rails/rails/issues" {
		t.Errorf("unexpected bug tracker: %q", pkg.BugTracker)
	}
	if pkg.MailingList != "https://discuss.rubyonrails.org/c/rubyonrails-talk" {
		t.Errorf("unexpected mailing list: %q", pkg.MailingList)
	}
	if pkg.Wiki != "" {
		t.Errorf("expected empty wiki, got %q", pkg.Wiki)
	}
}

func TestFetchVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/versions/nokogiri.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(404)
			return
		}

		resp := []versionResponse{
			{
				Number:    "1.13.6",
				Platform:  "ruby",
				CreatedAt: "2022-05-08T14:34:51.113Z",
				Licenses:  []string{"MIT"},
				SHA:       "b1512fdc0aba446e1ee30de3e0671518eb363e75fab53486e99e8891d44b8587",
			},
			{
				Number:     "1.14.0.rc1",
				Platform:   "x86_64-linux",
				CreatedAt:  "2022-05-08T14:34:45.502Z",
				Licenses:   []string{"MIT"},
				Prerelease: true,
				SHA:        "3fa37b0c3b5744af45f9da3e4ae9cbd89480b35e12ae36b5e87a0452e0b38335",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	versions, err := reg.FetchVersions(context.Background(), "nokogiri")
	if err != nil {
		t.Fatalf("FetchVersions failed: %v", err)
	}

	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}

	if versions[0].Number != "1.13.6" {
		t.Errorf("expected version '1.13.6', got %q", versions[0].Number)
	}
	if versions[1].Number != "1.14.0.rc1-x86_64-linux" {
		t.Errorf("expected version '1.14.0.rc1-x86_64-linux', got %q", versions[1].Number)
	}
	if !versions[1].Prerelease {
		t.Error("expected second version to be a prerelease")
	}
	if versions[0].Integrity != "sha256-b1512fdc0aba446e1ee30de3e0671518eb363e75fab53486e99e8891d44b8587" {
		t.Errorf("unexpected integrity: %q", versions[0].Integrity)
	}
	want := time.Date(2022, 5, 8, 14, 34, 51, 113000000, time.UTC)
	if !versions[0].PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", versions[0].PublishedAt, want)
	}
}

func TestFetchVersions_MalformedCreatedAt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := []versionResponse{
			{Number: "3.7.0", Platform: "ruby", CreatedAt: "2017-10-17T18:25:40.512Z"},
			{Number: "3.6.0", Platform: "ruby", CreatedAt: "last tuesday"},
			{Number: "0.1.0", Platform: "ruby"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	_, err := reg.FetchVersions(context.Background(), "rspec")
	if err == nil {
		t.Fatal("expected an error for a malformed created_at")
	}

	var parseErr *time.ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected a *time.ParseError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "rspec 3.6.0") {
		t.Errorf("expected the error to name the version, got %q", err.Error())
	}
}

func TestFetchVersions_MissingCreatedAt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]versionResponse{{Number: "0.1.0", Platform: "ruby"}})
	}))
	defer server.Close()

	versions, err := New(server.URL, core.DefaultClient()).FetchVersions(context.Background(), "rspec")
	if err != nil {
		t.Fatalf("FetchVersions failed: %v", err)
	}
	if len(versions) != 1 || !versions[0].PublishedAt.IsZero() {
		t.Errorf("expected one version without a timestamp, got %+v", versions)
	}
}

func TestFetchReverseDependencies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/gems/rack/reverse_dependencies.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(404)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["rails","sinatra","puma"]`))
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	deps, err := reg.FetchReverseDependencies(context.Background(), "rack")
	if err != nil {
		t.Fatalf("FetchReverseDependencies failed: %v", err)
	}

	if len(deps) != 3 {
		t.Fatalf("expected 3 dependents, got %d", len(deps))
	}
	if deps[1] != "sinatra" {
		t.Errorf("expected 'sinatra', got %q", deps[1])
	}
}

func TestFetchMetadata(t *testing.T) {
	server := rubygemstest.NewServer(map[string]rubygemstest.Gem{"rspec": rubygemstest.RSpec()})
	defer server.Close()

	reg := New(server.URL, core.NewClient(core.WithMaxRetries(0)))
	md, err := reg.FetchMetadata(context.Background(), "rspec")
	if err != nil {
		t.Fatalf("FetchMetadata failed: %v", err)
	}

	if md.Authors != "Steven Baker, David Chelimsky, Myron Marston" {
		t.Errorf("unexpected authors: %q", md.Authors)
	}
	if md.Downloads != 145999055 {
		t.Errorf("unexpected downloads: %d", md.Downloads)
	}
	if md.ReleasesCount != 3 {
		t.Errorf("unexpected releases count: %d", md.ReleasesCount)
	}
	if md.ReverseDependenciesCount != 6 {
		t.Errorf("unexpected reverse dependencies count: %d", md.ReverseDependenciesCount)
	}
	if want := time.Date(2005, 8, 11, 0, 0, 0, 0, time.UTC); !md.FirstReleaseOn.Equal(want) {
		t.Errorf("FirstReleaseOn = %v, want %v", md.FirstReleaseOn, want)
	}

	want := []string{
		"/api/v1/gems/rspec.json",
		"/api/v1/versions/rspec.json",
		"/api/v1/gems/rspec/reverse_dependencies.json",
	}
	got := server.Requests()
	if len(got) != len(want) {
		t.Fatalf("requests = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFetchPackage_NotFound(t *testing.T) {
	server := rubygemstest.NewServer(nil)
	defer server.Close()

	reg := New(server.URL, core.NewClient(core.WithMaxRetries(0)))
	_, err := reg.FetchPackage(context.Background(), "nope")

	var nf *core.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if !errors.Is(err, core.ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	if err.Error() != "gem: package nope not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestFetchPackage_ServerError(t *testing.T) {
	server := rubygemstest.NewServer(map[string]rubygemstest.Gem{"thisisdowninmock": {}})
	server.Fail("thisisdowninmock", http.StatusInternalServerError)
	defer server.Close()

	reg := New(server.URL, core.NewClient(core.WithMaxRetries(0)))
	_, err := reg.FetchMetadata(context.Background(), "thisisdowninmock")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Unknown response status 500" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestURLBuilder(t *testing.T) {
	reg := New("https://rubygems.org", nil)
	urls := reg.URLs()

	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{"registry", func() string { return urls.Registry("rails", "7.1.0") }, "https://rubygems.org/gems/rails/versions/7.1.0"},
		{"registry without version", func() string { return urls.Registry("rails", "") }, "https://rubygems.org/gems/rails"},
		{"download", func() string { return urls.Download("rails", "7.1.0") }, "https://rubygems.org/downloads/rails-7.1.0.gem"},
		{"download without version", func() string { return urls.Download("rails", "") }, ""},
		{"documentation", func() string { return urls.Documentation("rails", "7.1.0") }, "https://www.rubydoc.info/gems/rails/7.1.0"},
		{"purl", func() string { return urls.PURL("rails", "7.1.0") }, "pkg:gem/rails@7.1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEcosystem(t *testing.T) {
	reg := New("", nil)
	if reg.Ecosystem() != "gem" {
		t.Errorf("expected ecosystem 'gem', got %q", reg.Ecosystem())
	}
	if reg.baseURL != DefaultURL {
		t.Errorf("expected default base URL, got %q", reg.baseURL)
	}
}

func TestRegistered(t *testing.T) {
	reg, err := core.New("gem", "", nil)
	if err != nil {
		t.Fatalf("core.New failed: %v", err)
	}
	if _, ok := reg.(*Registry); !ok {
		t.Errorf("expected *Registry, got %T", reg)
	}
	if core.DefaultURL("gem") != DefaultURL {
		t.Errorf("DefaultURL(gem) = %q", core.DefaultURL("gem"))
	}
}

func TestExtractRepoURL(t *testing.T) {
	tests := []struct {
		urls []string
		want string
	}{
		{[]string{"", "https://example.com/wiki", "https://github.com/a/b"}, "https://github.com/a/b"},
		{[]string{"", "https://example.com/docs"}, "https://example.com/docs"},
		{[]string{"", ""}, ""},
	}
	for _, tt := range tests {
		if got := extractRepoURL(tt.urls...); got != tt.want {
			t.Errorf("extractRepoURL(%v) = %q, want %q", tt.urls, got, tt.want)
		}
	}
}
