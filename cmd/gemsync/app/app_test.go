package app

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/git-pkgs/gemsync/fetch"
	"github.com/git-pkgs/gemsync/internal/config"
	"github.com/git-pkgs/gemsync/internal/core"
	"github.com/git-pkgs/gemsync/internal/queue"
	"github.com/git-pkgs/gemsync/internal/rubygems/rubygemstest"
	"github.com/git-pkgs/gemsync/internal/store"
	"github.com/git-pkgs/gemsync/internal/sync"
)

func TestParseTarget(t *testing.T) {
	t.Parallel()

	const registry = "https://rubygems.org"

	tests := []struct {
		name    string
		arg     string
		want    target
		wantErr bool
	}{
		{
			name: "bare name",
			arg:  "rspec",
			want: target{ecosystem: "gem", baseURL: registry, name: "rspec"},
		},
		{
			name: "gem purl with version",
			arg:  "pkg:gem/rails@7.1.0",
			want: target{ecosystem: "gem", baseURL: registry, name: "rails"},
		},
		{
			name: "purl with repository_url",
			arg:  "pkg:gem/rails?repository_url=" + url.QueryEscape("https://gems.example.com"),
			want: target{ecosystem: "gem", baseURL: "https://gems.example.com", name: "rails"},
		},
		{
			name: "other ecosystem keeps its own default",
			arg:  "pkg:npm/left-pad",
			want: target{ecosystem: "npm", name: "left-pad"},
		},
		{
			name:    "empty",
			arg:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseTarget(tt.arg, registry)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	return cmd, &out
}

func TestSyncTargets(t *testing.T) {
	t.Parallel()

	server := rubygemstest.NewServer(map[string]rubygemstest.Gem{"rspec": rubygemstest.RSpec()})
	server.Fail("thisisdowninmock", http.StatusInternalServerError)
	t.Cleanup(server.Close)

	newLookup := lookupFactory(core.NewClient(core.WithMaxRetries(0)), fetch.NewCircuitBreakers())
	st := store.NewMemory()
	var jobs []string
	q := queue.Func(func(_ context.Context, name string) error {
		jobs = append(jobs, name)
		return nil
	})

	targets := []target{
		{ecosystem: "gem", baseURL: server.URL, name: "rspec"},
		{ecosystem: "gem", baseURL: server.URL, name: "thisisdowninmock"},
		{ecosystem: "gem", baseURL: server.URL, name: "never-reached"},
	}

	cmd, out := newTestCmd()
	err := syncTargets(cmd, targets, newLookup, st, q, zap.NewNop())
	require.Error(t, err)

	var fetchErr *sync.RemoteFetchFailure
	assert.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "sync thisisdowninmock: Unknown response status 500", err.Error())
	assert.Equal(t, "Unknown response status 500", fetchErr.Error())

	assert.Equal(t, []string{"rspec"}, jobs)
	assert.Equal(t, []string{"rspec"}, st.Names())
	assert.Contains(t, out.String(), "synced rspec")
	assert.NotContains(t, server.Requests(), "/api/v1/gems/never-reached.json")
}

func TestSyncTargets_UnknownEcosystem(t *testing.T) {
	t.Parallel()

	newLookup := lookupFactory(core.NewClient(), fetch.NewCircuitBreakers())
	cmd, _ := newTestCmd()

	err := syncTargets(cmd, []target{{ecosystem: "npm", name: "left-pad"}}, newLookup, store.NewMemory(), queue.Func(nil), zap.NewNop())
	assert.ErrorContains(t, err, "unknown ecosystem")
}

func TestRootCmd_SyncRequiresDatabase(t *testing.T) {
	t.Setenv("GEMSYNC_DATABASE_URL", "")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"sync", "rspec", "--log-level", "error"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, config.ErrNoDatabase)
}

func TestRootCmd_SyncRequiresArgs(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"sync"})

	assert.Error(t, cmd.Execute())
}
