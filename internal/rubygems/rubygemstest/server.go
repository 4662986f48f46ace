// Package rubygemstest provides an in-process fake of the rubygems.org API
// for tests.
package rubygemstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Gem is the fixture served for one gem name.
type Gem struct {
	Info       map[string]any
	Versions   []map[string]any
	Dependents []string
}

// Server is a fake rubygems.org. Unknown gems answer 404; gems registered
// with Fail answer with the given status on every endpoint.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	gems     map[string]Gem
	failures map[string]int
	requests []string
}

// NewServer starts a fake registry serving gems.
func NewServer(gems map[string]Gem) *Server {
	s := &Server{
		gems:     make(map[string]Gem, len(gems)),
		failures: make(map[string]int),
	}
	for name, g := range gems {
		s.gems[name] = g
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	s.Config.SetKeepAlivesEnabled(false)
	return s
}

// Set replaces the fixture for name.
func (s *Server) Set(name string, g Gem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gems[name] = g
}

// Fail makes every endpoint for name respond with status.
func (s *Server) Fail(name string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = status
}

// Requests returns the request paths seen so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/versions/") && strings.HasSuffix(path, ".json"):
		name := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/versions/"), ".json")
		s.respond(w, name, func(g Gem) any { return orEmpty(g.Versions) })

	case strings.HasPrefix(path, "/api/v1/gems/") && strings.HasSuffix(path, "/reverse_dependencies.json"):
		name := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/gems/"), "/reverse_dependencies.json")
		s.respond(w, name, func(g Gem) any {
			if g.Dependents == nil {
				return []string{}
			}
			return g.Dependents
		})

	case strings.HasPrefix(path, "/api/v1/gems/") && strings.HasSuffix(path, ".json"):
		name := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/gems/"), ".json")
		s.respond(w, name, func(g Gem) any { return g.Info })

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) respond(w http.ResponseWriter, name string, body func(Gem) any) {
	s.mu.Lock()
	status, failing := s.failures[name]
	g, ok := s.gems[name]
	s.mu.Unlock()

	if failing {
		w.WriteHeader(status)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body(g))
}

func orEmpty(v []map[string]any) []map[string]any {
	if v == nil {
		return []map[string]any{}
	}
	return v
}

// RSpec is the rspec fixture: three releases between 2005-08-11 and
// 2017-10-17 and six reverse dependencies.
func RSpec() Gem {
	return Gem{
		Info: map[string]any{
			"name":              "rspec",
			"authors":           "Steven Baker, David Chelimsky, Myron Marston",
			"version":           "3.7.0",
			"downloads":         145999055,
			"licenses":          []string{"MIT"},
			"homepage_uri":      "http://github.com/rspec",
			"documentation_uri": "http://relishapp.com/rspec",
			"mailing_list_uri":  "http://rubyforge.org/mailman/listinfo/rspec-users",
			"source_code_uri":   "http://github.com/rspec/rspec",
			"bug_tracker_uri":   nil,
			"wiki_uri":          nil,
		},
		Versions: []map[string]any{
			{"number": "3.7.0", "platform": "ruby", "created_at": "2017-10-17T18:25:40.512Z", "licenses": []string{"MIT"}},
			{"number": "3.6.0", "platform": "ruby", "created_at": "2017-05-04T20:59:48.177Z", "licenses": []string{"MIT"}},
			{"number": "0.1.0", "platform": "ruby", "created_at": "2005-08-11T13:29:02.000Z", "licenses": nil},
		},
		Dependents: []string{"rspec-rails", "rspec-its", "rspec-collection_matchers", "guard-rspec", "rspec-given", "shoulda"},
	}
}
