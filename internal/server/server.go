// Package server exposes the synchronized catalog over a small read-only
// JSON API. Queries are answered from the in-memory index and the run
// history; nothing here ever talks to the remote store.
package server

import (
	"net/http"

	"github.com/w4lkr/shopsync/internal/utils"
	"github.com/w4lkr/shopsync/pkg/index"
	"github.com/w4lkr/shopsync/pkg/storage"
)

type Server struct {
	Index    *index.Index
	History  *storage.History
	Username string
	Password string
}

func New(ix *index.Index, history *storage.History, user, pass string) *Server {
	return &Server{
		Index:    ix,
		History:  history,
		Username: user,
		Password: pass,
	}
}

// Handler builds the route table. Split from Start so tests can drive the
// mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/search", s.basicAuth(s.handleSearch))
	mux.HandleFunc("GET /api/items", s.basicAuth(s.handleItems))
	mux.HandleFunc("GET /api/categories", s.basicAuth(s.handleCategories))
	mux.HandleFunc("GET /api/category", s.basicAuth(s.handleCategory))
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))
	mux.HandleFunc("GET /api/runs", s.basicAuth(s.handleRuns))

	return mux
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
