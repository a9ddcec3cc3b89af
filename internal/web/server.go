// Package web provides a read-only web view over the commit journal.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/metalagman/glimpse/internal/draft"
)

// Journal is the read side of the commit store.
type Journal interface {
	List(ctx context.Context, limit int) ([]draft.CommitRecord, error)
}

// Server provides the web UI handlers and state.
type Server struct {
	journal Journal
}

// NewServer creates a new web server over the journal.
func NewServer(journal Journal) (*Server, error) {
	return &Server{journal: journal}, nil
}

//go:embed templates/*.html
var templatesFS embed.FS

// Routes returns the router for the web UI.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	recs, err := s.journal.List(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := tmpl.Execute(w, recs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
