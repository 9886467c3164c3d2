// Package tevweb exposes a [tev.Tracing] facade over HTTP: operator
// enablement of categories, and server-sent-event streaming of live events.
package tevweb

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tevkit/tev"
)

// Server serves the facade's HTTP surface.
//
//	GET  /categories  current enablement table
//	POST /categories  set category flags
//	GET  /stream      server-sent events for the requested categories
type Server struct {
	tracing *tev.Tracing
	stream  *StreamServer
}

// NewServer returns a server for the given facade.
func NewServer(tracing *tev.Tracing) *Server {
	return &Server{
		tracing: tracing,
		stream:  NewStreamServer(tracing),
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/categories":
		s.handleCategories(w, r)
	case "/stream":
		s.stream.ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

// CategoryState is the wire form of one category's enablement.
type CategoryState struct {
	Recording bool `json:"recording"`
	Listening bool `json:"listening"`
}

// SetCategoriesRequest is the POST /categories body.
type SetCategoriesRequest struct {
	Categories []string          `json:"categories"`
	Flags      tev.CategoryFlags `json:"flags"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		respondJSON(w, http.StatusOK, categoryStates(s.tracing.GetEnabledCategories()))

	case "POST":
		body := http.MaxBytesReader(w, r.Body, maxRequestBodySizeBytes)
		var req SetCategoriesRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
			return
		}
		if len(req.Categories) == 0 {
			http.Error(w, "at least one category is required", http.StatusBadRequest)
			return
		}
		if err := s.tracing.SetCategoryFlags(req.Categories, req.Flags); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondJSON(w, http.StatusOK, categoryStates(s.tracing.GetEnabledCategories()))

	default:
		http.Error(w, "only GET and POST are supported", http.StatusMethodNotAllowed)
	}
}

func categoryStates(m map[string]tev.CategoryFlags) map[string]CategoryState {
	out := make(map[string]CategoryState, len(m))
	for c, flags := range m {
		out[c] = CategoryState{
			Recording: flags.Recording(),
			Listening: flags.Listening(),
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, code int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(buf)
}
