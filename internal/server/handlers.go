package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	perrors "github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/lifecycle"
)

// ClickResult answers POST /click.
type ClickResult struct {
	Selector string `json:"selector"`
	Clicked  int    `json:"clicked"`
}

// CacheState answers GET /cache.
type CacheState struct {
	Responses []string    `json:"responses"`
	Views     []ViewState `json:"views"`
}

// ViewState is one view cache entry.
type ViewState struct {
	Selector string `json:"selector"`
	Template string `json:"template"`
	Stored   bool   `json:"stored"`
}

// ComponentState is one registered component.
type ComponentState struct {
	Name  string           `json:"name"`
	Kinds []lifecycle.Kind `json:"kinds"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *InspectorServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.doc.Render(w); err != nil {
		s.logger.Warn(r.Context(), err, "failed to render document")
	}
}

func (s *InspectorServer) handleClick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	selector := r.URL.Query().Get("selector")
	if selector == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "selector is required"})
		return
	}

	elements := s.doc.Select(selector)
	if len(elements) == 0 {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no element matches " + selector})
		return
	}

	for _, el := range elements {
		if err := s.driver.Click(r.Context(), el); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, ClickResult{Selector: selector, Clicked: len(elements)})
}

func (s *InspectorServer) handleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		state := CacheState{
			Responses: s.driver.ResponseCache().Keys(),
			Views:     []ViewState{},
		}
		views := s.driver.ViewCache()
		for _, k := range views.Keys() {
			entry, _ := views.Get(k)
			state.Views = append(state.Views, ViewState{
				Selector: k.Selector,
				Template: k.Template,
				Stored:   entry.Fragment != nil,
			})
		}
		s.writeJSON(w, http.StatusOK, state)

	case http.MethodDelete:
		q := r.URL.Query()
		if err := s.driver.ClearCache(q.Get("type"), q["key"]...); err != nil {
			s.writeError(w, err)
			return
		}
		s.logger.Info(r.Context(), "cache cleared", "type", q.Get("type"), "keys", len(q["key"]))
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *InspectorServer) handleComponents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := s.driver.Components().GetAll()
	out := make([]ComponentState, 0, len(all))
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		out = append(out, ComponentState{Name: name, Kinds: all[name].Kinds})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *InspectorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"clients":    s.hub.ClientCount(),
		"components": s.driver.Components().Count(),
	})
}

// writeError maps configuration errors to 400 and anything else to 500.
func (s *InspectorServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if perrors.IsConfigurationError(err) {
		status = http.StatusBadRequest
	}

	resp := errorResponse{Error: err.Error()}
	var pe *perrors.PayloadError
	if errors.As(err, &pe) {
		resp.Code = pe.Code
	}
	s.writeJSON(w, status, resp)
}

func (s *InspectorServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(context.Background(), err, "failed to encode response")
	}
}
