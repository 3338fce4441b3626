package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
	"github.com/sunmao-dev/sunmao/pkg/expression"
)

type evalRequest struct {
	Expression string         `json:"expression"`
	Scope      map[string]any `json:"scope"`
}

type evalResponse struct {
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"running":     s.rt.Running(),
		"connections": s.hub.len(),
	})
}

func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	if !s.rt.Running() {
		writeError(w, serrors.New("E300"))
		return
	}
	if id := r.URL.Query().Get("component"); id != "" {
		rc, err := s.rt.Component(id)
		if err != nil {
			writeError(w, err)
			return
		}
		rc.Properties = expression.JSONValue(rc.Properties)
		for i := range rc.Traits {
			rc.Traits[i].Properties = expression.JSONValue(rc.Traits[i].Properties)
		}
		writeJSON(w, http.StatusOK, rc)
		return
	}
	writeJSON(w, http.StatusOK, s.renderMessage().Components)
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, expression.JSONValue(s.rt.Manager().Store().Snapshot()))
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	var value any
	if err := s.decode(w, r, &value); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	s.rt.SetState(id, value)
	s.mu.Unlock()
	s.writeState(w, id)
}

func (s *Server) handleMergeState(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := s.decode(w, r, &partial); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	s.rt.MergeState(id, partial)
	s.mu.Unlock()
	s.writeState(w, id)
}

func (s *Server) writeState(w http.ResponseWriter, id string) {
	v, _ := s.rt.State(id)
	writeJSON(w, http.StatusOK, expression.JSONValue(v))
}

func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.evaluate(req.Expression, req.Scope))
}

func (s *Server) evaluate(raw string, scope map[string]any) evalResponse {
	s.mu.Lock()
	v, err := s.rt.Evaluate(raw, scope)
	s.mu.Unlock()
	if err != nil {
		return evalResponse{Error: err.Error()}
	}
	return evalResponse{Value: expression.JSONValue(v)}
}

func (s *Server) handleSetSlot(w http.ResponseWriter, r *http.Request) {
	var vars map[string]any
	if err := s.decode(w, r, &vars); err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	s.rt.SetSlot(chi.URLParam(r, "key"), vars)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearSlot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.rt.ClearSlot(chi.URLParam(r, "key"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON request body into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	data, err := io.ReadAll(body)
	if err != nil {
		return serrors.New("E304").Wrap(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return serrors.New("E304").Wrap(err)
	}
	return nil
}
