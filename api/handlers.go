package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/tabfreeze/freezer"
	"github.com/hazyhaar/tabfreeze/host"
)

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"domains": s.opts.Freezer.Domains(r.Context()),
		"blocked": s.opts.Freezer.Blocked(),
	})
}

func (s *Server) handleRemoveDomain(w http.ResponseWriter, r *http.Request) {
	domain, was, err := s.opts.Freezer.Remove(r.Context(), chi.URLParam(r, "domain"))
	if errors.Is(err, freezer.ErrEmptyDomain) {
		jsonErr(w, "domain is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		requestLogger(r.Context()).Error("api: remove domain", "domain", domain, "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "removed": was})
}

func (s *Server) handleResetDomains(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Freezer.Reset(r.Context()); err != nil {
		requestLogger(r.Context()).Error("api: reset domains", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTab(w http.ResponseWriter, r *http.Request) {
	id := host.TabID(chi.URLParam(r, "id"))
	state, ok := s.opts.Surface.Render(id)
	if !ok {
		jsonErr(w, "tab not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tab_id": id, "render": state})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id := host.TabID(chi.URLParam(r, "id"))
	domain, frozen, err := s.opts.Freezer.ToggleTab(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "frozen": frozen})
	case errors.Is(err, host.ErrTabNotFound):
		jsonErr(w, "tab not found", http.StatusNotFound)
	case errors.Is(err, freezer.ErrNotToggleable):
		jsonErr(w, "tab has no hostname", http.StatusUnprocessableEntity)
	default:
		requestLogger(r.Context()).Error("api: toggle", "tab_id", id, "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.opts.Freezer.ActivateTab(r.Context(), host.TabID(chi.URLParam(r, "id")))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMenu(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.opts.Surface.Menus()})
}

func (s *Server) handleMenuClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID   host.TabID `json:"tab_id"`
		LinkURL string     `json:"link_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TabID == "" || req.LinkURL == "" {
		jsonErr(w, "tab_id and link_url are required", http.StatusBadRequest)
		return
	}

	tab, opened, err := s.opts.Freezer.ForceOpen(r.Context(), req.TabID, chi.URLParam(r, "item"), req.LinkURL)
	switch {
	case errors.Is(err, host.ErrTabNotFound):
		jsonErr(w, "tab not found", http.StatusNotFound)
	case err != nil:
		requestLogger(r.Context()).Error("api: menu click", "tab_id", req.TabID, "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
	case !opened:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"opened": false})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"opened": true, "tab": tab})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
