package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dbsahdlks/INgress/internal/portal"
)

func portalID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid portal id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleListPortals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"portals": s.d.Portals.List()})
}

func (s *Server) handleGetPortal(w http.ResponseWriter, r *http.Request) {
	id, ok := portalID(w, r)
	if !ok {
		return
	}
	p, err := s.d.Portals.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "portal not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type captureRequest struct {
	Owner   string         `json:"owner"`
	Faction portal.Faction `json:"faction"`
}

// handleCapture：占领结果在各会话下一次生成文档时体现
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	id, ok := portalID(w, r)
	if !ok {
		return
	}
	var req captureRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p, err := s.d.Portals.Capture(id, req.Owner, req.Faction)
	switch {
	case errors.Is(err, portal.ErrNotFound):
		writeError(w, http.StatusNotFound, "portal not found")
	case errors.Is(err, portal.ErrOwnerRequired), errors.Is(err, portal.ErrFactionRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "capture failed")
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handlePutLocation(w http.ResponseWriter, r *http.Request) {
	var loc portal.LatLng
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&loc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.d.Portals.SetUserLocation(loc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearLocation(w http.ResponseWriter, _ *http.Request) {
	s.d.Portals.ClearUserLocation()
	w.WriteHeader(http.StatusNoContent)
}
