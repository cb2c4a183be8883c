package api

import (
	"net/http"

	"github.com/okian/rankready/internal/domain/scoring"
)

// valuesRequest mirrors the OpenAPI schema for indicator payloads.
type valuesRequest struct {
	Values map[string]string `json:"values"`
}

type saveResponse struct {
	InstitutionID string         `json:"institution_id"`
	Year          int            `json:"year"`
	Scores        scoring.Scores `json:"scores"`
}

// handleScore handles POST /score; nothing is stored.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	var req valuesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.ScoreValues(req.Values))
}

// handleSaveIndicators handles PUT /institutions/{id}/indicators/{year}.
func (s *Server) handleSaveIndicators(w http.ResponseWriter, r *http.Request) {
	const op = "api.save_indicators"
	id := r.PathValue("id")
	year, err := pathYear(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req valuesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	scores, err := s.deps.SaveIndicators(r.Context(), id, year, req.Values)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{InstitutionID: id, Year: year, Scores: scores})
}

// handleReadiness handles GET /institutions/{id}/readiness/{year}.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	const op = "api.readiness"
	year, err := pathYear(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := s.deps.Readiness(r.Context(), r.PathValue("id"), year)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRecommendations handles GET /institutions/{id}/recommendations/{year}.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	const op = "api.recommendations"
	year, err := pathYear(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	set, err := s.deps.Recommendations(r.Context(), r.PathValue("id"), year)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, set)
}
