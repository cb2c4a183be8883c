// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// handleRank handles GET /rank/{id}?year= requests.
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	year, err := s.queryYear(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	entry, err := s.deps.Rank(r.Context(), year, r.PathValue("id"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
