// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"fmt"
	"net/http"
	"strconv"
)

type leaderboardResponse struct {
	Year    int     `json:"year"`
	Entries []Entry `json:"entries"`
}

// handleLeaderboard handles GET /leaderboard?year=&limit=N requests.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	year, err := s.queryYear(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	n := s.maxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be a positive integer, got %q", raw)))
			return
		}
	}
	if n > s.maxLimit {
		writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must not exceed %d", s.maxLimit)))
		return
	}
	entries, err := s.deps.TopN(r.Context(), year, n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Year: year, Entries: entries})
}

type averagesResponse struct {
	Year     int                `json:"year"`
	Averages map[string]float64 `json:"averages"`
}

// handleAverages handles GET /averages?year= requests.
func (s *Server) handleAverages(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_averages"
	year, err := s.queryYear(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	avg, err := s.deps.Averages(r.Context(), year)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, averagesResponse{Year: year, Averages: avg})
}
