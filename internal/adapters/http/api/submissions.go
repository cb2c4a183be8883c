package api

import (
	"net/http"
)

type submitRequest struct {
	Comment string `json:"comment"`
}

type reviewRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// handleSubmit handles POST /institutions/{id}/submissions/{year}. The body is optional.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	year, err := pathYear(r)
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req submitRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, WrapKind(op, ErrBadRequest, err))
			return
		}
	}
	sub, err := s.deps.Submit(r.Context(), r.PathValue("id"), year, req.Comment)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// handleGetSubmission handles GET /submissions/{id}.
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_submission"
	sub, err := s.deps.Submission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleReview handles POST /submissions/{id}/review.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	const op = "api.review"
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	sub, err := s.deps.Review(r.Context(), r.PathValue("id"), req.Action, req.Comment)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
