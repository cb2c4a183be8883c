package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/rankready/internal/domain/retrieval"
	"github.com/okian/rankready/internal/domain/types"
)

const maxHistory = 20

type searchHit struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

type searchResponse struct {
	Query   string      `json:"query"`
	Results []searchHit `json:"results"`
	Context string      `json:"context"`
}

type chatRequest struct {
	Question string          `json:"question"`
	History  []types.Message `json:"history"`
}

// handleSearch handles GET /docs/search?q=&k=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.docs_search"
	q := r.URL.Query()
	k := s.topK
	if raw := q.Get("k"); raw != "" {
		var err error
		k, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("k must be an integer, got %q", raw)))
			return
		}
	}

	results := s.deps.Search(q.Get("q"), k)
	resp := searchResponse{Query: q.Get("q"), Results: make([]searchHit, 0, len(results))}
	docs := make([]retrieval.Document, 0, len(results))
	for _, res := range results {
		resp.Results = append(resp.Results, searchHit{ID: res.Document.ID, Title: res.Document.Title, Score: res.Score})
		docs = append(docs, res.Document)
	}
	resp.Context = retrieval.FormatContext(docs)
	writeJSON(w, http.StatusOK, resp)
}

// handleChat handles POST /chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	const op = "api.chat"
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("question must not be empty")))
		return
	}
	if len(req.History) > maxHistory {
		req.History = req.History[len(req.History)-maxHistory:]
	}
	ans, err := s.deps.Ask(r.Context(), req.Question, req.History)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
