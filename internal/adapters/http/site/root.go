// Package site serves the landing page listing the indicator catalog.
package site

import (
	"bytes"
	"context"
	"net/http"

	"github.com/okian/rankready/internal/domain/indicator"
	"github.com/okian/rankready/pkg/logger"
)

type indexData struct {
	Indicators []indicator.Definition
	Min        float64
	Max        float64
}

// Register attaches the landing page to mux.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET /{$}", NewRootHandler())
}

// RootHandler renders the landing page.
type RootHandler struct {
	page []byte
	err  error
}

// NewRootHandler renders the page once; the catalog is fixed for the process.
func NewRootHandler() *RootHandler {
	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, indexData{
		Indicators: indicator.Catalog(),
		Min:        indicator.MinValue,
		Max:        indicator.MaxValue,
	})
	return &RootHandler{page: buf.Bytes(), err: err}
}

// ServeHTTP handles GET / requests.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.err != nil {
		logger.Get().Error(r.Context(), "landing page render failed", logger.Error(h.err))
		http.Error(w, "landing page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.page)
}
