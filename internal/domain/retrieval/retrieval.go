// Package retrieval ranks a small, fixed document corpus against a free-text
// query using token-set Jaccard similarity with a flat title boost.
package retrieval

import (
	"fmt"
	"sort"
	"strings"
)

// Ranking constants.
const (
	DefaultTopK = 3
	TitleBoost  = 0.2
)

// NoDocumentationFound is returned by FormatContext when nothing matched.
const NoDocumentationFound = "No relevant documentation found."

// Document is one corpus entry.
type Document struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Content  string   `json:"content" yaml:"content"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// Result is a document together with its final score.
type Result struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// TokenSet is a deduplicated set of lowercase tokens.
type TokenSet map[string]struct{}

// Tokenize lowercases text and collects maximal runs of [a-z0-9_].
func Tokenize(text string) TokenSet {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})
	set := make(TokenSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Similarity is the Jaccard coefficient of a and b, or 0 when both are empty.
func Similarity(a, b TokenSet) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func overlaps(a, b TokenSet) bool {
	for tok := range a {
		if _, ok := b[tok]; ok {
			return true
		}
	}
	return false
}

type indexed struct {
	doc   Document
	text  TokenSet
	title TokenSet
}

// Retriever ranks an immutable corpus. It is safe for concurrent use.
type Retriever struct {
	docs []indexed
}

// NewRetriever tokenizes the corpus once.
func NewRetriever(docs []Document) *Retriever {
	r := &Retriever{docs: make([]indexed, 0, len(docs))}
	for _, d := range docs {
		text := d.Title + " " + d.Content + " " + strings.Join(d.Keywords, " ")
		r.docs = append(r.docs, indexed{doc: d, text: Tokenize(text), title: Tokenize(d.Title)})
	}
	return r
}

// Len returns the corpus size.
func (r *Retriever) Len() int {
	return len(r.docs)
}

// Rank scores every document against query and returns those with a positive
// score, best first. Ties keep corpus order.
func (r *Retriever) Rank(query string) []Result {
	q := Tokenize(query)
	out := make([]Result, 0, len(r.docs))
	for _, d := range r.docs {
		score := Similarity(q, d.text)
		if overlaps(q, d.title) {
			score += TitleBoost
		}
		if score <= 0 {
			continue
		}
		out = append(out, Result{Document: d.doc, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Search returns at most topK ranked results. topK <= 0 yields none.
func (r *Retriever) Search(query string, topK int) []Result {
	if topK <= 0 {
		return []Result{}
	}
	ranked := r.Rank(query)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// Retrieve returns the topK best matching documents.
func (r *Retriever) Retrieve(query string, topK int) []Document {
	results := r.Search(query, topK)
	docs := make([]Document, len(results))
	for i, res := range results {
		docs[i] = res.Document
	}
	return docs
}

// FormatContext renders documents for a text generator.
func FormatContext(docs []Document) string {
	if len(docs) == 0 {
		return NoDocumentationFound
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("Source %d (%s):\n%s", i+1, d.Title, d.Content)
	}
	return strings.Join(parts, "\n\n")
}
