package retrieval

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed corpus.yaml
var corpusYAML []byte

// ErrInvalidCorpus is returned when corpus data cannot be decoded.
var ErrInvalidCorpus = errors.New("invalid corpus")

var defaultCorpus = mustParseCorpus(corpusYAML) //nolint:gochecknoglobals // parsed once at start

// ParseCorpus decodes a YAML list of documents. IDs must be unique and non-empty.
func ParseCorpus(data []byte) ([]Document, error) {
	var docs []Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCorpus, err)
	}
	seen := make(map[string]struct{}, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: document %d has no id", ErrInvalidCorpus, i)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidCorpus, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return docs, nil
}

func mustParseCorpus(data []byte) []Document {
	docs, err := ParseCorpus(data)
	if err != nil {
		panic(err)
	}
	return docs
}

// DefaultCorpus returns a copy of the built-in help corpus.
func DefaultCorpus() []Document {
	out := make([]Document, len(defaultCorpus))
	copy(out, defaultCorpus)
	return out
}
