// Command score computes readiness scores for a YAML file of indicator values
// without starting the server.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/okian/rankready/internal/domain/indicator"
	"github.com/okian/rankready/internal/domain/recommend"
	"github.com/okian/rankready/internal/domain/retrieval"
	"github.com/okian/rankready/internal/domain/scoring"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var errNoInput = errors.New("an input file is required (-f)")

type options struct {
	file      string
	ask       string
	topK      int
	asJSON    bool
	recommend bool
}

type report struct {
	Scores          scoring.Scores             `json:"scores"`
	Recommendations []recommend.Recommendation `json:"recommendations,omitempty"`
	Documents       []retrieval.Result         `json:"documents,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	values, err := readValues(opts.file)
	if err != nil {
		return err
	}
	if err := indicator.Validate(values); err != nil {
		return err
	}

	rep := report{Scores: scoring.Score(values)}
	if opts.recommend {
		rep.Recommendations = recommend.Fallback(rep.Scores)
	}
	if opts.ask != "" {
		rep.Documents = retrieval.NewRetriever(retrieval.DefaultCorpus()).Search(opts.ask, opts.topK)
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return writeText(out, rep)
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("score", pflag.ContinueOnError)
	fs.StringVarP(&opts.file, "file", "f", "", "YAML file mapping indicator codes to values")
	fs.StringVar(&opts.ask, "ask", "", "Show the methodology documents matching this question")
	fs.IntVarP(&opts.topK, "top", "k", 3, "Number of documents shown with --ask")
	fs.BoolVar(&opts.asJSON, "json", false, "Print the report as JSON")
	fs.BoolVarP(&opts.recommend, "recommend", "r", false, "Include the built-in recommendations")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.file == "" {
		return options{}, errNoInput
	}
	return opts, nil
}

// readValues accepts numbers or free text for each indicator.
func readValues(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for code, v := range raw {
		switch v := v.(type) {
		case nil:
			values[code] = ""
		case float64:
			values[code] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			values[code] = fmt.Sprint(v)
		}
	}
	return values, nil
}

func writeText(out io.Writer, rep report) error {
	s := rep.Scores
	rows := []struct {
		name  string
		value int
	}{
		{"research", s.Research},
		{"employability", s.Employability},
		{"global_engagement", s.GlobalEngagement},
		{"learning_experience", s.LearningExperience},
		{"sustainability", s.Sustainability},
		{"overall", s.Overall},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(out, "%-20s %3d\n", r.name, r.value); err != nil {
			return err
		}
	}

	if len(rep.Recommendations) > 0 {
		fmt.Fprintln(out, "\nrecommendations:")
		for _, rec := range rep.Recommendations {
			fmt.Fprintf(out, "  [%s] %s\n", rec.Priority, rec.Action)
		}
	}

	if len(rep.Documents) > 0 {
		fmt.Fprintln(out, "\ndocuments:")
		for _, d := range rep.Documents {
			fmt.Fprintf(out, "  %.2f %s (%s)\n", d.Score, d.Document.Title, d.Document.ID)
		}
	}
	return nil
}
