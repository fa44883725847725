// Package vignette runs clinical vignettes (questionnaires with expected
// outcomes) through the decision engine to check a rule set end to end.
package vignette

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/muzzaleeni/qwazi/internal/domain"
	"github.com/muzzaleeni/qwazi/internal/rules"
	"github.com/muzzaleeni/qwazi/internal/triage"
)

// Vignette is one scripted questionnaire and its expected decision.
type Vignette struct {
	ID          string             `yaml:"id"`
	Description string             `yaml:"description"`
	Input       domain.TriageInput `yaml:"-"`
	Expect      Expectation        `yaml:"expect"`
}

// Expectation lists what the decision must show. Nil fields are not
// checked.
type Expectation struct {
	Level     domain.Level `yaml:"level"`
	RedFlags  []string     `yaml:"red_flags"`
	Escalated *bool        `yaml:"escalated"`
}

type file struct {
	Vignettes []rawVignette `yaml:"vignettes"`
}

type rawVignette struct {
	ID          string         `yaml:"id"`
	Description string         `yaml:"description"`
	Input       map[string]any `yaml:"input"`
	Expect      Expectation    `yaml:"expect"`
}

// Load reads a YAML vignette file.
func Load(path string) ([]Vignette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vignettes: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML vignettes. Inputs use the same keys as the JSON API.
func Parse(data []byte) ([]Vignette, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("vignette file is empty")
		}
		return nil, fmt.Errorf("parse vignettes: %w", err)
	}

	seen := make(map[string]bool, len(f.Vignettes))
	out := make([]Vignette, 0, len(f.Vignettes))
	for i, rv := range f.Vignettes {
		if rv.ID == "" {
			return nil, fmt.Errorf("vignette %d: id is required", i)
		}
		if seen[rv.ID] {
			return nil, fmt.Errorf("vignette %s: duplicate id", rv.ID)
		}
		seen[rv.ID] = true
		if rv.Expect.Level == "" {
			return nil, fmt.Errorf("vignette %s: expect.level is required", rv.ID)
		}

		// Round-trip through JSON so inputs share the API's field names.
		raw, err := json.Marshal(rv.Input)
		if err != nil {
			return nil, fmt.Errorf("vignette %s: encode input: %w", rv.ID, err)
		}
		v := Vignette{ID: rv.ID, Description: rv.Description, Expect: rv.Expect}
		if err := json.Unmarshal(raw, &v.Input); err != nil {
			return nil, fmt.Errorf("vignette %s: decode input: %w", rv.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Result is the outcome of one vignette.
type Result struct {
	ID       string                `json:"id"`
	Passed   bool                  `json:"passed"`
	Level    domain.Level          `json:"level"`
	Failures []string              `json:"failures,omitempty"`
	Decision domain.DecisionResult `json:"-"`
}

// Summary counts results.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Runner evaluates vignettes with bounded concurrency.
type Runner struct {
	Workers int
	Log     zerolog.Logger
}

// Run evaluates every vignette against rs. Results keep input order.
func (r *Runner) Run(ctx context.Context, rs *rules.RuleSet, vignettes []Vignette) ([]Result, Summary, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]Result, len(vignettes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range vignettes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = check(vignettes[i], triage.Evaluate(&vignettes[i].Input, rs))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Summary{}, err
	}

	sum := Summary{Total: len(results)}
	for _, res := range results {
		if res.Passed {
			sum.Passed++
			continue
		}
		sum.Failed++
		r.Log.Warn().Str("vignette", res.ID).Strs("failures", res.Failures).Msg("vignette failed")
	}
	r.Log.Info().
		Str("rule_set_version", rs.Version).
		Int("total", sum.Total).
		Int("passed", sum.Passed).
		Int("failed", sum.Failed).
		Msg("vignettes evaluated")
	return results, sum, nil
}

func check(v Vignette, d domain.DecisionResult) Result {
	res := Result{ID: v.ID, Level: d.Level, Decision: d}

	if d.Level != v.Expect.Level {
		res.Failures = append(res.Failures, fmt.Sprintf("level %s, expected %s", d.Level, v.Expect.Level))
	}

	if v.Expect.RedFlags != nil {
		got := d.FiredRedFlags()
		want := slices.Clone(v.Expect.RedFlags)
		sort.Strings(got)
		sort.Strings(want)
		if !slices.Equal(got, want) {
			res.Failures = append(res.Failures, fmt.Sprintf("red flags %v, expected %v", got, want))
		}
	}

	if v.Expect.Escalated != nil {
		escalated := d.Uncertainty.EscalatedTo != nil
		if escalated != *v.Expect.Escalated {
			res.Failures = append(res.Failures, fmt.Sprintf("escalated %t, expected %t", escalated, *v.Expect.Escalated))
		}
	}

	res.Passed = len(res.Failures) == 0
	return res
}
