// Package rules holds the versioned, read-only rule set consumed by the
// triage engine, and its YAML loader.
package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

//go:embed default.yaml
var defaultYAML []byte

// Bonus domains.
const (
	DomainA       = "A"
	DomainB       = "B"
	DomainContext = "CONTEXT"
)

// RedFlag is one red flag enabled by the rule set.
type RedFlag struct {
	ID          string `yaml:"id"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`

	predicate Predicate
}

// Fires evaluates the red flag against in.
func (rf RedFlag) Fires(in *domain.TriageInput) bool {
	if rf.predicate == nil {
		return false
	}
	return rf.predicate(in)
}

// Weights are the three per-item scoring tables.
type Weights struct {
	DomainA map[string]int `yaml:"domain_a"`
	DomainB map[string]int `yaml:"domain_b"`
	Context map[string]int `yaml:"context"`
}

// Bonus adds Points to Domain when weeks postpartum is at least
// MinWeeksPostpartum and any of AnyOf is true.
type Bonus struct {
	ID                 string   `yaml:"id"`
	Domain             string   `yaml:"domain"`
	Points             int      `yaml:"points"`
	MinWeeksPostpartum float64  `yaml:"min_weeks_postpartum"`
	AnyOf              []string `yaml:"any_of"`
}

// Applies reports whether the bonus condition holds for in.
func (b Bonus) Applies(in *domain.TriageInput) bool {
	weeks, ok := in.Weeks()
	if !ok || weeks < b.MinWeeksPostpartum {
		return false
	}
	return in.AnyTrue(b.AnyOf...)
}

// RuleSet is an immutable, versioned rule configuration. Callers must treat
// a loaded RuleSet as read-only; swapping rules means loading a new one.
type RuleSet struct {
	Version         string    `yaml:"version"`
	UrgentThreshold int       `yaml:"urgent_threshold"`
	RedFlags        []RedFlag `yaml:"red_flags"`
	Weights         Weights   `yaml:"weights"`
	Bonuses         []Bonus   `yaml:"bonuses"`
	CriticalInputs  []string  `yaml:"critical_inputs"`
}

// Default returns the rule set embedded in the binary.
func Default() (*RuleSet, error) {
	return Parse(defaultYAML)
}

// Load reads and validates a YAML rule set file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRuleSetInvalid, fmt.Errorf("read rule set: %w", err))
	}
	return Parse(data)
}

// Parse decodes and validates a YAML rule set. Unknown YAML keys are
// rejected.
func Parse(data []byte) (*RuleSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var rs RuleSet
	if err := dec.Decode(&rs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.NewError(domain.ErrRuleSetInvalid, "rule set is empty")
		}
		return nil, domain.WrapError(domain.ErrRuleSetInvalid, fmt.Errorf("parse rule set YAML: %w", err))
	}

	if err := rs.validate(); err != nil {
		return nil, err
	}
	rs.bind()
	return &rs, nil
}

// RedFlagIDs returns the enabled red flag IDs in rule-set order.
func (rs *RuleSet) RedFlagIDs() []string {
	ids := make([]string, len(rs.RedFlags))
	for i, rf := range rs.RedFlags {
		ids[i] = rf.ID
	}
	return ids
}

func (rs *RuleSet) bind() {
	for i := range rs.RedFlags {
		rs.RedFlags[i].predicate = predicates[rs.RedFlags[i].ID]
	}
}

func (rs *RuleSet) validate() error {
	var problems []string

	if strings.TrimSpace(rs.Version) == "" {
		problems = append(problems, "version is required")
	}
	if rs.UrgentThreshold <= 0 {
		problems = append(problems, "urgent_threshold must be positive")
	}

	seen := make(map[string]bool)
	for i, rf := range rs.RedFlags {
		switch {
		case rf.ID == "":
			problems = append(problems, fmt.Sprintf("red_flags[%d]: id is required", i))
		case !KnownRedFlag(rf.ID):
			problems = append(problems, fmt.Sprintf("red_flags[%d]: unknown red flag %q", i, rf.ID))
		case seen[rf.ID]:
			problems = append(problems, fmt.Sprintf("red_flags[%d]: duplicate red flag %q", i, rf.ID))
		}
		seen[rf.ID] = true
		if strings.TrimSpace(rf.Label) == "" {
			problems = append(problems, fmt.Sprintf("red_flags[%d]: label is required", i))
		}
	}

	problems = append(problems, checkWeights("domain_a", rs.Weights.DomainA)...)
	problems = append(problems, checkWeights("domain_b", rs.Weights.DomainB)...)
	problems = append(problems, checkWeights("context", rs.Weights.Context)...)

	for i, b := range rs.Bonuses {
		if b.Domain != DomainA && b.Domain != DomainB && b.Domain != DomainContext {
			problems = append(problems, fmt.Sprintf("bonuses[%d]: domain %q must be A, B or CONTEXT", i, b.Domain))
		}
		if b.Points < 0 {
			problems = append(problems, fmt.Sprintf("bonuses[%d]: points must not be negative", i))
		}
		if len(b.AnyOf) == 0 {
			problems = append(problems, fmt.Sprintf("bonuses[%d]: any_of must not be empty", i))
		}
		for _, k := range b.AnyOf {
			if !domain.IsBoolKey(k) {
				problems = append(problems, fmt.Sprintf("bonuses[%d]: unknown input %q", i, k))
			}
		}
	}

	for _, k := range rs.CriticalInputs {
		if !domain.IsPresenceKey(k) {
			problems = append(problems, fmt.Sprintf("critical_inputs: unknown input %q", k))
		}
	}

	if len(problems) > 0 {
		return domain.NewError(domain.ErrRuleSetInvalid,
			fmt.Sprintf("%s: %v", domain.ErrRuleSetInvalid.Message, problems))
	}
	return nil
}

func checkWeights(table string, weights map[string]int) []string {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	for _, k := range keys {
		if !domain.IsBoolKey(k) {
			problems = append(problems, fmt.Sprintf("weights.%s: unknown input %q", table, k))
		}
		if weights[k] < 0 {
			problems = append(problems, fmt.Sprintf("weights.%s.%s: weight must not be negative", table, k))
		}
	}
	return problems
}
