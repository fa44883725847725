// Package triage implements the deterministic decision engine: red-flag
// short-circuit, weighted scoring, confidence and uncertainty escalation,
// and action-plan selection.
package triage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muzzaleeni/qwazi/internal/domain"
	"github.com/muzzaleeni/qwazi/internal/rules"
)

// Evaluate classifies in under rs. It is a pure function: no I/O, no shared
// state, and identical (in, rs) pairs always produce identical results. It
// never fails; unanswered or unknown fields count as not present.
func Evaluate(in *domain.TriageInput, rs *rules.RuleSet) domain.DecisionResult {
	if in == nil {
		in = &domain.TriageInput{}
	}

	flags, fired := evaluateRedFlags(in, rs)
	confidence := assessConfidence(in, rs)

	if len(fired) > 0 {
		rationale := make([]string, 0, len(fired))
		for _, rf := range fired {
			rationale = append(rationale, "Red flag: "+rf.Label)
		}
		return domain.DecisionResult{
			Level:          domain.LevelEmergency,
			IsEmergency:    true,
			Rationale:      rationale,
			RedFlags:       flags,
			ScoreBreakdown: domain.ScoreBreakdown{},
			Confidence:     confidence,
			Uncertainty:    domain.UncertaintyTrace{Reasons: []domain.ReasonCode{}},
			ActionPlan:     selectPlan(domain.LevelEmergency, domain.DominanceMixed),
			RuleSetVersion: rs.Version,
		}
	}

	sc := score(in, rs)
	base := domain.LevelRoutine
	if sc.breakdown.Total >= rs.UrgentThreshold {
		base = domain.LevelUrgent
	}

	rationale := []string{scoreRationale(sc.breakdown, rs.UrgentThreshold)}
	if len(sc.contributions) > 0 {
		rationale = append(rationale, "Contributing answers: "+strings.Join(sc.contributions, ", "))
	}
	rationale = append(rationale, sc.bonuses...)
	rationale = append(rationale, confidenceRationale(confidence))

	uncertainty := assessUncertainty(in, confidence)
	final := base
	if uncertainty.Triggered {
		final = EscalateOneLevel(base)
		from, to := base, final
		uncertainty.EscalatedFrom = &from
		uncertainty.EscalatedTo = &to
		rationale = append(rationale, fmt.Sprintf("Escalated %s to %s due to uncertainty: %s",
			from, to, joinReasons(uncertainty.Reasons)))
	}

	return domain.DecisionResult{
		Level:          final,
		IsEmergency:    final == domain.LevelEmergency,
		Rationale:      rationale,
		RedFlags:       flags,
		ScoreBreakdown: sc.breakdown,
		Confidence:     confidence,
		Uncertainty:    uncertainty,
		ActionPlan:     selectPlan(final, dominance(sc.breakdown)),
		RuleSetVersion: rs.Version,
	}
}

// EscalateOneLevel raises a level by exactly one tier and saturates at
// EMERGENCY.
func EscalateOneLevel(l domain.Level) domain.Level {
	switch l {
	case domain.LevelUrgent, domain.LevelEmergency:
		return domain.LevelEmergency
	default:
		return domain.LevelUrgent
	}
}

func evaluateRedFlags(in *domain.TriageInput, rs *rules.RuleSet) ([]domain.RedFlagTrace, []rules.RedFlag) {
	traces := make([]domain.RedFlagTrace, 0, len(rs.RedFlags))
	var fired []rules.RedFlag
	for _, rf := range rs.RedFlags {
		ok := rf.Fires(in)
		traces = append(traces, domain.RedFlagTrace{ID: rf.ID, Label: rf.Label, Fired: ok})
		if ok {
			fired = append(fired, rf)
		}
	}
	return traces, fired
}

type scoring struct {
	breakdown     domain.ScoreBreakdown
	contributions []string
	bonuses       []string
}

func score(in *domain.TriageInput, rs *rules.RuleSet) scoring {
	var sc scoring

	a, ca := sumTable(in, rs.Weights.DomainA)
	b, cb := sumTable(in, rs.Weights.DomainB)
	c, cc := sumTable(in, rs.Weights.Context)
	sc.contributions = append(append(ca, cb...), cc...)

	for _, bonus := range rs.Bonuses {
		if !bonus.Applies(in) || bonus.Points == 0 {
			continue
		}
		switch bonus.Domain {
		case rules.DomainA:
			a += bonus.Points
		case rules.DomainB:
			b += bonus.Points
		default:
			c += bonus.Points
		}
		sc.bonuses = append(sc.bonuses, fmt.Sprintf("Bonus %s applied (+%d to %s)", bonus.ID, bonus.Points, bonus.Domain))
	}

	sc.breakdown = domain.ScoreBreakdown{DomainA: a, DomainB: b, Context: c, Total: a + b + c}
	return sc
}

// sumTable adds the weight of every true field. Keys are visited in sorted
// order so the contribution list is stable.
func sumTable(in *domain.TriageInput, weights map[string]int) (int, []string) {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 0
	var contributions []string
	for _, k := range keys {
		w := weights[k]
		if w <= 0 || !in.IsTrue(k) {
			continue
		}
		total += w
		contributions = append(contributions, fmt.Sprintf("%s(+%d)", k, w))
	}
	return total, contributions
}

func assessConfidence(in *domain.TriageInput, rs *rules.RuleSet) domain.ConfidenceTrace {
	presence := make(map[string]bool, len(rs.CriticalInputs))
	missing := 0
	for _, k := range rs.CriticalInputs {
		ok := in.Present(k)
		presence[k] = ok
		if !ok {
			missing++
		}
	}

	level := in.Inconsistency()
	uncertain := in.IsTrue(domain.KeyUserUncertain)

	bucket := domain.ConfidenceHigh
	switch {
	case missing >= 2 || level == domain.InconsistencyMajor || uncertain:
		bucket = domain.ConfidenceLow
	case missing == 1 || level == domain.InconsistencyMinor:
		bucket = domain.ConfidenceMedium
	}

	return domain.ConfidenceTrace{
		Bucket:                bucket,
		MissingCriticalInputs: missing,
		PerInputPresence:      presence,
		InconsistencyLevel:    level,
		UserUncertain:         uncertain,
	}
}

// assessUncertainty collects reason codes in a fixed order.
func assessUncertainty(in *domain.TriageInput, conf domain.ConfidenceTrace) domain.UncertaintyTrace {
	reasons := []domain.ReasonCode{}
	if in.IsTrue(domain.KeyCannotAnswer) {
		reasons = append(reasons, domain.ReasonCannotAnswer)
	}
	if conf.MissingCriticalInputs > 2 {
		reasons = append(reasons, domain.ReasonMissingCriticalInputs)
	}
	if conf.InconsistencyLevel == domain.InconsistencyMajor {
		reasons = append(reasons, domain.ReasonMajorInconsistency)
	}
	if conf.UserUncertain {
		reasons = append(reasons, domain.ReasonUserUncertain)
	}
	if conf.Bucket == domain.ConfidenceLow {
		reasons = append(reasons, domain.ReasonLowConfidence)
	}
	return domain.UncertaintyTrace{Triggered: len(reasons) > 0, Reasons: reasons}
}

func scoreRationale(b domain.ScoreBreakdown, threshold int) string {
	cmp := "below"
	if b.Total >= threshold {
		cmp = "meets"
	}
	return fmt.Sprintf("Score %d (domain A %d, domain B %d, context %d) %s urgent threshold %d",
		b.Total, b.DomainA, b.DomainB, b.Context, cmp, threshold)
}

func confidenceRationale(c domain.ConfidenceTrace) string {
	return fmt.Sprintf("Confidence %s: %d critical input(s) missing, inconsistency %s",
		c.Bucket, c.MissingCriticalInputs, c.InconsistencyLevel)
}

func joinReasons(reasons []domain.ReasonCode) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
