package triage

import (
	"slices"

	"github.com/muzzaleeni/qwazi/internal/domain"
)

// dominanceMargin is how many more points one weighted domain needs over
// the other to drive routing on its own.
const dominanceMargin = 2

func dominance(b domain.ScoreBreakdown) domain.Dominance {
	diff := b.DomainA - b.DomainB
	switch {
	case diff >= dominanceMargin:
		return domain.DominanceMood
	case diff <= -dominanceMargin:
		return domain.DominancePelvic
	default:
		return domain.DominanceMixed
	}
}

type planKey struct {
	level     domain.Level
	dominance domain.Dominance
}

var emergencyPlan = domain.ActionPlan{
	Level:               domain.LevelEmergency,
	Dominance:           domain.DominanceMixed,
	PrimaryRoute:        domain.RouteEmergencyServices,
	Timeframe:           domain.TimeframeNow,
	RecommendedContacts: []string{"contact.emergency_number", "contact.maternity_unit"},
	Instructions:        []string{"instr.call_emergency_now", "instr.do_not_stay_alone"},
	SafetyNet:           []string{"safety.if_worse_call_emergency"},
}

// planTable covers every non-emergency (level, dominance) pair.
var planTable = map[planKey]domain.ActionPlan{
	{domain.LevelUrgent, domain.DominanceMood}: {
		PrimaryRoute:        domain.RouteMentalHealthCrisis,
		Timeframe:           domain.TimeframeToday,
		RecommendedContacts: []string{"contact.perinatal_mental_health", "contact.gp"},
		Instructions:        []string{"instr.same_day_mental_health_review", "instr.tell_someone_you_trust"},
		SafetyNet:           []string{"safety.crisis_line", "safety.if_unsafe_call_emergency"},
	},
	{domain.LevelUrgent, domain.DominancePelvic}: {
		PrimaryRoute:        domain.RoutePelvicHealthUrgent,
		Timeframe:           domain.TimeframeToday,
		RecommendedContacts: []string{"contact.maternity_triage", "contact.gp"},
		Instructions:        []string{"instr.same_day_pelvic_assessment"},
		SafetyNet:           []string{"safety.if_bleeding_or_fever_call_emergency"},
	},
	{domain.LevelUrgent, domain.DominanceMixed}: {
		PrimaryRoute:        domain.RoutePrimaryCareUrgent,
		Timeframe:           domain.TimeframeToday,
		RecommendedContacts: []string{"contact.gp", "contact.health_visitor"},
		Instructions:        []string{"instr.same_day_gp_review"},
		SafetyNet:           []string{"safety.if_worse_call_emergency"},
	},
	{domain.LevelRoutine, domain.DominanceMood}: {
		PrimaryRoute:        domain.RouteMentalHealth,
		Timeframe:           domain.TimeframeWithinNDays,
		WithinDays:          7,
		RecommendedContacts: []string{"contact.health_visitor", "contact.gp"},
		Instructions:        []string{"instr.book_mental_health_review", "instr.self_care_sleep_support"},
		SafetyNet:           []string{"safety.if_unsafe_call_emergency", "safety.recheck_in_two_weeks"},
	},
	{domain.LevelRoutine, domain.DominancePelvic}: {
		PrimaryRoute:        domain.RoutePelvicHealth,
		Timeframe:           domain.TimeframeWithinNDays,
		WithinDays:          14,
		RecommendedContacts: []string{"contact.pelvic_health_physio", "contact.gp"},
		Instructions:        []string{"instr.pelvic_floor_exercises", "instr.book_pelvic_health_referral"},
		SafetyNet:           []string{"safety.if_bleeding_or_fever_call_emergency", "safety.recheck_in_two_weeks"},
	},
	{domain.LevelRoutine, domain.DominanceMixed}: {
		PrimaryRoute:        domain.RoutePrimaryCare,
		Timeframe:           domain.TimeframeWithinNDays,
		WithinDays:          14,
		RecommendedContacts: []string{"contact.gp", "contact.health_visitor"},
		Instructions:        []string{"instr.book_gp_review"},
		SafetyNet:           []string{"safety.if_worse_call_emergency", "safety.recheck_in_two_weeks"},
	},
}

// selectPlan returns a fresh copy of the template for (level, dom). Every
// EMERGENCY maps to the single emergency template; an unknown level falls
// back to the routine table so the mapping stays total.
func selectPlan(level domain.Level, dom domain.Dominance) domain.ActionPlan {
	if level == domain.LevelEmergency {
		return clonePlan(emergencyPlan)
	}
	tmpl, ok := planTable[planKey{level, dom}]
	if !ok {
		tmpl = planTable[planKey{domain.LevelRoutine, domain.DominanceMixed}]
	}
	plan := clonePlan(tmpl)
	plan.Level = level
	plan.Dominance = dom
	return plan
}

func clonePlan(p domain.ActionPlan) domain.ActionPlan {
	p.RecommendedContacts = slices.Clone(p.RecommendedContacts)
	p.Instructions = slices.Clone(p.Instructions)
	p.SafetyNet = slices.Clone(p.SafetyNet)
	return p
}
