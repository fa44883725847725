package domain

// Level is the urgency tier of a decision.
type Level string

const (
	LevelEmergency Level = "EMERGENCY"
	LevelUrgent    Level = "URGENT"
	LevelRoutine   Level = "ROUTINE"
)

// Rank orders levels from ROUTINE (0) to EMERGENCY (2).
func (l Level) Rank() int {
	switch l {
	case LevelEmergency:
		return 2
	case LevelUrgent:
		return 1
	default:
		return 0
	}
}

// ConfidenceBucket summarizes how complete and consistent an input was.
type ConfidenceBucket string

const (
	ConfidenceHigh   ConfidenceBucket = "HIGH"
	ConfidenceMedium ConfidenceBucket = "MEDIUM"
	ConfidenceLow    ConfidenceBucket = "LOW"
)

// ReasonCode names one cause of uncertainty escalation.
type ReasonCode string

const (
	ReasonCannotAnswer          ReasonCode = "CANNOT_ANSWER"
	ReasonMissingCriticalInputs ReasonCode = "MISSING_CRITICAL_INPUTS"
	ReasonMajorInconsistency    ReasonCode = "MAJOR_INCONSISTENCY"
	ReasonUserUncertain         ReasonCode = "USER_UNCERTAIN"
	ReasonLowConfidence         ReasonCode = "LOW_CONFIDENCE"
)

// Dominance says which weighted domain drove the score.
type Dominance string

const (
	DominanceMood   Dominance = "DOMAIN_A"
	DominancePelvic Dominance = "DOMAIN_B"
	DominanceMixed  Dominance = "MIXED"
)

// Route is the primary care destination of an action plan.
type Route string

const (
	RouteEmergencyServices  Route = "EMERGENCY_SERVICES"
	RouteMentalHealthCrisis Route = "PERINATAL_MENTAL_HEALTH_URGENT"
	RouteMentalHealth       Route = "PERINATAL_MENTAL_HEALTH"
	RoutePelvicHealthUrgent Route = "MATERNITY_TRIAGE"
	RoutePelvicHealth       Route = "PELVIC_HEALTH_PHYSIO"
	RoutePrimaryCareUrgent  Route = "GP_SAME_DAY"
	RoutePrimaryCare        Route = "GP_ROUTINE"
)

// Timeframe is how soon the recommended contact should happen.
type Timeframe string

const (
	TimeframeNow         Timeframe = "NOW"
	TimeframeToday       Timeframe = "TODAY"
	TimeframeWithinNDays Timeframe = "WITHIN_N_DAYS"
)

// RedFlagTrace records the evaluation of one red flag.
type RedFlagTrace struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Fired bool   `json:"fired"`
}

// ScoreBreakdown holds per-domain points. Total is always the sum of the
// other three.
type ScoreBreakdown struct {
	DomainA int `json:"domain_a"`
	DomainB int `json:"domain_b"`
	Context int `json:"context"`
	Total   int `json:"total"`
}

// ConfidenceTrace explains the confidence bucket.
type ConfidenceTrace struct {
	Bucket                ConfidenceBucket   `json:"bucket"`
	MissingCriticalInputs int                `json:"missing_critical_inputs"`
	PerInputPresence      map[string]bool    `json:"per_input_presence"`
	InconsistencyLevel    InconsistencyLevel `json:"inconsistency_level"`
	UserUncertain         bool               `json:"user_uncertain"`
}

// UncertaintyTrace records whether and why the level was escalated.
type UncertaintyTrace struct {
	Triggered     bool         `json:"triggered"`
	Reasons       []ReasonCode `json:"reasons"`
	EscalatedFrom *Level       `json:"escalated_from,omitempty"`
	EscalatedTo   *Level       `json:"escalated_to,omitempty"`
}

// ActionPlan is the care-routing recommendation. Contacts, instructions
// and safety-net entries are message keys resolved by the presentation
// layer.
type ActionPlan struct {
	Level               Level     `json:"level"`
	Dominance           Dominance `json:"dominance"`
	PrimaryRoute        Route     `json:"primary_route"`
	Timeframe           Timeframe `json:"timeframe"`
	WithinDays          int       `json:"within_days,omitempty"`
	RecommendedContacts []string  `json:"recommended_contacts"`
	Instructions        []string  `json:"instructions"`
	SafetyNet           []string  `json:"safety_net"`
}

// DecisionResult is the immutable output of one evaluation.
type DecisionResult struct {
	Level          Level            `json:"level"`
	IsEmergency    bool             `json:"is_emergency"`
	Rationale      []string         `json:"rationale"`
	RedFlags       []RedFlagTrace   `json:"red_flags"`
	ScoreBreakdown ScoreBreakdown   `json:"score_breakdown"`
	Confidence     ConfidenceTrace  `json:"confidence"`
	Uncertainty    UncertaintyTrace `json:"uncertainty"`
	ActionPlan     ActionPlan       `json:"action_plan"`
	RuleSetVersion string           `json:"rule_set_version"`
}

// FiredRedFlags returns the IDs of every red flag that fired.
func (d DecisionResult) FiredRedFlags() []string {
	var ids []string
	for _, rf := range d.RedFlags {
		if rf.Fired {
			ids = append(ids, rf.ID)
		}
	}
	return ids
}
