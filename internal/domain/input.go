// Package domain defines the core types shared by the triage engine, the
// case store and their transports.
package domain

import "sort"

// InconsistencyLevel grades how contradictory a questionnaire's answers are.
type InconsistencyLevel string

const (
	InconsistencyNone  InconsistencyLevel = "NONE"
	InconsistencyMinor InconsistencyLevel = "MINOR"
	InconsistencyMajor InconsistencyLevel = "MAJOR"
)

// Valid reports whether l is a recognized level.
func (l InconsistencyLevel) Valid() bool {
	switch l {
	case InconsistencyNone, InconsistencyMinor, InconsistencyMajor:
		return true
	}
	return false
}

// TriageInput is one completed screening questionnaire. Every answer is
// optional: a nil pointer means the question was not answered, which is
// distinct from an explicit false.
type TriageInput struct {
	// Mood domain.
	LowMood             *bool `json:"low_mood,omitempty"`
	Anhedonia           *bool `json:"anhedonia,omitempty"`
	Anxiety             *bool `json:"anxiety,omitempty"`
	PanicAttacks        *bool `json:"panic_attacks,omitempty"`
	SleepDisturbance    *bool `json:"sleep_disturbance,omitempty"`
	IntrusiveThoughts   *bool `json:"intrusive_thoughts,omitempty"`
	Irritability        *bool `json:"irritability,omitempty"`
	BondingDifficulty   *bool `json:"bonding_difficulty,omitempty"`
	SuicidalIdeationNow *bool `json:"suicidal_ideation_now,omitempty"`

	// Pelvic-floor domain.
	UrinaryIncontinence *bool `json:"urinary_incontinence,omitempty"`
	FaecalIncontinence  *bool `json:"faecal_incontinence,omitempty"`
	FlatalIncontinence  *bool `json:"flatal_incontinence,omitempty"`
	PelvicPain          *bool `json:"pelvic_pain,omitempty"`
	ProlapseSymptoms    *bool `json:"prolapse_symptoms,omitempty"`
	PainfulIntercourse  *bool `json:"painful_intercourse,omitempty"`
	PerinealWoundPain   *bool `json:"perineal_wound_pain,omitempty"`
	VoidingDifficulty   *bool `json:"voiding_difficulty,omitempty"`

	// History and context.
	PriorMentalHealthHistory    *bool `json:"prior_mental_health_history,omitempty"`
	PriorPerinatalMentalIllness *bool `json:"prior_perinatal_mental_illness,omitempty"`
	TraumaticBirth              *bool `json:"traumatic_birth,omitempty"`
	InstrumentalDelivery        *bool `json:"instrumental_delivery,omitempty"`
	SeverePerinealTear          *bool `json:"severe_perineal_tear,omitempty"`
	LimitedSupport              *bool `json:"limited_support,omitempty"`

	// Safety questions that only feed red flags.
	SuicidalIntentOrPlan        *bool `json:"suicidal_intent_or_plan,omitempty"`
	UnableToStaySafe            *bool `json:"unable_to_stay_safe,omitempty"`
	ThoughtsOfHarmingBaby       *bool `json:"thoughts_of_harming_baby,omitempty"`
	Hallucinations              *bool `json:"hallucinations,omitempty"`
	Confusion                   *bool `json:"confusion,omitempty"`
	HeavyBleeding               *bool `json:"heavy_bleeding,omitempty"`
	Collapse                    *bool `json:"collapse,omitempty"`
	SevereBreathlessness        *bool `json:"severe_breathlessness,omitempty"`
	ChestPain                   *bool `json:"chest_pain,omitempty"`
	Fever                       *bool `json:"fever,omitempty"`
	FoulDischarge               *bool `json:"foul_discharge,omitempty"`
	SevereAbdominalPain         *bool `json:"severe_abdominal_pain,omitempty"`
	SaddleNumbness              *bool `json:"saddle_numbness,omitempty"`
	NewUrinaryRetention         *bool `json:"new_urinary_retention,omitempty"`
	NewFaecalIncontinenceSudden *bool `json:"new_faecal_incontinence_sudden,omitempty"`

	WeeksPostpartum *float64 `json:"weeks_postpartum,omitempty"`

	// Meta-uncertainty.
	InconsistencyLevel *InconsistencyLevel `json:"inconsistency_level,omitempty"`
	UserUncertain      *bool               `json:"user_uncertain,omitempty"`
	CannotAnswer       *bool               `json:"cannot_answer,omitempty"`
}

// Input keys used by rule sets. The names match the JSON field names.
const (
	KeyLowMood             = "low_mood"
	KeyAnhedonia           = "anhedonia"
	KeyAnxiety             = "anxiety"
	KeyPanicAttacks        = "panic_attacks"
	KeySleepDisturbance    = "sleep_disturbance"
	KeyIntrusiveThoughts   = "intrusive_thoughts"
	KeyIrritability        = "irritability"
	KeyBondingDifficulty   = "bonding_difficulty"
	KeySuicidalIdeationNow = "suicidal_ideation_now"

	KeyUrinaryIncontinence = "urinary_incontinence"
	KeyFaecalIncontinence  = "faecal_incontinence"
	KeyFlatalIncontinence  = "flatal_incontinence"
	KeyPelvicPain          = "pelvic_pain"
	KeyProlapseSymptoms    = "prolapse_symptoms"
	KeyPainfulIntercourse  = "painful_intercourse"
	KeyPerinealWoundPain   = "perineal_wound_pain"
	KeyVoidingDifficulty   = "voiding_difficulty"

	KeyPriorMentalHealthHistory    = "prior_mental_health_history"
	KeyPriorPerinatalMentalIllness = "prior_perinatal_mental_illness"
	KeyTraumaticBirth              = "traumatic_birth"
	KeyInstrumentalDelivery        = "instrumental_delivery"
	KeySeverePerinealTear          = "severe_perineal_tear"
	KeyLimitedSupport              = "limited_support"

	KeySuicidalIntentOrPlan        = "suicidal_intent_or_plan"
	KeyUnableToStaySafe            = "unable_to_stay_safe"
	KeyThoughtsOfHarmingBaby       = "thoughts_of_harming_baby"
	KeyHallucinations              = "hallucinations"
	KeyConfusion                   = "confusion"
	KeyHeavyBleeding               = "heavy_bleeding"
	KeyCollapse                    = "collapse"
	KeySevereBreathlessness        = "severe_breathlessness"
	KeyChestPain                   = "chest_pain"
	KeyFever                       = "fever"
	KeyFoulDischarge               = "foul_discharge"
	KeySevereAbdominalPain         = "severe_abdominal_pain"
	KeySaddleNumbness              = "saddle_numbness"
	KeyNewUrinaryRetention         = "new_urinary_retention"
	KeyNewFaecalIncontinenceSudden = "new_faecal_incontinence_sudden"

	KeyWeeksPostpartum    = "weeks_postpartum"
	KeyInconsistencyLevel = "inconsistency_level"
	KeyUserUncertain      = "user_uncertain"
	KeyCannotAnswer       = "cannot_answer"
)

// Aggregate critical-input keys. Each is present when any one of its
// underlying fields was answered:
//
//	mood_core         low_mood, anhedonia
//	pelvic_floor_any  every pelvic-floor domain field
const (
	AggregateMoodCore       = "mood_core"
	AggregatePelvicFloorAny = "pelvic_floor_any"
)

var boolFields = map[string]func(*TriageInput) *bool{
	KeyLowMood:             func(in *TriageInput) *bool { return in.LowMood },
	KeyAnhedonia:           func(in *TriageInput) *bool { return in.Anhedonia },
	KeyAnxiety:             func(in *TriageInput) *bool { return in.Anxiety },
	KeyPanicAttacks:        func(in *TriageInput) *bool { return in.PanicAttacks },
	KeySleepDisturbance:    func(in *TriageInput) *bool { return in.SleepDisturbance },
	KeyIntrusiveThoughts:   func(in *TriageInput) *bool { return in.IntrusiveThoughts },
	KeyIrritability:        func(in *TriageInput) *bool { return in.Irritability },
	KeyBondingDifficulty:   func(in *TriageInput) *bool { return in.BondingDifficulty },
	KeySuicidalIdeationNow: func(in *TriageInput) *bool { return in.SuicidalIdeationNow },

	KeyUrinaryIncontinence: func(in *TriageInput) *bool { return in.UrinaryIncontinence },
	KeyFaecalIncontinence:  func(in *TriageInput) *bool { return in.FaecalIncontinence },
	KeyFlatalIncontinence:  func(in *TriageInput) *bool { return in.FlatalIncontinence },
	KeyPelvicPain:          func(in *TriageInput) *bool { return in.PelvicPain },
	KeyProlapseSymptoms:    func(in *TriageInput) *bool { return in.ProlapseSymptoms },
	KeyPainfulIntercourse:  func(in *TriageInput) *bool { return in.PainfulIntercourse },
	KeyPerinealWoundPain:   func(in *TriageInput) *bool { return in.PerinealWoundPain },
	KeyVoidingDifficulty:   func(in *TriageInput) *bool { return in.VoidingDifficulty },

	KeyPriorMentalHealthHistory:    func(in *TriageInput) *bool { return in.PriorMentalHealthHistory },
	KeyPriorPerinatalMentalIllness: func(in *TriageInput) *bool { return in.PriorPerinatalMentalIllness },
	KeyTraumaticBirth:              func(in *TriageInput) *bool { return in.TraumaticBirth },
	KeyInstrumentalDelivery:        func(in *TriageInput) *bool { return in.InstrumentalDelivery },
	KeySeverePerinealTear:          func(in *TriageInput) *bool { return in.SeverePerinealTear },
	KeyLimitedSupport:              func(in *TriageInput) *bool { return in.LimitedSupport },

	KeySuicidalIntentOrPlan:        func(in *TriageInput) *bool { return in.SuicidalIntentOrPlan },
	KeyUnableToStaySafe:            func(in *TriageInput) *bool { return in.UnableToStaySafe },
	KeyThoughtsOfHarmingBaby:       func(in *TriageInput) *bool { return in.ThoughtsOfHarmingBaby },
	KeyHallucinations:              func(in *TriageInput) *bool { return in.Hallucinations },
	KeyConfusion:                   func(in *TriageInput) *bool { return in.Confusion },
	KeyHeavyBleeding:               func(in *TriageInput) *bool { return in.HeavyBleeding },
	KeyCollapse:                    func(in *TriageInput) *bool { return in.Collapse },
	KeySevereBreathlessness:        func(in *TriageInput) *bool { return in.SevereBreathlessness },
	KeyChestPain:                   func(in *TriageInput) *bool { return in.ChestPain },
	KeyFever:                       func(in *TriageInput) *bool { return in.Fever },
	KeyFoulDischarge:               func(in *TriageInput) *bool { return in.FoulDischarge },
	KeySevereAbdominalPain:         func(in *TriageInput) *bool { return in.SevereAbdominalPain },
	KeySaddleNumbness:              func(in *TriageInput) *bool { return in.SaddleNumbness },
	KeyNewUrinaryRetention:         func(in *TriageInput) *bool { return in.NewUrinaryRetention },
	KeyNewFaecalIncontinenceSudden: func(in *TriageInput) *bool { return in.NewFaecalIncontinenceSudden },

	KeyUserUncertain: func(in *TriageInput) *bool { return in.UserUncertain },
	KeyCannotAnswer:  func(in *TriageInput) *bool { return in.CannotAnswer },
}

var pelvicFloorKeys = []string{
	KeyUrinaryIncontinence, KeyFaecalIncontinence, KeyFlatalIncontinence,
	KeyPelvicPain, KeyProlapseSymptoms, KeyPainfulIntercourse,
	KeyPerinealWoundPain, KeyVoidingDifficulty,
}

var aggregates = map[string][]string{
	AggregateMoodCore:       {KeyLowMood, KeyAnhedonia},
	AggregatePelvicFloorAny: pelvicFloorKeys,
}

// IsBoolKey reports whether key names a boolean questionnaire field.
func IsBoolKey(key string) bool {
	_, ok := boolFields[key]
	return ok
}

// IsPresenceKey reports whether key can be used as a critical input: any
// field key or aggregate key.
func IsPresenceKey(key string) bool {
	if IsBoolKey(key) {
		return true
	}
	if _, ok := aggregates[key]; ok {
		return true
	}
	return key == KeyWeeksPostpartum || key == KeyInconsistencyLevel
}

// BoolKeys returns every boolean field key, sorted.
func BoolKeys() []string {
	keys := make([]string, 0, len(boolFields))
	for k := range boolFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsTrue reports whether the boolean field named key was answered true.
// Unknown keys and unanswered questions are false.
func (in *TriageInput) IsTrue(key string) bool {
	get, ok := boolFields[key]
	if !ok {
		return false
	}
	v := get(in)
	return v != nil && *v
}

// AnyTrue reports whether any of keys was answered true.
func (in *TriageInput) AnyTrue(keys ...string) bool {
	for _, k := range keys {
		if in.IsTrue(k) {
			return true
		}
	}
	return false
}

// Present reports whether key was answered at all. Aggregate keys are
// present when any underlying field is.
func (in *TriageInput) Present(key string) bool {
	if get, ok := boolFields[key]; ok {
		return get(in) != nil
	}
	if members, ok := aggregates[key]; ok {
		for _, m := range members {
			if in.Present(m) {
				return true
			}
		}
		return false
	}
	switch key {
	case KeyWeeksPostpartum:
		return in.WeeksPostpartum != nil
	case KeyInconsistencyLevel:
		return in.InconsistencyLevel != nil
	}
	return false
}

// Inconsistency returns the declared inconsistency level, NONE when unset
// or unrecognized.
func (in *TriageInput) Inconsistency() InconsistencyLevel {
	if in.InconsistencyLevel == nil || !in.InconsistencyLevel.Valid() {
		return InconsistencyNone
	}
	return *in.InconsistencyLevel
}

// Weeks returns weeks postpartum and whether it was answered.
func (in *TriageInput) Weeks() (float64, bool) {
	if in.WeeksPostpartum == nil {
		return 0, false
	}
	return *in.WeeksPostpartum, true
}
