package rules

import "github.com/muzzaleeni/qwazi/internal/domain"

// Predicate decides whether a red flag fires for an input.
type Predicate func(in *domain.TriageInput) bool

// Red flag IDs with compiled predicates. A rule set may enable any subset
// and supplies the labels.
const (
	RedFlagSuicideRisk   = "RF_SUICIDE_RISK"
	RedFlagHarmToBaby    = "RF_HARM_TO_BABY"
	RedFlagPsychosis     = "RF_PSYCHOSIS"
	RedFlagHeavyBleeding = "RF_HEAVY_BLEEDING"
	RedFlagCollapse      = "RF_COLLAPSE_BREATHLESS"
	RedFlagSepsis        = "RF_SEPSIS_SIGNS"
	RedFlagCaudaEquina   = "RF_CAUDA_EQUINA"
)

var predicates = map[string]Predicate{
	RedFlagSuicideRisk: func(in *domain.TriageInput) bool {
		return in.IsTrue(domain.KeySuicidalIntentOrPlan) ||
			(in.IsTrue(domain.KeySuicidalIdeationNow) && in.IsTrue(domain.KeyUnableToStaySafe))
	},
	RedFlagHarmToBaby: func(in *domain.TriageInput) bool {
		return in.IsTrue(domain.KeyThoughtsOfHarmingBaby)
	},
	RedFlagPsychosis: func(in *domain.TriageInput) bool {
		return in.AnyTrue(domain.KeyHallucinations, domain.KeyConfusion)
	},
	RedFlagHeavyBleeding: func(in *domain.TriageInput) bool {
		return in.IsTrue(domain.KeyHeavyBleeding)
	},
	RedFlagCollapse: func(in *domain.TriageInput) bool {
		return in.AnyTrue(domain.KeyCollapse, domain.KeySevereBreathlessness, domain.KeyChestPain)
	},
	RedFlagSepsis: func(in *domain.TriageInput) bool {
		return in.IsTrue(domain.KeyFever) &&
			in.AnyTrue(domain.KeyFoulDischarge, domain.KeySevereAbdominalPain)
	},
	RedFlagCaudaEquina: func(in *domain.TriageInput) bool {
		return in.IsTrue(domain.KeySaddleNumbness) &&
			in.AnyTrue(domain.KeyNewUrinaryRetention, domain.KeyNewFaecalIncontinenceSudden)
	},
}

// KnownRedFlag reports whether id has a compiled predicate.
func KnownRedFlag(id string) bool {
	_, ok := predicates[id]
	return ok
}
