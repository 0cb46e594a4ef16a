package symbols

import (
	"regexp"

	"go.uber.org/zap"
)

// A Strategy is one way of recovering a helper identifier from file content.
// Strategies are ordered by trust: chain-derived lookups rank above narrow
// context searches, which rank above hardcoded defaults.
type Strategy struct {
	Name       string
	Confidence float64
	Find       func(content string) (string, bool)
}

// Capture builds a strategy from the first capture group of re.
func Capture(name string, confidence float64, re *regexp.Regexp) Strategy {
	return Strategy{
		Name:       name,
		Confidence: clamp(confidence, 0.1, 0.99),
		Find: func(content string) (string, bool) {
			m := re.FindStringSubmatch(content)
			if m == nil {
				return "", false
			}
			return m[1], true
		},
	}
}

// Fixed builds the weakest-tier strategy: a hardcoded identifier that is only
// correct for the build the catalogue was last calibrated against.
func Fixed(alias string) Strategy {
	return Strategy{
		Name:       "hardcoded default",
		Confidence: 0.1,
		Find: func(string) (string, bool) {
			return alias, true
		},
	}
}

// Resolution records which tier produced an identifier, so reports can show
// when a run leaned on a low-confidence fallback.
type Resolution struct {
	Alias      string
	Strategy   string
	Confidence float64
}

// Chain is an ordered fallback list for one helper identifier.
type Chain struct {
	Target string
	Tiers  []Strategy
}

// Resolve walks the tiers in order and returns the first hit. Chains always
// terminate in a Fixed tier, so a zero Resolution only happens for an empty
// chain.
func (c Chain) Resolve(content string, log *zap.Logger) Resolution {
	if log == nil {
		log = zap.NewNop()
	}
	for i, tier := range c.Tiers {
		alias, ok := tier.Find(content)
		if !ok {
			continue
		}
		if i > 0 {
			log.Warn("helper resolved by fallback tier",
				zap.String("target", c.Target),
				zap.String("strategy", tier.Name),
				zap.Float64("confidence", tier.Confidence))
		}
		return Resolution{Alias: alias, Strategy: tier.Name, Confidence: tier.Confidence}
	}
	return Resolution{}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
