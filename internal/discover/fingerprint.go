package discover

import (
	"regexp"
	"strings"
)

// Predicate is one named structural condition a candidate file must satisfy.
type Predicate struct {
	Name string
	Test func(content string) bool
}

// Contains matches files containing substr.
func Contains(name, substr string) Predicate {
	return Predicate{Name: name, Test: func(content string) bool {
		return strings.Contains(content, substr)
	}}
}

// ContainsAny matches files containing at least one of subs.
func ContainsAny(name string, subs ...string) Predicate {
	return Predicate{Name: name, Test: func(content string) bool {
		for _, s := range subs {
			if strings.Contains(content, s) {
				return true
			}
		}
		return false
	}}
}

// ContainsAll matches files containing every one of subs.
func ContainsAll(name string, subs ...string) Predicate {
	return Predicate{Name: name, Test: func(content string) bool {
		for _, s := range subs {
			if !strings.Contains(content, s) {
				return false
			}
		}
		return true
	}}
}

// Matches matches files whose content matches re.
func Matches(name string, re *regexp.Regexp) Predicate {
	return Predicate{Name: name, Test: re.MatchString}
}

// ImportsFrom matches files importing from a sibling chunk by filename. This
// is how a later role is pinned to an earlier role's resolved file.
func ImportsFrom(filename string) Predicate {
	marker := `from"./` + filename + `"`
	return Contains("imports "+filename, marker)
}

// Fingerprint is the conjunctive set of predicates identifying one role's
// file. All predicates must hold for a candidate to match.
type Fingerprint struct {
	Role       string
	Predicates []Predicate
}

func (f Fingerprint) Match(content string) bool {
	for _, p := range f.Predicates {
		if !p.Test(content) {
			return false
		}
	}
	return true
}

// The three chunk fingerprints. Each conjunction is chosen to survive
// regeneration: only non-minified method names, property names, and string
// literals are relied on, never minified identifiers.

func providerConfigFingerprint() Fingerprint {
	return Fingerprint{
		Role: RoleProviderConfig,
		Predicates: []Predicate{
			Contains("activeProviderId property", ".activeProviderId"),
			ContainsAny("compound-id split", `.split(":")`, `.split(':')`),
			ContainsAny("isDefault flags", "isDefault:!0", "isDefault:!1"),
			ContainsAll("tier keys", "fast:", "balanced:", "smart:"),
			Contains("active-provider storage key", `"workspaces-active-provider"`),
		},
	}
}

func modelStoreFingerprint(providerConfigFile string) Fingerprint {
	return Fingerprint{
		Role: RoleModelStore,
		Predicates: []Predicate{
			ContainsAll("store method names",
				"loadModels", "selectModel", "getGroupedModels",
				"reloadModelsForProvider", "fetchModelsForProvider",
				"availableModels", "modelsLoaded"),
			Contains("selected-model storage key", `"workspaces-selected-model"`),
			ImportsFrom(providerConfigFile),
		},
	}
}

func modelPickerFingerprint(modelStoreFile string) Fingerprint {
	return Fingerprint{
		Role: RoleModelPicker,
		Predicates: []Predicate{
			ImportsFrom(modelStoreFile),
			Contains("fallback storage key prefix", `"workspaces-model-fallback:"`),
			Contains("picker marker", `"ModelPicker"`),
		},
	}
}
