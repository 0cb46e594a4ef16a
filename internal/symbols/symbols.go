// Package symbols resolves the semantic identity of minified identifiers
// across a chain of chunk imports. Nothing here assumes any identifier is
// stable between builds; only the aliasing chain within one build is trusted.
package symbols

import "errors"

// Semantic names defined by the provider config chunk.
const (
	NameParseCompoundModelID      = "parseCompoundModelId"
	NameProviders                 = "ACP_PROVIDERS"
	NameActiveProviderStore       = "activeProviderStore"
	NameGetDefaultProviderID      = "getDefaultProviderId"
	NameGetProviderConfigByID     = "getProviderConfigById"
	NameGetDefaultModelForTier    = "getDefaultModelForProvider"
	NameIsModelValidForProvider   = "isModelValidForProvider"
	NameProviderModelTiers        = "PROVIDER_MODEL_TIERS"
)

// Semantic names resolved inside the model picker by context patterns.
const (
	NameProviderOverride    = "isAgentProviderOverride"
	NameComputed            = "computed"
	NameGet                 = "get"
	NameSet                 = "set"
	NameEffect              = "effect"
	NameEffectiveProviderID = "effectiveProviderId"
	NameAgentProviderModels = "agentProviderModels"
	NameIsLoadingModels     = "isLoadingAgentModels"
	NameAgentModelError     = "agentModelError"
	NameModelStoreInstance  = "modelStore"
)

// AppliedMarker is the cache-key literal the loadModels patch introduces. Its
// presence means the file has already been through at least one patch run, so
// resolvers relax their cross-validation accordingly.
const AppliedMarker = `"__all__"`

// ErrUnresolved marks a required semantic name that could not be resolved.
// Resolution failures for required names abort the run before any write.
var ErrUnresolved = errors.New("required symbol unresolved")

// ErrAmbiguousShape marks a shape test satisfied by more than one candidate.
// The classifier refuses to guess between them.
var ErrAmbiguousShape = errors.New("shape test matches multiple exports")

// Map holds the alias tables for one file context. It is rebuilt from file
// contents on every run; nothing is cached across runs.
type Map struct {
	// Exports: semantic name → exported alias (provider config only).
	Exports map[string]string
	// ProviderImports: provider-config export alias → local alias.
	ProviderImports map[string]string
	// StoreImports: model-store export alias → local alias (picker only).
	StoreImports map[string]string
	// RuntimeImports: framework-runtime export alias → local alias (picker only).
	RuntimeImports map[string]string
	// Resolved: semantic name → identifier usable directly in this file.
	Resolved map[string]string
}

func newMap() *Map {
	return &Map{
		Exports:         map[string]string{},
		ProviderImports: map[string]string{},
		StoreImports:    map[string]string{},
		RuntimeImports:  map[string]string{},
		Resolved:        map[string]string{},
	}
}

// Local returns the resolved local identifier for a semantic name, or the
// given fallback when the chain could not supply one.
func (m *Map) Local(name, fallback string) string {
	if m == nil {
		return fallback
	}
	if v, ok := m.Resolved[name]; ok && v != "" {
		return v
	}
	return fallback
}
