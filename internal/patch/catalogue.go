package patch

import (
	"regexp"
	"strings"

	"autopatch/internal/discover"
	"autopatch/internal/symbols"

	"go.uber.org/zap"
)

func q(s string) string { return regexp.QuoteMeta(s) }

// Build assembles the full ordered catalogue from the resolved symbol maps.
// Synthesized code uses only aliases resolved for the target file; hardcoded
// identifiers survive solely as the weakest fallback tier.
func Build(ms, mp *symbols.Map, msContent string, log *zap.Logger) []Spec {
	if log == nil {
		log = zap.NewNop()
	}

	var specs []Spec
	specs = append(specs, modelStorePatches(ms, msContent, log)...)
	specs = append(specs, agentFactoryPatches()...)
	specs = append(specs, modelPickerPatches(mp)...)
	return specs
}

func modelStorePatches(ms *symbols.Map, content string, log *zap.Logger) []Spec {
	parseFn := resolveParseFn(ms, content, log)
	acp := ms.Local(symbols.NameProviders, "Et")
	aps := ms.Local(symbols.NameActiveProviderStore, "H")
	getDefaultPid := ms.Local(symbols.NameGetDefaultProviderID, "Ue")

	cacheVar := "e"
	if m := regexp.MustCompile(`loadedForProviderId===(\w+)`).FindStringSubmatch(content); m != nil {
		cacheVar = m[1]
	}

	return []Spec{
		{
			Name:          "loadModels fetches all providers",
			Role:          discover.RoleModelStore,
			Strategy:      StrategyFunction,
			Anchor:        "async loadModels()",
			NewBody:       loadModelsBody(acp, getDefaultPid, aps, parseFn, content, log),
			VerifyPresent: `loadedForProviderId===` + symbols.AppliedMarker,
			VerifyAbsent:  `loadedForProviderId===` + cacheVar + `||this.isLoadingModels`,
		},
		{
			Name:          "reloadModelsForProvider simplified",
			Role:          discover.RoleModelStore,
			Strategy:      StrategyFunction,
			Anchor:        "async reloadModelsForProvider(",
			NewBody:       reloadBody(),
			VerifyPresent: "Reloading models for all providers",
			VerifyAbsent:  "Reloading models for provider change",
		},
		{
			Name:          "selectModel uses parsed providerId",
			Role:          discover.RoleModelStore,
			Strategy:      StrategyRegex,
			SearchRe:      regexp.MustCompile(q(aps) + `\.activeProviderId;this\.providerModels\.set\(\w+,\w+\)`),
			Replace:       parseFn + `(e).providerId;this.providerModels.set(t,e)`,
			VerifyPresent: parseFn + `(e).providerId;this.providerModels.set(t,e)`,
			VerifyAbsent:  aps + `.activeProviderId;this.providerModels.set(t,e)`,
		},
		{
			Name:          "getGroupedModels groups by provider",
			Role:          discover.RoleModelStore,
			Strategy:      StrategyFunction,
			Anchor:        "getGroupedModels()",
			NewBody:       groupedModelsBody(parseFn, acp),
			VerifyPresent: "getGroupedModels(){if(this.availableModels.length===0)return[];const e=new Map",
			VerifyAbsent:  "getGroupedModels(){const e=" + aps + ".activeProviderId",
		},
		{
			Name:         "scheduleAutoRetry drops provider check",
			Role:         discover.RoleModelStore,
			Strategy:     StrategyRegex,
			SearchRe:     regexp.MustCompile(q(aps) + `\.activeProviderId===\w+&&`),
			Replace:      "",
			VerifyAbsent: aps + `.activeProviderId===`,
		},
	}
}

func agentFactoryPatches() []Spec {
	return []Spec{
		{
			Name:          "providers import in agent factory",
			Role:          discover.RoleAgentFactory,
			Strategy:      StrategyExact,
			Search:        "import { getDefaultModelForProvider,",
			Replace:       "import { ACP_PROVIDERS, getDefaultModelForProvider,",
			VerifyPresent: "import { ACP_PROVIDERS, getDefaultModelForProvider",
		},
		{
			Name:          "derive provider from model ID",
			Role:          discover.RoleAgentFactory,
			Strategy:      StrategyExact,
			Search:        deriveProviderSearch,
			Replace:       deriveProviderReplace,
			VerifyPresent: "if (!provider && config.model) {\n                const { providerId } = parseCompoundModelId(config.model);",
			VerifyAbsent:  "if (!provider && config.model && config.model.includes(':'))",
		},
		{
			Name:          "safety net aligns provider to compound model",
			Role:          discover.RoleAgentFactory,
			Strategy:      StrategyExact,
			Search:        safetyNetSearch,
			Replace:       safetyNetReplace,
			VerifyPresent: "Safety net: aligning provider to match compound model",
			VerifyAbsent:  "Safety net: cross-provider model mismatch in agent creation",
		},
	}
}

func modelPickerPatches(mp *symbols.Map) []Spec {
	iao := mp.Local(symbols.NameProviderOverride, "Ie")
	computed := mp.Local(symbols.NameComputed, "H")
	getFn := mp.Local(symbols.NameGet, "t")
	epid := mp.Local(symbols.NameEffectiveProviderID, "be")
	aps := mp.Local(symbols.NameActiveProviderStore, "mt")
	effect := mp.Local(symbols.NameEffect, "nt")
	setFn := mp.Local(symbols.NameSet, "h")
	apm := mp.Local(symbols.NameAgentProviderModels, "xe")
	ilam := mp.Local(symbols.NameIsLoadingModels, "re")
	ame := mp.Local(symbols.NameAgentModelError, "se")

	clearedEffect := effect + "(()=>{" + getFn + "(" + epid + ");" +
		setFn + "(" + apm + ",null)," + setFn + "(" + ilam + ",!1)," + setFn + "(" + ame + ",null)})"

	return []Spec{
		{
			Name:     "provider override pinned false",
			Role:     discover.RoleModelPicker,
			Strategy: StrategyRegex,
			SearchRe: regexp.MustCompile(
				q(iao) + `\s*=\s*` + q(computed) + `\s*\(\s*\(\s*\)\s*=>\s*` +
					q(getFn) + `\s*\(\s*` + q(epid) + `\s*\)\s*!==\s*` +
					q(aps) + `\.activeProviderId\s*\)`),
			Replace:       iao + "=" + computed + "(()=>!1)",
			VerifyPresent: iao + "=" + computed + "(()=>!1)",
			VerifyAbsent:  iao + "=" + computed + "(()=>" + getFn + "(" + epid + ")!==" + aps + ".activeProviderId)",
		},
		{
			Name:     "effect clears provider-scoped models",
			Role:     discover.RoleModelPicker,
			Strategy: StrategyRegex,
			SearchRe: regexp.MustCompile(
				`(?s)` + q(effect) + `\s*\(\s*\(\s*\)\s*=>\s*\{[^}]*?getModelsForProvider[^}]*?\}\s*\)`),
			Replace:       clearedEffect,
			VerifyPresent: clearedEffect,
			VerifyAbsent:  "getModelsForProvider(r).then",
		},
	}
}

// resolveParseFn finds the compound-id parser alias for synthesized bodies:
// the import chain first, then usage-context searches, then the calibrated
// default.
func resolveParseFn(ms *symbols.Map, content string, log *zap.Logger) string {
	if local, ok := ms.Resolved[symbols.NameParseCompoundModelID]; ok && local != "" {
		return local
	}
	chain := symbols.Chain{
		Target: "compound-id parser",
		Tiers: []symbols.Strategy{
			symbols.Capture("selectedModel usage", 0.8,
				regexp.MustCompile(`(\w+)\(this\.selectedModel\)\.providerId`)),
			symbols.Capture("destructured call", 0.5,
				regexp.MustCompile(`\{[^}]*providerId:\w+,modelId:\w+\}\s*=\s*(\w+)\(`)),
			symbols.Fixed("Ce"),
		},
	}
	return chain.Resolve(content, log).Alias
}

const deriveProviderSearch = `let provider = config.provider;
            if (!provider && !isBackend) {`

const deriveProviderReplace = `let provider = config.provider;
            if (!provider && config.model) {
                const { providerId } = parseCompoundModelId(config.model);
                if (ACP_PROVIDERS[providerId]) {
                    provider = providerId;
                    logger.debug('Derived provider from model ID', { model: config.model, provider });
                }
            }
            if (!provider && !isBackend) {`

var safetyNetSearch = strings.Join([]string{
	"if (resolvedModel && provider && resolvedModel.includes(':')) {",
	"                if (!isModelValidForProvider(resolvedModel, provider)) {",
	"                    const { providerId: modelProvider } = parseCompoundModelId(resolvedModel);",
	"                    logger.warn('Safety net: cross-provider model mismatch in agent creation', {",
	"                        resolvedModel,",
	"                        modelProvider,",
	"                        expectedProvider: provider,",
	"                    });",
	"                    if (provider in PROVIDER_MODEL_TIERS) {",
	"                        const baseModel = getDefaultModelForProvider(provider, 'balanced');",
	"                        const defaultProviderId = getDefaultProviderId();",
	"                        resolvedModel =",
	"                            provider !== defaultProviderId ? `${provider}:${baseModel}` : baseModel;",
	"                        logger.debug('Re-resolved model to provider default', { resolvedModel });",
	"                    }",
	"                    // If provider has no tier mappings (e.g., opencode), keep resolvedModel as-is.",
	"                    // We cannot safely guess a model for dynamic-model providers.",
	"                }",
	"            }",
}, "\n")

var safetyNetReplace = strings.Join([]string{
	"if (resolvedModel && provider && resolvedModel.includes(':')) {",
	"                if (!isModelValidForProvider(resolvedModel, provider)) {",
	"                    const { providerId: modelProvider } = parseCompoundModelId(resolvedModel);",
	"                    if (ACP_PROVIDERS[modelProvider]) {",
	"                        logger.info('Safety net: aligning provider to match compound model', {",
	"                            resolvedModel, modelProvider, previousProvider: provider,",
	"                        });",
	"                        provider = modelProvider;",
	"                        // Re-validate after alignment; fallback to provider default if still invalid",
	"                        if (!isModelValidForProvider(resolvedModel, provider) && provider in PROVIDER_MODEL_TIERS) {",
	"                            const baseModel = getDefaultModelForProvider(provider, 'balanced');",
	"                            const defaultProviderId = getDefaultProviderId();",
	"                            resolvedModel =",
	"                                provider !== defaultProviderId ? `${provider}:${baseModel}` : baseModel;",
	"                            logger.debug('Re-resolved model after provider alignment', { resolvedModel });",
	"                        }",
	"                    } else {",
	"                        logger.warn('Safety net: unknown provider in model, falling back', {",
	"                            resolvedModel, modelProvider, expectedProvider: provider,",
	"                        });",
	"                        if (provider in PROVIDER_MODEL_TIERS) {",
	"                            const baseModel = getDefaultModelForProvider(provider, 'balanced');",
	"                            const defaultProviderId = getDefaultProviderId();",
	"                            resolvedModel =",
	"                                provider !== defaultProviderId ? `${provider}:${baseModel}` : baseModel;",
	"                        }",
	"                    }",
	"                }",
	"            }",
}, "\n")
