package symbols

import (
	"fmt"
	"regexp"
	"strings"

	"autopatch/internal/jstext"

	"go.uber.org/zap"
)

// ResolveProviderConfig parses the provider config's export block and
// classifies each exported alias into its semantic role. All required names
// must resolve or the run aborts.
func ResolveProviderConfig(content string, log *zap.Logger) (*Map, error) {
	if log == nil {
		log = zap.NewNop()
	}
	exports, ok := jstext.ParseExports(content)
	if !ok {
		return nil, fmt.Errorf("provider config: cannot parse export statement")
	}

	semantic, err := classifyProviderExports(content, exports, log)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range requiredProviderNames {
		if _, ok := semantic[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("provider config: %w: %s", ErrUnresolved, strings.Join(missing, ", "))
	}

	m := newMap()
	m.Exports = semantic
	for name, alias := range semantic {
		m.Resolved[name] = exports[alias]
	}
	return m, nil
}

// ResolveModelStore composes the model store's import table with the provider
// config's export table: resolved[name] = imports[exports[name]].
func ResolveModelStore(content, providerConfigFile string, pc *Map, log *zap.Logger) (*Map, error) {
	if log == nil {
		log = zap.NewNop()
	}
	imports, ok := jstext.ParseImports(content, providerConfigFile)
	if !ok {
		return nil, fmt.Errorf("model store: no import from %s", providerConfigFile)
	}

	m := newMap()
	m.Exports = pc.Exports
	m.ProviderImports = imports
	for name, alias := range pc.Exports {
		if local, ok := imports[alias]; ok {
			m.Resolved[name] = local
			log.Debug("symbol resolved", zap.String("name", name),
				zap.String("via", alias), zap.String("local", local))
		}
	}

	var missing []string
	for _, name := range []string{NameParseCompoundModelID, NameProviders, NameActiveProviderStore} {
		if _, ok := m.Resolved[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("model store: %w: %s", ErrUnresolved, strings.Join(missing, ", "))
	}

	// Cross-validation: the resolved aliases should actually be used in the
	// unpatched file. A patched file legitimately drops some usages.
	patched := strings.Contains(content, AppliedMarker)
	aps := m.Resolved[NameActiveProviderStore]
	if !strings.Contains(content, aps+".activeProviderId") && !patched {
		log.Warn("active-provider usage not found in model store", zap.String("alias", aps))
	}
	if !strings.Contains(content, m.Resolved[NameProviders]) && !patched {
		log.Warn("providers object not referenced in model store", zap.String("alias", m.Resolved[NameProviders]))
	}
	return m, nil
}

// ResolveModelPicker resolves the picker's aliases: provider config symbols by
// import composition, then framework/runtime primitives and local signals by
// context patterns around the provider-override expression. When the file is
// already patched the original pattern is gone, so a patched-state fallback
// search runs instead.
func ResolveModelPicker(content, providerConfigFile, modelStoreFile string, pc *Map, log *zap.Logger) (*Map, error) {
	if log == nil {
		log = zap.NewNop()
	}
	imports, ok := jstext.ParseImports(content, providerConfigFile)
	if !ok {
		return nil, fmt.Errorf("model picker: no import from %s", providerConfigFile)
	}

	m := newMap()
	m.ProviderImports = imports
	for name, alias := range pc.Exports {
		if local, ok := imports[alias]; ok {
			m.Resolved[name] = local
		}
	}

	if storeImports, ok := jstext.ParseImports(content, modelStoreFile); ok {
		m.StoreImports = storeImports
	}
	m.RuntimeImports = findRuntimeImports(content)

	aps := m.Resolved[NameActiveProviderStore]
	if aps == "" {
		log.Warn("active provider store not imported in model picker")
	}

	resolveOverrideContext(content, m, aps, log)
	resolveEffectContext(content, m, log)
	resolveStoreInstance(content, m)
	return m, nil
}

// findRuntimeImports picks out the import block bringing in the framework
// runtime, recognizable by its unusually long alias list.
func findRuntimeImports(content string) map[string]string {
	re := regexp.MustCompile(`import\s*\{([^}]+)\}\s*from\s*"\./(\w+\.js)"`)
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		if strings.Count(m[1], " as ") > 10 {
			return jstext.ParseAliasList(m[1])
		}
	}
	return map[string]string{}
}

// resolveOverrideContext identifies the override computed, the computed/get
// primitives, and the effective-provider signal from the expression
//
//	IAO = COMPUTED(() => GET(EPID) !== APS.activeProviderId)
//
// falling back to the patched form IAO = COMPUTED(() => !1) located by nearby
// context when the original expression has already been replaced.
func resolveOverrideContext(content string, m *Map, aps string, log *zap.Logger) {
	if aps == "" {
		return
	}
	re := regexp.MustCompile(
		`(\w+)\s*=\s*(\w+)\s*\(\s*\(\s*\)\s*=>\s*(\w+)\s*\(\s*(\w+)\s*\)\s*!==\s*` +
			q(aps) + `\.activeProviderId\s*\)`)
	if sm := re.FindStringSubmatch(content); sm != nil {
		m.Resolved[NameProviderOverride] = sm[1]
		m.Resolved[NameComputed] = sm[2]
		m.Resolved[NameGet] = sm[3]
		m.Resolved[NameEffectiveProviderID] = sm[4]
		return
	}

	log.Warn("override pattern not found in model picker, trying patched form")
	patchedRe := regexp.MustCompile(`(\w+)\s*=\s*(\w+)\s*\(\s*\(\s*\)\s*=>\s*!1\s*\)`)
	for _, loc := range patchedRe.FindAllStringSubmatchIndex(content, -1) {
		start := loc[0] - 300
		if start < 0 {
			start = 0
		}
		end := loc[1] + 500
		if end > len(content) {
			end = len(content)
		}
		context := content[start:end]
		if !strings.Contains(context, aps+".activeProviderId") {
			continue
		}
		m.Resolved[NameProviderOverride] = content[loc[2]:loc[3]]
		m.Resolved[NameComputed] = content[loc[4]:loc[5]]
		effRe := regexp.MustCompile(`(\w+)\s*\(\s*\(\s*\)\s*=>\s*\{\s*(\w+)\s*\(\s*(\w+)\s*\)`)
		if em := effRe.FindStringSubmatch(context); em != nil {
			m.Resolved[NameEffect] = em[1]
			m.Resolved[NameGet] = em[2]
			m.Resolved[NameEffectiveProviderID] = em[3]
		}
		return
	}
}

// resolveEffectContext identifies the effect primitive wrapping the
// provider-change reaction, then the signal setter and the signals it clears.
func resolveEffectContext(content string, m *Map, log *zap.Logger) {
	get := m.Resolved[NameGet]
	epid := m.Resolved[NameEffectiveProviderID]
	if get == "" || epid == "" {
		return
	}

	if _, ok := m.Resolved[NameEffect]; !ok {
		re := regexp.MustCompile(`(?s)(\w+)\s*\(\s*\(\s*\)\s*=>\s*\{[^}]*?` + q(get) + `\s*\(\s*` + q(epid) + `\s*\)`)
		if sm := re.FindStringSubmatch(content); sm != nil {
			m.Resolved[NameEffect] = sm[1]
		}
	}

	effect, ok := m.Resolved[NameEffect]
	if !ok {
		log.Warn("effect primitive not resolved in model picker")
		return
	}

	idx := strings.Index(content, effect+"(()=>{")
	if idx < 0 {
		return
	}
	end := idx + 500
	if end > len(content) {
		end = len(content)
	}
	body := content[idx:end]
	// Cleared values are null in the original form and !1 for the loading
	// flag once patched; both count as setter calls.
	setRe := regexp.MustCompile(`(\w+)\s*\(\s*(\w+)\s*,\s*(?:null|!1)\s*\)`)
	setCalls := setRe.FindAllStringSubmatch(body, -1)
	if len(setCalls) == 0 {
		return
	}
	m.Resolved[NameSet] = setCalls[0][1]
	m.Resolved[NameAgentProviderModels] = setCalls[0][2]
	if len(setCalls) > 1 {
		m.Resolved[NameIsLoadingModels] = setCalls[1][2]
	}
	if len(setCalls) > 2 {
		m.Resolved[NameAgentModelError] = setCalls[2][2]
	}
}

// resolveStoreInstance finds the identifier most often dereferenced for the
// model list; "this" is excluded since class internals also touch it.
func resolveStoreInstance(content string, m *Map) {
	re := regexp.MustCompile(`(\w+)\.availableModels`)
	counts := map[string]int{}
	for _, sm := range re.FindAllStringSubmatch(content, -1) {
		if sm[1] != "this" {
			counts[sm[1]]++
		}
	}
	best, bestN := "", 0
	for id, n := range counts {
		if n > bestN || (n == bestN && id < best) {
			best, bestN = id, n
		}
	}
	if best != "" {
		m.Resolved[NameModelStoreInstance] = best
	}
}
