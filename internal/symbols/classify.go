package symbols

import (
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"
)

// A shapeTest decides whether the definition of one exported local identifier
// plays a given semantic role. Tests look only at structure (argument counts,
// property markers, call targets), never at names.
type shapeTest struct {
	name     string
	required bool
	// match reports whether local's definition in c.content has the shape.
	match func(c *classifier, local string) bool
}

type classifier struct {
	content string
	// exports: exported alias → local identifier.
	exports map[string]string
	// semantic: semantic name → exported alias, filled as tests succeed.
	semantic map[string]string
	claimed  map[string]bool
	log      *zap.Logger
}

// localFor returns the local identifier behind an already-resolved semantic
// name, or "" when that name is still unresolved.
func (c *classifier) localFor(name string) string {
	alias, ok := c.semantic[name]
	if !ok {
		return ""
	}
	return c.exports[alias]
}

func q(s string) string { return regexp.QuoteMeta(s) }

// providerShapeTests is the role → shape-test table for the provider config
// chunk, in classification order. Later tests may depend on earlier results
// (the config lookup needs the providers object's local, validity needs the
// parser's local), so the order is load-bearing.
var providerShapeTests = []shapeTest{
	{
		// A function splitting its argument on the compound-id delimiter.
		name:     NameParseCompoundModelID,
		required: true,
		match: func(c *classifier, local string) bool {
			re := regexp.MustCompile(`(?s)function\s+` + q(local) + `\s*\([^)]*\)\s*\{[^}]*\.split\(":`)
			return re.MatchString(c.content)
		},
	},
	{
		// An object literal carrying both a true and a false default flag.
		name:     NameProviders,
		required: true,
		match: func(c *classifier, local string) bool {
			re := regexp.MustCompile(`(?s)(?:const|let|var)\s+` + q(local) + `\s*=\s*\{[^;]*?isDefault:!0[^;]*?isDefault:!1`)
			return re.MatchString(c.content)
		},
	},
	{
		// An instance of a class that declares both the active-id property and
		// its setter.
		name:     NameActiveProviderStore,
		required: true,
		match: func(c *classifier, local string) bool {
			re := regexp.MustCompile(`(?:const|let|var)\s+` + q(local) + `\s*=\s*new\s+(\w+)`)
			m := re.FindStringSubmatch(c.content)
			if m == nil {
				return false
			}
			classRe := regexp.MustCompile(`(?s)class\s+` + q(m[1]) + `\b[^{]*\{.*?activeProviderId.*?setActiveProvider`)
			return classRe.MatchString(c.content)
		},
	},
	{
		// A nullary function returning another call's .id.
		name:     NameGetDefaultProviderID,
		required: true,
		match: func(c *classifier, local string) bool {
			re := regexp.MustCompile(`function\s+` + q(local) + `\s*\(\)\s*\{\s*return\s+\w+\(\)\.id\s*\}`)
			return re.MatchString(c.content)
		},
	},
	{
		// A unary function indexing into the providers object.
		name:     NameGetProviderConfigByID,
		required: true,
		match: func(c *classifier, local string) bool {
			acpLocal := c.localFor(NameProviders)
			if acpLocal == "" {
				return false
			}
			re := regexp.MustCompile(`(?s)function\s+` + q(local) + `\s*\(\w+\)\s*\{[^}]*` + q(acpLocal) + `\[`)
			return re.MatchString(c.content)
		},
	},
	{
		// A binary function whose body references the tier table.
		name: NameGetDefaultModelForTier,
		match: func(c *classifier, local string) bool {
			re := regexp.MustCompile(`function\s+` + q(local) + `\s*\(\w+\s*,\s*\w+\)\s*\{`)
			loc := re.FindStringIndex(c.content)
			if loc == nil {
				return false
			}
			end := loc[0] + 500
			if end > len(c.content) {
				end = len(c.content)
			}
			snippet := c.content[loc[0]:end]
			return regexp.MustCompile(`auggie|balanced`).MatchString(snippet)
		},
	},
	{
		// A binary function delegating to the compound-id parser.
		name: NameIsModelValidForProvider,
		match: func(c *classifier, local string) bool {
			parseLocal := c.localFor(NameParseCompoundModelID)
			if parseLocal == "" {
				return false
			}
			re := regexp.MustCompile(`(?s)function\s+` + q(local) + `\s*\(\w+\s*,\s*\w+\)\s*\{[^}]*` + q(parseLocal) + `\(`)
			return re.MatchString(c.content)
		},
	},
	{
		// The tier table itself: per-provider fast/balanced/smart strings.
		name: NameProviderModelTiers,
		match: func(c *classifier, local string) bool {
			re := regexp.MustCompile(`(?s)(?:const|let|var)\s+` + q(local) + `\s*=\s*\{[^;]*?fast:\s*"[^"]*"[^;]*?balanced:\s*"[^"]*"[^;]*?smart:\s*"[^"]*"`)
			return re.MatchString(c.content)
		},
	},
}

// classifyProviderExports assigns semantic names to the provider config's
// exported aliases. A required role matched by more than one export is an
// error, never a silent pick.
func classifyProviderExports(content string, exports map[string]string, log *zap.Logger) (map[string]string, error) {
	c := &classifier{
		content:  content,
		exports:  exports,
		semantic: map[string]string{},
		claimed:  map[string]bool{},
		log:      log,
	}

	aliases := make([]string, 0, len(exports))
	for alias := range exports {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, test := range providerShapeTests {
		var matched []string
		for _, alias := range aliases {
			if c.claimed[alias] {
				continue
			}
			if test.match(c, exports[alias]) {
				matched = append(matched, alias)
			}
		}
		switch {
		case len(matched) == 0:
			// Required-name misses are reported in aggregate by the caller.
		case len(matched) == 1:
			c.semantic[test.name] = matched[0]
			c.claimed[matched[0]] = true
			log.Debug("symbol classified",
				zap.String("name", test.name),
				zap.String("alias", matched[0]),
				zap.String("local", exports[matched[0]]))
		default:
			if test.required {
				return nil, fmt.Errorf("%s: %w: %v", test.name, ErrAmbiguousShape, matched)
			}
			log.Warn("shape test tie, taking first candidate",
				zap.String("name", test.name), zap.Strings("aliases", matched))
			c.semantic[test.name] = matched[0]
			c.claimed[matched[0]] = true
		}
	}
	return c.semantic, nil
}

// requiredProviderNames are the semantic names every run must resolve in the
// provider config before anything else proceeds.
var requiredProviderNames = []string{
	NameParseCompoundModelID,
	NameProviders,
	NameActiveProviderStore,
	NameGetDefaultProviderID,
	NameGetProviderConfigByID,
}
