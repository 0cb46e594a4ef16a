package verify

import (
	"errors"
	"fmt"
	"testing"

	"autopatch/internal/discover"
	"autopatch/internal/patch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[string]string

func (m memStore) Read(rel string) (string, error) {
	c, ok := m[rel]
	if !ok {
		return "", fmt.Errorf("no such file: %s", rel)
	}
	return c, nil
}

func (m memStore) Write(rel, content string) error {
	m[rel] = content
	return nil
}

type stubSyntax struct{ bad map[string]bool }

func (s stubSyntax) Check(name, content string) error {
	if s.bad[name] {
		return errors.New("parse error")
	}
	return nil
}

func patchedStore() string {
	return `class S{async loadModels(){if(this.loadedForProviderId==="__all__")return;` +
		`const s=await Promise.allSettled(x);this.loadedForProviderId="__all__"}` +
		`getGroupedModels(){const e=new Map;return[]}}`
}

func patchedFactory() string {
	return `logger.debug('Derived provider from model ID');` +
		`logger.debug('Using active provider from store');` +
		`logger.info('Safety net: aligning provider to match compound model');`
}

func verifyPaths() map[string]string {
	return map[string]string{
		discover.RoleModelStore:   "chunks/store.js",
		discover.RoleAgentFactory: "agent-factory.js",
	}
}

func catalogue() []patch.Spec {
	return []patch.Spec{
		{Name: "merged cache", Role: discover.RoleModelStore,
			VerifyPresent: `loadedForProviderId==="__all__"`, VerifyAbsent: "loadedForProviderId===e||"},
		{Name: "derive provider", Role: discover.RoleAgentFactory,
			VerifyPresent: "Derived provider from model ID"},
	}
}

func TestVerifier_AllChecksPass(t *testing.T) {
	store := memStore{
		"chunks/store.js":  patchedStore(),
		"agent-factory.js": patchedFactory(),
	}
	rep := New(store, verifyPaths(), stubSyntax{}, nil).Run(catalogue())

	assert.True(t, rep.OK())
	assert.Empty(t, rep.Failures())
	// 2 patch checks, 2 syntax checks, 4 structural invariants.
	assert.Equal(t, 8, rep.Passed)
}

func TestVerifier_ReportsBothEvidenceProblems(t *testing.T) {
	spec := patch.Spec{Name: "x", Role: discover.RoleModelStore,
		VerifyPresent: "newform", VerifyAbsent: "oldform"}
	err := evidence(spec, "still has oldform only")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected pattern not found")
	assert.Contains(t, err.Error(), "old pattern still present")
}

func TestVerifier_DerivationOrderInvariant(t *testing.T) {
	store := memStore{
		"chunks/store.js": patchedStore(),
		"agent-factory.js": `logger.debug('Using active provider from store');` +
			`logger.debug('Derived provider from model ID');` +
			`logger.info('Safety net: aligning provider to match compound model');`,
	}
	rep := New(store, verifyPaths(), stubSyntax{}, nil).Run(catalogue())

	assert.False(t, rep.OK())
	var found bool
	for _, c := range rep.Failures() {
		if c.Name == "factory derives provider before store fallback" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestVerifier_SyntaxFailureCounts(t *testing.T) {
	store := memStore{
		"chunks/store.js":  patchedStore(),
		"agent-factory.js": patchedFactory(),
	}
	syntax := stubSyntax{bad: map[string]bool{"chunks/store.js": true}}
	rep := New(store, verifyPaths(), syntax, nil).Run(catalogue())

	assert.False(t, rep.OK())
	require.Len(t, rep.Failures(), 1)
	assert.Equal(t, "syntax "+discover.RoleModelStore, rep.Failures()[0].Name)
}

func TestVerifier_MissingFileFailsItsChecks(t *testing.T) {
	store := memStore{"agent-factory.js": patchedFactory()}
	rep := New(store, verifyPaths(), stubSyntax{}, nil).Run(catalogue())

	assert.False(t, rep.OK())
	assert.GreaterOrEqual(t, rep.Failed, 1)
}
