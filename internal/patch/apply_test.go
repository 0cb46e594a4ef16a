package patch

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	files  map[string]string
	writes int
}

func (m *memStore) Read(rel string) (string, error) {
	c, ok := m.files[rel]
	if !ok {
		return "", fmt.Errorf("no such file: %s", rel)
	}
	return c, nil
}

func (m *memStore) Write(rel, content string) error {
	m.writes++
	m.files[rel] = content
	return nil
}

func storePaths() map[string]string {
	return map[string]string{"model_store": "chunks/store.js"}
}

func TestApplier_AppliesBatchWithSingleWrite(t *testing.T) {
	store := &memStore{files: map[string]string{
		"chunks/store.js": "start;alpha();gate===p&&run();end",
	}}
	a := NewApplier(store, storePaths(), false, nil)

	results, ok := a.Apply([]Spec{exactSpec(), deletionSpec()})
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeApplied, results[0].State)
	assert.Equal(t, OutcomeApplied, results[1].State)

	assert.Equal(t, 1, store.writes)
	assert.Equal(t, "start;beta();run();end", store.files["chunks/store.js"])
}

func TestApplier_SecondRunChangesNothing(t *testing.T) {
	store := &memStore{files: map[string]string{
		"chunks/store.js": "start;alpha();gate===p&&run();end",
	}}
	specs := []Spec{exactSpec(), deletionSpec()}

	_, ok := NewApplier(store, storePaths(), false, nil).Apply(specs)
	require.True(t, ok)
	patched := store.files["chunks/store.js"]

	results, ok := NewApplier(store, storePaths(), false, nil).Apply(specs)
	require.True(t, ok)
	for _, r := range results {
		assert.Equal(t, OutcomeAlreadyApplied, r.State, r.Patch)
	}
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, patched, store.files["chunks/store.js"])
}

func TestApplier_DryRunNeverWrites(t *testing.T) {
	original := "start;alpha();gate===p&&run();end"
	store := &memStore{files: map[string]string{"chunks/store.js": original}}
	a := NewApplier(store, storePaths(), true, nil)

	results, ok := a.Apply([]Spec{exactSpec(), deletionSpec()})
	require.True(t, ok)
	for _, r := range results {
		assert.Equal(t, OutcomeWouldApply, r.State, r.Patch)
	}

	assert.Zero(t, store.writes)
	assert.Equal(t, original, store.files["chunks/store.js"])

	diff := a.Diffs["chunks/store.js"]
	assert.Contains(t, diff, "-start;alpha();gate===p&&run();end")
	assert.Contains(t, diff, "+start;beta();run();end")
}

func TestApplier_ConflictAbortsFileUntouched(t *testing.T) {
	original := "x;alpha();beta();gate===p&&run();y"
	store := &memStore{files: map[string]string{"chunks/store.js": original}}
	a := NewApplier(store, storePaths(), false, nil)

	results, ok := a.Apply([]Spec{exactSpec(), deletionSpec()})
	assert.False(t, ok)
	require.Len(t, results, 2)

	assert.Equal(t, OutcomeConflict, results[0].State)
	assert.ErrorIs(t, results[0].Err, ErrConflict)
	assert.Equal(t, OutcomeFailed, results[1].State)

	assert.Zero(t, store.writes)
	assert.Equal(t, original, store.files["chunks/store.js"])
}

func TestApplier_ConflictDiscardsEarlierStagedEdits(t *testing.T) {
	// The deletion stages cleanly in memory, then the rename hits both its
	// markers. The rollback throws the staged edit away, so its result must
	// not report an applied patch.
	original := "start;gate===p&&run();alpha();beta();end"
	store := &memStore{files: map[string]string{"chunks/store.js": original}}
	a := NewApplier(store, storePaths(), false, nil)

	results, ok := a.Apply([]Spec{deletionSpec(), exactSpec()})
	assert.False(t, ok)
	require.Len(t, results, 2)

	assert.Equal(t, OutcomeFailed, results[0].State)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "discarded after conflict")
	assert.Equal(t, OutcomeConflict, results[1].State)

	assert.Zero(t, store.writes)
	assert.Equal(t, original, store.files["chunks/store.js"])
}

func TestApplier_LocateFailureDoesNotBlockSiblings(t *testing.T) {
	store := &memStore{files: map[string]string{
		"chunks/store.js": "alpha();gate===p&&run()",
	}}
	broken := Spec{
		Name:          "needs an argument",
		Role:          "model_store",
		Strategy:      StrategyRegex,
		SearchRe:      regexp.MustCompile(`alpha\(\w+\)`),
		Replace:       "alphaX",
		VerifyPresent: "alphaX",
		VerifyAbsent:  "alpha(",
	}
	a := NewApplier(store, storePaths(), false, nil)

	results, ok := a.Apply([]Spec{broken, deletionSpec()})
	assert.False(t, ok)
	require.Len(t, results, 2)

	assert.Equal(t, OutcomeFailed, results[0].State)
	assert.True(t, errors.Is(results[0].Err, ErrNotLocated))
	assert.Equal(t, OutcomeApplied, results[1].State)

	assert.Equal(t, 1, store.writes)
	assert.Equal(t, "alpha();run()", store.files["chunks/store.js"])
}

func TestApplier_MissingRolePath(t *testing.T) {
	store := &memStore{files: map[string]string{}}
	a := NewApplier(store, map[string]string{}, false, nil)

	results, ok := a.Apply([]Spec{exactSpec()})
	assert.False(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeFailed, results[0].State)
}

func TestApplyOne_ExactDemandsUniqueness(t *testing.T) {
	s := exactSpec()
	_, err := applyOne(s, "alpha();alpha()")
	assert.True(t, errors.Is(err, ErrAmbiguousTarget))
}
