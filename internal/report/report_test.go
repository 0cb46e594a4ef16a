package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"autopatch/internal/discover"
	"autopatch/internal/patch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFiles() *discover.Files {
	return &discover.Files{
		AgentFactory:   "dist/features/agent/services/agent-factory.js",
		ProviderConfig: "dist/renderer/app/immutable/chunks/DZpZ0dnv.js",
		ModelStore:     "dist/renderer/app/immutable/chunks/BTPDcoPQ.js",
		ModelPicker:    "dist/renderer/app/immutable/chunks/CfKn743W.js",
	}
}

func TestPrinter_Discovery(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Discovery(sampleFiles())

	out := buf.String()
	assert.Contains(t, out, "agent-factory.js")
	assert.Contains(t, out, "BTPDcoPQ.js")
	assert.Contains(t, out, "model picker")
}

func TestPrinter_DiscoveryJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf).DiscoveryJSON(sampleFiles()))

	var got discover.Files
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "dist/renderer/app/immutable/chunks/BTPDcoPQ.js", got.ModelStore)
}

func TestPrinter_PatchOutcomes(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Patches([]patch.Result{
		{Patch: "loadModels fetches all providers", Role: "model_store", State: patch.OutcomeApplied},
		{Patch: "provider override pinned false", Role: "model_picker",
			State: patch.OutcomeFailed, Err: errors.New("patch target not found")},
	})

	out := buf.String()
	assert.Contains(t, out, "applied")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "patch target not found")
}

func TestPrinter_DiffsSortedByPath(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).Diffs(map[string]string{
		"b.js": "+b\n",
		"a.js": "+a\n",
	})

	out := buf.String()
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("a.js")), bytes.Index(buf.Bytes(), []byte("b.js")))
	assert.Contains(t, out, "dry run: a.js")
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteManifest(dir, "dist/renderer/app/immutable/chunks", sampleFiles()))

	blob, err := os.ReadFile(filepath.Join(dir, "patched-files.json"))
	require.NoError(t, err)

	var m Manifest
	require.NoError(t, json.Unmarshal(blob, &m))
	assert.Equal(t, "BTPDcoPQ.js", m.ModelStore)
	assert.Equal(t, "CfKn743W.js", m.ModelPicker)
	assert.Equal(t, "dist/renderer/app/immutable/chunks", m.ChunksDir)
}
