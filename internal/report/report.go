// Package report renders run output for humans and machines: the discovery
// summary, per-patch outcome tables, dry-run diffs, and the patched-files.json
// manifest the install script consumes.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"autopatch/internal/discover"
	"autopatch/internal/patch"
	"autopatch/internal/verify"
)

// Printer writes human-readable run output to a single destination.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w}
}

// Discovery prints the resolved role table.
func (p *Printer) Discovery(files *discover.Files) {
	fmt.Fprintln(p.w, "Discovered files:")
	fmt.Fprintf(p.w, "  %-16s %s\n", "agent factory", files.AgentFactory)
	fmt.Fprintf(p.w, "  %-16s %s\n", "provider config", files.ProviderConfig)
	fmt.Fprintf(p.w, "  %-16s %s\n", "model store", files.ModelStore)
	fmt.Fprintf(p.w, "  %-16s %s\n", "model picker", files.ModelPicker)
}

// DiscoveryJSON prints the resolved roles as JSON for scripting.
func (p *Printer) DiscoveryJSON(files *discover.Files) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(files)
}

// Patches prints one line per patch outcome.
func (p *Printer) Patches(results []patch.Result) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(p.w, "  %-16s %s: %v\n", r.State, r.Patch, r.Err)
		} else {
			fmt.Fprintf(p.w, "  %-16s %s\n", r.State, r.Patch)
		}
	}
}

// Diffs prints dry-run diffs in a stable file order.
func (p *Printer) Diffs(diffs map[string]string) {
	var paths []string
	for path := range diffs {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fmt.Fprintf(p.w, "\n--- dry run: %s ---\n", path)
		fmt.Fprint(p.w, diffs[path])
	}
}

// Verification prints every check with its verdict and a summary line.
func (p *Printer) Verification(rep *verify.Report) {
	for _, c := range rep.Checks {
		if c.Err != nil {
			fmt.Fprintf(p.w, "  FAIL  %s: %v\n", c.Name, c.Err)
		} else {
			fmt.Fprintf(p.w, "  OK    %s\n", c.Name)
		}
	}
	fmt.Fprintf(p.w, "\nResults: %d passed, %d failed\n", rep.Passed, rep.Failed)
}

// Manifest is the patched-files.json payload. The install script copies the
// named chunk files out of the extracted tree, so filenames are base names.
type Manifest struct {
	ModelStore  string `json:"model_store"`
	ModelPicker string `json:"model_picker"`
	ChunksDir   string `json:"chunks_dir"`
}

// WriteManifest writes patched-files.json at the extracted tree root.
func WriteManifest(extractedDir, chunksRel string, files *discover.Files) error {
	m := Manifest{
		ModelStore:  filepath.Base(files.ModelStore),
		ModelPicker: filepath.Base(files.ModelPicker),
		ChunksDir:   chunksRel,
	}
	blob, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(extractedDir, "patched-files.json")
	return os.WriteFile(path, append(blob, '\n'), 0o644)
}
