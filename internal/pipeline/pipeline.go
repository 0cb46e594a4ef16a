// Package pipeline runs the full patch sequence: discover the target files,
// resolve symbols, build and apply the catalogue, verify the result, and hand
// off to the archive tooling for repack and install.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"autopatch/internal/asar"
	"autopatch/internal/config"
	"autopatch/internal/discover"
	"autopatch/internal/patch"
	"autopatch/internal/report"
	"autopatch/internal/storage"
	"autopatch/internal/symbols"
	"autopatch/internal/syntax"
	"autopatch/internal/verify"

	"go.uber.org/zap"
)

// Options select which phases run.
type Options struct {
	DryRun       bool
	DiscoverOnly bool
	SkipInstall  bool
	// ExtractedDir overrides the configured working tree and skips extraction.
	ExtractedDir string
}

type Pipeline struct {
	cfg     *config.Config
	tool    *asar.Tool
	ledger  *storage.SQLiteStore
	printer *report.Printer
	log     *zap.Logger
}

func New(cfg *config.Config, tool *asar.Tool, ledger *storage.SQLiteStore, printer *report.Printer, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if printer == nil {
		printer = report.NewPrinter(nil)
	}
	return &Pipeline{cfg: cfg, tool: tool, ledger: ledger, printer: printer, log: log}
}

// Resolved bundles the discovery and symbol resolution results shared by the
// patch, verify, and watch commands.
type Resolved struct {
	Extracted string
	Files     *discover.Files
	Store     patch.FileStore
	Paths     map[string]string
	Specs     []patch.Spec
}

// Run executes the configured phases and returns an error on the first fatal
// one. Patch failures inside a batch are collected, reported, recorded, and
// then returned as one error.
func (p *Pipeline) Run(ctx context.Context, opts Options) error {
	skipInstall := opts.SkipInstall || opts.DryRun || opts.DiscoverOnly

	if p.tool != nil {
		if err := p.tool.Preflight(ctx, skipInstall); err != nil {
			return fmt.Errorf("preflight: %w", err)
		}
	}

	extracted, err := p.ensureExtracted(ctx, opts.ExtractedDir)
	if err != nil {
		return err
	}

	res, err := p.Resolve(extracted)
	if err != nil {
		return err
	}
	p.printer.Discovery(res.Files)

	if opts.DiscoverOnly {
		return nil
	}

	if _, ok := p.applyStage(ctx, res, opts.DryRun); !ok {
		return fmt.Errorf("patch application failed")
	}

	if opts.DryRun {
		return nil
	}

	rep := verify.New(res.Store, res.Paths, p.syntaxChecker(), p.log).Run(res.Specs)
	p.printer.Verification(rep)
	if !rep.OK() {
		return fmt.Errorf("verification failed: %d checks", rep.Failed)
	}

	if err := report.WriteManifest(extracted, p.cfg.Paths.ChunksDir, res.Files); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if p.tool == nil {
		return nil
	}

	packed := filepath.Join(filepath.Dir(extracted), "app.asar")
	if err := p.tool.Pack(ctx, extracted, packed); err != nil {
		return err
	}
	if skipInstall {
		p.log.Info("install skipped")
		return nil
	}
	if err := p.tool.EnsureBackup(ctx, res.Files.ModelStore); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return p.tool.Install(ctx, packed, extracted, res.Files)
}

// Resolve discovers target files and resolves every symbol map, then builds
// the catalogue against them.
func (p *Pipeline) Resolve(extracted string) (*Resolved, error) {
	files, err := discover.NewLocator(extracted, p.cfg.Paths.ChunksDir, p.cfg.Paths.AgentFactory, p.log).Discover()
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	store := patch.NewDirStore(extracted)

	pcContent, err := store.Read(files.ProviderConfig)
	if err != nil {
		return nil, err
	}
	pc, err := symbols.ResolveProviderConfig(pcContent, p.log)
	if err != nil {
		return nil, fmt.Errorf("provider config symbols: %w", err)
	}

	msContent, err := store.Read(files.ModelStore)
	if err != nil {
		return nil, err
	}
	ms, err := symbols.ResolveModelStore(msContent, files.ProviderConfigFile, pc, p.log)
	if err != nil {
		return nil, fmt.Errorf("model store symbols: %w", err)
	}

	mpContent, err := store.Read(files.ModelPicker)
	if err != nil {
		return nil, err
	}
	mp, err := symbols.ResolveModelPicker(mpContent, files.ProviderConfigFile, files.ModelStoreFile, pc, p.log)
	if err != nil {
		return nil, fmt.Errorf("model picker symbols: %w", err)
	}

	paths := map[string]string{
		discover.RoleAgentFactory: files.AgentFactory,
		discover.RoleModelStore:   files.ModelStore,
		discover.RoleModelPicker:  files.ModelPicker,
	}

	return &Resolved{
		Extracted: extracted,
		Files:     files,
		Store:     store,
		Paths:     paths,
		Specs:     patch.Build(ms, mp, msContent, p.log),
	}, nil
}

// Verify re-runs discovery and the full verification pass without touching
// the tree.
func (p *Pipeline) Verify(extracted string) (*verify.Report, error) {
	res, err := p.Resolve(extracted)
	if err != nil {
		return nil, err
	}
	return verify.New(res.Store, res.Paths, p.syntaxChecker(), p.log).Run(res.Specs), nil
}

// syntaxChecker layers node --check over the in-process parse when a node
// binary is on PATH.
func (p *Pipeline) syntaxChecker() verify.SyntaxChecker {
	checkers := syntax.Multi{syntax.NewChecker()}
	if node := syntax.NewNodeChecker(p.cfg.CommandTimeout()); node.Available() {
		checkers = append(checkers, node)
	}
	return checkers
}

func (p *Pipeline) ensureExtracted(ctx context.Context, override string) (string, error) {
	if override != "" {
		if info, err := os.Stat(override); err != nil || !info.IsDir() {
			return "", fmt.Errorf("extracted directory not found: %s", override)
		}
		return override, nil
	}

	extracted := p.cfg.Paths.Extracted
	if info, err := os.Stat(extracted); err == nil && info.IsDir() {
		return extracted, nil
	}
	if p.tool == nil {
		return "", fmt.Errorf("extracted directory not found: %s", extracted)
	}
	if err := p.tool.Extract(ctx, extracted); err != nil {
		return "", err
	}
	return extracted, nil
}

// applyStage applies the catalogue, prints and records the outcome.
func (p *Pipeline) applyStage(ctx context.Context, res *Resolved, dryRun bool) ([]patch.Result, bool) {
	applier := patch.NewApplier(res.Store, res.Paths, dryRun, p.log)
	results, ok := applier.Apply(res.Specs)

	p.printer.Patches(results)
	if dryRun {
		p.printer.Diffs(applier.Diffs)
	}

	if p.ledger != nil {
		if err := p.recordRun(ctx, res, dryRun, results, ok); err != nil {
			p.log.Warn("ledger write failed", zap.Error(err))
		}
	}
	return results, ok
}

func (p *Pipeline) recordRun(ctx context.Context, res *Resolved, dryRun bool, results []patch.Result, ok bool) error {
	runID, err := p.ledger.BeginRun(ctx, res.Extracted, dryRun, res.Paths)
	if err != nil {
		return err
	}

	rows := make([]storage.PatchResult, 0, len(results))
	for _, r := range results {
		row := storage.PatchResult{Patch: r.Patch, Role: r.Role, Outcome: r.State.String()}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}
	if err := p.ledger.RecordResults(ctx, runID, rows); err != nil {
		return err
	}
	return p.ledger.FinishRun(ctx, runID, ok)
}
