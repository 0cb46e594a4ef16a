// Package asar wraps the archive and install tooling around the patch engine:
// preflight checks, archive extraction and packing via npx asar, and the
// bundle install sequence.
package asar

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"autopatch/internal/config"
	"autopatch/internal/discover"
	"autopatch/internal/symbols"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Runner executes external commands. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with exec and returns combined output.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s",
			name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Tool drives archive and install operations for one configured bundle.
type Tool struct {
	cfg *config.Config
	run Runner
	log *zap.Logger
}

func NewTool(cfg *config.Config, run Runner, log *zap.Logger) *Tool {
	if run == nil {
		run = ExecRunner{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tool{cfg: cfg, run: run, log: log}
}

const minNodeMajor = 18

// Preflight verifies tools and paths before anything is touched. Install-only
// requirements are skipped when no install will happen. All problems are
// reported at once.
func (t *Tool) Preflight(ctx context.Context, skipInstall bool) error {
	var errs error

	if out, err := t.run.Run(ctx, "node", "--version"); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("node not usable: %w", err))
	} else if major, perr := nodeMajor(out); perr != nil {
		errs = multierr.Append(errs, perr)
	} else if major < minNodeMajor {
		errs = multierr.Append(errs, fmt.Errorf("node %s too old, need >=%d", strings.TrimSpace(out), minNodeMajor))
	}

	if _, err := t.run.Run(ctx, "npx", "--yes", "asar", "--version"); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("npx asar not available (npm i -g @electron/asar): %w", err))
	}

	if !skipInstall {
		if _, err := exec.LookPath("codesign"); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("codesign not found in PATH"))
		}
		if _, err := os.Stat("/usr/libexec/PlistBuddy"); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("PlistBuddy not found"))
		}
		if info, err := os.Stat(t.cfg.App.Bundle); err != nil || !info.IsDir() {
			errs = multierr.Append(errs, fmt.Errorf("app bundle not found at %s", t.cfg.App.Bundle))
		}
		if _, err := os.Stat(t.cfg.Asar()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("app.asar not found in bundle"))
		}
	}

	return errs
}

func nodeMajor(version string) (int, error) {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	parts := strings.SplitN(v, ".", 2)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("cannot parse node version %q", version)
	}
	return major, nil
}

// Extract unpacks the archive into dest. The pristine backup is preferred as a
// source when present, so repeated runs always start from unpatched content.
// asar wants an .unpacked directory next to its source; a temporary symlink to
// the bundle's sidecar covers extraction from the backup.
func (t *Tool) Extract(ctx context.Context, dest string) error {
	source := t.cfg.Paths.Backup
	if _, err := os.Stat(source); err != nil {
		source = t.cfg.Asar()
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("no archive source found: %s or %s", t.cfg.Paths.Backup, t.cfg.Asar())
	}

	link := source + ".unpacked"
	createdLink := false
	if _, err := os.Lstat(link); err != nil {
		if info, serr := os.Stat(t.cfg.Unpacked()); serr == nil && info.IsDir() {
			if lerr := os.Symlink(t.cfg.Unpacked(), link); lerr == nil {
				createdLink = true
			} else {
				t.log.Warn("cannot link unpacked sidecar", zap.Error(lerr))
			}
		}
	}
	defer func() {
		if createdLink {
			os.Remove(link)
		}
	}()

	t.log.Info("extracting archive", zap.String("source", source), zap.String("dest", dest))
	ctx, cancel := context.WithTimeout(ctx, t.cfg.PackTimeout())
	defer cancel()
	if _, err := t.run.Run(ctx, "npx", "--yes", "asar", "extract", source, dest); err != nil {
		return fmt.Errorf("asar extract failed: %w", err)
	}
	return nil
}

// Pack repacks the extracted tree into out.
func (t *Tool) Pack(ctx context.Context, extracted, out string) error {
	t.log.Info("packing archive", zap.String("out", out))
	ctx, cancel := context.WithTimeout(ctx, t.cfg.PackTimeout())
	defer cancel()
	if _, err := t.run.Run(ctx, "npx", "--yes", "asar", "pack", extracted, out); err != nil {
		return fmt.Errorf("asar pack failed: %w", err)
	}
	return nil
}

// EnsureBackup copies the bundle archive aside once. An existing backup is
// inspected for the patch marker; a patched backup is a warning, not an error,
// because the user may have replaced it deliberately.
func (t *Tool) EnsureBackup(ctx context.Context, modelStoreRel string) error {
	if _, err := os.Stat(t.cfg.Paths.Backup); err == nil {
		if patched, err := t.backupLooksPatched(ctx, modelStoreRel); err == nil && patched {
			t.log.Warn("existing backup appears to already be patched",
				zap.String("backup", t.cfg.Paths.Backup))
		}
		return nil
	}

	t.log.Info("backing up archive", zap.String("backup", t.cfg.Paths.Backup))
	return copyFile(t.cfg.Asar(), t.cfg.Paths.Backup)
}

func (t *Tool) backupLooksPatched(ctx context.Context, modelStoreRel string) (bool, error) {
	if modelStoreRel == "" {
		return false, nil
	}
	tmp, err := os.MkdirTemp("", "backup-check-")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(tmp)

	// extract-file drops the file into the working directory.
	backup, err := filepath.Abs(t.cfg.Paths.Backup)
	if err != nil {
		return false, err
	}
	cmd := exec.CommandContext(ctx, "npx", "--yes", "asar", "extract-file", backup, modelStoreRel)
	cmd.Dir = tmp
	if out, err := cmd.CombinedOutput(); err != nil {
		return false, fmt.Errorf("extract-file: %w: %s", err, strings.TrimSpace(string(out)))
	}

	blob, err := os.ReadFile(filepath.Join(tmp, filepath.Base(modelStoreRel)))
	if err != nil {
		return false, err
	}
	return strings.Contains(string(blob), symbols.AppliedMarker), nil
}

// Install pushes the packed archive into the app bundle: stop the app, clear
// quarantine flags, replace the archive and any unpacked chunk copies, drop
// the integrity record, and re-sign ad hoc. Sidecar chunk copies come from
// extracted, the tree this run actually patched.
func (t *Tool) Install(ctx context.Context, packed, extracted string, files *discover.Files) error {
	t.log.Info("stopping app", zap.String("process", t.cfg.App.ProcessName))
	_, _ = t.run.Run(ctx, "pkill", "-f", t.cfg.App.ProcessName)
	time.Sleep(2 * time.Second)

	_, _ = t.run.Run(ctx, "sudo", "xattr", "-cr", t.cfg.App.Bundle)

	if _, err := t.run.Run(ctx, "sudo", "cp", packed, t.cfg.Asar()); err != nil {
		return fmt.Errorf("install app.asar: %w", err)
	}

	// Chunk files shipped unpacked must be replaced too or the app loads the
	// stale sidecar copies.
	for _, rel := range []string{files.ModelStore, files.ModelPicker} {
		if rel == "" {
			continue
		}
		dst := filepath.Join(t.cfg.Unpacked(), filepath.FromSlash(rel))
		if _, err := os.Stat(dst); err != nil {
			continue
		}
		src := filepath.Join(extracted, filepath.FromSlash(rel))
		if _, err := t.run.Run(ctx, "sudo", "cp", src, dst); err != nil {
			t.log.Warn("failed to replace unpacked chunk", zap.String("file", rel), zap.Error(err))
		}
	}

	_, _ = t.run.Run(ctx, "sudo", "/usr/libexec/PlistBuddy",
		"-c", "Delete :ElectronAsarIntegrity", t.cfg.Plist())

	if _, err := t.run.Run(ctx, "sudo", "codesign", "--force", "--deep", "--sign", "-", t.cfg.App.Bundle); err != nil {
		return fmt.Errorf("codesign: %w", err)
	}

	t.log.Info("install complete")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
