package patch

import (
	"errors"
	"fmt"
	"strings"

	"autopatch/internal/jstext"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
)

// Locate failures fail the one patch, never the whole batch: the run keeps
// going so every problem surfaces in a single pass.
var (
	ErrNotLocated      = errors.New("patch target not found")
	ErrAmbiguousTarget = errors.New("patch target matches more than once")
	ErrConflict        = errors.New("patch state is in conflict")
)

// FileStore abstracts the target tree so the engine stays a pure text
// transform. Paths are relative to the extracted root.
type FileStore interface {
	Read(rel string) (string, error)
	Write(rel string, content string) error
}

// Outcome is the per-patch result of one application pass.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeAlreadyApplied
	OutcomeWouldApply
	OutcomeFailed
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already applied"
	case OutcomeWouldApply:
		return "would apply"
	case OutcomeFailed:
		return "failed"
	case OutcomeConflict:
		return "conflict"
	}
	return "unknown"
}

// Result pairs a patch with its outcome for reporting.
type Result struct {
	Patch string
	Role  string
	State Outcome
	Err   error
}

// Applier runs a catalogue against a file store. In dry-run mode every check
// and transform happens in memory but nothing is ever written.
type Applier struct {
	store  FileStore
	paths  map[string]string // role → relative path
	dryRun bool
	log    *zap.Logger

	// Diffs holds one unified diff per changed file in dry-run mode.
	Diffs map[string]string
}

func NewApplier(store FileStore, paths map[string]string, dryRun bool, log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{store: store, paths: paths, dryRun: dryRun, log: log, Diffs: map[string]string{}}
}

// Apply runs every patch in catalogue order, grouped by role so each file is
// read once and written at most once. Patch failures accumulate; ok reports
// whether the whole batch succeeded.
func (a *Applier) Apply(specs []Spec) (results []Result, ok bool) {
	ok = true

	byRole := map[string][]Spec{}
	var roleOrder []string
	for _, s := range specs {
		if _, seen := byRole[s.Role]; !seen {
			roleOrder = append(roleOrder, s.Role)
		}
		byRole[s.Role] = append(byRole[s.Role], s)
	}

	for _, role := range roleOrder {
		rel, found := a.paths[role]
		if !found {
			for _, s := range byRole[role] {
				results = append(results, Result{Patch: s.Name, Role: role, State: OutcomeFailed,
					Err: fmt.Errorf("no resolved path for role %s", role)})
			}
			ok = false
			continue
		}

		original, err := a.store.Read(rel)
		if err != nil {
			for _, s := range byRole[role] {
				results = append(results, Result{Patch: s.Name, Role: role, State: OutcomeFailed, Err: err})
			}
			ok = false
			continue
		}

		content := original
		conflicted := false
		roleStart := len(results)
		for i, s := range byRole[role] {
			res := Result{Patch: s.Name, Role: role}
			switch Classify(s, content) {
			case StateApplied:
				res.State = OutcomeAlreadyApplied
			case StateConflict:
				// A conflicted file cannot be trusted as a patch target.
				// Abort the whole file batch and keep it untouched.
				res.State = OutcomeConflict
				res.Err = fmt.Errorf("%s: %w", s.Name, ErrConflict)
				ok = false
				conflicted = true
			case StateNotApplied:
				next, err := applyOne(s, content)
				if err != nil {
					res.State = OutcomeFailed
					res.Err = err
					ok = false
					break
				}
				content = next
				if a.dryRun {
					res.State = OutcomeWouldApply
				} else {
					res.State = OutcomeApplied
				}
			}
			results = append(results, res)
			if conflicted {
				// Edits staged in memory before the conflict were discarded
				// with the rollback; their results must not claim a write.
				for j := roleStart; j < len(results); j++ {
					switch results[j].State {
					case OutcomeApplied, OutcomeWouldApply:
						results[j].State = OutcomeFailed
						results[j].Err = fmt.Errorf("%s: discarded after conflict in %s", results[j].Patch, rel)
					}
				}
				for _, rest := range byRole[role][i+1:] {
					results = append(results, Result{Patch: rest.Name, Role: role, State: OutcomeFailed,
						Err: fmt.Errorf("%s: skipped after conflict in %s", rest.Name, rel)})
				}
				content = original
				break
			}
		}

		if content == original {
			continue
		}
		if a.dryRun {
			a.Diffs[rel] = unifiedDiff(rel, original, content)
			continue
		}
		if err := a.store.Write(rel, content); err != nil {
			results = append(results, Result{Patch: "write " + rel, Role: role, State: OutcomeFailed, Err: err})
			ok = false
			continue
		}
		a.log.Info("file patched", zap.String("path", rel))
	}
	return results, ok
}

// applyOne performs a single patch against in-memory content. Every locate
// strategy demands exactly one candidate span.
func applyOne(s Spec, content string) (string, error) {
	switch s.Strategy {
	case StrategyExact:
		switch n := strings.Count(content, s.Search); n {
		case 1:
			return strings.Replace(content, s.Search, s.Replace, 1), nil
		case 0:
			return "", fmt.Errorf("%s: %w", s.Name, ErrNotLocated)
		default:
			return "", fmt.Errorf("%s: %w (%d matches)", s.Name, ErrAmbiguousTarget, n)
		}

	case StrategyRegex:
		loc, err := jstext.FindSingle(s.SearchRe, content)
		if err != nil {
			return "", fmt.Errorf("%s: %w: %v", s.Name, ErrNotLocated, err)
		}
		return content[:loc[0]] + s.Replace + content[loc[1]:], nil

	case StrategyFunction:
		start, end, err := jstext.FunctionSpan(content, s.Anchor)
		if err != nil {
			return "", fmt.Errorf("%s: %w", s.Name, err)
		}
		return content[:start] + s.NewBody + content[end:], nil
	}
	return "", fmt.Errorf("%s: unknown strategy %d", s.Name, s.Strategy)
}

func unifiedDiff(rel, before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: rel,
		ToFile:   rel + " (patched)",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return diff
}
