// Package verify re-derives patch evidence from the files on disk after a run.
// It never trusts the applier's outcome report; every claim is checked against
// content.
package verify

import (
	"errors"
	"fmt"
	"strings"

	"autopatch/internal/discover"
	"autopatch/internal/patch"
	"autopatch/internal/symbols"

	"go.uber.org/zap"
)

// SyntaxChecker validates that content still parses as JavaScript.
type SyntaxChecker interface {
	Check(name, content string) error
}

// Check is one verification with its outcome. A nil Err means it passed.
type Check struct {
	Name string
	Role string
	Err  error
}

// Report accumulates every check from one verification pass.
type Report struct {
	Checks []Check
	Passed int
	Failed int
}

func (r *Report) add(name, role string, err error) {
	r.Checks = append(r.Checks, Check{Name: name, Role: role, Err: err})
	if err != nil {
		r.Failed++
	} else {
		r.Passed++
	}
}

func (r *Report) OK() bool { return r.Failed == 0 }

// Failures returns only the checks that did not pass.
func (r *Report) Failures() []Check {
	var out []Check
	for _, c := range r.Checks {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// Verifier checks a patched tree: per-patch evidence, syntax validity of every
// touched file, and cross-patch structural invariants.
type Verifier struct {
	store  patch.FileStore
	paths  map[string]string // role → relative path
	syntax SyntaxChecker
	log    *zap.Logger
}

func New(store patch.FileStore, paths map[string]string, syntax SyntaxChecker, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{store: store, paths: paths, syntax: syntax, log: log}
}

// Run verifies the whole catalogue and returns the cumulative report. It keeps
// going after failures so one pass surfaces every problem.
func (v *Verifier) Run(specs []patch.Spec) *Report {
	rep := &Report{}

	contents := map[string]string{}
	read := func(role string) (string, error) {
		if c, ok := contents[role]; ok {
			return c, nil
		}
		rel, ok := v.paths[role]
		if !ok {
			return "", fmt.Errorf("no resolved path for role %s", role)
		}
		c, err := v.store.Read(rel)
		if err != nil {
			return "", err
		}
		contents[role] = c
		return c, nil
	}

	var roles []string
	seen := map[string]bool{}
	for _, s := range specs {
		if !seen[s.Role] {
			seen[s.Role] = true
			roles = append(roles, s.Role)
		}

		content, err := read(s.Role)
		if err != nil {
			rep.add(s.Name, s.Role, err)
			continue
		}
		rep.add(s.Name, s.Role, evidence(s, content))
	}

	if v.syntax != nil {
		for _, role := range roles {
			content, err := read(role)
			if err != nil {
				continue // already reported above
			}
			if err := v.syntax.Check(v.paths[role], content); err != nil {
				rep.add("syntax "+role, role, err)
			} else {
				rep.add("syntax "+role, role, nil)
			}
		}
	}

	v.structural(rep, read)

	v.log.Info("verification finished",
		zap.Int("passed", rep.Passed), zap.Int("failed", rep.Failed))
	return rep
}

// evidence applies a patch's positive and negative checks to content.
func evidence(s patch.Spec, content string) error {
	var problems []string
	if s.VerifyPresent != "" && !strings.Contains(content, s.VerifyPresent) {
		problems = append(problems, "expected pattern not found")
	}
	if s.VerifyAbsent != "" && strings.Contains(content, s.VerifyAbsent) {
		problems = append(problems, "old pattern still present")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

// structural checks invariants that span patches: the merged-cache rewrite and
// the grouped view in the model store, and the provider derivation order plus
// the alignment safety net in the agent factory.
func (v *Verifier) structural(rep *Report, read func(string) (string, error)) {
	if ms, err := read(discover.RoleModelStore); err == nil {
		if strings.Contains(ms, "Promise.allSettled") && strings.Contains(ms, symbols.AppliedMarker) {
			rep.add("store fetches all providers", discover.RoleModelStore, nil)
		} else {
			rep.add("store fetches all providers", discover.RoleModelStore,
				errors.New("loadModels missing Promise.allSettled or merged-cache marker"))
		}

		if strings.Contains(ms, "new Map") && strings.Contains(ms, "getGroupedModels") {
			rep.add("store groups models per provider", discover.RoleModelStore, nil)
		} else {
			rep.add("store groups models per provider", discover.RoleModelStore,
				errors.New("getGroupedModels missing Map-based grouping"))
		}
	}

	if af, err := read(discover.RoleAgentFactory); err == nil {
		derive := strings.Index(af, "Derived provider from model ID")
		active := strings.Index(af, "Using active provider from store")
		if derive > 0 && active > 0 && derive < active {
			rep.add("factory derives provider before store fallback", discover.RoleAgentFactory, nil)
		} else {
			rep.add("factory derives provider before store fallback", discover.RoleAgentFactory,
				errors.New("provider derivation must run before the active-store fallback"))
		}

		if strings.Contains(af, "aligning provider") {
			rep.add("factory safety net aligns provider", discover.RoleAgentFactory, nil)
		} else {
			rep.add("factory safety net aligns provider", discover.RoleAgentFactory,
				errors.New("safety net no longer aligns provider to the compound model"))
		}
	}
}
