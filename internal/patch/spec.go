// Package patch defines the catalogue of source edits, classifies their
// current state against file contents, and applies them idempotently.
package patch

import "regexp"

// Strategy selects how a patch locates its target span.
type Strategy int

const (
	// StrategyExact replaces the single occurrence of a literal search text.
	StrategyExact Strategy = iota
	// StrategyRegex replaces the single match of a pattern; an empty
	// replacement makes the patch a pure deletion.
	StrategyRegex
	// StrategyFunction replaces a whole function declaration located by a
	// textual anchor and brace-depth scanning.
	StrategyFunction
)

func (s Strategy) String() string {
	switch s {
	case StrategyExact:
		return "exact"
	case StrategyRegex:
		return "regex"
	case StrategyFunction:
		return "function"
	}
	return "unknown"
}

// Spec is one immutable patch descriptor. Specs are data: the same Spec can be
// re-evaluated any number of times against any state of the target file.
type Spec struct {
	Name string
	Role string

	Strategy Strategy

	// StrategyExact: Search/Replace. StrategyRegex: SearchRe/Replace.
	Search   string
	SearchRe *regexp.Regexp
	Replace  string

	// StrategyFunction: Anchor locates the declaration, NewBody replaces it
	// wholly (including any async modifier).
	Anchor  string
	NewBody string

	// VerifyPresent proves the new form exists; VerifyAbsent proves the old
	// form is gone. Both feed state classification and post-apply
	// verification.
	VerifyPresent string
	VerifyAbsent  string
}

// State is the computed condition of one patch against current content. It is
// never stored; every classification re-derives it from evidence.
type State int

const (
	StateNotApplied State = iota
	StateApplied
	StateConflict
)

func (s State) String() string {
	switch s {
	case StateNotApplied:
		return "not_applied"
	case StateApplied:
		return "applied"
	case StateConflict:
		return "conflict"
	}
	return "unknown"
}
