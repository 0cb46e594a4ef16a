package patch

import "strings"

// Classify derives the patch's state from present/absent evidence in content.
//
//	APPLIED:     new-form evidence present, old-form evidence gone.
//	NOT_APPLIED: old-form evidence present, new-form evidence missing.
//	CONFLICT:    both present, or neither with no way to explain the gap.
//
// Deletion patches (regex strategy, empty replacement) and patches declaring
// only a negative check count as APPLIED when all evidence is gone: success
// leaves nothing behind to find. A surviving function anchor with no evidence
// either way still means NOT_APPLIED.
func Classify(s Spec, content string) State {
	hasNew := false
	switch {
	case s.VerifyPresent != "":
		hasNew = strings.Contains(content, s.VerifyPresent)
	case s.NewBody != "":
		hasNew = strings.Contains(content, s.NewBody)
	}

	hasOld := false
	switch {
	case s.VerifyAbsent != "" && strings.Contains(content, s.VerifyAbsent):
		hasOld = true
	case s.Search != "" && strings.Contains(content, s.Search):
		hasOld = true
	case s.SearchRe != nil && s.SearchRe.MatchString(content):
		hasOld = true
	}

	switch {
	case hasNew && !hasOld:
		return StateApplied
	case hasOld && !hasNew:
		return StateNotApplied
	case hasNew && hasOld:
		return StateConflict
	}

	// Neither form found.
	if s.Strategy == StrategyRegex && s.Replace == "" {
		return StateApplied
	}
	if s.VerifyPresent == "" && s.VerifyAbsent != "" {
		return StateApplied
	}
	if s.Anchor != "" && strings.Contains(content, s.Anchor) {
		return StateNotApplied
	}
	return StateConflict
}
