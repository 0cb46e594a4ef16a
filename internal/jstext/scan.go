package jstext

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Errors surfaced by the brace scanner and the exact-match helpers.
var (
	ErrAnchorNotFound  = errors.New("anchor not found")
	ErrAnchorAmbiguous = errors.New("anchor occurs more than once")
	ErrNoOpeningBrace  = errors.New("no opening brace after anchor")
	ErrUnbalanced      = errors.New("unbalanced braces")
)

const (
	modeCode = iota
	modeTemplate
)

type frame struct {
	mode  int
	depth int
}

// FunctionSpan locates the full span of the function declaration starting at
// the single occurrence of anchor. The returned half-open interval
// [start, end) covers the declaration from anchor (widened to include a
// preceding "async " modifier) through the matching closing brace of the body.
//
// The scan tracks brace depth and skips quoted strings (backslash escapes one
// character) and template literals. Template interpolations push a fresh
// brace-counting frame, so nesting of templates inside interpolations works to
// arbitrary depth.
func FunctionSpan(content, anchor string) (start, end int, err error) {
	idx := strings.Index(content, anchor)
	if idx < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrAnchorNotFound, anchor)
	}
	if strings.Contains(content[idx+len(anchor):], anchor) {
		return 0, 0, fmt.Errorf("%w: %q", ErrAnchorAmbiguous, anchor)
	}

	braceStart := strings.IndexByte(content[idx+len(anchor):], '{')
	if braceStart < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrNoOpeningBrace, anchor)
	}
	braceStart += idx + len(anchor)

	stack := []frame{{mode: modeCode}}
	i := braceStart
	for i < len(content) {
		top := &stack[len(stack)-1]
		c := content[i]
		switch top.mode {
		case modeCode:
			switch c {
			case '{':
				top.depth++
			case '}':
				top.depth--
				if top.depth == 0 {
					if len(stack) == 1 {
						start = idx
						if strings.HasSuffix(content[:idx], "async ") {
							start -= len("async ")
						}
						return start, i + 1, nil
					}
					// End of a template interpolation.
					stack = stack[:len(stack)-1]
				}
			case '"', '\'':
				i = skipString(content, i)
			case '`':
				stack = append(stack, frame{mode: modeTemplate})
			}
		case modeTemplate:
			switch c {
			case '\\':
				i++
			case '`':
				stack = stack[:len(stack)-1]
			case '$':
				if i+1 < len(content) && content[i+1] == '{' {
					i++
					stack = append(stack, frame{mode: modeCode, depth: 1})
				}
			}
		}
		i++
	}
	return 0, 0, fmt.Errorf("%w after %q", ErrUnbalanced, anchor)
}

// skipString advances from an opening quote at i to the index of the matching
// closing quote. A backslash escapes exactly the following character. If the
// string never closes, the end of content is returned and the outer scan
// reports ErrUnbalanced.
func skipString(content string, i int) int {
	quote := content[i]
	i++
	for i < len(content) && content[i] != quote {
		if content[i] == '\\' {
			i++
		}
		i++
	}
	return i
}

var aliasPairRe = regexp.MustCompile(`^(\w+)\s+as\s+(\w+)$`)

// ParseAliasList splits a flat "a as b, c" list into a left→right map. Bare
// entries map to themselves.
func ParseAliasList(list string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if m := aliasPairRe.FindStringSubmatch(entry); m != nil {
			out[m[1]] = m[2]
		} else {
			out[entry] = entry
		}
	}
	return out
}

var exportBlockRe = regexp.MustCompile(`export\{([^}]+)\}`)

// ParseExports parses the single export block of a bundled chunk and returns
// the exported-alias → local-identifier table. Entries without an "as" clause
// are skipped: minified chunks always alias their exports.
func ParseExports(content string) (map[string]string, bool) {
	m := exportBlockRe.FindStringSubmatch(content)
	if m == nil {
		return nil, false
	}
	out := make(map[string]string)
	for _, entry := range strings.Split(m[1], ",") {
		entry = strings.TrimSpace(entry)
		if pm := aliasPairRe.FindStringSubmatch(entry); pm != nil {
			out[pm[2]] = pm[1]
		}
	}
	return out, true
}

// ParseImports parses the import list naming fromFile and returns the
// exported-alias → local-import-alias table. Bare entries import under their
// own name.
func ParseImports(content, fromFile string) (map[string]string, bool) {
	re := regexp.MustCompile(`import\s*\{([^}]+)\}\s*from\s*"\./` + regexp.QuoteMeta(fromFile) + `"`)
	m := re.FindStringSubmatch(content)
	if m == nil {
		return nil, false
	}
	return ParseAliasList(m[1]), true
}

// FindSingle returns the location of the single match of re in content.
// Zero or multiple matches report how many were found.
func FindSingle(re *regexp.Regexp, content string) ([]int, error) {
	locs := re.FindAllStringIndex(content, -1)
	switch len(locs) {
	case 1:
		return locs[0], nil
	case 0:
		return nil, fmt.Errorf("pattern %q: no match", truncate(re.String()))
	default:
		return nil, fmt.Errorf("pattern %q: %d matches, expected 1", truncate(re.String()), len(locs))
	}
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
