package jstext

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionSpan_Simple(t *testing.T) {
	content := `const x=1;function foo(a){return a+1}const y=2;`
	start, end, err := FunctionSpan(content, "function foo(")
	require.NoError(t, err)
	assert.Equal(t, `function foo(a){return a+1}`, content[start:end])
}

func TestFunctionSpan_AsyncWidening(t *testing.T) {
	content := `class S{async loadModels(){await this.fetch()}other(){}}`
	start, end, err := FunctionSpan(content, "loadModels()")
	require.NoError(t, err)
	assert.Equal(t, `async loadModels(){await this.fetch()}`, content[start:end])
}

func TestFunctionSpan_SkipsStringsAndTemplates(t *testing.T) {
	// A body containing an escaped quote and a template literal with one level
	// of interpolated braces. The closing brace of the body must be the real
	// one, not any brace inside the literals.
	content := "before;f(a){const s=\"a\\\"b\";const t=`x${f({y:1})}`;return s}after"
	start, end, err := FunctionSpan(content, "f(a)")
	require.NoError(t, err)
	assert.Equal(t, "f(a){const s=\"a\\\"b\";const t=`x${f({y:1})}`;return s}", content[start:end])
	assert.True(t, strings.HasPrefix(content[end:], "after"))
}

func TestFunctionSpan_NestedInterpolation(t *testing.T) {
	// Template inside an interpolation inside a template.
	content := "g(){const t=`a${`b${c({d:1})}`}e`;return t}tail"
	start, end, err := FunctionSpan(content, "g()")
	require.NoError(t, err)
	assert.Equal(t, "g(){const t=`a${`b${c({d:1})}`}e`;return t}", content[start:end])
}

func TestFunctionSpan_BracesInsideSingleQuotes(t *testing.T) {
	content := `h(){const s='}}}';return s}rest`
	_, end, err := FunctionSpan(content, "h()")
	require.NoError(t, err)
	assert.Equal(t, "rest", content[end:])
}

func TestFunctionSpan_AnchorErrors(t *testing.T) {
	_, _, err := FunctionSpan("nothing here", "f()")
	assert.ErrorIs(t, err, ErrAnchorNotFound)

	_, _, err = FunctionSpan("f(){a}f(){b}", "f()")
	assert.ErrorIs(t, err, ErrAnchorAmbiguous)

	_, _, err = FunctionSpan("f() no brace", "f()")
	assert.ErrorIs(t, err, ErrNoOpeningBrace)
}

func TestFunctionSpan_Unbalanced(t *testing.T) {
	_, _, err := FunctionSpan("f(){if(a){b}", "f()")
	assert.ErrorIs(t, err, ErrUnbalanced)
}

func TestParseExports(t *testing.T) {
	content := `const Qe=1;export{Qe as ACP,mt as parse,lone};console.log(1)`
	exports, ok := ParseExports(content)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"ACP": "Qe", "parse": "mt"}, exports)

	_, ok = ParseExports("no exports at all")
	assert.False(t, ok)
}

func TestParseImports(t *testing.T) {
	content := `import{a as x,b as y,raw}from"./BTPDcoPQ.js";import{z}from"./other.js"`
	imports, ok := ParseImports(content, "BTPDcoPQ.js")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "x", "b": "y", "raw": "raw"}, imports)

	_, ok = ParseImports(content, "missing.js")
	assert.False(t, ok)
}

func TestFindSingle(t *testing.T) {
	re := regexp.MustCompile(`ab+c`)

	loc, err := FindSingle(re, "xx abbc yy")
	require.NoError(t, err)
	assert.Equal(t, "abbc", "xx abbc yy"[loc[0]:loc[1]])

	_, err = FindSingle(re, "nothing")
	assert.Error(t, err)

	_, err = FindSingle(re, "abc abc")
	assert.Error(t, err)
}
