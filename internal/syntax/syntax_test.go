package syntax

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_ValidMinifiedSource(t *testing.T) {
	c := NewChecker()

	src := `class S{async loadModels(){if(this.busy)return;const e=await Promise.allSettled(x.map(async n=>n));this.k="__all__"}}`
	assert.NoError(t, c.Check("store.js", src))

	tpl := "const f=x=>`${x}:${g({y:1})}`;f(1)"
	assert.NoError(t, c.Check("tpl.js", tpl))
}

func TestChecker_ReportsErrorLocation(t *testing.T) {
	c := NewChecker()

	err := c.Check("bad.js", "function f({ return 1 }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.js")
	assert.Contains(t, err.Error(), "line")
}

func TestChecker_TruncatedInput(t *testing.T) {
	c := NewChecker()
	assert.Error(t, c.Check("cut.js", "class S{async loadModels(){"))
}

func TestChecker_LargeInput(t *testing.T) {
	c := NewChecker()
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		b.WriteString("function f")
		b.WriteString(strings.Repeat("x", i%7+1))
		b.WriteString("(){return 1}\n")
	}
	assert.NoError(t, c.Check("big.js", b.String()))
}

func TestNodeChecker_SkipsWithoutBinary(t *testing.T) {
	n := NewNodeChecker(0)
	if !n.Available() {
		t.Skip("node not on PATH")
	}
	assert.NoError(t, n.Check("ok.js", "const a=1;"))
	assert.Error(t, n.Check("bad.js", "const a=;"))

	// Chunk files use module syntax and must still pass.
	assert.NoError(t, n.Check("chunk.js", `import{x}from"./a.js";export{x};`))
}

type fakeValidator struct {
	name string
	err  error
	seen *[]string
}

func (f fakeValidator) Check(name, content string) error {
	*f.seen = append(*f.seen, f.name)
	return f.err
}

func TestMulti_StopsAtFirstProblem(t *testing.T) {
	var seen []string
	ok := fakeValidator{name: "first", seen: &seen}
	bad := fakeValidator{name: "second", err: assert.AnError, seen: &seen}

	m := Multi{ok, bad, fakeValidator{name: "third", seen: &seen}}
	err := m.Check("f.js", "x")
	require.Error(t, err)
	assert.Equal(t, []string{"first", "second"}, seen)

	seen = nil
	assert.NoError(t, Multi{ok}.Check("f.js", "x"))
	assert.Equal(t, []string{"first"}, seen)
}
