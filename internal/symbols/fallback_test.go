package symbols

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChain_ResolvesTiersInOrder(t *testing.T) {
	chain := Chain{
		Target: "logger handle",
		Tiers: []Strategy{
			Capture("factory call", 0.9, regexp.MustCompile(`const\s+(\w+)\s*=\s*\w+\(\s*"ModelStore"\s*\)`)),
			Capture("debug call", 0.5, regexp.MustCompile(`(\w+)\.debug\(`)),
			Fixed("I"),
		},
	}

	top := chain.Resolve(`const Lq=mk("ModelStore");Lq.debug("x")`, nil)
	assert.Equal(t, "Lq", top.Alias)
	assert.Equal(t, "factory call", top.Strategy)
	assert.InDelta(t, 0.9, top.Confidence, 0.001)

	mid := chain.Resolve(`zz.debug("x")`, nil)
	assert.Equal(t, "zz", mid.Alias)
	assert.Equal(t, "debug call", mid.Strategy)

	last := chain.Resolve(`nothing recognizable`, nil)
	assert.Equal(t, "I", last.Alias)
	assert.InDelta(t, 0.1, last.Confidence, 0.001)
}

func TestChain_EmptyChain(t *testing.T) {
	res := Chain{Target: "x"}.Resolve("anything", nil)
	assert.Empty(t, res.Alias)
}

func TestMapLocal_Fallback(t *testing.T) {
	m := newMap()
	m.Resolved[NameComputed] = "Hx"
	assert.Equal(t, "Hx", m.Local(NameComputed, "H"))
	assert.Equal(t, "H", m.Local(NameEffect, "H"))

	var nilMap *Map
	assert.Equal(t, "d", nilMap.Local(NameGet, "d"))
}
