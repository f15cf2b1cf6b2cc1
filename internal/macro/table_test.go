package macro

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, macros ...Macro) *Table {
	t.Helper()
	table, err := NewTable(macros)
	require.NoError(t, err)
	return table
}

func TestNewTableRejectsTwoNodeCycle(t *testing.T) {
	_, err := NewTable([]Macro{
		{Name: "a", Tokens: []Token{Call("b")}},
		{Name: "b", Tokens: []Token{Call("a")}},
	})
	require.ErrorIs(t, err, ErrCyclicMacro)

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	require.Equal(t, []string{"a", "b", "a"}, cycle.Path)
}

func TestNewTableRejectsSelfCall(t *testing.T) {
	_, err := NewTable([]Macro{{Name: "loop", Tokens: []Token{Press("x"), Call("loop")}}})
	require.ErrorIs(t, err, ErrCyclicMacro)
}

func TestNewTableAcceptsDiamond(t *testing.T) {
	table := mustTable(t,
		Macro{Name: "top", Tokens: []Token{Call("left_arm"), Call("right_arm")}},
		Macro{Name: "left_arm", Tokens: []Token{Call("leaf")}},
		Macro{Name: "right_arm", Tokens: []Token{Call("leaf")}},
		Macro{Name: "leaf", Tokens: []Token{Press("x")}},
	)
	tokens, err := table.Expand("top", 0)
	require.NoError(t, err)
	require.Equal(t, []Token{Press("x"), Press("x")}, tokens)
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name   string
		macros []Macro
		target error
	}{
		{name: "dangling call", macros: []Macro{{Name: "a", Tokens: []Token{Call("ghost")}}}, target: ErrUnknownMacro},
		{name: "bad chord", macros: []Macro{{Name: "a", Tokens: []Token{{Kind: KindChord, Keys: []string{"x"}}}}}, target: ErrInvalidToken},
		{name: "bad kind", macros: []Macro{{Name: "a", Tokens: []Token{{}}}}, target: ErrInvalidToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTable(tc.macros)
			require.ErrorIs(t, err, tc.target)
		})
	}

	_, err := NewTable([]Macro{{Name: "a"}, {Name: " A "}})
	require.ErrorContains(t, err, "duplicate macro")

	_, err = NewTable([]Macro{{Name: "  "}})
	require.ErrorContains(t, err, "must not be empty")
}

func TestExpandSplicesCallInPlace(t *testing.T) {
	table := mustTable(t,
		Macro{Name: "a", Tokens: []Token{Press("x")}},
		Macro{Name: "combo", Tokens: []Token{Press("down"), Call("A"), Blank()}},
	)

	tokens, err := table.Expand("combo", DefaultMaxDepth)
	require.NoError(t, err)
	require.Equal(t, []Token{Press("down"), Press("x"), Blank()}, tokens)
}

func TestExpandIsIdempotent(t *testing.T) {
	table := mustTable(t,
		Macro{Name: "a", Tokens: []Token{Press("x"), Call("b")}},
		Macro{Name: "b", Tokens: []Token{Chord("down", "p"), WaitFrames(2)}},
		Macro{Name: "flat", Tokens: []Token{Press("x"), Chord("down", "p"), WaitFrames(2)}},
	)

	first, err := table.Expand("a", 0)
	require.NoError(t, err)
	second, err := table.Expand("a", 0)
	require.NoError(t, err)
	require.Equal(t, first, second)

	flat, err := table.Expand("flat", 0)
	require.NoError(t, err)
	require.Equal(t, first, flat)
}

func TestExpandDepthGuard(t *testing.T) {
	macros := []Macro{{Name: "m0", Tokens: []Token{Press("x")}}}
	for i := 1; i <= 4; i++ {
		macros = append(macros, Macro{Name: fmt.Sprintf("m%d", i), Tokens: []Token{Call(fmt.Sprintf("m%d", i-1))}})
	}
	table := mustTable(t, macros...)

	tokens, err := table.Expand("m4", 4)
	require.NoError(t, err)
	require.Equal(t, []Token{Press("x")}, tokens)

	_, err = table.Expand("m4", 3)
	require.ErrorIs(t, err, ErrDepthExceeded)

	_, err = table.Expand("ghost", 3)
	require.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestTableAccessors(t *testing.T) {
	table := mustTable(t,
		Macro{Name: "Zeta", Tokens: []Token{Blank()}},
		Macro{Name: "alpha", Tokens: []Token{Blank()}},
	)
	require.Equal(t, []string{"alpha", "zeta"}, table.Names())
	require.Equal(t, 2, table.Len())
	require.True(t, table.Has("ZETA"))
	require.False(t, table.Has("beta"))

	var empty *Table
	require.False(t, empty.Has("x"))
	require.Zero(t, empty.Len())
	require.Nil(t, empty.Names())
}
