package macro

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Token
		wantErr bool
	}{
		{name: "press", in: "down", want: Press("down")},
		{name: "press lowercases", in: " P ", want: Press("p")},
		{name: "blank empty", in: "", want: Blank()},
		{name: "blank underscore", in: "_", want: Blank()},
		{name: "flip", in: "@", want: FlipFacing()},
		{name: "wait", in: "#12", want: WaitFrames(12)},
		{name: "wait zero", in: "#0", want: WaitFrames(0)},
		{name: "call", in: "$Jump_In", want: Call("jump_in")},
		{name: "wait negative", in: "#-1", wantErr: true},
		{name: "wait garbage", in: "#x", wantErr: true},
		{name: "call empty", in: "$", wantErr: true},
		{name: "key with space", in: "left shift", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseToken(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseChord(t *testing.T) {
	got, err := ParseChord([]string{"Down", "k"})
	require.NoError(t, err)
	require.Equal(t, Chord("down", "k"), got)

	_, err = ParseChord([]string{"down"})
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseChord([]string{"down", "DOWN"})
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseChord([]string{"down", "#2"})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenStringRoundTrips(t *testing.T) {
	for _, tok := range []Token{Press("p"), WaitFrames(3), Call("a"), FlipFacing(), Blank()} {
		parsed, err := ParseToken(tok.String())
		require.NoError(t, err)
		require.Equal(t, tok, parsed)
	}
	require.Equal(t, "[down k]", Chord("down", "k").String())
	require.Equal(t, "down [down k] #2 @", FormatTokens([]Token{Press("down"), Chord("down", "k"), WaitFrames(2), FlipFacing()}))
}
