// Package macro holds the command table and the interpreter that turns
// triggers into timed key presses.
package macro

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a token variant.
type Kind int

const (
	KindPress Kind = iota + 1
	KindChord
	KindWait
	KindCall
	KindFlip
	KindBlank
)

func (k Kind) String() string {
	switch k {
	case KindPress:
		return "press"
	case KindChord:
		return "chord"
	case KindWait:
		return "wait"
	case KindCall:
		return "call"
	case KindFlip:
		return "flip"
	case KindBlank:
		return "blank"
	default:
		return "unknown"
	}
}

// Token is one step of a macro.
type Token struct {
	Kind Kind
	// Keys holds one key for Press and two or more for Chord.
	Keys []string
	// Frames is the WaitFrames duration in game frames.
	Frames int
	// Macro is the Call target.
	Macro string
}

func Press(key string) Token {
	return Token{Kind: KindPress, Keys: []string{key}}
}

func Chord(keys ...string) Token {
	return Token{Kind: KindChord, Keys: append([]string(nil), keys...)}
}

func WaitFrames(n int) Token {
	return Token{Kind: KindWait, Frames: n}
}

func Call(name string) Token {
	return Token{Kind: KindCall, Macro: name}
}

func FlipFacing() Token {
	return Token{Kind: KindFlip}
}

func Blank() Token {
	return Token{Kind: KindBlank}
}

// String renders the token in command table syntax.
func (t Token) String() string {
	switch t.Kind {
	case KindPress:
		if len(t.Keys) == 1 {
			return t.Keys[0]
		}
	case KindChord:
		return "[" + strings.Join(t.Keys, " ") + "]"
	case KindWait:
		return "#" + strconv.Itoa(t.Frames)
	case KindCall:
		return "$" + t.Macro
	case KindFlip:
		return "@"
	case KindBlank:
		return "_"
	}
	return fmt.Sprintf("<invalid %s>", t.Kind)
}

// FormatTokens renders tokens space separated.
func FormatTokens(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = tok.String()
	}
	return strings.Join(parts, " ")
}

// ParseToken parses one scalar entry of a macro definition.
//
//	""  or "_"  Blank
//	"@"         FlipFacing
//	"#n"        WaitFrames(n)
//	"$name"     Call(name)
//	anything    Press(key)
func ParseToken(raw string) (Token, error) {
	text := strings.TrimSpace(raw)
	switch {
	case text == "" || text == "_":
		return Blank(), nil
	case text == "@":
		return FlipFacing(), nil
	case strings.HasPrefix(text, "#"):
		n, err := strconv.Atoi(strings.TrimSpace(text[1:]))
		if err != nil || n < 0 {
			return Token{}, fmt.Errorf("%w: %q: wait needs a non-negative frame count", ErrInvalidToken, raw)
		}
		return WaitFrames(n), nil
	case strings.HasPrefix(text, "$"):
		name := NormalizeName(text[1:])
		if name == "" {
			return Token{}, fmt.Errorf("%w: %q: call needs a macro name", ErrInvalidToken, raw)
		}
		return Call(name), nil
	}

	key, err := parseKey(text)
	if err != nil {
		return Token{}, err
	}
	return Press(key), nil
}

// ParseChord parses a list entry into a Chord of two or more distinct keys.
func ParseChord(raw []string) (Token, error) {
	if len(raw) < 2 {
		return Token{}, fmt.Errorf("%w: chord needs at least two keys, got %d", ErrInvalidToken, len(raw))
	}
	keys := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		key, err := parseKey(item)
		if err != nil {
			return Token{}, err
		}
		if _, dup := seen[key]; dup {
			return Token{}, fmt.Errorf("%w: chord repeats key %q", ErrInvalidToken, key)
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return Chord(keys...), nil
}

func parseKey(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidToken)
	}
	if strings.ContainsAny(key, " \t#$@") || key == "_" {
		return "", fmt.Errorf("%w: %q is not a key name", ErrInvalidToken, raw)
	}
	return key, nil
}

// NormalizeName canonicalizes a macro or trigger name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
