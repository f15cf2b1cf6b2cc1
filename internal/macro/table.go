package macro

import (
	"fmt"
	"sort"
)

// DefaultMaxDepth bounds Call nesting during expansion.
const DefaultMaxDepth = 8

// Macro is a named token sequence.
type Macro struct {
	Name   string
	Tokens []Token
}

// Table maps trigger names to macros. It is immutable after NewTable returns.
type Table struct {
	macros map[string]Macro
	names  []string
}

// NewTable validates macros and builds a table. Names are normalized, must be
// unique, every Call must name a macro in the table, and the Call graph must
// be acyclic.
func NewTable(macros []Macro) (*Table, error) {
	t := &Table{macros: make(map[string]Macro, len(macros))}
	for _, m := range macros {
		name := NormalizeName(m.Name)
		if name == "" {
			return nil, fmt.Errorf("macro name must not be empty")
		}
		if _, dup := t.macros[name]; dup {
			return nil, fmt.Errorf("duplicate macro %q", name)
		}
		tokens := make([]Token, len(m.Tokens))
		for i, tok := range m.Tokens {
			if err := validateToken(tok); err != nil {
				return nil, fmt.Errorf("macro %q token %d: %w", name, i+1, err)
			}
			if tok.Kind == KindCall {
				tok.Macro = NormalizeName(tok.Macro)
			}
			if len(tok.Keys) > 0 {
				tok.Keys = append([]string(nil), tok.Keys...)
			}
			tokens[i] = tok
		}
		t.macros[name] = Macro{Name: name, Tokens: tokens}
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)

	for _, name := range t.names {
		for _, tok := range t.macros[name].Tokens {
			if tok.Kind != KindCall {
				continue
			}
			if _, ok := t.macros[tok.Macro]; !ok {
				return nil, fmt.Errorf("macro %q calls %q: %w", name, tok.Macro, ErrUnknownMacro)
			}
		}
	}
	if err := t.checkCycles(); err != nil {
		return nil, err
	}
	return t, nil
}

func validateToken(tok Token) error {
	switch tok.Kind {
	case KindPress:
		if len(tok.Keys) != 1 || tok.Keys[0] == "" {
			return fmt.Errorf("%w: press needs exactly one key", ErrInvalidToken)
		}
	case KindChord:
		if len(tok.Keys) < 2 {
			return fmt.Errorf("%w: chord needs at least two keys", ErrInvalidToken)
		}
	case KindWait:
		if tok.Frames < 0 {
			return fmt.Errorf("%w: negative wait", ErrInvalidToken)
		}
	case KindCall:
		if NormalizeName(tok.Macro) == "" {
			return fmt.Errorf("%w: call needs a macro name", ErrInvalidToken)
		}
	case KindFlip, KindBlank:
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidToken, tok.Kind)
	}
	return nil
}

// checkCycles runs a three-color depth-first search over the Call graph.
func (t *Table) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(t.names))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = grey
		stack = append(stack, name)
		for _, tok := range t.macros[name].Tokens {
			if tok.Kind != KindCall {
				continue
			}
			switch color[tok.Macro] {
			case grey:
				return &CycleError{Path: cyclePath(stack, tok.Macro)}
			case white:
				if err := visit(tok.Macro); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range t.names {
		if color[name] != white {
			continue
		}
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func cyclePath(stack []string, target string) []string {
	for i, name := range stack {
		if name == target {
			path := append([]string(nil), stack[i:]...)
			return append(path, target)
		}
	}
	return []string{target, target}
}

// Lookup returns the macro registered under name.
func (t *Table) Lookup(name string) (Macro, bool) {
	if t == nil {
		return Macro{}, false
	}
	m, ok := t.macros[NormalizeName(name)]
	return m, ok
}

// Has reports whether name is a trigger in the table.
func (t *Table) Has(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

// Names returns the sorted macro names.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.names...)
}

// Len returns the number of macros.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Expand returns the flat token list for name with every Call spliced in
// place. Nesting deeper than maxDepth fails with ErrDepthExceeded; a
// non-positive maxDepth uses DefaultMaxDepth.
func (t *Table) Expand(name string, maxDepth int) ([]Token, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	m, ok := t.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
	}
	out := make([]Token, 0, len(m.Tokens))
	return t.expandInto(out, m, 0, maxDepth)
}

func (t *Table) expandInto(out []Token, m Macro, depth, maxDepth int) ([]Token, error) {
	for _, tok := range m.Tokens {
		if tok.Kind != KindCall {
			out = append(out, tok)
			continue
		}
		if depth+1 > maxDepth {
			return nil, fmt.Errorf("%w: %q nests deeper than %d via %q", ErrDepthExceeded, m.Name, maxDepth, tok.Macro)
		}
		callee, ok := t.macros[tok.Macro]
		if !ok {
			return nil, fmt.Errorf("macro %q calls %q: %w", m.Name, tok.Macro, ErrUnknownMacro)
		}
		var err error
		out, err = t.expandInto(out, callee, depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
