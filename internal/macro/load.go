package macro

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// tableFile is the on-disk shape of a command table:
//
//	macros:
//	  hadouken: [down, down, right, p]
//	  crouch_kick_cancel: [[down, k], _, _, h]
//	  cross_up: [$jump_in, "@", "#12", $hadouken]
type tableFile struct {
	Macros yaml.Node `yaml:"macros"`
}

// LoadTable reads and validates a YAML command table from path.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open command table %q: %w", path, err)
	}
	defer f.Close()

	table, err := ParseTable(f)
	if err != nil {
		return nil, fmt.Errorf("load command table %q: %w", path, err)
	}
	return table, nil
}

// ParseTable decodes and validates a YAML command table.
func ParseTable(r io.Reader) (*Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file tableFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("command table is empty")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	root := &file.Macros
	if root.Kind == 0 {
		return nil, fmt.Errorf("missing top-level \"macros\" mapping")
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: \"macros\" must be a mapping of name to token list", root.Line)
	}

	macros := make([]Macro, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: macro name must be a scalar", keyNode.Line)
		}
		tokens, err := decodeTokens(valueNode)
		if err != nil {
			return nil, fmt.Errorf("macro %q: %w", keyNode.Value, err)
		}
		macros = append(macros, Macro{Name: keyNode.Value, Tokens: tokens})
	}
	return NewTable(macros)
}

func decodeTokens(node *yaml.Node) ([]Token, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of tokens", node.Line)
	}
	tokens := make([]Token, 0, len(node.Content))
	for _, item := range node.Content {
		tok, err := decodeToken(item)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", item.Line, err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func decodeToken(node *yaml.Node) (Token, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!null":
			return Blank(), nil
		case "!!bool":
			return Token{}, fmt.Errorf("%w: %q reads as a boolean, quote it", ErrInvalidToken, node.Value)
		}
		return ParseToken(node.Value)
	case yaml.SequenceNode:
		keys := make([]string, 0, len(node.Content))
		for _, member := range node.Content {
			if member.Kind != yaml.ScalarNode || member.ShortTag() == "!!null" {
				return Token{}, fmt.Errorf("%w: chord members must be key names", ErrInvalidToken)
			}
			keys = append(keys, member.Value)
		}
		return ParseChord(keys)
	case yaml.AliasNode:
		if node.Alias == nil {
			return Token{}, fmt.Errorf("%w: dangling alias", ErrInvalidToken)
		}
		return decodeToken(node.Alias)
	default:
		return Token{}, fmt.Errorf("%w: expected a key, a chord list, or a control token", ErrInvalidToken)
	}
}
