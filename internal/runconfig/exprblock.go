package runconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ExprEntry is one named expression within an init/expressions block.
type ExprEntry struct {
	Name string
	Expr string
}

// ExprBlock is an ordered sequence of named expressions. YAML mappings
// have no canonical order, but §4.6 "Evaluation order" requires
// expressions within a block to evaluate in declaration order (each
// result is injected into the symbol table before the next evaluates) —
// so this type unmarshals directly from the mapping node's Content slice
// instead of through a Go map, which would discard that order.
type ExprBlock []ExprEntry

// UnmarshalYAML preserves the declaration order of an init/expressions
// mapping.
func (b *ExprBlock) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == 0 {
		*b = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping for expression block, got kind %d", node.Kind)
	}
	out := make(ExprBlock, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, ExprEntry{Name: node.Content[i].Value, Expr: node.Content[i+1].Value})
	}
	*b = out
	return nil
}

// Get returns the expression source for name, if present.
func (b ExprBlock) Get(name string) (string, bool) {
	for _, e := range b {
		if e.Name == name {
			return e.Expr, true
		}
	}
	return "", false
}

// Names returns the declared expression names in order.
func (b ExprBlock) Names() []string {
	out := make([]string, 0, len(b))
	for _, e := range b {
		out = append(out, e.Name)
	}
	return out
}
