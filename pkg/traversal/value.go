package traversal

import (
	"fmt"

	"github.com/orneryd/graphkv/pkg/storage"
)

// ValueKind identifies which variant of a GraphValue is active.
type ValueKind uint8

const (
	KindEmpty ValueKind = iota
	KindNode
	KindEdge
	KindValue
)

// String returns the lower-case name of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindNode:
		return "node"
	case KindEdge:
		return "edge"
	case KindValue:
		return "value"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// GraphValue is an element of a traversal: a node, an edge, a property value, or Empty
// when an operator's effect is the point rather than its output.
type GraphValue struct {
	kind ValueKind
	node *storage.Node
	edge *storage.Edge
	val  storage.Value
}

// NodeValue wraps a node.
func NodeValue(n *storage.Node) GraphValue { return GraphValue{kind: KindNode, node: n} }

// EdgeValue wraps an edge.
func EdgeValue(e *storage.Edge) GraphValue { return GraphValue{kind: KindEdge, edge: e} }

// ScalarValue wraps a property value.
func ScalarValue(v storage.Value) GraphValue { return GraphValue{kind: KindValue, val: v} }

// EmptyValue returns the no-result marker.
func EmptyValue() GraphValue { return GraphValue{} }

// Kind returns which variant g holds.
func (g GraphValue) Kind() ValueKind { return g.kind }

// IsEmpty reports whether g is the Empty marker.
func (g GraphValue) IsEmpty() bool { return g.kind == KindEmpty }

// Node returns the node held by g; ok is false for any other variant.
func (g GraphValue) Node() (*storage.Node, bool) { return g.node, g.kind == KindNode }

// Edge returns the edge held by g; ok is false for any other variant.
func (g GraphValue) Edge() (*storage.Edge, bool) { return g.edge, g.kind == KindEdge }

// Value returns the scalar held by g; ok is false for any other variant.
func (g GraphValue) Value() (storage.Value, bool) { return g.val, g.kind == KindValue }

// String renders g for logs and the CLI.
func (g GraphValue) String() string {
	switch g.kind {
	case KindNode:
		return fmt.Sprintf("(%s:%s %v)", g.node.ID, g.node.Label, g.node.Properties)
	case KindEdge:
		return fmt.Sprintf("[%s:%s %s->%s]", g.edge.ID, g.edge.Label, g.edge.From, g.edge.To)
	case KindValue:
		return g.val.String()
	default:
		return "<empty>"
	}
}

// Result is one element pulled from a traversal: a value or a failure.
type Result struct {
	Value GraphValue
	Err   error
}

// Ok wraps a successful value.
func Ok(v GraphValue) Result { return Result{Value: v} }

// Fail wraps a failure.
func Fail(err error) Result { return Result{Err: err} }
