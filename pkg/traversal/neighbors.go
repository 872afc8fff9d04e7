package traversal

import (
	"fmt"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/storage"
)

// Out yields, for every node of the receiver, the nodes reached through its outgoing
// edges. An empty label follows every edge; otherwise only edges with that label.
func (t *Traversal) Out(label string) *Traversal {
	return t.neighbors(t.engine.OutTable(), label, false)
}

// In yields, for every node of the receiver, the nodes at the source of its incoming
// edges.
func (t *Traversal) In(label string) *Traversal {
	return t.neighbors(t.engine.InTable(), label, false)
}

// OutE yields the outgoing edges of every node of the receiver.
func (t *Traversal) OutE(label string) *Traversal {
	return t.neighbors(t.engine.OutTable(), label, true)
}

// InE yields the incoming edges of every node of the receiver.
func (t *Traversal) InE(label string) *Traversal {
	return t.neighbors(t.engine.InTable(), label, true)
}

func (t *Traversal) neighbors(table storage.Table, label string, edges bool) *Traversal {
	up, err := t.upstream()
	if err != nil {
		return t.derive(once(Fail(err)))
	}
	return t.derive(&adjacencySource{
		txn:   t.txn,
		up:    up,
		table: table,
		label: label,
		edges: edges,
	})
}

// adjacencySource walks one adjacency table, one entry per step, for each upstream node.
type adjacencySource struct {
	txn   *storage.Txn
	up    Source
	table storage.Table
	label string
	edges bool

	node   ids.ID
	active bool
	after  []byte
}

func (s *adjacencySource) Next() (Result, bool) {
	for {
		if !s.active {
			r, ok := s.up.Next()
			if !ok {
				return Result{}, false
			}
			if r.Err != nil {
				return r, true
			}
			node, isNode := r.Value.Node()
			if !isNode {
				return Fail(fmt.Errorf("%w: %s is not a node", ErrUnexpectedValue, r.Value.Kind())), true
			}
			s.node = node.ID
			s.active = true
			s.after = nil
		}

		key, val, ok, err := s.txn.SeekAfter(s.table, s.node[:], s.after)
		if err != nil {
			s.active = false
			return Fail(storageErr(err)), true
		}
		if !ok {
			s.active = false
			continue
		}
		s.after = key

		_, edgeID, err := storage.SplitAdjacencyKey(key)
		if err != nil {
			return Fail(err), true
		}

		var edge *storage.Edge
		if s.edges || s.label != "" {
			edge, err = s.txn.GetEdge(edgeID)
			if err != nil {
				return Fail(lookupErr("edge", edgeID, err)), true
			}
			if s.label != "" && edge.Label != s.label {
				continue
			}
		}
		if s.edges {
			return Ok(EdgeValue(edge)), true
		}

		other, err := ids.FromBytes(val)
		if err != nil {
			return Fail(fmt.Errorf("%w: %s entry: %w", ErrDecode, s.table, err)), true
		}
		node, err := s.txn.GetNode(other)
		if err != nil {
			return Fail(lookupErr("node", other, err)), true
		}
		return Ok(NodeValue(node)), true
	}
}
