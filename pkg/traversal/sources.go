package traversal

import (
	"errors"
	"fmt"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/storage"
)

// NFromID starts a traversal at the node with the given id. The node is read when the
// element is pulled; a missing node yields ErrNotFound.
//
// Like every source operator, NFromID discards the elements of its receiver.
func (t *Traversal) NFromID(id ids.ID) *Traversal {
	if _, err := t.upstream(); err != nil {
		return t.derive(once(Fail(err)))
	}
	done := false
	return t.derive(SourceFunc(func() (Result, bool) {
		if done {
			return Result{}, false
		}
		done = true
		node, err := t.txn.GetNode(id)
		if err != nil {
			return Fail(lookupErr("node", id, err)), true
		}
		return Ok(NodeValue(node)), true
	}))
}

// EFromID starts a traversal at the edge with the given id.
func (t *Traversal) EFromID(id ids.ID) *Traversal {
	if _, err := t.upstream(); err != nil {
		return t.derive(once(Fail(err)))
	}
	done := false
	return t.derive(SourceFunc(func() (Result, bool) {
		if done {
			return Result{}, false
		}
		done = true
		edge, err := t.txn.GetEdge(id)
		if err != nil {
			return Fail(lookupErr("edge", id, err)), true
		}
		return Ok(EdgeValue(edge)), true
	}))
}

// NFromIndex starts a traversal at the node a secondary index maps value to. An
// undeclared index yields ErrSchema; a value with no entry yields nothing.
func (t *Traversal) NFromIndex(index string, value storage.Value) *Traversal {
	if _, err := t.upstream(); err != nil {
		return t.derive(once(Fail(err)))
	}
	done := false
	return t.derive(SourceFunc(func() (Result, bool) {
		if done {
			return Result{}, false
		}
		done = true

		table, ok := t.engine.SecondaryIndex(index)
		if !ok {
			return Fail(fmt.Errorf("%w: secondary index %q not declared", ErrSchema, index)), true
		}
		key, err := value.MarshalBinary()
		if err != nil {
			return Fail(err), true
		}
		raw, err := t.txn.Get(table, key)
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, false
		}
		if err != nil {
			return Fail(storageErr(err)), true
		}
		id, err := ids.FromBytes(raw)
		if err != nil {
			return Fail(fmt.Errorf("%w: index %q entry: %w", ErrDecode, index, err)), true
		}
		node, err := t.txn.GetNode(id)
		if err != nil {
			return Fail(lookupErr("node", id, err)), true
		}
		return Ok(NodeValue(node)), true
	}))
}

// NFromLabel scans the node table in id order and yields every node with the given
// label; an empty label yields every node. One record is read per pull.
func (t *Traversal) NFromLabel(label string) *Traversal {
	if _, err := t.upstream(); err != nil {
		return t.derive(once(Fail(err)))
	}
	var after []byte
	done := false
	return t.derive(SourceFunc(func() (Result, bool) {
		for !done {
			key, val, ok, err := t.txn.SeekAfter(t.engine.NodeTable(), nil, after)
			if err != nil {
				done = true
				return Fail(storageErr(err)), true
			}
			if !ok {
				done = true
				break
			}
			after = key
			node, err := storage.DecodeNode(val)
			if err != nil {
				return Fail(err), true
			}
			if label == "" || node.Label == label {
				return Ok(NodeValue(node)), true
			}
		}
		return Result{}, false
	}))
}

// lookupErr classifies a failed read of a record by id.
func lookupErr(kind string, id ids.ID, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return storageErr(err)
}
