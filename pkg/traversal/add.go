package traversal

import (
	"fmt"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/metrics"
	"github.com/orneryd/graphkv/pkg/storage"
)

// AddN inserts a node and returns a traversal yielding exactly one result: the new node,
// or a consolidated failure.
//
// The write happens now, not when the result is pulled. Pass ids.Nil to have an id
// generated; an explicit id must sort after every node ever stored, since the primary
// write is append-hinted. Reusing an id, including the id of a dropped node, therefore
// fails rather than overwriting.
//
// Steps, in order:
//  1. Encode the node. An encode failure skips the primary write.
//  2. Append the record to the node table.
//  3. For every name in indices, in order, without stopping at the first problem:
//     the index must be declared (ErrSchema), the node must carry the index's
//     property (ErrData), then encode(value) -> id is written to the index table.
//
// Any failure yields an OpError whose message is "failed to add node to secondary
// indices", whichever step failed; the per-step errors are in OpError.Causes. Writes
// made before the failure stay in the transaction, so the caller must roll back.
//
// Elements of the receiver are discarded without being pulled.
func (t *Traversal) AddN(label string, props map[string]storage.Value, indices []string, id ids.ID) *Traversal {
	if _, err := t.upstream(); err != nil {
		return t.derive(once(Fail(err)))
	}

	if id.IsZero() {
		id = t.newID()
	}
	node := &storage.Node{
		ID:         id,
		Label:      label,
		Properties: make(map[string]storage.Value, len(props)),
	}
	for k, v := range props {
		node.Properties[k] = v
	}

	var causes []error
	if data, err := storage.EncodeNode(node); err != nil {
		causes = append(causes, err)
	} else if err := t.txn.PutPrimary(t.engine.NodeTable(), node.ID, data, true); err != nil {
		causes = append(causes, storageErr(err))
	}

	for _, name := range indices {
		if err := t.indexNode(node, name); err != nil {
			causes = append(causes, err)
		}
	}

	res := Ok(NodeValue(node))
	if len(causes) > 0 {
		res = Fail(&OpError{Op: "add_n", Summary: ErrNodeInsert, Causes: causes})
	}
	t.observe("add_n", res.Err)
	return t.derive(once(res))
}

// indexNode writes one secondary index entry for node.
func (t *Traversal) indexNode(node *storage.Node, index string) error {
	table, ok := t.engine.SecondaryIndex(index)
	if !ok {
		return fmt.Errorf("%w: secondary index %q not declared", ErrSchema, index)
	}
	val, ok := node.Property(table.Property())
	if !ok {
		return fmt.Errorf("%w: node %s has no property %q required by index %q",
			ErrData, node.ID, table.Property(), index)
	}
	key, err := val.MarshalBinary()
	if err != nil {
		return err
	}
	if err := t.txn.IndexPut(table, key, node.ID); err != nil {
		return storageErr(err)
	}
	metrics.ObserveIndexWrite(index)
	return nil
}

// AddE inserts a directed edge from -> to and returns a traversal yielding exactly one
// result: the new edge, or an OpError with the message "failed to add edge".
//
// Both endpoints must exist (ErrData otherwise). The edge record is appended to the edge
// table and an entry is written to the outgoing adjacency of from and the incoming
// adjacency of to. Like AddN, the writes happen now and every step is attempted.
func (t *Traversal) AddE(label string, props map[string]storage.Value, from, to ids.ID, id ids.ID) *Traversal {
	if _, err := t.upstream(); err != nil {
		return t.derive(once(Fail(err)))
	}

	if id.IsZero() {
		id = t.newID()
	}
	edge := &storage.Edge{
		ID:         id,
		Label:      label,
		From:       from,
		To:         to,
		Properties: make(map[string]storage.Value, len(props)),
	}
	for k, v := range props {
		edge.Properties[k] = v
	}

	var causes []error
	for _, endpoint := range []ids.ID{from, to} {
		ok, err := t.txn.Has(t.engine.NodeTable(), endpoint[:])
		switch {
		case err != nil:
			causes = append(causes, storageErr(err))
		case !ok:
			causes = append(causes, fmt.Errorf("%w: edge endpoint %s does not exist", ErrData, endpoint))
		}
	}

	if len(causes) == 0 {
		if data, err := storage.EncodeEdge(edge); err != nil {
			causes = append(causes, err)
		} else if err := t.txn.PutPrimary(t.engine.EdgeTable(), edge.ID, data, true); err != nil {
			causes = append(causes, storageErr(err))
		}
		if err := t.txn.Put(t.engine.OutTable(), storage.AdjacencyKey(from, edge.ID), to.Bytes()); err != nil {
			causes = append(causes, storageErr(err))
		}
		if err := t.txn.Put(t.engine.InTable(), storage.AdjacencyKey(to, edge.ID), from.Bytes()); err != nil {
			causes = append(causes, storageErr(err))
		}
	}

	res := Ok(EdgeValue(edge))
	if len(causes) > 0 {
		res = Fail(&OpError{Op: "add_e", Summary: ErrEdgeInsert, Causes: causes})
	}
	t.observe("add_e", res.Err)
	return t.derive(once(res))
}
