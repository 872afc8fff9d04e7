package traversal

import (
	"errors"
	"fmt"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/pool"
	"github.com/orneryd/graphkv/pkg/storage"
)

// Drop drains the receiver and deletes every node and edge it yields, then returns a
// traversal with a single Empty element, or an OpError with the message "failed to drop".
//
// Deleting a node removes its record, every index entry that maps to it, and every
// incident edge together with both adjacency entries of that edge. Deleting an edge
// removes its record and its two adjacency entries. Elements that were already deleted
// earlier in the same call are skipped.
//
// Upstream failures and scalar elements are recorded as causes; the remaining elements
// are still deleted.
func (t *Traversal) Drop() *Traversal {
	up, err := t.upstream()
	if err != nil {
		return t.derive(once(Fail(err)))
	}

	var causes []error
	for {
		r, ok := up.Next()
		if !ok {
			break
		}
		if r.Err != nil {
			causes = append(causes, r.Err)
			continue
		}
		switch r.Value.Kind() {
		case KindNode:
			n, _ := r.Value.Node()
			causes = append(causes, t.dropNode(n.ID)...)
		case KindEdge:
			e, _ := r.Value.Edge()
			if err := t.dropEdge(e.ID); err != nil {
				causes = append(causes, err)
			}
		default:
			causes = append(causes, fmt.Errorf("%w: cannot drop %s", ErrUnexpectedValue, r.Value.Kind()))
		}
	}

	res := Ok(EmptyValue())
	if len(causes) > 0 {
		res = Fail(&OpError{Op: "drop", Summary: ErrDrop, Causes: causes})
	}
	t.observe("drop", res.Err)
	return t.derive(once(res))
}

func (t *Traversal) dropNode(id ids.ID) []error {
	node, err := t.txn.GetNode(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return []error{storageErr(err)}
	}

	var causes []error
	for _, def := range t.engine.Indices() {
		if err := t.unindex(def.Name, node); err != nil {
			causes = append(causes, err)
		}
	}

	for _, table := range []storage.Table{t.engine.OutTable(), t.engine.InTable()} {
		entries, err := t.adjacency(table, id)
		if err != nil {
			causes = append(causes, err)
		}
		for _, e := range entries {
			if err := t.dropEdge(e); err != nil {
				causes = append(causes, err)
			}
		}
		pool.PutIDSlice(entries)
	}

	if err := t.txn.Delete(t.engine.NodeTable(), id[:]); err != nil {
		causes = append(causes, storageErr(err))
	}
	return causes
}

// unindex removes the entry of one index for node, if that entry still maps to it.
func (t *Traversal) unindex(index string, node *storage.Node) error {
	table, ok := t.engine.SecondaryIndex(index)
	if !ok {
		return fmt.Errorf("%w: secondary index %q not declared", ErrSchema, index)
	}
	val, ok := node.Property(table.Property())
	if !ok {
		return nil
	}
	key, err := val.MarshalBinary()
	if err != nil {
		return err
	}
	raw, err := t.txn.Get(table, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr(err)
	}
	if owner, err := ids.FromBytes(raw); err != nil || owner != node.ID {
		return nil
	}
	if err := t.txn.Delete(table, key); err != nil {
		return storageErr(err)
	}
	return nil
}

func (t *Traversal) dropEdge(id ids.ID) error {
	edge, err := t.txn.GetEdge(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr(err)
	}
	if err := t.txn.Delete(t.engine.OutTable(), storage.AdjacencyKey(edge.From, edge.ID)); err != nil {
		return storageErr(err)
	}
	if err := t.txn.Delete(t.engine.InTable(), storage.AdjacencyKey(edge.To, edge.ID)); err != nil {
		return storageErr(err)
	}
	if err := t.txn.Delete(t.engine.EdgeTable(), edge.ID[:]); err != nil {
		return storageErr(err)
	}
	return nil
}

// adjacency lists the edge ids in one adjacency table for node. The slice comes from
// the pool; the caller returns it with pool.PutIDSlice.
func (t *Traversal) adjacency(table storage.Table, node ids.ID) ([]ids.ID, error) {
	var after []byte
	out := pool.GetIDSlice()
	for {
		key, _, ok, err := t.txn.SeekAfter(table, node[:], after)
		if err != nil {
			return out, storageErr(err)
		}
		if !ok {
			return out, nil
		}
		after = key
		_, edge, err := storage.SplitAdjacencyKey(key)
		if err != nil {
			return out, err
		}
		out = append(out, edge)
	}
}
