package traversal

import (
	"errors"
	"fmt"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/metrics"
	"github.com/orneryd/graphkv/pkg/storage"
)

// UpdateN drains the receiver and merges props into every node it yields: keys in props
// replace existing properties, other properties are kept. The stored record is
// rewritten in place and, for every index the node is listed in, an entry whose
// property value changed is moved to the new value.
//
// The returned traversal yields the updated nodes in order, or a single OpError with the
// message "failed to update node" when any step failed.
func (t *Traversal) UpdateN(props map[string]storage.Value) *Traversal {
	up, err := t.upstream()
	if err != nil {
		return t.derive(once(Fail(err)))
	}

	var (
		updated []Result
		causes  []error
	)
	for {
		r, ok := up.Next()
		if !ok {
			break
		}
		if r.Err != nil {
			causes = append(causes, r.Err)
			continue
		}
		n, isNode := r.Value.Node()
		if !isNode {
			causes = append(causes, fmt.Errorf("%w: cannot update %s", ErrUnexpectedValue, r.Value.Kind()))
			continue
		}
		node, errs := t.updateNode(n.ID, props)
		if len(errs) > 0 {
			causes = append(causes, errs...)
			continue
		}
		updated = append(updated, Ok(NodeValue(node)))
	}

	if len(causes) > 0 {
		err := &OpError{Op: "update_n", Summary: ErrUpdate, Causes: causes}
		t.observe("update_n", err)
		return t.derive(once(Fail(err)))
	}
	t.observe("update_n", nil)
	return t.derive(&sliceSource{results: updated})
}

func (t *Traversal) updateNode(id ids.ID, props map[string]storage.Value) (*storage.Node, []error) {
	old, err := t.txn.GetNode(id)
	if err != nil {
		return nil, []error{lookupErr("node", id, err)}
	}
	node := storage.CopyNode(old)
	for k, v := range props {
		node.Properties[k] = v
	}

	var causes []error
	for _, def := range t.engine.Indices() {
		if err := t.moveIndexEntry(def.Name, old, node); err != nil {
			causes = append(causes, err)
		}
	}

	data, err := storage.EncodeNode(node)
	if err != nil {
		return nil, append(causes, err)
	}
	if err := t.txn.Put(t.engine.NodeTable(), id[:], data); err != nil {
		return nil, append(causes, storageErr(err))
	}
	if len(causes) > 0 {
		return nil, causes
	}
	return node, nil
}

// moveIndexEntry rewrites the entry of one index when the indexed property changed
// and the old entry belongs to the node.
func (t *Traversal) moveIndexEntry(index string, old, updated *storage.Node) error {
	table, ok := t.engine.SecondaryIndex(index)
	if !ok {
		return fmt.Errorf("%w: secondary index %q not declared", ErrSchema, index)
	}
	prev, hadProp := old.Property(table.Property())
	next, _ := updated.Property(table.Property())
	if !hadProp || prev.Equal(next) {
		return nil
	}

	prevKey, err := prev.MarshalBinary()
	if err != nil {
		return err
	}
	raw, err := t.txn.Get(table, prevKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr(err)
	}
	if owner, err := ids.FromBytes(raw); err != nil || owner != old.ID {
		return nil
	}

	nextKey, err := next.MarshalBinary()
	if err != nil {
		return err
	}
	if err := t.txn.Delete(table, prevKey); err != nil {
		return storageErr(err)
	}
	if err := t.txn.IndexPut(table, nextKey, old.ID); err != nil {
		return storageErr(err)
	}
	metrics.ObserveIndexWrite(index)
	return nil
}
