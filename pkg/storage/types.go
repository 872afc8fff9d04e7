// Package storage provides the persistent layer of graphkv: node and edge records,
// their codec, and a BadgerDB-backed engine that exposes named tables and explicit
// transactions.
//
// Design Principles:
//   - One ordered keyspace, one logical table per key prefix
//   - Every read and write takes the open transaction explicitly
//   - Secondary index tables are declared when the engine opens and never change
//   - Single writer, many snapshot readers
//
// Table Layout:
//   - nodes:   id(16, big-endian)              -> node record
//   - edges:   id(16, big-endian)              -> edge record
//   - out:     from(16) + edge id(16)          -> to(16)
//   - in:      to(16) + edge id(16)            -> from(16)
//   - index/N: encoded property value          -> node id(16)
//
// Example Usage:
//
//	engine, err := storage.Open(storage.Options{
//		InMemory: true,
//		Indices:  []storage.IndexDef{{Name: "by_name", Property: "name"}},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	err = engine.Update(func(tx *storage.Txn) error {
//		node := &storage.Node{ID: ids.New(), Label: "person",
//			Properties: map[string]storage.Value{"name": storage.NewString("Ada")}}
//		data, err := storage.EncodeNode(node)
//		if err != nil {
//			return err
//		}
//		return tx.PutPrimary(engine.NodeTable(), node.ID, data, true)
//	})
package storage

import (
	"errors"

	"github.com/orneryd/graphkv/pkg/ids"
)

// Common errors
var (
	ErrNotFound          = errors.New("not found")
	ErrKeyOutOfOrder     = errors.New("append key out of order")
	ErrTransactionClosed = errors.New("transaction already closed")
	ErrReadOnly          = errors.New("write in read-only transaction")
	ErrStorageClosed     = errors.New("storage closed")
	ErrEncode            = errors.New("encode failed")
	ErrDecode            = errors.New("decode failed")
	ErrUnsupportedValue  = errors.New("unsupported value type")
	ErrInvalidIndex      = errors.New("invalid index definition")
)

// Node is a labeled entity with a unique identifier and a set of properties.
//
// Thread Safety:
//
//	Node structs are NOT thread-safe.
type Node struct {
	ID         ids.ID
	Label      string
	Properties map[string]Value
}

// Property returns the named property.
func (n *Node) Property(key string) (Value, bool) {
	v, ok := n.Properties[key]
	return v, ok
}

// Equal compares id, label and properties.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.ID == other.ID && n.Label == other.Label && propertiesEqual(n.Properties, other.Properties)
}

// Edge is a directed, labeled relationship between two nodes.
type Edge struct {
	ID         ids.ID
	Label      string
	From       ids.ID
	To         ids.ID
	Properties map[string]Value
}

// Property returns the named property.
func (e *Edge) Property(key string) (Value, bool) {
	v, ok := e.Properties[key]
	return v, ok
}

// Equal compares every field of two edges.
func (e *Edge) Equal(other *Edge) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.ID == other.ID && e.Label == other.Label &&
		e.From == other.From && e.To == other.To &&
		propertiesEqual(e.Properties, other.Properties)
}

// IndexDef declares a secondary index over one node property.
//
// Property defaults to Name when empty, so an index can be named after the property it
// covers.
type IndexDef struct {
	Name     string `yaml:"name"`
	Property string `yaml:"property"`
}

// PropertyKey returns the property the index covers.
func (d IndexDef) PropertyKey() string {
	if d.Property == "" {
		return d.Name
	}
	return d.Property
}

func propertiesEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !va.Equal(vb) {
			return false
		}
	}
	return true
}

func copyProperties(props map[string]Value) map[string]Value {
	out := make(map[string]Value, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// CopyNode returns a copy of n whose property map can be mutated independently.
func CopyNode(n *Node) *Node {
	return &Node{ID: n.ID, Label: n.Label, Properties: copyProperties(n.Properties)}
}
