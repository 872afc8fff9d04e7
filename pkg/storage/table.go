// Package storage - Logical tables inside the Badger keyspace.
package storage

import (
	"bytes"
	"fmt"

	"github.com/orneryd/graphkv/pkg/ids"
)

// Key prefixes for the logical tables. Single-byte prefixes keep keys short and make
// every table a contiguous key range.
const (
	prefixNodes      = byte(0x01)
	prefixEdges      = byte(0x02)
	prefixOutAdj     = byte(0x03)
	prefixInAdj      = byte(0x04)
	prefixSecondary  = byte(0x10)
	secondarySepByte = byte(0x00)
	prefixMeta       = byte(0x7F)
)

// Table is a handle to one logical table. Callers address entries by their logical key;
// the table prefix is added and stripped by the transaction.
//
// Tables are plain values, created once when the engine opens and safe to share
// between goroutines.
type Table struct {
	name     string
	property string
	prefix   []byte
}

func newTable(name string, prefix ...byte) Table {
	return Table{name: name, prefix: prefix}
}

func newIndexTable(def IndexDef) Table {
	prefix := make([]byte, 0, len(def.Name)+2)
	prefix = append(prefix, prefixSecondary)
	prefix = append(prefix, def.Name...)
	prefix = append(prefix, secondarySepByte)
	return Table{name: def.Name, property: def.PropertyKey(), prefix: prefix}
}

// Name returns the table name.
func (t Table) Name() string { return t.name }

// Property returns the node property a secondary index table covers. Empty for
// primary and adjacency tables.
func (t Table) Property() string { return t.property }

// IsZero reports whether t is an unset handle.
func (t Table) IsZero() bool { return len(t.prefix) == 0 }

// String returns the table name.
func (t Table) String() string { return t.name }

func (t Table) key(k []byte) []byte {
	full := make([]byte, 0, len(t.prefix)+len(k))
	full = append(full, t.prefix...)
	return append(full, k...)
}

func (t Table) strip(full []byte) []byte {
	return bytes.Clone(full[len(t.prefix):])
}

// highWaterKey is the meta key holding the greatest key ever appended to t. Deletes
// never lower it, so appended ids are not handed out twice.
func highWaterKey(t Table) []byte {
	k := make([]byte, 0, 3+len(t.prefix))
	k = append(k, prefixMeta, 'h', 'w')
	return append(k, t.prefix...)
}

// AdjacencyKey builds the logical key of an adjacency entry: node id followed by edge id.
func AdjacencyKey(node, edge ids.ID) []byte {
	k := make([]byte, 0, 2*ids.Size)
	k = append(k, node[:]...)
	return append(k, edge[:]...)
}

// SplitAdjacencyKey reverses AdjacencyKey.
func SplitAdjacencyKey(k []byte) (node, edge ids.ID, err error) {
	if len(k) != 2*ids.Size {
		return ids.Nil, ids.Nil, fmt.Errorf("%w: adjacency key of %d bytes", ErrDecode, len(k))
	}
	copy(node[:], k[:ids.Size])
	copy(edge[:], k[ids.Size:])
	return node, edge, nil
}

func validateIndexDefs(defs []IndexDef) error {
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidIndex)
		}
		if bytes.IndexByte([]byte(d.Name), secondarySepByte) >= 0 {
			return fmt.Errorf("%w: name %q contains NUL", ErrInvalidIndex, d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidIndex, d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}
