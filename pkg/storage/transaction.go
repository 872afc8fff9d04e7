// Package storage - Transactions over the Badger keyspace.
//
// A Txn wraps one Badger transaction. Every table operation takes the Txn explicitly;
// there is no ambient transaction. Write transactions hold the engine's writer lock
// until Commit or Rollback, which gives the single-writer model: at most one write
// transaction is active per engine, while read transactions see a consistent snapshot.
//
// Writes issued through a Txn are not applied to the database until Commit. Rolling
// back discards every write made in the transaction, including the partial effects of an
// operator that failed half way through.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/orneryd/graphkv/pkg/ids"
)

// TransactionStatus represents the current state of a transaction.
type TransactionStatus string

const (
	TxStatusActive     TransactionStatus = "active"
	TxStatusCommitted  TransactionStatus = "committed"
	TxStatusRolledBack TransactionStatus = "rolled_back"
)

// Txn is a storage transaction.
//
// Thread Safety:
//
//	Calls are serialized by an internal mutex, but a transaction is meant to be driven
//	by one goroutine at a time, together with every traversal derived from it.
type Txn struct {
	mu       sync.Mutex
	engine   *BadgerEngine
	btx      *badger.Txn
	writable bool
	status   TransactionStatus
}

func newTxn(engine *BadgerEngine, btx *badger.Txn, writable bool) *Txn {
	return &Txn{engine: engine, btx: btx, writable: writable, status: TxStatusActive}
}

// Writable reports whether the transaction accepts writes.
func (tx *Txn) Writable() bool { return tx.writable }

// Status returns the transaction status.
func (tx *Txn) Status() TransactionStatus {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.status
}

// IsActive returns true if the transaction is neither committed nor rolled back.
func (tx *Txn) IsActive() bool { return tx.Status() == TxStatusActive }

// Closed reports whether the transaction was committed or rolled back.
func (tx *Txn) Closed() bool { return !tx.IsActive() }

func (tx *Txn) checkActive(write bool) error {
	if tx.status != TxStatusActive {
		return ErrTransactionClosed
	}
	if write && !tx.writable {
		return ErrReadOnly
	}
	return nil
}

// Put writes key -> val in table, overwriting any existing entry.
func (tx *Txn) Put(t Table, key, val []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkActive(true); err != nil {
		return err
	}
	if err := tx.btx.Set(t.key(key), val); err != nil {
		return fmt.Errorf("writing %s: %w", t.name, err)
	}
	return nil
}

// PutPrimary writes a record keyed by id.
//
// With appendHint set, the key must be greater than every key ever appended to the
// table, including keys written earlier in this transaction and keys whose records have
// since been deleted. A key that violates the ordering is rejected with
// ErrKeyOutOfOrder and nothing is written. An existing or dropped id is rejected the
// same way, so an append never overwrites and never reuses an id.
func (tx *Txn) PutPrimary(t Table, id ids.ID, val []byte, appendHint bool) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkActive(true); err != nil {
		return err
	}
	if appendHint {
		floor, ok := tx.lastKey(t)
		hw, err := tx.highWater(t)
		if err != nil {
			return err
		}
		if hw != nil && (!ok || bytes.Compare(hw, floor) > 0) {
			floor, ok = hw, true
		}
		if ok && bytes.Compare(id[:], floor) <= 0 {
			return fmt.Errorf("%w: %s key %s not after %x", ErrKeyOutOfOrder, t.name, id, floor)
		}
	}
	if err := tx.btx.Set(t.key(id[:]), val); err != nil {
		return fmt.Errorf("writing %s: %w", t.name, err)
	}
	if appendHint {
		if err := tx.btx.Set(highWaterKey(t), id.Bytes()); err != nil {
			return fmt.Errorf("writing %s high-water mark: %w", t.name, err)
		}
	}
	return nil
}

// highWater returns the greatest key ever appended to t, or nil before the first append.
func (tx *Txn) highWater(t Table) ([]byte, error) {
	item, err := tx.btx.Get(highWaterKey(t))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s high-water mark: %w", t.name, err)
	}
	hw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("reading %s high-water mark: %w", t.name, err)
	}
	return hw, nil
}

// IndexPut writes an index entry mapping key to a node id. An existing entry for the
// same key is replaced.
func (tx *Txn) IndexPut(t Table, key []byte, id ids.ID) error {
	return tx.Put(t, key, id.Bytes())
}

// Get reads the value stored under key. Returns ErrNotFound when absent.
func (tx *Txn) Get(t Table, key []byte) ([]byte, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkActive(false); err != nil {
		return nil, err
	}
	item, err := tx.btx.Get(t.key(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", t.name, err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("reading %s value: %w", t.name, err)
	}
	return val, nil
}

// Has reports whether key exists in table.
func (tx *Txn) Has(t Table, key []byte) (bool, error) {
	_, err := tx.Get(t, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes key from table. Deleting a missing key is not an error.
func (tx *Txn) Delete(t Table, key []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkActive(true); err != nil {
		return err
	}
	if err := tx.btx.Delete(t.key(key)); err != nil {
		return fmt.Errorf("deleting from %s: %w", t.name, err)
	}
	return nil
}

// SeekAfter returns the first entry of table whose logical key starts with prefix and
// sorts strictly after `after` (or the first entry with the prefix when after is nil).
//
// No iterator stays open between calls, so a caller can step through a table one entry
// at a time without holding resources across pulls.
func (tx *Txn) SeekAfter(t Table, prefix, after []byte) (key, val []byte, ok bool, err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkActive(false); err != nil {
		return nil, nil, false, err
	}

	fullPrefix := t.key(prefix)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = fullPrefix
	it := tx.btx.NewIterator(opts)
	defer it.Close()

	start := fullPrefix
	if after != nil {
		start = t.key(after)
	}
	for it.Seek(start); it.ValidForPrefix(fullPrefix); it.Next() {
		item := it.Item()
		k := item.Key()
		if after != nil && bytes.Equal(k, start) {
			continue
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, nil, false, fmt.Errorf("reading %s value: %w", t.name, err)
		}
		return t.strip(k), v, true, nil
	}
	return nil, nil, false, nil
}

// Last returns the greatest key currently stored in a table of fixed-width (id keyed)
// entries. Deleted keys are not considered.
func (tx *Txn) Last(t Table) ([]byte, bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkActive(false); err != nil {
		return nil, false, err
	}
	last, ok := tx.lastKey(t)
	return last, ok, nil
}

func (tx *Txn) lastKey(t Table) ([]byte, bool) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	opts.Prefix = t.prefix
	it := tx.btx.NewIterator(opts)
	defer it.Close()

	// Reverse Seek lands on the greatest key <= seek; every id key is shorter than this.
	seek := t.key(bytes.Repeat([]byte{0xFF}, ids.Size+1))
	it.Seek(seek)
	if !it.ValidForPrefix(t.prefix) {
		return nil, false
	}
	return t.strip(it.Item().Key()), true
}

// Count returns the number of entries in table.
func (tx *Txn) Count(t Table) (int, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkActive(false); err != nil {
		return 0, err
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = t.prefix
	it := tx.btx.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.ValidForPrefix(t.prefix); it.Next() {
		n++
	}
	return n, nil
}

// GetNode reads and decodes a node record.
func (tx *Txn) GetNode(id ids.ID) (*Node, error) {
	data, err := tx.Get(tx.engine.nodes, id[:])
	if err != nil {
		return nil, err
	}
	return DecodeNode(data)
}

// GetEdge reads and decodes an edge record.
func (tx *Txn) GetEdge(id ids.ID) (*Edge, error) {
	data, err := tx.Get(tx.engine.edges, id[:])
	if err != nil {
		return nil, err
	}
	return DecodeEdge(data)
}

// Commit applies every write made in the transaction. Committing a read transaction
// just releases its snapshot.
func (tx *Txn) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.status != TxStatusActive {
		return ErrTransactionClosed
	}
	defer tx.release()

	if !tx.writable {
		tx.btx.Discard()
		tx.status = TxStatusCommitted
		return nil
	}
	if err := tx.btx.Commit(); err != nil {
		tx.status = TxStatusRolledBack
		return fmt.Errorf("badger commit failed: %w", err)
	}
	tx.status = TxStatusCommitted
	return nil
}

// Rollback discards every write made in the transaction.
func (tx *Txn) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.status != TxStatusActive {
		return ErrTransactionClosed
	}
	tx.btx.Discard()
	tx.status = TxStatusRolledBack
	tx.release()
	return nil
}

func (tx *Txn) release() {
	if tx.writable {
		tx.engine.writeMu.Unlock()
	}
}
