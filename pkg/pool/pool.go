// Package pool provides object pooling for graphkv to reduce allocations.
//
// Object pooling reuses allocated objects instead of creating new ones,
// reducing GC pressure on hot paths.
//
// Pooled objects:
// - Encode buffers (record codec, index keys)
// - ID slices (adjacency scans)
//
// Usage:
//
//	buf := pool.GetBuffer()
//	defer pool.PutBuffer(buf)
//
//	// Use the buffer, copy out what must outlive it...
package pool

import (
	"bytes"
	"sync"

	"github.com/orneryd/graphkv/pkg/ids"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize limits the capacity (in elements) of slices kept in a pool
	MaxSize int

	// MaxBufferSize limits the capacity in bytes of buffers kept in a pool
	MaxBufferSize int
}

var (
	mu           sync.RWMutex
	globalConfig = DefaultConfig()
)

// DefaultConfig returns pooling enabled with conservative size limits.
func DefaultConfig() PoolConfig {
	return PoolConfig{
		Enabled:       true,
		MaxSize:       1000,
		MaxBufferSize: 1 << 20,
	}
}

// Configure sets global pool configuration.
// Should be called early during initialization.
func Configure(config PoolConfig) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = config
}

func current() PoolConfig {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return current().Enabled
}

// =============================================================================
// Buffer Pool
// =============================================================================

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

// GetBuffer returns an empty buffer. Call PutBuffer when done, after copying out any
// bytes that must outlive it.
func GetBuffer() *bytes.Buffer {
	if !IsEnabled() {
		return bytes.NewBuffer(make([]byte, 0, 256))
	}
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool.
func PutBuffer(buf *bytes.Buffer) {
	cfg := current()
	if !cfg.Enabled || buf == nil {
		return
	}
	// Don't pool huge buffers
	if buf.Cap() > cfg.MaxBufferSize {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// =============================================================================
// ID Slice Pool
// =============================================================================

var idSlicePool = sync.Pool{
	New: func() any {
		return make([]ids.ID, 0, 16)
	},
}

// GetIDSlice returns an empty ID slice. Call PutIDSlice when done.
func GetIDSlice() []ids.ID {
	if !IsEnabled() {
		return make([]ids.ID, 0, 16)
	}
	return idSlicePool.Get().([]ids.ID)[:0]
}

// PutIDSlice returns an ID slice to the pool.
func PutIDSlice(s []ids.ID) {
	cfg := current()
	if !cfg.Enabled || s == nil {
		return
	}
	if cap(s) > cfg.MaxSize {
		return
	}
	idSlicePool.Put(s[:0])
}
