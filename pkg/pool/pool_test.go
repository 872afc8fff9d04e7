package pool

import (
	"sync"
	"testing"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/stretchr/testify/assert"
)

func TestConfigure(t *testing.T) {
	orig := current()
	defer Configure(orig)

	t.Run("enable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxSize: 500, MaxBufferSize: 4096})
		assert.True(t, IsEnabled())
		assert.Equal(t, 500, current().MaxSize)
	})

	t.Run("disable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false})
		assert.False(t, IsEnabled())

		buf := GetBuffer()
		assert.Zero(t, buf.Len())
		PutBuffer(buf)
		assert.Empty(t, GetIDSlice())
	})
}

func TestBufferPool(t *testing.T) {
	Configure(DefaultConfig())

	t.Run("get returns empty buffer", func(t *testing.T) {
		buf := GetBuffer()
		assert.Zero(t, buf.Len())
		buf.WriteString("dirty")
		PutBuffer(buf)

		again := GetBuffer()
		assert.Zero(t, again.Len())
		PutBuffer(again)
	})

	t.Run("huge buffers are dropped", func(t *testing.T) {
		buf := GetBuffer()
		buf.Grow(2 << 20)
		PutBuffer(buf)
		PutBuffer(nil)
	})
}

func TestIDSlicePool(t *testing.T) {
	Configure(DefaultConfig())

	s := GetIDSlice()
	assert.Empty(t, s)
	s = append(s, ids.New(), ids.New())
	PutIDSlice(s)

	again := GetIDSlice()
	assert.Empty(t, again)
	PutIDSlice(again)
	PutIDSlice(make([]ids.ID, 0, 5000))
}

func TestConcurrentUse(t *testing.T) {
	Configure(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := GetBuffer()
				buf.WriteByte(byte(j))
				PutBuffer(buf)

				s := GetIDSlice()
				s = append(s, ids.Nil)
				PutIDSlice(s)
			}
		}()
	}
	wg.Wait()
}
