package storage

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cespare/xxhash/v2"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNode() *Node {
	return &Node{
		ID:    ids.New(),
		Label: "person",
		Properties: map[string]Value{
			"name":    NewString("Ada"),
			"born":    NewInt(1815),
			"height":  NewFloat(1.65),
			"alive":   NewBool(false),
			"papers":  NewUint(3),
			"mentor":  NewID(ids.New()),
			"nothing": Empty(),
			"tags":    NewArray(NewString("math"), NewString("poetry")),
			"address": NewObject(map[string]Value{
				"city": NewString("London"),
				"zip":  NewArray(),
			}),
		},
	}
}

func TestNodeCodec_RoundTrip(t *testing.T) {
	n := sampleNode()

	data, err := EncodeNode(n)
	require.NoError(t, err)

	decoded, err := DecodeNode(data)
	require.NoError(t, err)
	assert.Equal(t, n, decoded)
	assert.True(t, n.Equal(decoded))
}

func TestNodeCodec_EmptyProperties(t *testing.T) {
	n := &Node{ID: ids.New(), Label: "empty", Properties: map[string]Value{}}
	data, err := EncodeNode(n)
	require.NoError(t, err)

	decoded, err := DecodeNode(data)
	require.NoError(t, err)
	assert.Equal(t, n, decoded)
}

func TestNodeCodec_Deterministic(t *testing.T) {
	n := sampleNode()
	first, err := EncodeNode(n)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := EncodeNode(CopyNode(n))
		require.NoError(t, err)
		require.True(t, bytes.Equal(first, again), "encoding differs on attempt %d", i)
	}
}

func TestNodeCodec_EncodeRejectsMalformedValue(t *testing.T) {
	n := &Node{ID: ids.New(), Label: "bad", Properties: map[string]Value{
		"broken": {kind: kindCount + 3},
	}}
	_, err := EncodeNode(n)
	assert.ErrorIs(t, err, ErrEncode)

	_, err = EncodeNode(nil)
	assert.ErrorIs(t, err, ErrEncode)
}

func TestNodeCodec_DecodeRejectsCorruption(t *testing.T) {
	data, err := EncodeNode(sampleNode())
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", data[:len(data)-3]},
		{"bit flip", func() []byte {
			c := bytes.Clone(data)
			c[len(c)/2] ^= 0x40
			return c
		}()},
		{"unknown version", func() []byte {
			c := bytes.Clone(data)
			c[0] = 0x7F
			return c
		}()},
		{"foreign bytes", []byte("definitely not a node record")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNode(tt.data)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestEdgeCodec_RoundTrip(t *testing.T) {
	e := &Edge{
		ID:    ids.New(),
		Label: "knows",
		From:  ids.New(),
		To:    ids.New(),
		Properties: map[string]Value{
			"since": NewInt(1833),
		},
	}
	data, err := EncodeEdge(e)
	require.NoError(t, err)

	decoded, err := DecodeEdge(data)
	require.NoError(t, err)
	assert.Equal(t, e, decoded)

	// A node record is not an edge record.
	nodeData, err := EncodeNode(sampleNode())
	require.NoError(t, err)
	_, err = DecodeEdge(nodeData)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestValue_UnmarshalRejectsOversizedHeaders(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"array32 header", []byte{0x92, byte(KindArray), 0xdd, 0xff, 0xff, 0xff, 0xff}},
		{"array32 max int32", []byte{0x92, byte(KindArray), 0xdd, 0x7f, 0xff, 0xff, 0xff}},
		{"map32 header", []byte{0x92, byte(KindObject), 0xdf, 0x7f, 0xff, 0xff, 0xff}},
		{"array with one element", []byte{0x92, byte(KindArray), 0xdd, 0x7f, 0xff, 0xff, 0xff, 0x92, byte(KindBool), 0xc3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			assert.ErrorIs(t, v.UnmarshalBinary(tt.data), ErrDecode)
		})
	}
}

// checksummed wraps a body in a record envelope with a valid checksum.
func checksummed(body []byte) []byte {
	rec := append([]byte{recordVersion}, body...)
	return binary.BigEndian.AppendUint64(rec, xxhash.Sum64(rec))
}

func TestNodeCodec_DecodeRejectsOversizedHeaders(t *testing.T) {
	id := ids.New()
	prefix := append([]byte{0x93, 0xc4, byte(ids.Size)}, id[:]...)
	prefix = append(prefix, 0xa0) // empty label

	tests := []struct {
		name  string
		props []byte
	}{
		{"property map32", []byte{0xdf, 0x7f, 0xff, 0xff, 0xff}},
		{"nested array32", []byte{0x81, 0xa1, 'a', 0x92, byte(KindArray), 0xdd, 0x7f, 0xff, 0xff, 0xff}},
		{"nested map32", []byte{0x81, 0xa1, 'a', 0x92, byte(KindObject), 0xdf, 0x7f, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := append(append([]byte(nil), prefix...), tt.props...)
			_, err := DecodeNode(checksummed(body))
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestValue_LargeArrayRoundTrip(t *testing.T) {
	elems := make([]Value, maxAllocHint*3)
	for i := range elems {
		elems[i] = NewInt(int64(i))
	}
	v := NewArray(elems...)
	data, err := v.MarshalBinary()
	require.NoError(t, err)

	var got Value
	require.NoError(t, got.UnmarshalBinary(data))
	assert.True(t, v.Equal(got))
}
