// Package storage - Record codec for nodes and edges.
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/pool"
	"github.com/vmihailenco/msgpack/v5"
)

// Record format:
//
//	version(1) | msgpack body | xxhash64(version+body) big-endian(8)
//
// Node body: [id bytes, label, properties]
// Edge body: [id bytes, label, from bytes, to bytes, properties]
//
// Property maps are written with sorted keys, so encoding is deterministic.
const (
	recordVersion byte = 0x01
	checksumSize       = 8
	nodeFields         = 3
	edgeFields         = 5
)

// EncodeNode serializes a node record.
func EncodeNode(n *Node) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", ErrEncode)
	}
	return encodeRecord(func(enc *msgpack.Encoder) error {
		if err := enc.EncodeArrayLen(nodeFields); err != nil {
			return err
		}
		if err := enc.EncodeBytes(n.ID[:]); err != nil {
			return err
		}
		if err := enc.EncodeString(n.Label); err != nil {
			return err
		}
		return encodeValueMap(enc, n.Properties)
	})
}

// DecodeNode parses a node record. The returned node always has a non-nil property map.
func DecodeNode(data []byte) (*Node, error) {
	n := &Node{}
	err := decodeRecord(data, func(dec *msgpack.Decoder) error {
		if err := expectFields(dec, nodeFields); err != nil {
			return err
		}
		var err error
		if n.ID, err = decodeID(dec); err != nil {
			return err
		}
		if n.Label, err = dec.DecodeString(); err != nil {
			return err
		}
		n.Properties, err = decodeValueMap(dec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// EncodeEdge serializes an edge record.
func EncodeEdge(e *Edge) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil edge", ErrEncode)
	}
	return encodeRecord(func(enc *msgpack.Encoder) error {
		if err := enc.EncodeArrayLen(edgeFields); err != nil {
			return err
		}
		if err := enc.EncodeBytes(e.ID[:]); err != nil {
			return err
		}
		if err := enc.EncodeString(e.Label); err != nil {
			return err
		}
		if err := enc.EncodeBytes(e.From[:]); err != nil {
			return err
		}
		if err := enc.EncodeBytes(e.To[:]); err != nil {
			return err
		}
		return encodeValueMap(enc, e.Properties)
	})
}

// DecodeEdge parses an edge record.
func DecodeEdge(data []byte) (*Edge, error) {
	e := &Edge{}
	err := decodeRecord(data, func(dec *msgpack.Decoder) error {
		if err := expectFields(dec, edgeFields); err != nil {
			return err
		}
		var err error
		if e.ID, err = decodeID(dec); err != nil {
			return err
		}
		if e.Label, err = dec.DecodeString(); err != nil {
			return err
		}
		if e.From, err = decodeID(dec); err != nil {
			return err
		}
		if e.To, err = decodeID(dec); err != nil {
			return err
		}
		e.Properties, err = decodeValueMap(dec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func encodeRecord(body func(*msgpack.Encoder) error) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	buf.WriteByte(recordVersion)
	if err := body(msgpack.NewEncoder(buf)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	out := make([]byte, buf.Len(), buf.Len()+checksumSize)
	copy(out, buf.Bytes())
	return binary.BigEndian.AppendUint64(out, xxhash.Sum64(out)), nil
}

func decodeRecord(data []byte, body func(*msgpack.Decoder) error) error {
	if len(data) < 1+checksumSize {
		return fmt.Errorf("%w: record too short (%d bytes)", ErrDecode, len(data))
	}
	if data[0] != recordVersion {
		return fmt.Errorf("%w: unsupported record version %d", ErrDecode, data[0])
	}
	payload, trailer := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	if want, got := binary.BigEndian.Uint64(trailer), xxhash.Sum64(payload); want != got {
		return fmt.Errorf("%w: checksum mismatch", ErrDecode)
	}

	r := bytes.NewReader(payload[1:])
	if err := body(msgpack.NewDecoder(r)); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrDecode, r.Len())
	}
	return nil
}

func expectFields(dec *msgpack.Decoder, want int) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("record has %d fields, want %d", n, want)
	}
	return nil
}

func decodeID(dec *msgpack.Decoder) (ids.ID, error) {
	raw, err := dec.DecodeBytes()
	if err != nil {
		return ids.Nil, err
	}
	return ids.FromBytes(raw)
}
