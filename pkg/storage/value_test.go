package storage

import (
	"testing"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_BinaryRoundTrip(t *testing.T) {
	values := []Value{
		Empty(),
		NewString(""),
		NewString("Bob"),
		NewInt(-42),
		NewUint(1 << 63),
		NewFloat(3.25),
		NewBool(true),
		NewID(ids.New()),
		NewArray(NewInt(1), NewArray(NewString("nested"))),
		NewObject(map[string]Value{"a": NewInt(1), "b": NewBool(false)}),
	}
	for _, v := range values {
		t.Run(v.Kind().String(), func(t *testing.T) {
			data, err := v.MarshalBinary()
			require.NoError(t, err)

			var back Value
			require.NoError(t, back.UnmarshalBinary(data))
			assert.Equal(t, v, back)
		})
	}
}

func TestValue_KindsEncodeDistinctly(t *testing.T) {
	// Same numeric payload, different tags: index keys must not collide.
	a, err := NewInt(1).MarshalBinary()
	require.NoError(t, err)
	b, err := NewUint(1).MarshalBinary()
	require.NoError(t, err)
	c, err := NewBool(true).MarshalBinary()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)

	s1, _ := NewString("1").MarshalBinary()
	assert.NotEqual(t, a, s1)
}

func TestValue_UnmarshalRejectsTrailingBytes(t *testing.T) {
	data, err := NewString("x").MarshalBinary()
	require.NoError(t, err)
	var v Value
	assert.ErrorIs(t, v.UnmarshalBinary(append(data, 0x01)), ErrDecode)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"name": "Ada",
		"age":  36,
		"tags": []any{"x", 1.5, true},
		"none": nil,
	})
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())

	obj, ok := v.AsObject()
	require.True(t, ok)
	name, ok := obj["name"].AsString()
	assert.True(t, ok)
	assert.Equal(t, "Ada", name)
	age, ok := obj["age"].AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(36), age)
	assert.True(t, obj["none"].IsEmpty())

	tags, ok := obj["tags"].AsArray()
	require.True(t, ok)
	require.Len(t, tags, 3)
	f, ok := tags[1].AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)

	assert.Equal(t, map[string]any{
		"name": "Ada",
		"age":  int64(36),
		"tags": []any{"x", 1.5, true},
		"none": nil,
	}, v.Any())

	_, err = FromAny(struct{}{})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, NewString("a").Equal(NewString("a")))
	assert.False(t, NewString("a").Equal(NewString("b")))
	assert.False(t, NewInt(1).Equal(NewUint(1)))
	assert.True(t, NewArray(NewInt(1)).Equal(NewArray(NewInt(1))))
	assert.False(t, NewArray(NewInt(1)).Equal(NewArray(NewInt(1), NewInt(2))))
	assert.True(t, NewObject(map[string]Value{"k": Empty()}).Equal(NewObject(map[string]Value{"k": Empty()})))
	assert.False(t, NewObject(map[string]Value{"k": Empty()}).Equal(NewObject(map[string]Value{"j": Empty()})))
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, `"Ada"`, NewString("Ada").String())
	assert.Equal(t, "42", NewInt(42).String())
	assert.Equal(t, "true", NewBool(true).String())
	assert.Equal(t, `[1, "x"]`, NewArray(NewInt(1), NewString("x")).String())
	assert.Equal(t, `{a: 1, b: 2}`, NewObject(map[string]Value{"b": NewInt(2), "a": NewInt(1)}).String())
	assert.Equal(t, "<empty>", Empty().String())
}
