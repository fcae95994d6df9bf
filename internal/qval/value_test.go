package qval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGoConversions(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"string", "hi", String("hi")},
		{"int", 7, Int(7)},
		{"int64", int64(9), Int(9)},
		{"float64", 2.5, Float(2.5)},
		{"bool", true, Bool(true)},
		{"int64 slice", []int64{1, 2}, Array{Int(1), Int(2)}},
		{"string slice", []string{"a"}, Array{String("a")}},
		{"map", map[string]any{"n": 1}, Object{"n": Int(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.in)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got))
		})
	}
}

func TestFromGoRejectsNil(t *testing.T) {
	_, err := FromGo(nil)
	assert.Error(t, err)

	_, err = FromGo(map[string]any{"k": nil})
	assert.Error(t, err)
}

func TestToGoInvertsFromGo(t *testing.T) {
	in := map[string]any{
		"ids":  []any{int64(1), int64(2)},
		"name": "Amanita",
		"lat":  44.1,
		"flag": false,
	}
	v, err := FromGo(in)
	require.NoError(t, err)

	out, ok := ToGo(v).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Amanita", out["name"])
	assert.Equal(t, 44.1, out["lat"])
	assert.Equal(t, false, out["flag"])
	assert.Equal(t, []any{int64(1), int64(2)}, out["ids"])
}

func TestEqualDeep(t *testing.T) {
	a := Object{"ids": Array{Int(1), Int(2)}, "f": Float(1.5)}
	b := Object{"f": Float(1.5), "ids": Array{Int(1), Int(2)}}
	c := Object{"f": Float(1.5), "ids": Array{Int(2), Int(1)}}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c), "array order is significant")
	assert.False(t, Equal(Int(1), Float(1)), "types are significant")
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+FF5A (ｚ) sorts after "a" in UTF-16 code units; U+1D306 (𝌆,
	// surrogate pair starting 0xD834) sorts between them, before U+FF5A.
	obj := Object{
		"\U0001D306": Int(1),
		"a":          Int(2),
		"ｚ":     Int(3),
	}
	assert.Equal(t, []string{"a", "\U0001D306", "ｚ"}, obj.SortedKeys())
}

func TestUnmarshalValueNumbers(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"n":3,"f":3.5}`))
	require.NoError(t, err)
	obj := v.(Object)
	assert.Equal(t, Int(3), obj["n"])
	assert.Equal(t, Float(3.5), obj["f"])
}

func TestUnmarshalValueRejectsNull(t *testing.T) {
	_, err := UnmarshalValue([]byte(`{"n":null}`))
	assert.Error(t, err)
}
