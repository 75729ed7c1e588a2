package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStringLists_KeepsKeyOrder(t *testing.T) {
	data := []byte(`{"Zoo": ["b"], "Art": ["a", "c"], "Pets_slash_Dogs": []}`)

	got, err := DecodeStringLists(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"Zoo", "Art", "Pets_slash_Dogs"}, got.Keys)
	assert.Equal(t, []string{"a", "c"}, got.Values["Art"])
	assert.Empty(t, got.Values["Pets_slash_Dogs"])
}

func TestDecodeStringLists_EmptyForms(t *testing.T) {
	for _, input := range []string{``, `null`, `[]`, `{}`, "  {}  "} {
		t.Run(input, func(t *testing.T) {
			got, err := DecodeStringLists([]byte(input))
			require.NoError(t, err)
			assert.Empty(t, got.Keys)
			assert.Empty(t, got.Values)
		})
	}
}

func TestDecodeStringLists_RepeatedKey(t *testing.T) {
	got, err := DecodeStringLists([]byte(`{"a": ["1"], "b": ["2"], "a": ["3"]}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, got.Keys)
	assert.Equal(t, []string{"3"}, got.Values["a"])
}

func TestDecodeStringLists_Rejects(t *testing.T) {
	tests := map[string]string{
		"non-empty array": `["a"]`,
		"scalar":          `"text"`,
		"number values":   `{"a": [1]}`,
		"truncated":       `{"a": ["x"]`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeStringLists([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestEncodeStringLists_WritesGivenOrder(t *testing.T) {
	data, err := EncodeStringLists(
		[]string{"Zoo", "Art"},
		map[string][]string{"Art": {"a"}, "Zoo": {"z", "y"}},
	)
	require.NoError(t, err)
	assert.Equal(t, `{"Zoo":["z","y"],"Art":["a"]}`, string(data))
}
