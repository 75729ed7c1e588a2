package resource

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ID
	}{
		{"integer", `7`, "7"},
		{"zero", `0`, "0"},
		{"string", `"abc"`, "abc"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestID_UnmarshalJSON_RejectsObjects(t *testing.T) {
	var got ID
	assert.Error(t, json.Unmarshal([]byte(`{"$oid": "x"}`), &got))
}

func TestID_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Num ID `json:"num"`
		Str ID `json:"str"`
	}{Num: "12", Str: "a@b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"num": 12, "str": "a@b"}`, string(data))
}

func TestID_MarshalJSON_NonCanonicalDigits(t *testing.T) {
	for _, id := range []ID{"+12", "007", "-0", "000000000000000000000001"} {
		data, err := json.Marshal(id)
		require.NoError(t, err, id)
		assert.Equal(t, strconv.Quote(string(id)), string(data))
	}
}

func TestMeta_OmitsEmptyID(t *testing.T) {
	data, err := json.Marshal(struct {
		Meta
		Type string `json:"type"`
	}{Type: "email"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "email"}`, string(data))
}
