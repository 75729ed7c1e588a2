// Package jsonx decodes JSON objects whose key order carries meaning.
package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// StringLists is a decoded {key: [string, ...]} object with its key order.
type StringLists struct {
	Keys   []string
	Values map[string][]string
}

// DecodeStringLists decodes an object mapping keys to string arrays while
// keeping the order in which keys first appear. null, an empty input and an
// empty array all decode to an empty result. A repeated key keeps its first
// position and its last value, matching what a browser object would hold.
func DecodeStringLists(data []byte) (StringLists, error) {
	out := StringLists{Values: make(map[string][]string)}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("read opening token: %w", err)
	}

	switch tok {
	case nil:
		return out, nil
	case json.Delim('['):
		end, err := dec.Token()
		if err != nil {
			return out, fmt.Errorf("read array: %w", err)
		}
		if end != json.Delim(']') {
			return out, errors.New("expected an object or an empty array")
		}
		return out, nil
	case json.Delim('{'):
	default:
		return out, fmt.Errorf("unexpected token %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return out, fmt.Errorf("read key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return out, fmt.Errorf("unexpected key token %v", keyTok)
		}

		var values []string
		if err := dec.Decode(&values); err != nil {
			return out, fmt.Errorf("decode values for %q: %w", key, err)
		}

		if _, seen := out.Values[key]; !seen {
			out.Keys = append(out.Keys, key)
		}
		out.Values[key] = values
	}

	if _, err := dec.Token(); err != nil {
		return out, fmt.Errorf("read closing token: %w", err)
	}
	return out, nil
}

// EncodeStringLists writes keys in the given order. Keys missing from values
// encode as empty arrays.
func EncodeStringLists(keys []string, values map[string][]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		list := values[key]
		if list == nil {
			list = []string{}
		}
		v, err := json.Marshal(list)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
