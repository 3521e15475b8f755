package store

import (
	"bytes"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/petrijr/jobseal/pkg/api"
)

// EncodeDocument msgpack-encodes doc. Map keys are sorted so equal
// documents always encode to equal bytes.
func EncodeDocument(doc api.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeDocument decodes a document produced by EncodeDocument.
// Integers decode as int64, floats as float64 and binary values as []byte.
func DecodeDocument(data []byte) (api.Document, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return api.Document{}, nil
	}
	for k, v := range doc {
		doc[k] = normalize(v)
	}
	return doc, nil
}

// normalize widens the sized numbers msgpack hands back for interface
// values. Unsigned values beyond MaxInt64 stay uint64.
func normalize(v any) any {
	switch n := v.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
		return n
	case float32:
		return float64(n)
	case map[string]any:
		for k, e := range n {
			n[k] = normalize(e)
		}
		return n
	case []any:
		for i, e := range n {
			n[i] = normalize(e)
		}
		return n
	default:
		return v
	}
}

// Equal reports whether two documents have the same encoding.
func Equal(a, b api.Document) bool {
	ab, errA := EncodeDocument(a)
	bb, errB := EncodeDocument(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
