package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Field names used for joins and lookups.
const (
	FieldID     = "id"
	FieldName   = "name"
	FieldUserID = "userId"
	FieldPostID = "postId"
)

// Document is a schemaless record. Users keep whatever fields they were
// created with; posts and comments follow Post and Comment.
type Document map[string]any

// DecodeDocument parses a JSON object. Integral numbers become int64.
func DecodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return Normalize(doc), nil
}

// Int returns the field as an integer when it holds an integral number.
func (d Document) Int(field string) (int64, bool) {
	return AsInt(d[field])
}

// Clone returns a shallow copy so callers can attach fields without
// mutating the original.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// AsInt converts any numeric representation produced by JSON decoding or a
// database driver into int64. Non-integral and non-numeric values report false.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return AsInt(f)
	}
	return 0, false
}

// Normalize rewrites numbers in place so every backend hands out the same
// Go types: int64 for integral values, float64 otherwise. Nested objects and
// arrays are normalized recursively.
func Normalize(doc Document) Document {
	for k, v := range doc {
		doc[k] = normalizeValue(v)
	}
	return doc
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return normalizeValue(f)
		}
		return n.String()
	case float64:
		if i, ok := AsInt(n); ok && math.Abs(n) < 1<<53 {
			return i
		}
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case map[string]any:
		return map[string]any(Normalize(Document(n)))
	case Document:
		return Normalize(n)
	case []any:
		for i := range n {
			n[i] = normalizeValue(n[i])
		}
		return n
	}
	return v
}

// Truthy reports whether v counts as present for required-field checks:
// null, false, zero, NaN and the empty string are treated as missing.
func Truthy(v any) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case string:
		return n != ""
	case int64:
		return n != 0
	case int:
		return n != 0
	case float64:
		return n != 0 && !math.IsNaN(n)
	case json.Number:
		f, err := n.Float64()
		return err != nil || f != 0
	}
	return true
}
