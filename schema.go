// Strict-mode schema shape capture and comparison.
//
// When strict mode is enabled, the first successful put captures the
// document's structural shape: every field, at every nesting depth,
// replaced by a type marker instead of its value. Subsequent puts are
// hashed the same way and compared against the captured hash; a
// mismatch fails with SchemaMismatch.
package zds

import (
	"math"

	"github.com/zeebo/xxh3"
)

// extractSchema walks a decoded JSON value and replaces every scalar
// with a type marker, recursing into objects and arrays so that a
// change buried inside a nested value (an object field's type
// changing, or an array's element type changing) is not lost the way
// a top-level-only comparison would lose it. An array's shape is
// derived from its first element only, matching the common case of a
// homogeneous array; an empty array has an empty shape.
func extractSchema(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[k] = extractSchema(val)
		}
		return out
	case []any:
		if len(vv) == 0 {
			return []any{}
		}
		return []any{extractSchema(vv[0])}
	case string:
		return "string"
	case float64:
		if vv == math.Trunc(vv) {
			return "integer"
		}
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "string"
	}
}

// shapeOf derives a document's recursive structural schema, skipping
// the top-level "_id" field since every document has one and it is
// always a string.
func shapeOf(doc map[string]any) map[string]any {
	schema := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		schema[k] = extractSchema(v)
	}
	return schema
}

// shapeHash hashes a document's recursive shape with xxh3 for cheap
// comparison across puts. jsonMarshal sorts map keys, so two documents
// with the same shape always marshal to byte-identical schema
// documents regardless of field order.
func shapeHash(doc map[string]any) uint64 {
	schema := shapeOf(doc)
	data, err := jsonMarshal(schema)
	if err != nil {
		// The extracted schema holds only plain maps, slices, and marker
		// strings, so it cannot fail to marshal in practice; fall back to
		// an empty shape rather than propagate an error from a pure
		// hashing helper.
		data = []byte("{}")
	}
	return xxh3.Hash(data)
}
