package types

import "fmt"

// MetadataDoc is the open metadata document attached to a memory. It is
// opaque to the routing and index layers: only the module that owns a record
// interprets its shape. Validation happens once, at the module boundary,
// against a small closed set of value kinds.
type MetadataDoc map[string]interface{}

// maxMetadataKeys bounds the document so a single memory cannot bloat the
// store with an unbounded metadata blob.
const maxMetadataKeys = 64

// Validate checks that every value in the document is one of the permitted
// kinds: string, bool, numeric, or a flat list of strings. Nested documents
// and mixed-type arrays are rejected.
func (d MetadataDoc) Validate() error {
	if len(d) > maxMetadataKeys {
		return fmt.Errorf("metadata has %d keys, maximum is %d", len(d), maxMetadataKeys)
	}
	for key, value := range d {
		if key == "" {
			return fmt.Errorf("metadata contains an empty key")
		}
		switch v := value.(type) {
		case string, bool, int, int32, int64, float32, float64, nil:
			// scalar kinds are fine
		case []string:
			// flat string list is fine
		case []interface{}:
			for i, elem := range v {
				if _, ok := elem.(string); !ok {
					return fmt.Errorf("metadata key %q: array element %d is %T, only strings are allowed in arrays", key, i, elem)
				}
			}
		default:
			return fmt.Errorf("metadata key %q has unsupported value type %T", key, value)
		}
	}
	return nil
}

// StringList returns the value for key as a []string, accepting both
// []string and []interface{} (the shape produced by JSON decoding).
func (d MetadataDoc) StringList(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Clone returns a shallow copy of the document. Array values are copied so
// the clone cannot alias the original's slices.
func (d MetadataDoc) Clone() MetadataDoc {
	if d == nil {
		return nil
	}
	out := make(MetadataDoc, len(d))
	for key, value := range d {
		switch v := value.(type) {
		case []string:
			out[key] = append([]string(nil), v...)
		case []interface{}:
			out[key] = append([]interface{}(nil), v...)
		default:
			out[key] = value
		}
	}
	return out
}
