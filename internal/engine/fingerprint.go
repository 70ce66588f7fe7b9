package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/lakekit-io/lakekit/internal/ir"
)

// Fingerprint derives the change-detection digest for a node: a hash over
// the canonical serialization of its properties and its version field.
//
// The declared timestamp is excluded: re-declaring identical intent with a
// fresh timestamp must not force re-application. Only a property change or
// a version bump does. The version bump exists because some external state
// (permission grants, catalog registrations) cannot be read back and must
// be re-asserted deliberately.
func Fingerprint(node *ir.Node) string {
	props, err := json.Marshal(normalizeValue(node.Properties))
	if err != nil {
		// Properties come from config evaluation and are always
		// JSON-representable; keep the digest total anyway.
		props = []byte(fmt.Sprintf("%v", node.Properties))
	}

	h := sha256.New()
	h.Write(props)
	h.Write([]byte("|v=" + node.Version))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeValue rewrites PKL-evaluated values into plain JSON-friendly
// shapes. encoding/json serializes map keys in sorted order, which gives
// the stable key ordering the digest depends on.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		newMap := make(map[string]any, len(val))
		for k, v := range val {
			newMap[fmt.Sprintf("%v", k)] = normalizeValue(v)
		}
		return newMap
	case map[string]any:
		newMap := make(map[string]any, len(val))
		for k, v := range val {
			newMap[k] = normalizeValue(v)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(val))
		for i, v := range val {
			newSlice[i] = normalizeValue(v)
		}
		return newSlice
	default:
		return val
	}
}
