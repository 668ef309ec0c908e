package lockfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// canonicalizeValue and canonicalMap below are adapted from the teacher's
// internal/locker/canonical.go CanonV1 implementation: a JSON encoding with
// deterministically sorted object keys. Go's encoding/json already sorts
// map[string]T keys on marshal, so this is only needed when a value carries
// nested map[string]interface{} (e.g. a Finding's Details, or a raw
// registry/policy document) where key order would otherwise depend on map
// iteration order in intermediate representations.
func canonicalizeJSON(v interface{}) ([]byte, error) {
	return json.Marshal(canonicalizeValue(v))
}

func canonicalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return canonicalizeMap(val)
	case []interface{}:
		return canonicalizeSlice(val)
	default:
		return v
	}
}

func canonicalizeMap(m map[string]interface{}) *orderedMap {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	om := &orderedMap{keys: keys, values: make(map[string]interface{}, len(m))}
	for k, v := range m {
		om.values[k] = canonicalizeValue(v)
	}
	return om
}

func canonicalizeSlice(s []interface{}) []interface{} {
	result := make([]interface{}, len(s))
	for i, v := range s {
		result[i] = canonicalizeValue(v)
	}
	return result
}

type orderedMap struct {
	keys   []string
	values map[string]interface{}
}

func (om *orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range om.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		valueJSON, err := json.Marshal(om.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(valueJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// hashJSON sha256-hashes the canonical encoding of v, for the receipt audit
// trail's decision fingerprints.
func hashJSON(v interface{}) (string, error) {
	canonical, err := canonicalizeJSON(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("sha256:%x", sum), nil
}
