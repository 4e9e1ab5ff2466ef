// Package chainjson holds small decoding helpers for the REST and event
// payload shapes the chain gateway consumes. Cosmos/Tendermint-style
// nodes mix camelCase and snake_case across endpoints and even across
// versions of the same endpoint; rather than fail the whole stream on an
// unexpected spelling, every decoder here tries both and tolerates
// missing optional fields.
package chainjson

import (
	"encoding/json"
	"fmt"
)

// Object is a loosely-typed JSON object view used as the entry point for
// flexible field lookups.
type Object map[string]json.RawMessage

// Field returns the raw value for the first of the given key spellings
// present in the object, or nil if none are present.
func (o Object) Field(names ...string) json.RawMessage {
	for _, n := range names {
		if v, ok := o[n]; ok {
			return v
		}
	}
	return nil
}

// String decodes the first present key spelling as a string.
func (o Object) String(names ...string) (string, bool) {
	raw := o.Field(names...)
	if raw == nil {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Sub decodes the first present key spelling as a nested Object.
func (o Object) Sub(names ...string) (Object, bool) {
	raw := o.Field(names...)
	if raw == nil {
		return nil, false
	}
	var sub Object
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, false
	}
	return sub, true
}

// Slice decodes the first present key spelling as a slice of Objects.
func (o Object) Slice(names ...string) ([]Object, bool) {
	raw := o.Field(names...)
	if raw == nil {
		return nil, false
	}
	var out []Object
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// StringSlice decodes the first present key spelling as a slice of
// strings, for fields like btc_pks that carry flat string arrays rather
// than nested objects.
func (o Object) StringSlice(names ...string) ([]string, bool) {
	raw := o.Field(names...)
	if raw == nil {
		return nil, false
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// FlexUint decodes a raw JSON value as an unsigned integer, tolerating
// both the quoted-string encoding Cosmos SDK uses for 64-bit values and
// bare JSON numbers.
func FlexUint(raw json.RawMessage) (uint64, bool) {
	if raw == nil {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var n uint64
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			return n, true
		}
		return 0, false
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	return 0, false
}

// ParseObject decodes raw bytes into a flexible Object, failing only the
// individual payload rather than the caller's stream.
func ParseObject(raw []byte) (Object, error) {
	var o Object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("chainjson: parse object: %w", err)
	}
	return o, nil
}
