package event

import (
	"fmt"
	"maps"
)

// Tags is an open set of scalar values attached to every outgoing context.
type Tags map[string]any

// Set stores value under key. Only strings, booleans, integers and floats are
// accepted.
func (t Tags) Set(key string, value any) error {
	if key == "" {
		return fmt.Errorf("bugshot: empty tag key")
	}
	switch value.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		t[key] = value
		return nil
	default:
		return fmt.Errorf("bugshot: tag %q has non-scalar value of type %T", key, value)
	}
}

// Clone returns a copy, or nil for an empty set.
func (t Tags) Clone() Tags {
	if len(t) == 0 {
		return nil
	}
	return maps.Clone(t)
}
