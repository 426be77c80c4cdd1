package filter

import (
	"strings"
)

// Set is the ordered bundle of filter values read for one refresh cycle.
// It is a value object: With returns a modified copy.
type Set struct {
	keys   []string
	values map[string][]string
}

// NewSet builds a set from alternating key/value pairs.
func NewSet(pairs ...string) Set {
	var s Set
	for i := 0; i+1 < len(pairs); i += 2 {
		s = s.With(pairs[i], pairs[i+1])
	}
	return s
}

// With returns a copy of s with key set to values. Re-setting a key keeps its position.
func (s Set) With(key string, values ...string) Set {
	out := Set{
		keys:   make([]string, len(s.keys), len(s.keys)+1),
		values: make(map[string][]string, len(s.values)+1),
	}
	copy(out.keys, s.keys)
	for k, v := range s.values {
		out.values[k] = v
	}
	if _, ok := out.values[key]; !ok {
		out.keys = append(out.keys, key)
	}
	out.values[key] = append([]string(nil), values...)
	return out
}

// Keys returns the keys in read order.
func (s Set) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Has reports whether key was read.
func (s Set) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Get returns the single value of key, or "" when absent.
// Multi-valued keys come back comma-joined.
func (s Set) Get(key string) string {
	return strings.Join(s.values[key], ",")
}

// Values returns every value of key.
func (s Set) Values(key string) []string {
	return append([]string(nil), s.values[key]...)
}

// Len returns the number of keys.
func (s Set) Len() int {
	return len(s.keys)
}

// Map flattens the set for logging, events and persistence.
func (s Set) Map() map[string]string {
	out := make(map[string]string, len(s.keys))
	for _, k := range s.keys {
		out[k] = s.Get(k)
	}
	return out
}

// Equal reports whether both sets carry the same keys and values.
func (s Set) Equal(o Set) bool {
	if len(s.keys) != len(o.keys) {
		return false
	}
	for _, k := range s.keys {
		a, b := s.values[k], o.values[k]
		if _, ok := o.values[k]; !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
