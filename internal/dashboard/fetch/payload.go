package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Payload is a decoded backend response addressed by dotted paths.
type Payload map[string]interface{}

// Decode parses raw as a JSON object.
func Decode(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("response is not a JSON object")
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Lookup walks path ("a.b.c") through nested objects.
func (p Payload) Lookup(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(p)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether path exists and is not null.
func (p Payload) Has(path string) bool {
	v, ok := p.Lookup(path)
	return ok && v != nil
}

// Float returns a numeric value. Numeric strings are accepted.
func (p Payload) Float(path string) (float64, bool) {
	v, ok := p.Lookup(path)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// FloatOr returns the number at path or def.
func (p Payload) FloatOr(path string, def float64) float64 {
	if f, ok := p.Float(path); ok {
		return f
	}
	return def
}

// Int returns the value at path truncated to an int.
func (p Payload) Int(path string) (int, bool) {
	f, ok := p.Float(path)
	return int(f), ok
}

// String returns the value at path as text. Numbers are formatted without trailing zeros.
func (p Payload) String(path string) (string, bool) {
	v, ok := p.Lookup(path)
	if !ok || v == nil {
		return "", false
	}
	return toString(v), true
}

// Floats returns a numeric array. Nulls count as zero.
func (p Payload) Floats(path string) ([]float64, bool) {
	arr, ok := p.Array(path)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(arr))
	for i, v := range arr {
		out[i], _ = toFloat(v)
	}
	return out, true
}

// Strings returns an array as text values.
func (p Payload) Strings(path string) ([]string, bool) {
	arr, ok := p.Array(path)
	if !ok {
		return nil, false
	}
	out := make([]string, len(arr))
	for i, v := range arr {
		out[i] = toString(v)
	}
	return out, true
}

// Array returns the raw array at path.
func (p Payload) Array(path string) ([]interface{}, bool) {
	v, ok := p.Lookup(path)
	if !ok {
		return nil, false
	}
	arr, ok := v.([]interface{})
	return arr, ok
}

// Object returns the nested object at path.
func (p Payload) Object(path string) (Payload, bool) {
	v, ok := p.Lookup(path)
	if !ok {
		return nil, false
	}
	m, ok := asMap(v)
	return Payload(m), ok
}

// Objects returns an array of objects; non-object entries are skipped.
func (p Payload) Objects(path string) ([]Payload, bool) {
	arr, ok := p.Array(path)
	if !ok {
		return nil, false
	}
	out := make([]Payload, 0, len(arr))
	for _, v := range arr {
		if m, ok := asMap(v); ok {
			out = append(out, Payload(m))
		}
	}
	return out, true
}

// Keys returns the keys of the object at path in display order (see OrderKeys).
// An empty path lists the top level.
func (p Payload) Keys(path string) []string {
	obj := p
	if path != "" {
		var ok bool
		if obj, ok = p.Object(path); !ok {
			return nil
		}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return OrderKeys(keys)
}

// Known orderings for breakdown keys.
var (
	Weekdays = []string{"lunes", "martes", "miércoles", "jueves", "viernes", "sábado", "domingo"}
	Shifts   = []string{"mañana", "tarde"}
	Statuses = []string{"pendiente", "confirmada", "atendida", "cancelada"}
)

// OrderKeys sorts weekday, shift and status keys in their natural order and
// everything else lexically. Unknown keys follow the known ones.
func OrderKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	for _, order := range [][]string{Weekdays, Shifts, Statuses} {
		if rank, ok := rankOf(out, order); ok {
			sort.SliceStable(out, func(i, j int) bool {
				ri, iok := rank[out[i]]
				rj, jok := rank[out[j]]
				switch {
				case iok && jok:
					return ri < rj
				case iok != jok:
					return iok
				default:
					return out[i] < out[j]
				}
			})
			return out
		}
	}
	sort.Strings(out)
	return out
}

func rankOf(keys, order []string) (map[string]int, bool) {
	rank := make(map[string]int, len(order))
	for i, k := range order {
		rank[k] = i
	}
	for _, k := range keys {
		if _, ok := rank[k]; ok {
			return rank, true
		}
	}
	return nil, false
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Payload:
		return m, true
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}
