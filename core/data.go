package core

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// SnapshotLimit is the rune limit applied to string values in task snapshots.
const SnapshotLimit = 500

// Data is the key/value bag passed between agents as JSON-compatible values.
type Data map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty bag.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	maps.Copy(out, d)
	return out
}

// Merge copies every key of other into d, overwriting existing keys, and returns d.
func (d Data) Merge(other Data) Data {
	maps.Copy(d, other)
	return d
}

// Has reports whether key is present.
func (d Data) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// String returns the value under key as a trimmed string. Non-string scalars
// are formatted; missing keys yield "".
func (d Data) String(key string) string {
	switch v := d[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Bool interprets the value under key. Strings "true"/"false" (any case) are accepted.
func (d Data) Bool(key string) (value, ok bool) {
	switch v := d[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// Float interprets the value under key as a number.
func (d Data) Float(key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Strings returns a list value as strings. A single string is returned as a one element slice.
func (d Data) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Snapshot returns a copy suitable for persistence: top-level string values
// are truncated to SnapshotLimit runes.
func (d Data) Snapshot() Data {
	out := make(Data, len(d))
	for k, v := range d {
		if s, ok := v.(string); ok {
			out[k] = util.Truncate(s, SnapshotLimit)
			continue
		}
		out[k] = v
	}
	return out
}

// FailedKey is the sentinel set to true when step failed.
func FailedKey(step string) string { return "__" + step + "_failed" }

// ErrorKey is the sentinel holding the failure message of step.
func ErrorKey(step string) string { return "__" + step + "_error" }

// FailedSteps returns the names of steps that left a failure sentinel in d.
func (d Data) FailedSteps() []string {
	var out []string
	for k, v := range d {
		if !strings.HasPrefix(k, "__") || !strings.HasSuffix(k, "_failed") {
			continue
		}
		if b, _ := v.(bool); b {
			out = append(out, strings.TrimSuffix(strings.TrimPrefix(k, "__"), "_failed"))
		}
	}
	return out
}
