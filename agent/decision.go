package agent

import (
	"fmt"
	"strings"

	"github.com/burhanettinuludag/clinicmesh/core"
)

// DecisionRule is a gatekeeper check over one output field. Reject receives
// the field value (nil when absent) and reports whether the output is a
// business rejection.
type DecisionRule struct {
	Field  string
	Reject func(value any) bool
}

// IsZero reports whether the rule carries no check.
func (r DecisionRule) IsZero() bool { return r.Field == "" && r.Reject == nil }

// Evaluate applies the rule. A missing field is treated as a rejection.
func (r DecisionRule) Evaluate(output core.Data) (rejected bool, reason string) {
	value, ok := output[r.Field]
	if !ok {
		return true, fmt.Sprintf("decision field %q missing", r.Field)
	}
	if r.Reject != nil && r.Reject(value) {
		return true, fmt.Sprintf("%s=%v", r.Field, value)
	}
	return false, ""
}

// RejectIfFalse rejects unless field holds true (bool or "true").
func RejectIfFalse(field string) DecisionRule {
	return DecisionRule{Field: field, Reject: func(v any) bool {
		ok, valid := core.Data{field: v}.Bool(field)
		return !valid || !ok
	}}
}

// RejectUnless rejects unless field equals one of allowed (case-insensitive).
func RejectUnless(field string, allowed ...string) DecisionRule {
	return DecisionRule{Field: field, Reject: func(v any) bool {
		s := strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
		for _, a := range allowed {
			if s == strings.ToLower(a) {
				return false
			}
		}
		return true
	}}
}

// RejectWhen rejects when field equals one of values (case-insensitive).
func RejectWhen(field string, values ...string) DecisionRule {
	allow := RejectUnless(field, values...)
	return DecisionRule{Field: field, Reject: func(v any) bool { return !allow.Reject(v) }}
}
