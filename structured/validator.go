package structured

import (
	"fmt"
	"strings"
)

// ReceivedMissing 是缺失字段的 received 值.
const ReceivedMissing = "missing"

// Validate checks result against schema in declaration order. Every schema
// field is required; extra fields in result are never flagged; unknown
// declared types are accepted as-is.
func Validate(result Value, schema Schema) []Mismatch {
	var mismatches []Mismatch
	for _, f := range schema {
		v, ok := result.Get(f.Name)
		if !ok {
			mismatches = append(mismatches, Mismatch{
				Field:    f.Name,
				Expected: string(f.Type),
				Received: ReceivedMissing,
			})
			continue
		}
		if !f.Type.Accepts(v.Kind()) {
			mismatches = append(mismatches, Mismatch{
				Field:    f.Name,
				Expected: string(f.Type),
				Received: v.Kind().String(),
			})
		}
	}
	return mismatches
}

// SuggestFix renders one advisory sentence for mismatches, "" when there are none.
func SuggestFix(mismatches []Mismatch) string {
	if len(mismatches) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		if m.Received == ReceivedMissing {
			clauses = append(clauses, fmt.Sprintf("Add required field '%s' with type '%s'", m.Field, m.Expected))
		} else {
			clauses = append(clauses, fmt.Sprintf("Change field '%s' from %s to %s", m.Field, m.Received, m.Expected))
		}
	}
	return "Please fix the following issues: " + strings.Join(clauses, "; ")
}
