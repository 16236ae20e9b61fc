package structured

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	schema := eventSchema()
	tests := []struct {
		name   string
		result Value
		want   []Mismatch
	}{
		{
			name: "valid",
			result: Object(
				Member{Key: "event_description", Value: String("A storm rolls in.")},
				Member{Key: "context_changes", Value: Object(Member{Key: "energy", Value: Int(60)})},
			),
		},
		{
			name: "extra fields tolerated",
			result: Object(
				Member{Key: "event_description", Value: String("ok")},
				Member{Key: "context_changes", Value: Object()},
				Member{Key: "mood", Value: String("grim")},
			),
		},
		{
			name:   "missing field",
			result: Object(Member{Key: "event_description", Value: String("ok")}),
			want:   []Mismatch{{Field: "context_changes", Expected: "object", Received: "missing"}},
		},
		{
			name: "wrong types in schema order",
			result: Object(
				Member{Key: "context_changes", Value: Array()},
				Member{Key: "event_description", Value: Int(3)},
			),
			want: []Mismatch{
				{Field: "event_description", Expected: "string", Received: "number"},
				{Field: "context_changes", Expected: "object", Received: "array"},
			},
		},
		{
			name: "null is not an object",
			result: Object(
				Member{Key: "event_description", Value: String("ok")},
				Member{Key: "context_changes", Value: Null()},
			),
			want: []Mismatch{{Field: "context_changes", Expected: "object", Received: "null"}},
		},
		{
			name:   "everything missing",
			result: Object(),
			want: []Mismatch{
				{Field: "event_description", Expected: "string", Received: "missing"},
				{Field: "context_changes", Expected: "object", Received: "missing"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.result, schema))
		})
	}
}

func TestValidate_UnknownTypeIsPermissive(t *testing.T) {
	schema := Schema{{Name: "when", Type: "datetime"}}
	assert.Empty(t, Validate(Object(Member{Key: "when", Value: Int(1)}), schema))
	// presence is still required
	assert.Len(t, Validate(Object(), schema), 1)
}

func TestSuggestFix(t *testing.T) {
	assert.Equal(t, "", SuggestFix(nil))
	assert.Equal(t,
		"Please fix the following issues: Add required field 'context_changes' with type 'object'; Change field 'event_description' from number to string",
		SuggestFix([]Mismatch{
			{Field: "context_changes", Expected: "object", Received: "missing"},
			{Field: "event_description", Expected: "string", Received: "number"},
		}))
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

var knownTypes = []FieldType{TypeNumber, TypeString, TypeObject, TypeArray, TypeBoolean}

func sampleFor(ft FieldType) Value {
	switch ft {
	case TypeNumber:
		return Int(42)
	case TypeString:
		return String("s")
	case TypeObject:
		return Object()
	case TypeArray:
		return Array()
	default:
		return Bool(true)
	}
}

func buildCase(typeIdx []int) (Schema, []Member) {
	schema := make(Schema, 0, len(typeIdx))
	members := make([]Member, 0, len(typeIdx))
	for i, idx := range typeIdx {
		ft := knownTypes[idx%len(knownTypes)]
		name := fmt.Sprintf("field_%d", i)
		schema = append(schema, SchemaField{Name: name, Type: ft, Description: "d"})
		members = append(members, Member{Key: name, Value: sampleFor(ft)})
	}
	return schema, members
}

func TestProperty_ConformingResultHasNoMismatches(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("every schema key present with the right type yields no mismatches", prop.ForAll(
		func(typeIdx []int, extra bool) bool {
			schema, members := buildCase(typeIdx)
			if extra {
				members = append(members, Member{Key: "not_in_schema", Value: Null()})
			}
			return len(Validate(Object(members...), schema)) == 0
		},
		gen.SliceOf(gen.IntRange(0, len(knownTypes)-1)),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_MissingKeyYieldsExactlyOneMismatch(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("dropping one required key reports it once as missing", prop.ForAll(
		func(typeIdx []int, drop int) bool {
			schema, members := buildCase(typeIdx)
			drop %= len(members)
			dropped := members[drop].Key
			members = append(members[:drop:drop], members[drop+1:]...)

			got := Validate(Object(members...), schema)
			count := 0
			for _, m := range got {
				if m.Field == dropped {
					if m.Received != ReceivedMissing || m.Expected != string(schema[drop].Type) {
						return false
					}
					count++
				}
			}
			return count == 1 && len(got) == 1
		},
		gen.SliceOfN(5, gen.IntRange(0, len(knownTypes)-1)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
