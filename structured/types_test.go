package structured

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_DecodeWireShape(t *testing.T) {
	body := `{
		"prompt": "You are a game master.",
		"context": {
			"location": {"value": "forest", "type": "string", "description": "where the player is"},
			"energy": {"value": 80, "type": "number"},
			"inventory": {"value": ["torch"], "type": "array", "description": "items"}
		},
		"schema": {
			"event_description": {"type": "string", "description": "what happens"},
			"context_changes": {"type": "object", "description": "changed fields"}
		},
		"pre_log_summary": {"summary": "The player woke up.", "recent_events": ["woke up", "ate"]},
		"user_input": "look around",
		"stream": false,
		"model": "gpt-4o-mini"
	}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	require.Len(t, req.Context, 3)
	assert.Equal(t, "location", req.Context[0].Name)
	assert.Equal(t, "energy", req.Context[1].Name)
	assert.Equal(t, "inventory", req.Context[2].Name)
	assert.Equal(t, TypeNumber, req.Context[1].Type)
	assert.Empty(t, req.Context[1].Description)
	assert.Equal(t, KindArray, req.Context[2].Value.Kind())

	require.Len(t, req.Schema, 2)
	assert.Equal(t, "event_description", req.Schema[0].Name)
	assert.Equal(t, TypeObject, req.Schema[1].Type)

	require.NotNil(t, req.History)
	assert.Equal(t, []string{"woke up", "ate"}, req.History.RecentEvents)
	assert.Equal(t, "look around", req.UserInput)
	assert.Equal(t, "gpt-4o-mini", req.Model)
}

func TestContext_DuplicateNameReplacesInPlace(t *testing.T) {
	var c Context
	require.NoError(t, json.Unmarshal([]byte(`{
		"a": {"value": 1, "type": "number"},
		"b": {"value": 2, "type": "number"},
		"a": {"value": "x", "type": "string"}
	}`), &c))
	require.Len(t, c, 2)
	assert.Equal(t, "a", c[0].Name)
	assert.Equal(t, TypeString, c[0].Type)
}

func TestContext_MissingValueIsNull(t *testing.T) {
	var c Context
	require.NoError(t, json.Unmarshal([]byte(`{"a": {"type": "object"}}`), &c))
	require.Len(t, c, 1)
	assert.True(t, c[0].Value.IsNull())
}

func TestContext_Errors(t *testing.T) {
	for _, in := range []string{`[]`, `{"a": 1}`, `{"a": {"value": 1, "type": 2}}`} {
		var c Context
		assert.Error(t, json.Unmarshal([]byte(in), &c), "input %s", in)
	}
}

func TestSchema_MarshalKeepsOrder(t *testing.T) {
	s := Schema{
		{Name: "z", Type: TypeString, Description: "last"},
		{Name: "a", Type: TypeObject, Description: "first"},
	}
	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"z":{"type":"string","description":"last"},"a":{"type":"object","description":"first"}}`, string(out))

	var back Schema
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, s, back)
}

func TestContext_MarshalKeepsOrder(t *testing.T) {
	c := Context{
		{Name: "hp", Value: Int(10), Type: TypeNumber, Description: "health"},
		{Name: "flags", Value: Object(Member{Key: "k", Value: Bool(true)}), Type: TypeObject},
	}
	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"hp":{"value":10,"type":"number","description":"health"},"flags":{"value":{"k":true},"type":"object"}}`, string(out))
}

func TestFieldType_Accepts(t *testing.T) {
	assert.True(t, TypeNumber.Accepts(KindNumber))
	assert.False(t, TypeNumber.Accepts(KindString))
	assert.False(t, TypeObject.Accepts(KindArray))
	assert.False(t, TypeString.Accepts(KindNull))
	assert.True(t, FieldType("date").Accepts(KindString))
	assert.True(t, FieldType("date").Accepts(KindNull))
	assert.False(t, FieldType("date").Known())
	assert.True(t, TypeBoolean.Known())
}
