package structured

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func eventSchema() Schema {
	return Schema{
		{Name: "event_description", Type: TypeString, Description: "Narrative description"},
		{Name: "context_changes", Type: TypeObject, Description: "Changed context fields"},
	}
}

func TestBuildPrompts_System(t *testing.T) {
	system, _ := BuildPrompts(&Request{Prompt: "p", Schema: eventSchema()})

	assert.True(t, strings.HasPrefix(system,
		"You must respond with valid JSON that follows this exact schema:\n"+
			"- event_description: Narrative description (type: string)\n"+
			"- context_changes: Changed context fields (type: object)\n"))
	for _, rule := range []string{
		"only a single JSON object",
		"markdown code fences",
		"explanation",
		"unterminated",
		"control characters",
		"start with { and end with }",
	} {
		assert.Contains(t, system, rule)
	}
}

func TestBuildPrompts_UserFull(t *testing.T) {
	req := &Request{
		Prompt: "You are a game master.",
		Context: Context{
			{Name: "location", Value: String("forest"), Type: TypeString, Description: "where"},
			{Name: "stats", Value: Object(Member{Key: "hp", Value: Int(10)}), Type: TypeObject, Description: "player stats"},
		},
		Schema:    eventSchema(),
		History:   &HistorySummary{Summary: "Calm so far.", RecentEvents: []string{"woke up", "ate"}},
		UserInput: "open the door",
	}

	_, user := BuildPrompts(req)
	want := "You are a game master.\n\n" +
		"Current game state:\n" +
		"- location: forest (where)\n" +
		"- stats: {\"hp\":10} (player stats)\n" +
		"\n" +
		"Recent events summary: Calm so far.\n" +
		"Recent events:\n" +
		"- woke up\n" +
		"- ate\n" +
		"\n" +
		"User action: open the door\n\n"
	assert.Equal(t, want, user)
}

func TestBuildPrompts_UserOmitsAbsentBlocks(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
		want string
	}{
		{
			name: "prompt only",
			req:  &Request{Prompt: "p"},
			want: "p\n\n",
		},
		{
			name: "history without events",
			req:  &Request{Prompt: "p", History: &HistorySummary{Summary: "s"}},
			want: "p\n\nRecent events summary: s\n\n",
		},
		{
			name: "user input only",
			req:  &Request{Prompt: "p", UserInput: "jump"},
			want: "p\n\nUser action: jump\n\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, user := BuildPrompts(tt.req)
			assert.Equal(t, tt.want, user)
			assert.NotContains(t, user, "Current game state")
		})
	}
}

func TestBuildPrompts_Pure(t *testing.T) {
	req := &Request{Prompt: "p", Schema: eventSchema(), UserInput: "x"}
	s1, u1 := BuildPrompts(req)
	s2, u2 := BuildPrompts(req)
	assert.Equal(t, s1, s2)
	assert.Equal(t, u1, u2)
}
