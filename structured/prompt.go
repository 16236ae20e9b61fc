package structured

import (
	"strings"
)

const systemPromptHeader = "You must respond with valid JSON that follows this exact schema:\n"

// formattingRules 追加在 schema 列表之后
const formattingRules = `
IMPORTANT formatting rules:
- Return only a single JSON object, nothing else.
- Do not wrap the JSON in markdown code fences.
- Do not add any explanation before or after the JSON.
- Close every string; never leave a string unterminated.
- Do not put raw control characters inside string values; use escapes such as \n.
- The response must start with { and end with }.`

// BuildPrompts renders the system and user instructions for req. It is a pure
// function; absent optional inputs omit their block.
func BuildPrompts(req *Request) (system, user string) {
	return buildSystemPrompt(req.Schema), buildUserPrompt(req)
}

func buildSystemPrompt(schema Schema) string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	for _, f := range schema {
		b.WriteString("- ")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Description)
		b.WriteString(" (type: ")
		b.WriteString(string(f.Type))
		b.WriteString(")\n")
	}
	b.WriteString(formattingRules)
	return b.String()
}

func buildUserPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\n")

	if len(req.Context) > 0 {
		b.WriteString("Current game state:\n")
		for _, f := range req.Context {
			b.WriteString("- ")
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(f.Value.Text())
			b.WriteString(" (")
			b.WriteString(f.Description)
			b.WriteString(")\n")
		}
		b.WriteString("\n")
	}

	if h := req.History; h != nil {
		b.WriteString("Recent events summary: ")
		b.WriteString(h.Summary)
		b.WriteString("\n")
		if len(h.RecentEvents) > 0 {
			b.WriteString("Recent events:\n")
			for _, e := range h.RecentEvents {
				b.WriteString("- ")
				b.WriteString(e)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	if req.UserInput != "" {
		b.WriteString("User action: ")
		b.WriteString(req.UserInput)
		b.WriteString("\n\n")
	}
	return b.String()
}
