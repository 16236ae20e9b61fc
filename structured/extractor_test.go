package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExtractCandidate_Strategies(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		reasoning string
		want      string
		strategy  Strategy
		reasoned  bool
	}{
		{
			name:     "bare object",
			content:  `  {"a":1}  `,
			want:     `{"a":1}`,
			strategy: StrategyWhole,
		},
		{
			name:     "json fence",
			content:  "Sure, here you go:\n```json\n{\"a\":1}\n```\nEnjoy.",
			want:     `{"a":1}`,
			strategy: StrategyFence,
		},
		{
			name:     "bare fence",
			content:  "```\n{\"a\":1}\n```",
			want:     `{"a":1}`,
			strategy: StrategyFence,
		},
		{
			name:     "bare fence with language tag",
			content:  "```javascript\n{\"a\":1}\n```",
			want:     `{"a":1}`,
			strategy: StrategyFence,
		},
		{
			name:     "json fence preferred over earlier bare fence",
			content:  "```\nnoise\n```\n```json\n{\"b\":2}\n```",
			want:     `{"b":2}`,
			strategy: StrategyFence,
		},
		{
			name:     "unclosed fence falls through to braces",
			content:  "```json\n{\"a\":1}",
			want:     `{"a":1}`,
			strategy: StrategyBraces,
		},
		{
			name:     "prose around object",
			content:  `Here it is: {"a":{"b":"}"}} hope that helps {`,
			want:     `{"a":{"b":"}"}}`,
			strategy: StrategyBraces,
		},
		{
			name:     "escaped quote before brace in string",
			content:  `x {"a":"say \"}\" now","b":"c\\"} y`,
			want:     `{"a":"say \"}\" now","b":"c\\"}`,
			strategy: StrategyBraces,
		},
		{
			name:     "quoted brace in leading prose is skipped",
			content:  `Remember the rule "wrap output in {braces}". Result: {"event_description": "ok", "context_changes": {}}`,
			want:     `{"event_description": "ok", "context_changes": {}}`,
			strategy: StrategyBraces,
		},
		{
			name:     "escaped quote in prose keeps string state",
			content:  `Use \"raw\" mode {"a":"}"} done`,
			want:     `{"a":"}"}`,
			strategy: StrategyBraces,
		},
		{
			name:     "unbalanced quote in prose hides later braces",
			content:  `He said "wow {"a":1} ok`,
			want:     `He said "wow {"a":1} ok`,
			strategy: StrategyLastResort,
		},
		{
			name:     "last resort",
			content:  "  Not JSON at all.  ",
			want:     "Not JSON at all.",
			strategy: StrategyLastResort,
		},
		{
			name:      "reasoning fallback",
			content:   "I cannot comply.",
			reasoning: `Let me think. {"a":1}`,
			want:      `{"a":1}`,
			strategy:  StrategyBraces,
			reasoned:  true,
		},
		{
			name:      "reasoning ignored when content has JSON",
			content:   `{"from":"content"}`,
			reasoning: `{"from":"reasoning"}`,
			want:      `{"from":"content"}`,
			strategy:  StrategyWhole,
		},
		{
			name:      "reasoning without JSON falls to combined last resort",
			content:   "nope",
			reasoning: "still nope",
			want:      "still nope\nnope",
			strategy:  StrategyLastResort,
			reasoned:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy, reasoned := extractCandidate(tt.content, tt.reasoning)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.strategy, strategy)
			assert.Equal(t, tt.reasoned, reasoned)
			assert.Equal(t, tt.want, ExtractCandidate(tt.content, tt.reasoning))
		})
	}
}

func TestLineScan(t *testing.T) {
	got, ok := lineScan("prefix\n{\n  \"a\": 1\n}\nsuffix")
	require.True(t, ok)
	assert.Equal(t, "{\n  \"a\": 1\n}", got)

	_, ok = lineScan("{\n  \"a\": oops\n}")
	assert.False(t, ok)

	_, ok = lineScan("no braces here")
	assert.False(t, ok)
}

func TestStripControlChars(t *testing.T) {
	in := "a\x00b\x07c\x08\td\ne\x0b\x0cf\rg\x0e\x1fh\x7f中"
	assert.Equal(t, "abc\td\nef\rgh\x7f中", StripControlChars(in))
	assert.Equal(t, "clean", StripControlChars("clean"))
}

func TestExtractJSON_Success(t *testing.T) {
	ext, err := ExtractJSON(RawOutput{Content: "{\"msg\":\"a\x01b\"}"})
	require.NoError(t, err)
	assert.Equal(t, `{"msg":"ab"}`, ext.Candidate)
	msg, _ := ext.Value.Get("msg")
	s, _ := msg.AsString()
	assert.Equal(t, "ab", s)
}

func TestExtractJSON_Failures(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawOutput
		wantErr string
	}{
		{name: "prose", raw: RawOutput{Content: "Not JSON at all."}, wantErr: "invalid character"},
		{name: "array top level", raw: RawOutput{Content: "```json\n[1,2]\n```"}, wantErr: "expected object"},
		{name: "truncated", raw: RawOutput{Content: `{"a": "unterminated`}, wantErr: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractJSON(tt.raw)
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.raw.Content, pe.Raw)
			assert.NotEmpty(t, pe.Candidate)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

// textRune excludes backticks and control characters so generated strings
// never form a fence marker.
var textRune = rapid.RuneFrom([]rune{' ', '{', '}', '"', '\\', '[', ']', ':'}, unicode.L, unicode.N, unicode.P)

func jsonObjectGen() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		n := rapid.IntRange(0, 6).Draw(t, "fields")
		members := make([]Member, 0, n)
		for i := 0; i < n; i++ {
			key := rapid.StringMatching(`[a-z_]{1,10}`).Draw(t, "key")
			var v Value
			switch rapid.IntRange(0, 4).Draw(t, "kind") {
			case 0:
				v = String(rapid.StringOf(textRune).Draw(t, "str"))
			case 1:
				v = Int(rapid.Int64().Draw(t, "int"))
			case 2:
				v = Bool(rapid.Bool().Draw(t, "bool"))
			case 3:
				v = Array(String(rapid.StringOf(textRune).Draw(t, "item")), Null())
			default:
				v = Object(Member{Key: "inner", Value: String(rapid.StringOf(textRune).Draw(t, "inner"))})
			}
			members = append(members, Member{Key: key, Value: v})
		}
		b, err := json.Marshal(Object(members...))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return string(b)
	})
}

func TestProperty_BareObjectReturnedUnchanged(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		obj := jsonObjectGen().Draw(rt, "obj")
		pad := rapid.StringMatching(`[ \n\t]{0,3}`).Draw(rt, "pad")
		got := ExtractCandidate(pad+obj+pad, "")
		if got != obj {
			rt.Fatalf("got %q, want %q", got, obj)
		}
	})
}

func TestProperty_FencedInteriorReturnedExactly(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		obj := jsonObjectGen().Draw(rt, "obj")
		prose := rapid.StringOf(textRune).Draw(rt, "prose")
		text := prose + "\n```json\n" + obj + "\n```\n" + prose

		ext, err := ExtractJSON(RawOutput{Content: text})
		if err != nil {
			rt.Fatalf("extract %q: %v", text, err)
		}
		if ext.Candidate != obj {
			rt.Fatalf("got %q, want %q", ext.Candidate, obj)
		}
	})
}

func TestProperty_BracesInsideStringsIgnored(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		obj := jsonObjectGen().Draw(rt, "obj")
		noise := rapid.StringMatching(`[a-z {}]{0,12}`).Draw(rt, "noise")
		prose := rapid.StringMatching(`[A-Za-z ,.:]{1,20}`).Draw(rt, "prose")
		text := prose + " " + obj + " " + noise

		got, ok := balancedBraces(text)
		if !ok || got != obj {
			rt.Fatalf("got %q (ok=%v), want %q", got, ok, obj)
		}
	})
}

func TestProperty_ExtractionIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		obj := jsonObjectGen().Draw(rt, "obj")
		wrap := rapid.SampledFrom([]string{"%s", "Result: %s", "```json\n%s\n```", "```\n%s\n```", "Sure!\n%s\nBye"}).Draw(rt, "wrap")

		first := StripControlChars(ExtractCandidate(fmt.Sprintf(wrap, obj), ""))
		second := StripControlChars(ExtractCandidate(first, ""))
		if first != second {
			rt.Fatalf("not idempotent: %q then %q", first, second)
		}
		if !strings.HasPrefix(first, "{") {
			rt.Fatalf("unexpected candidate %q", first)
		}
	})
}
