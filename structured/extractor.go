package structured

import (
	"fmt"
	"strings"
)

// =============================================================================
// 🔍 Tolerant JSON extraction
// =============================================================================

// Strategy 标识命中的提取策略.
type Strategy string

// 提取策略，按尝试顺序排列
const (
	// StrategyWhole 整段内容本身就是 JSON 对象
	StrategyWhole Strategy = "whole"
	// StrategyFence 取 ```json 或裸 ``` 代码块内部
	StrategyFence Strategy = "fence"
	// StrategyBraces 字符串感知的括号配平扫描
	StrategyBraces Strategy = "braces"
	// StrategyLineScan 从以 { 开头的行到以 } 结尾的行
	StrategyLineScan Strategy = "line_scan"
	// StrategyLastResort 原样返回去除首尾空白的文本
	StrategyLastResort Strategy = "last_resort"
)

// ParseError 保留清洗后的候选文本与原始输出，便于诊断.
type ParseError struct {
	Candidate string
	Raw       string
	Err       error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Extraction 是一次成功提取的结果.
type Extraction struct {
	Value         Value
	Candidate     string
	Strategy      Strategy
	UsedReasoning bool
}

// ExtractJSON recovers a single JSON object from raw model output. The content
// channel is tried first; the reasoning channel is consulted only when content
// yields nothing that looks like JSON.
func ExtractJSON(raw RawOutput) (*Extraction, error) {
	candidate, strategy, usedReasoning := extractCandidate(raw.Content, raw.ReasoningContent)
	cleaned := StripControlChars(candidate)

	v, err := ParseValue([]byte(cleaned))
	if err != nil {
		return nil, &ParseError{Candidate: cleaned, Raw: raw.Content, Err: err}
	}
	if v.Kind() != KindObject {
		return nil, &ParseError{
			Candidate: cleaned,
			Raw:       raw.Content,
			Err:       fmt.Errorf("top-level JSON value is %s, expected object", v.Kind()),
		}
	}
	return &Extraction{Value: v, Candidate: cleaned, Strategy: strategy, UsedReasoning: usedReasoning}, nil
}

// ExtractCandidate returns the candidate JSON text without parsing it.
func ExtractCandidate(content, reasoning string) string {
	c, _, _ := extractCandidate(content, reasoning)
	return c
}

func extractCandidate(content, reasoning string) (string, Strategy, bool) {
	candidate, strategy := extractFrom(content)
	if !looksLikeJSON(candidate) && strings.TrimSpace(reasoning) != "" {
		candidate, strategy = extractFrom(reasoning + "\n" + content)
		return candidate, strategy, true
	}
	return candidate, strategy, false
}

// extractFrom runs the ordered strategies; first match wins.
func extractFrom(text string) (string, Strategy) {
	if c, ok := wholeObject(text); ok {
		return c, StrategyWhole
	}
	if c, ok := fencedBlock(text); ok {
		return c, StrategyFence
	}
	if c, ok := balancedBraces(text); ok {
		return c, StrategyBraces
	}
	if c, ok := lineScan(text); ok {
		return c, StrategyLineScan
	}
	return strings.TrimSpace(text), StrategyLastResort
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// wholeObject accepts text that is already a clean JSON object, so fence
// markers inside its string values are never mistaken for a code block.
func wholeObject(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "{") || !strings.HasSuffix(t, "}") {
		return "", false
	}
	if _, err := ParseValue([]byte(StripControlChars(t))); err != nil {
		return "", false
	}
	return t, true
}

// fencedBlock takes the interior of a ```json fence, else of the first bare
// ``` fence. A bare fence's language tag line (```js, ```JSON) is skipped.
// An unclosed fence does not match.
func fencedBlock(text string) (string, bool) {
	const fence = "```"
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if end := strings.Index(rest, fence); end >= 0 {
			return strings.TrimSpace(rest[:end]), true
		}
		return "", false
	}
	i := strings.Index(text, fence)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(fence):]
	end := strings.Index(rest, fence)
	if end < 0 {
		return "", false
	}
	body := rest[:end]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag != "" && !strings.ContainsAny(tag, "{[\"") {
			body = body[nl+1:]
		}
	}
	return strings.TrimSpace(body), true
}

// balancedBraces finds the first top-level {...} span. Quote state is tracked
// from the start of the text, so a brace quoted in leading prose never opens
// the span; a backslash escapes the next byte both inside and outside strings.
func balancedBraces(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case c == '}' && depth > 0:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// lineScan joins lines from the first one starting with { through the first
// later one ending with }, and matches only if that span parses.
func lineScan(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	first := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if first < 0 {
			if strings.HasPrefix(trimmed, "{") {
				first = i
			} else {
				continue
			}
		}
		if strings.HasSuffix(trimmed, "}") {
			span := strings.TrimSpace(strings.Join(lines[first:i+1], "\n"))
			if _, err := ParseValue([]byte(StripControlChars(span))); err != nil {
				return "", false
			}
			return span, true
		}
	}
	return "", false
}

// StripControlChars removes 0x00-0x08, 0x0B, 0x0C and 0x0E-0x1F. Tab, LF and
// CR are kept. These bytes never occur inside multi-byte UTF-8 sequences.
func StripControlChars(s string) string {
	if !strings.ContainsFunc(s, isDisallowedControl) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if !isDisallowedControl(rune(s[i])) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isDisallowedControl(r rune) bool {
	return r < 0x20 && r != '\t' && r != '\n' && r != '\r'
}
