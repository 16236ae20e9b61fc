package structured

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/structgen/types"
)

// FieldType 是声明的字段类型。词表可能扩展，未知类型在校验时放行。
type FieldType string

const (
	TypeNumber  FieldType = "number"
	TypeString  FieldType = "string"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeBoolean FieldType = "boolean"
)

// Known reports whether t is part of the checked vocabulary.
func (t FieldType) Known() bool {
	switch t {
	case TypeNumber, TypeString, TypeObject, TypeArray, TypeBoolean:
		return true
	}
	return false
}

// Accepts reports whether a value of kind k satisfies t. Unknown types accept everything.
func (t FieldType) Accepts(k Kind) bool {
	switch t {
	case TypeNumber:
		return k == KindNumber
	case TypeString:
		return k == KindString
	case TypeObject:
		return k == KindObject
	case TypeArray:
		return k == KindArray
	case TypeBoolean:
		return k == KindBoolean
	}
	return true
}

// =============================================================================
// 📦 Context
// =============================================================================

// ContextField 是一条命名的状态事实.
type ContextField struct {
	Name        string
	Value       Value
	Type        FieldType
	Description string
}

type contextFieldWire struct {
	Value       json.RawMessage `json:"value"`
	Type        FieldType       `json:"type"`
	Description string          `json:"description,omitempty"`
}

// Context 是有序的上下文字段列表，JSON 形式为以字段名为键的对象。
type Context []ContextField

// Len returns the number of distinct fields.
func (c Context) Len() int { return len(c) }

// UnmarshalJSON keeps declaration order; duplicate names replace in place.
func (c *Context) UnmarshalJSON(data []byte) error {
	out := Context{}
	err := decodeOrderedObject(data, func(name string, raw json.RawMessage) error {
		var w contextFieldWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("context field %q: %w", name, err)
		}
		val := Null()
		if len(bytes.TrimSpace(w.Value)) > 0 {
			v, err := ParseValue(w.Value)
			if err != nil {
				return fmt.Errorf("context field %q value: %w", name, err)
			}
			val = v
		}
		f := ContextField{Name: name, Value: val, Type: w.Type, Description: w.Description}
		for i := range out {
			if out[i].Name == name {
				out[i] = f
				return nil
			}
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return err
	}
	*c = out
	return nil
}

// MarshalJSON renders the fields as an ordered object.
func (c Context) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(contextFieldWire{Value: val, Type: f.Type, Description: f.Description})
		if err != nil {
			return nil, err
		}
		if err := writeKey(&buf, f.Name); err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// =============================================================================
// 📋 Schema
// =============================================================================

// SchemaField 声明一个必需的输出字段.
type SchemaField struct {
	Name        string
	Type        FieldType
	Description string
}

type schemaFieldWire struct {
	Type        FieldType `json:"type"`
	Description string    `json:"description"`
}

// Schema 是有序的输出字段声明，校验按声明顺序进行。
type Schema []SchemaField

// UnmarshalJSON keeps declaration order; duplicate names replace in place.
func (s *Schema) UnmarshalJSON(data []byte) error {
	out := Schema{}
	err := decodeOrderedObject(data, func(name string, raw json.RawMessage) error {
		var w schemaFieldWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("schema field %q: %w", name, err)
		}
		f := SchemaField{Name: name, Type: w.Type, Description: w.Description}
		for i := range out {
			if out[i].Name == name {
				out[i] = f
				return nil
			}
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// MarshalJSON renders the fields as an ordered object.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		body, err := json.Marshal(schemaFieldWire{Type: f.Type, Description: f.Description})
		if err != nil {
			return nil, err
		}
		if err := writeKey(&buf, f.Name); err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

// decodeOrderedObject walks the top-level members of a JSON object in order.
func decodeOrderedObject(data []byte, fn func(name string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("object key is %T, not string", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(name, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// =============================================================================
// 🎯 Request / Outcome
// =============================================================================

// HistorySummary 是仅供提示词参考的历史摘要.
type HistorySummary struct {
	Summary      string   `json:"summary"`
	RecentEvents []string `json:"recent_events"`
}

// Request 是一次结构化生成请求，请求生命周期内不可变。
type Request struct {
	Prompt    string          `json:"prompt"`
	Context   Context         `json:"context"`
	Schema    Schema          `json:"schema"`
	History   *HistorySummary `json:"pre_log_summary,omitempty"`
	UserInput string          `json:"user_input,omitempty"`
	Stream    bool            `json:"stream"`
	// Model 非空时覆盖配置的默认模型
	Model string `json:"model,omitempty"`
	// Cache 显式开启结果复用；默认每次请求都调用后端，不保留任何结果
	Cache bool `json:"cache,omitempty"`
}

// Mismatch 是一个字段级的 schema 偏差.
type Mismatch struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Received string `json:"received"`
}

// Outcome 是带标签的生成结果：Success 为 true 时只有 Result 有效，
// 否则 Code、Mismatches、FixSuggestion 描述失败。
type Outcome struct {
	Success       bool
	Message       string
	Result        Value
	Code          types.ErrorCode
	Mismatches    []Mismatch
	FixSuggestion string
}

// Succeeded builds a success outcome carrying result unchanged.
func Succeeded(result Value) *Outcome {
	return &Outcome{Success: true, Message: "Generation completed", Result: result}
}

// Failed builds a typed failure outcome.
func Failed(code types.ErrorCode, message, fix string, mismatches []Mismatch) *Outcome {
	return &Outcome{Code: code, Message: message, FixSuggestion: fix, Mismatches: mismatches}
}

// RawOutput 是模型的原始输出。ReasoningContent 只在提取回退时使用。
type RawOutput struct {
	Content          string
	ReasoningContent string
}

// Fragment 是流式输出的一个增量片段。Err 非 nil 时为流中错误，之后不再有片段。
type Fragment struct {
	Text string
	Err  error
}
