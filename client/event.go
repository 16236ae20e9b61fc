package client

import (
	"github.com/BaSui01/structgen/api"
	"github.com/BaSui01/structgen/structured"
)

// InputType 区分玩家输入的意图
type InputType string

const (
	// InputAction 玩家在世界中执行动作
	InputAction InputType = "action"
	// InputQuestion 玩家对游戏机制提出反馈
	InputQuestion InputType = "question"
)

const (
	actionInstruction = "Generate an event describing what happens in the game world as a result of the player's action. " +
		"Update only the context fields that change."
	questionInstruction = "Understand the player's feedback about game mechanics and generate an event that reflects the adjustment to the game world. " +
		"Update context fields according to the player's suggestions."
)

// Instruction 返回输入类型对应的提示指令，未知类型按 question 处理
func (t InputType) Instruction() string {
	if t == InputAction {
		return actionInstruction
	}
	return questionInstruction
}

// EventSchema 是事件生成的固定输出结构
func EventSchema() structured.Schema {
	return structured.Schema{
		{
			Name: "event_description",
			Type: structured.TypeString,
			Description: "Narrative description of what happens in the game world. Should be 3-5 sentences, " +
				"vivid and immersive, directly responding to the player action.",
		},
		{
			Name: "context_changes",
			Type: structured.TypeObject,
			Description: "Object containing only the context fields that changed. " +
				"Each field should have {value, type, description}. Use null to remove a field.",
		},
	}
}

// BuildEventRequest 拼装事件生成请求。history 可为 nil。
func BuildEventRequest(basePrompt string, state structured.Context, userInput string, inputType InputType, history *structured.HistorySummary) *api.GenerationRequest {
	input := userInput
	return &api.GenerationRequest{
		Prompt:        basePrompt + "\n\n" + inputType.Instruction(),
		Context:       state,
		PreLogSummary: history,
		UserInput:     &input,
		Schema:        EventSchema(),
		Stream:        false,
	}
}

// ApplyContextChanges 把 context_changes 合并进 state 并返回新的 Context，原 state 不变。
// null 删除字段；带 type 的对象按 {value, type, description} 整体替换；
// 其他值只更新已有字段的 value，新字段按值推断类型。
func ApplyContextChanges(state structured.Context, changes structured.Value) structured.Context {
	out := make(structured.Context, len(state))
	copy(out, state)
	if changes.Kind() != structured.KindObject {
		return out
	}

	for _, m := range changes.Members() {
		idx := indexOf(out, m.Key)

		if m.Value.IsNull() {
			if idx >= 0 {
				out = append(out[:idx], out[idx+1:]...)
			}
			continue
		}

		field := fieldFromChange(m.Key, m.Value, idx, out)
		if idx >= 0 {
			out[idx] = field
		} else {
			out = append(out, field)
		}
	}
	return out
}

func fieldFromChange(name string, v structured.Value, idx int, state structured.Context) structured.ContextField {
	if v.Kind() == structured.KindObject {
		if t, ok := v.Get("type"); ok {
			typ, _ := t.AsString()
			field := structured.ContextField{Name: name, Type: structured.FieldType(typ)}
			if val, ok := v.Get("value"); ok {
				field.Value = val
			}
			// 服务端只接受五种上下文类型
			if !field.Type.Known() {
				field.Type = inferType(field.Value)
			}
			if d, ok := v.Get("description"); ok {
				field.Description, _ = d.AsString()
			}
			return field
		}
	}
	if idx >= 0 {
		field := state[idx]
		field.Value = v
		return field
	}
	return structured.ContextField{Name: name, Value: v, Type: inferType(v)}
}

func inferType(v structured.Value) structured.FieldType {
	switch v.Kind() {
	case structured.KindNumber:
		return structured.TypeNumber
	case structured.KindBoolean:
		return structured.TypeBoolean
	case structured.KindArray:
		return structured.TypeArray
	case structured.KindObject:
		return structured.TypeObject
	default:
		return structured.TypeString
	}
}

func indexOf(state structured.Context, name string) int {
	for i, f := range state {
		if f.Name == name {
			return i
		}
	}
	return -1
}
