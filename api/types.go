package api

import (
	"github.com/BaSui01/structgen/structured"
	"github.com/BaSui01/structgen/types"
)

// =============================================================================
// 生成请求与响应
// =============================================================================

// GenerationRequest 是 /generate_structured* 的请求体。
// context 与 schema 为有序对象，字段顺序即提示词中的顺序。
type GenerationRequest struct {
	// 主指令
	Prompt string `json:"prompt"`
	// 当前状态字段
	Context structured.Context `json:"context"`
	// 近期事件摘要
	PreLogSummary *structured.HistorySummary `json:"pre_log_summary,omitempty"`
	// 最终用户输入
	UserInput *string `json:"user_input,omitempty"`
	// 期望输出字段
	Schema structured.Schema `json:"schema"`
	// 流式端点要求为 true
	Stream bool `json:"stream,omitempty"`
	// 覆盖默认模型
	Model *string `json:"model,omitempty"`
	// 显式允许复用缓存结果，仅对同步端点生效
	Cache bool `json:"cache,omitempty"`
}

// ToStructured 转换为管线请求
func (r *GenerationRequest) ToStructured() *structured.Request {
	req := &structured.Request{
		Prompt:  r.Prompt,
		Context: r.Context,
		Schema:  r.Schema,
		History: r.PreLogSummary,
		Stream:  r.Stream,
		Cache:   r.Cache,
	}
	if r.UserInput != nil {
		req.UserInput = *r.UserInput
	}
	if r.Model != nil {
		req.Model = *r.Model
	}
	return req
}

// GenerationResponse 是同步生成与所有失败的统一响应体
type GenerationResponse struct {
	Success          bool                  `json:"success"`
	Message          string                `json:"message"`
	Result           *structured.Value     `json:"result,omitempty"`
	ErrorCode        types.ErrorCode       `json:"error_code,omitempty"`
	ValidationErrors []structured.Mismatch `json:"validation_errors,omitempty"`
	FixSuggestion    string                `json:"fix_suggestion,omitempty"`
}

// FromOutcome 将管线结果转换为响应体
func FromOutcome(o *structured.Outcome) GenerationResponse {
	if o.Success {
		result := o.Result
		return GenerationResponse{Success: true, Message: o.Message, Result: &result}
	}
	return GenerationResponse{
		Success:          false,
		Message:          o.Message,
		ErrorCode:        o.Code,
		ValidationErrors: o.Mismatches,
		FixSuggestion:    o.FixSuggestion,
	}
}

// ErrorResponse 构造非生成类错误（请求格式、认证、限流、内部错误）的响应体
func ErrorResponse(code types.ErrorCode, message string) GenerationResponse {
	return GenerationResponse{Success: false, Message: message, ErrorCode: code}
}

// StreamError 是流中错误的负载：data: {"error":"..."}
type StreamError struct {
	Error string `json:"error"`
}

// =============================================================================
// 健康检查
// =============================================================================

// HealthResponse 是 /health 的响应体
type HealthResponse struct {
	Status           string `json:"status"`
	Model            string `json:"model"`
	Service          string `json:"service"`
	ContextMaxFields int    `json:"context_max_fields"`
}

// VersionResponse 是 /version 的响应体
type VersionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}
