package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/structgen/llm"
)

// statusMapping 是上游 HTTP 状态到 llm 错误码的映射
type statusMapping struct {
	code      llm.ErrorCode
	retryable bool
}

var statusMappings = map[int]statusMapping{
	http.StatusUnauthorized:       {code: llm.ErrUnauthorized},
	http.StatusForbidden:          {code: llm.ErrForbidden},
	http.StatusTooManyRequests:    {code: llm.ErrRateLimited, retryable: true},
	http.StatusBadRequest:         {code: llm.ErrInvalidRequest},
	http.StatusRequestTimeout:     {code: llm.ErrUpstreamTimeout, retryable: true},
	http.StatusGatewayTimeout:     {code: llm.ErrUpstreamTimeout, retryable: true},
	http.StatusBadGateway:         {code: llm.ErrUpstreamError, retryable: true},
	http.StatusServiceUnavailable: {code: llm.ErrUpstreamError, retryable: true},
	529:                           {code: llm.ErrModelOverloaded, retryable: true}, // 部分服务商的过载状态码
}

// quotaHints 出现在 400 错误消息中时视为额度耗尽
var quotaHints = []string{"quota", "credit", "limit"}

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 llm.Error。
// 未登记的状态按上游错误处理，5xx 可重试。
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	m, ok := statusMappings[status]
	if !ok {
		m = statusMapping{code: llm.ErrUpstreamError, retryable: status >= 500}
	}
	if status == http.StatusBadRequest && containsAny(strings.ToLower(msg), quotaHints) {
		m = statusMapping{code: llm.ErrQuotaExceeded}
	}
	return &llm.Error{
		Code:       m.code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  m.retryable,
		Provider:   provider,
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp OpenAICompatErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	// 回退到原始文本
	return strings.TrimSpace(string(data))
}

// OpenAI 兼容 API 通用类型

// OpenAICompatMessage 表示 OpenAI 兼容的消息格式.
type OpenAICompatMessage struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// OpenAICompatResponseFormat 表示 response_format 字段.
type OpenAICompatResponseFormat struct {
	Type string `json:"type"`
}

// OpenAICompatRequest 表示 OpenAI 兼容的聊天完成请求.
type OpenAICompatRequest struct {
	Model          string                      `json:"model"`
	Messages       []OpenAICompatMessage       `json:"messages"`
	MaxTokens      int                         `json:"max_tokens,omitempty"`
	Temperature    float32                     `json:"temperature,omitempty"`
	ResponseFormat *OpenAICompatResponseFormat `json:"response_format,omitempty"`
	Stream         bool                        `json:"stream,omitempty"`
}

// OpenAICompatChoice 表示 OpenAI 兼容响应中的单个选项.
type OpenAICompatChoice struct {
	Index        int                  `json:"index"`
	FinishReason string               `json:"finish_reason"`
	Message      OpenAICompatMessage  `json:"message"`
	Delta        *OpenAICompatMessage `json:"delta,omitempty"`
}

// OpenAICompatUsage 表示 OpenAI 兼容响应中的 token 用量.
type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAICompatResponse 表示 OpenAI 兼容的聊天完成响应.
type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
	Created int64                `json:"created,omitempty"`
}

// OpenAICompatErrorResp 表示 OpenAI 兼容的错误响应.
type OpenAICompatErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
		Param   string `json:"param"`
	} `json:"error"`
}

// ConvertMessagesToOpenAI 将 llm.Message 切片转换为 OpenAI 兼容格式.
// reasoning_content 只在响应方向出现，请求中不回传。
func ConvertMessagesToOpenAI(msgs []llm.Message) []OpenAICompatMessage {
	out := make([]OpenAICompatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, OpenAICompatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// ConvertResponseFormat 将 llm.ResponseFormat 转换为 OpenAI 兼容格式.
func ConvertResponseFormat(rf *llm.ResponseFormat) *OpenAICompatResponseFormat {
	if rf == nil || rf.Type == "" {
		return nil
	}
	return &OpenAICompatResponseFormat{Type: rf.Type}
}

// ToLLMChatResponse 将 OpenAI 兼容的响应转换为 llm.ChatResponse.
func ToLLMChatResponse(oa OpenAICompatResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: llm.Message{
				Role:             llm.RoleAssistant,
				Content:          c.Message.Content,
				ReasoningContent: c.Message.ReasoningContent,
			},
		})
	}
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  choices,
	}
	if oa.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return resp
}

// ChooseModel 根据请求和默认值选择模型
func ChooseModel(req *llm.ChatRequest, defaultModel, fallbackModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}

// BearerTokenHeaders 是标准的 Bearer token 认证 header 构建函数。
func BearerTokenHeaders(r *http.Request, apiKey string) {
	r.Header.Set("Authorization", "Bearer "+apiKey)
	r.Header.Set("Content-Type", "application/json")
}

// SafeCloseBody 安全关闭 HTTP 响应体并忽略错误
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
