package structured

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/structgen/llm"
	"github.com/BaSui01/structgen/types"
	"go.uber.org/zap"
)

// CompletionInvoker 发起一次补全调用，阻塞或流式。不做自动重试。
type CompletionInvoker interface {
	Invoke(ctx context.Context, system, user, model string, maxTokens int) (*RawOutput, error)
	InvokeStream(ctx context.Context, system, user, model string, maxTokens int) (<-chan Fragment, error)
}

// Invoker 基于 llm.Provider 实现 CompletionInvoker.
type Invoker struct {
	provider llm.Provider
	jsonMode bool
	timeout  time.Duration
	logger   *zap.Logger
}

// NewInvoker creates an invoker. timeout bounds each blocking call; zero means
// only the provider's HTTP client timeout applies.
func NewInvoker(provider llm.Provider, jsonMode bool, timeout time.Duration, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		provider: provider,
		jsonMode: jsonMode,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "invoker")),
	}
}

func (i *Invoker) buildRequest(ctx context.Context, system, user, model string, maxTokens int) *llm.ChatRequest {
	traceID, _ := types.RequestID(ctx)
	req := &llm.ChatRequest{
		TraceID: traceID,
		Model:   model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		MaxTokens: maxTokens,
		Timeout:   i.timeout,
	}
	if i.jsonMode {
		req.ResponseFormat = llm.JSONObjectFormat
	}
	return req
}

// Invoke blocks until the full completion arrives and keeps both the content
// and reasoning channels of the first choice.
func (i *Invoker) Invoke(ctx context.Context, system, user, model string, maxTokens int) (*RawOutput, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	resp, err := i.provider.Completion(ctx, i.buildRequest(ctx, system, user, model, maxTokens))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.Error{
			Code: llm.ErrMalformedResponse, Message: "response contains no choices",
			HTTPStatus: http.StatusBadGateway, Provider: i.provider.Name(),
		}
	}

	msg := resp.Choices[0].Message
	if strings.TrimSpace(msg.Content) == "" && strings.TrimSpace(msg.ReasoningContent) == "" {
		return nil, &llm.Error{
			Code: llm.ErrEmptyContent, Message: "model returned empty content",
			HTTPStatus: http.StatusBadGateway, Provider: i.provider.Name(),
		}
	}

	i.logger.Debug("completion received",
		zap.String("model", resp.Model),
		zap.Int("content_len", len(msg.Content)),
		zap.Int("reasoning_len", len(msg.ReasoningContent)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return &RawOutput{Content: msg.Content, ReasoningContent: msg.ReasoningContent}, nil
}

// InvokeStream opens a streaming completion and yields content deltas of the
// first choice. The channel is finite and closes when the backend finishes,
// fails, or ctx is cancelled; cancelling ctx releases the upstream connection.
func (i *Invoker) InvokeStream(ctx context.Context, system, user, model string, maxTokens int) (<-chan Fragment, error) {
	chunks, err := i.provider.Stream(ctx, i.buildRequest(ctx, system, user, model, maxTokens))
	if err != nil {
		return nil, err
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		for chunk := range chunks {
			var frag Fragment
			switch {
			case chunk.Err != nil:
				frag = Fragment{Err: chunk.Err}
			case chunk.Index == 0 && chunk.Delta.Content != "":
				frag = Fragment{Text: chunk.Delta.Content}
			default:
				continue
			}
			select {
			case out <- frag:
			case <-ctx.Done():
				drain(chunks)
				return
			}
			if frag.Err != nil {
				drain(chunks)
				return
			}
		}
	}()
	return out, nil
}

// drain empties the provider channel so its goroutine can exit.
func drain(ch <-chan llm.StreamChunk) {
	for range ch {
	}
}
