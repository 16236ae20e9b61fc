package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/structgen/llm"
)

// =============================================================================
// 🤖 Provider 指标包装
// =============================================================================

// instrumentedProvider 在 llm.Provider 外层记录调用状态、耗时与 token 用量
type instrumentedProvider struct {
	llm.Provider
	collector *Collector
}

// InstrumentProvider wraps p so every Completion and Stream call is recorded.
func InstrumentProvider(p llm.Provider, c *Collector) llm.Provider {
	if c == nil {
		return p
	}
	return &instrumentedProvider{Provider: p, collector: c}
}

func (p *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.Provider.Completion(ctx, req)
	model := requestModel(req)
	if err != nil {
		p.collector.RecordLLMRequest(p.Name(), model, "sync", errorStatus(err), time.Since(start), 0, 0)
		return nil, err
	}
	if resp.Model != "" {
		model = resp.Model
	}
	p.collector.RecordLLMRequest(p.Name(), model, "sync", "success", time.Since(start),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

func (p *instrumentedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	start := time.Now()
	model := requestModel(req)
	chunks, err := p.Provider.Stream(ctx, req)
	if err != nil {
		p.collector.RecordLLMRequest(p.Name(), model, "stream", errorStatus(err), time.Since(start), 0, 0)
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		status := "success"
		var usage llm.ChatUsage
		defer func() {
			p.collector.RecordLLMRequest(p.Name(), model, "stream", status, time.Since(start),
				usage.PromptTokens, usage.CompletionTokens)
		}()
		for chunk := range chunks {
			if chunk.Err != nil {
				status = string(chunk.Err.Code)
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				status = "cancelled"
				for range chunks {
				}
				return
			}
		}
	}()
	return out, nil
}

func requestModel(req *llm.ChatRequest) string {
	if req == nil || req.Model == "" {
		return "default"
	}
	return req.Model
}

// errorStatus 优先使用 llm.Error 的错误码作为标签
func errorStatus(err error) string {
	var le *llm.Error
	if errors.As(err, &le) {
		return string(le.Code)
	}
	return "error"
}
