package circuitbreaker

import (
	"context"
	"errors"
	"net/http"

	"github.com/BaSui01/structgen/llm"
)

// provider 在 llm.Provider 外层加熔断
type provider struct {
	llm.Provider
	breaker *Breaker
}

// WrapProvider 返回带熔断的 Provider。熔断打开时直接返回
// LLM_PROVIDER_UNAVAILABLE，不发起上游请求。
func WrapProvider(p llm.Provider, b *Breaker) llm.Provider {
	if b == nil {
		return p
	}
	return &provider{Provider: p, breaker: b}
}

func (p *provider) unavailable(err error) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrProviderUnavailable,
		Message:    err.Error(),
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Provider:   p.Name(),
	}
}

func (p *provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := p.breaker.Allow(); err != nil {
		return nil, p.unavailable(err)
	}
	resp, err := p.Provider.Completion(ctx, req)
	p.breaker.Done(!countsAsFailure(ctx, err))
	return resp, err
}

func (p *provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := p.breaker.Allow(); err != nil {
		return nil, p.unavailable(err)
	}
	ch, err := p.Provider.Stream(ctx, req)
	if err != nil {
		p.breaker.Done(!countsAsFailure(ctx, err))
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		failed := false
		defer func() { p.breaker.Done(!failed) }()
		for chunk := range ch {
			if chunk.Err != nil {
				failed = countsAsFailure(ctx, chunk.Err)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				for range ch {
				}
				return
			}
		}
	}()
	return out, nil
}

// countsAsFailure 只统计上游自身的故障；调用方取消与请求/凭据类错误不计入
func countsAsFailure(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	var le *llm.Error
	if errors.As(err, &le) {
		switch le.Code {
		case llm.ErrInvalidRequest, llm.ErrUnauthorized, llm.ErrForbidden, llm.ErrQuotaExceeded:
			return false
		}
	}
	return true
}
