package structured

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/structgen/llm"
	"github.com/BaSui01/structgen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	resp     *llm.ChatResponse
	err      error
	chunks   []llm.StreamChunk
	lastReq  *llm.ChatRequest
	deadline bool
	hold     bool
	released chan struct{}
}

func (p *fakeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.lastReq = req
	_, p.deadline = ctx.Deadline()
	return p.resp, p.err
}

func (p *fakeProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	p.released = make(chan struct{})
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(p.released)
		defer close(ch)
		for _, c := range p.chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
		if p.hold {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (p *fakeProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

func choice(content, reasoning string) *llm.ChatResponse {
	return &llm.ChatResponse{Model: "m", Choices: []llm.ChatChoice{{
		Message: llm.Message{Role: llm.RoleAssistant, Content: content, ReasoningContent: reasoning},
	}}}
}

func TestInvoker_Invoke_BuildsRequest(t *testing.T) {
	p := &fakeProvider{resp: choice(`{"a":1}`, "thoughts")}
	inv := NewInvoker(p, true, time.Minute, zap.NewNop())

	ctx := types.WithRequestID(context.Background(), "req-1")
	raw, err := inv.Invoke(ctx, "sys", "usr", "gpt-4o", 3000)
	require.NoError(t, err)
	assert.Equal(t, &RawOutput{Content: `{"a":1}`, ReasoningContent: "thoughts"}, raw)

	req := p.lastReq
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "sys", req.Messages[0].Content)
	assert.Equal(t, llm.RoleUser, req.Messages[1].Role)
	assert.Equal(t, "usr", req.Messages[1].Content)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, 3000, req.MaxTokens)
	assert.Equal(t, llm.JSONObjectFormat, req.ResponseFormat)
	assert.Equal(t, "req-1", req.TraceID)
	assert.True(t, p.deadline)
}

func TestInvoker_Invoke_JSONModeOff(t *testing.T) {
	p := &fakeProvider{resp: choice("{}", "")}
	inv := NewInvoker(p, false, 0, nil)

	_, err := inv.Invoke(context.Background(), "s", "u", "m", 10)
	require.NoError(t, err)
	assert.Nil(t, p.lastReq.ResponseFormat)
	assert.False(t, p.deadline)
}

func TestInvoker_Invoke_Failures(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		wantCode llm.ErrorCode
	}{
		{
			name:     "provider error passes through",
			provider: &fakeProvider{err: &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key"}},
			wantCode: llm.ErrUnauthorized,
		},
		{
			name:     "no choices",
			provider: &fakeProvider{resp: &llm.ChatResponse{}},
			wantCode: llm.ErrMalformedResponse,
		},
		{
			name:     "both channels blank",
			provider: &fakeProvider{resp: choice("  ", "\n")},
			wantCode: llm.ErrEmptyContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := NewInvoker(tt.provider, true, 0, zap.NewNop())
			_, err := inv.Invoke(context.Background(), "s", "u", "m", 10)
			var llmErr *llm.Error
			require.True(t, errors.As(err, &llmErr))
			assert.Equal(t, tt.wantCode, llmErr.Code)
		})
	}
}

func TestInvoker_Invoke_ReasoningOnlyIsNotEmpty(t *testing.T) {
	p := &fakeProvider{resp: choice("", `{"a":1}`)}
	raw, err := NewInvoker(p, true, 0, nil).Invoke(context.Background(), "s", "u", "m", 10)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, raw.ReasoningContent)
}

func TestInvoker_InvokeStream_ContentDeltasOnly(t *testing.T) {
	p := &fakeProvider{chunks: []llm.StreamChunk{
		{Delta: llm.Message{ReasoningContent: "thinking"}},
		{Delta: llm.Message{Content: "{"}},
		{Index: 1, Delta: llm.Message{Content: "other choice"}},
		{Delta: llm.Message{Content: "}"}, FinishReason: "stop"},
		{Err: &llm.Error{Code: llm.ErrUpstreamError, Message: "reset"}},
		{Delta: llm.Message{Content: "never"}},
	}}
	inv := NewInvoker(p, true, 0, zap.NewNop())

	ch, err := inv.InvokeStream(context.Background(), "s", "u", "m", 10)
	require.NoError(t, err)

	var texts []string
	var streamErr error
	for f := range ch {
		if f.Err != nil {
			streamErr = f.Err
			continue
		}
		texts = append(texts, f.Text)
	}
	assert.Equal(t, []string{"{", "}"}, texts)
	require.Error(t, streamErr)
	assert.Equal(t, "reset", streamErr.Error())
}

func TestInvoker_InvokeStream_OpenError(t *testing.T) {
	p := &fakeProvider{err: &llm.Error{Code: llm.ErrRateLimited, Message: "slow down"}}
	_, err := NewInvoker(p, true, 0, nil).InvokeStream(context.Background(), "s", "u", "m", 10)
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrRateLimited, llmErr.Code)
}

func TestInvoker_InvokeStream_CancelReleasesProvider(t *testing.T) {
	p := &fakeProvider{hold: true, chunks: []llm.StreamChunk{{Delta: llm.Message{Content: "a"}}}}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewInvoker(p, true, 0, nil).InvokeStream(ctx, "s", "u", "m", 10)
	require.NoError(t, err)

	assert.Equal(t, "a", (<-ch).Text)
	cancel()

	select {
	case <-p.released:
	case <-time.After(time.Second):
		t.Fatal("provider stream not released")
	}
	for range ch {
	}
}
