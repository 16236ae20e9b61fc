package structured

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BaSui01/structgen/llm/tokenizer"
	"github.com/BaSui01/structgen/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// =============================================================================
// 🎯 Orchestrator
// =============================================================================

const (
	msgSchemaMismatch = "Generated data does not match required schema"
	fixAPIError       = "Please check API configuration and retry"
	fixInvalidJSON    = "LLM should respond with valid JSON only, no markdown or extra text."

	// OutcomeSuccess 是成功结果在指标中的标签
	OutcomeSuccess = "success"
)

// Config 是编排器的不可变配置.
type Config struct {
	DefaultModel     string
	MaxTokens        int
	ContextMaxFields int
	CacheTTL         time.Duration
}

// ResultCache 缓存成功的生成结果.
type ResultCache interface {
	Lookup(ctx context.Context, key string) (Value, bool)
	Store(ctx context.Context, key string, result Value, ttl time.Duration)
}

// Recorder 接收生成管线的指标事件.
type Recorder interface {
	RecordGeneration(mode, outcome, model string, duration time.Duration)
	RecordExtraction(strategy string, usedReasoning bool)
	RecordMismatch(expected, received string)
	RecordPromptTokens(model string, tokens int)
	RecordCacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordGeneration(string, string, string, time.Duration) {}
func (nopRecorder) RecordExtraction(string, bool)                          {}
func (nopRecorder) RecordMismatch(string, string)                          {}
func (nopRecorder) RecordPromptTokens(string, int)                         {}
func (nopRecorder) RecordCacheLookup(bool)                                 {}

// Option configures a Generator.
type Option func(*Generator)

// WithCache installs a result cache for synchronous generations. It is
// consulted only for requests that set Request.Cache; all other requests
// always reach the backend and leave nothing behind.
func WithCache(c ResultCache) Option {
	return func(g *Generator) { g.cache = c }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Generator) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(g *Generator) { g.tracer = t }
}

// GenerationError 携带流式模式在开流前产生的类型化失败.
type GenerationError struct {
	Outcome *Outcome
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Outcome.Code, e.Outcome.Message)
}

// Generator 串联提示词构建、调用、提取与校验。每个请求相互独立，无共享可变状态。
type Generator struct {
	cfg      Config
	invoker  CompletionInvoker
	cache    ResultCache
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewGenerator creates a Generator. Zero MaxTokens and ContextMaxFields take
// the defaults 3000 and 16.
func NewGenerator(cfg Config, invoker CompletionInvoker, logger *zap.Logger, opts ...Option) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 3000
	}
	if cfg.ContextMaxFields <= 0 {
		cfg.ContextMaxFields = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		cfg:      cfg,
		invoker:  invoker,
		recorder: nopRecorder{},
		tracer:   otel.Tracer("github.com/BaSui01/structgen/structured"),
		logger:   logger.With(zap.String("component", "generator")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ContextMaxFields returns the configured context limit.
func (g *Generator) ContextMaxFields() int { return g.cfg.ContextMaxFields }

// DefaultModel returns the configured default model.
func (g *Generator) DefaultModel() string { return g.cfg.DefaultModel }

func (g *Generator) model(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return g.cfg.DefaultModel
}

// checkContext rejects oversized contexts; it never truncates.
func (g *Generator) checkContext(req *Request) *Outcome {
	n := len(req.Context)
	if n <= g.cfg.ContextMaxFields {
		return nil
	}
	return Failed(types.ErrContextTooLarge,
		fmt.Sprintf("Context exceeds maximum allowed fields: %d > %d", n, g.cfg.ContextMaxFields),
		fmt.Sprintf("Reduce context fields to %d or less", g.cfg.ContextMaxFields),
		nil)
}

func apiFailure(err error) *Outcome {
	return Failed(types.ErrAPIError, "LLM API call failed: "+err.Error(), fixAPIError, nil)
}

// Generate runs the full pipeline and always returns a well-formed Outcome for
// data-quality and backend failures. A non-nil error means an internal fault.
func (g *Generator) Generate(ctx context.Context, req *Request) (*Outcome, error) {
	if req == nil {
		return nil, errors.New("structured: nil request")
	}
	start := time.Now()
	model := g.model(req)

	ctx, span := g.tracer.Start(ctx, "structured.Generate", trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Int("structured.context_fields", len(req.Context)),
		attribute.Int("structured.schema_fields", len(req.Schema)),
	))
	defer span.End()

	out := g.generate(ctx, req, model)

	label := outcomeLabel(out)
	span.SetAttributes(attribute.String("structured.outcome", label))
	if !out.Success {
		span.SetStatus(codes.Error, out.Message)
	}
	g.recorder.RecordGeneration("sync", label, model, time.Since(start))
	requestID, _ := types.RequestID(ctx)
	g.logger.Info("generation finished",
		zap.String("request_id", requestID),
		zap.String("model", model),
		zap.String("outcome", label),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func (g *Generator) generate(ctx context.Context, req *Request, model string) *Outcome {
	if out := g.checkContext(req); out != nil {
		g.logger.Warn("context too large", zap.Int("fields", len(req.Context)), zap.Int("max", g.cfg.ContextMaxFields))
		return out
	}

	system, user := BuildPrompts(req)
	g.observePrompt(model, system, user)

	useCache := g.cache != nil && req.Cache
	var key string
	if useCache {
		key = CacheKey(model, g.cfg.MaxTokens, system, user)
		if v, ok := g.cache.Lookup(ctx, key); ok {
			g.recorder.RecordCacheLookup(true)
			return Succeeded(v)
		}
		g.recorder.RecordCacheLookup(false)
	}

	raw, err := g.invoker.Invoke(ctx, system, user, model, g.cfg.MaxTokens)
	if err != nil {
		g.logger.Warn("llm call failed", zap.String("model", model), zap.Error(err))
		return apiFailure(err)
	}
	g.logger.Debug("raw output", zap.String("content", raw.Content), zap.String("reasoning", raw.ReasoningContent))

	ext, err := ExtractJSON(*raw)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			g.logger.Debug("extraction failed", zap.String("candidate", pe.Candidate), zap.Error(pe.Err))
		}
		g.recorder.RecordExtraction(string(StrategyLastResort), false)
		return Failed(types.ErrInvalidJSON, "Failed to parse LLM response as valid JSON: "+err.Error(), fixInvalidJSON, nil)
	}
	g.recorder.RecordExtraction(string(ext.Strategy), ext.UsedReasoning)

	if mismatches := Validate(ext.Value, req.Schema); len(mismatches) > 0 {
		for _, m := range mismatches {
			g.recorder.RecordMismatch(m.Expected, m.Received)
		}
		g.logger.Warn("schema validation failed", zap.Any("mismatches", mismatches))
		return Failed(types.ErrSchemaValidationFailed, msgSchemaMismatch, SuggestFix(mismatches), mismatches)
	}

	if useCache {
		g.cache.Store(ctx, key, ext.Value, g.cfg.CacheTTL)
	}
	return Succeeded(ext.Value)
}

// Stream checks the context limit, opens the upstream stream, and forwards each
// raw text fragment as it arrives. No extraction or validation happens here:
// callers must reassemble the fragments and validate the result themselves.
//
// A failure before the stream opens is returned as *GenerationError carrying a
// CONTEXT_TOO_LARGE or API_ERROR outcome. Cancelling ctx closes the upstream.
func (g *Generator) Stream(ctx context.Context, req *Request) (<-chan Fragment, error) {
	if req == nil {
		return nil, errors.New("structured: nil request")
	}
	start := time.Now()
	model := g.model(req)

	if out := g.checkContext(req); out != nil {
		g.recorder.RecordGeneration("stream", outcomeLabel(out), model, time.Since(start))
		return nil, &GenerationError{Outcome: out}
	}

	ctx, span := g.tracer.Start(ctx, "structured.Stream", trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Int("structured.context_fields", len(req.Context)),
	))

	system, user := BuildPrompts(req)
	g.observePrompt(model, system, user)

	upstream, err := g.invoker.InvokeStream(ctx, system, user, model, g.cfg.MaxTokens)
	if err != nil {
		out := apiFailure(err)
		span.SetStatus(codes.Error, out.Message)
		span.End()
		g.recorder.RecordGeneration("stream", outcomeLabel(out), model, time.Since(start))
		g.logger.Warn("llm stream open failed", zap.String("model", model), zap.Error(err))
		return nil, &GenerationError{Outcome: out}
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer span.End()
		fragments := 0
		label := OutcomeSuccess
		defer func() {
			span.SetAttributes(attribute.Int("structured.fragments", fragments))
			g.recorder.RecordGeneration("stream", label, model, time.Since(start))
		}()
		for frag := range upstream {
			if frag.Err != nil {
				label = string(types.ErrAPIError)
				span.SetStatus(codes.Error, frag.Err.Error())
				g.logger.Warn("llm stream failed", zap.Error(frag.Err))
			} else {
				fragments++
			}
			select {
			case out <- frag:
			case <-ctx.Done():
				label = "cancelled"
				for range upstream {
				}
				return
			}
		}
	}()
	return out, nil
}

// observePrompt logs prompts at debug and records the estimated prompt size.
func (g *Generator) observePrompt(model, system, user string) {
	g.logger.Debug("prompts built", zap.String("system", system), zap.String("user", user))
	tk := tokenizer.NewFallback(model)
	n, err := tk.CountMessages([]tokenizer.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		return
	}
	g.recorder.RecordPromptTokens(model, n)
	if n+g.cfg.MaxTokens > tk.MaxTokens() {
		g.logger.Warn("prompt and output budget exceed model context window",
			zap.String("model", model),
			zap.Int("prompt_tokens", n),
			zap.Int("max_tokens", g.cfg.MaxTokens),
			zap.Int("context_window", tk.MaxTokens()),
		)
	}
}

func outcomeLabel(o *Outcome) string {
	if o.Success {
		return OutcomeSuccess
	}
	return string(o.Code)
}

// CacheKey 由模型、输出预算与两段提示词的 SHA-256 组成，相同输入得到相同的键。
func CacheKey(model string, maxTokens int, system, user string) string {
	h := sha256.New()
	for _, part := range []string{model, strconv.Itoa(maxTokens), system, user} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
