// Package circuitbreaker 为上游 LLM 调用提供熔断。
// 熔断只让失败更快返回，不做任何重试。
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值
	Threshold int
	// ResetTimeout 从 Open 进入 HalfOpen 的等待时间
	ResetTimeout time.Duration
	// HalfOpenMaxCalls 半开状态下允许同时试探的请求数
	HalfOpenMaxCalls int
	// OnStateChange 状态变更回调，在持锁外同步调用
	OnStateChange func(from, to State)
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("circuit breaker is half-open and probing")
)

// Breaker 是连续失败计数的熔断器
type Breaker struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	openedAt         time.Time
	halfOpenInFlight int
}

// New 创建熔断器，非法参数回退到默认值
func New(cfg Config, logger *zap.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "circuit_breaker")),
		now:    time.Now,
	}
}

// Allow 判断是否放行一次调用。放行后必须调用 Done 报告结果。
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var from, to State
	changed := false
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, to)
		}
	}()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		from, to, changed = b.state, StateHalfOpen, true
		b.state = StateHalfOpen
		b.halfOpenInFlight = 1
		return nil
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenInFlight++
		return nil
	default:
		return nil
	}
}

// Done 报告一次放行调用的结果
func (b *Breaker) Done(success bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case success:
		b.failures = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.halfOpenInFlight = 0
		}
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
		b.halfOpenInFlight = 0
	default:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.Threshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	if from != to {
		if to == StateOpen {
			b.logger.Warn("circuit opened", zap.Int("consecutive_failures", failures))
		}
		b.notify(from, to)
	}
}

// State 返回当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复到关闭状态
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.halfOpenInFlight = 0
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}

func (b *Breaker) notify(from, to State) {
	b.logger.Info("circuit state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
