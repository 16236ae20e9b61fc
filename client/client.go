package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/structgen/api"
	"github.com/BaSui01/structgen/internal/retry"
	"go.uber.org/zap"
)

// healthTimeout 健康检查固定超时
const healthTimeout = 5 * time.Second

// maxErrorBody 错误日志中保留的响应体长度
const maxErrorBody = 500

// Client 调用 structgen HTTP 接口
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      retry.Policy
	logger     *zap.Logger
}

// Option 配置 Client
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout 设置单次生成请求的超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithAPIKey 以 X-API-Key 头发送服务端 API Key
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRetry 对传输错误与 429/502/503/504 按策略重试。默认不重试。
// 生成失败（success=false）不会触发重试。
func WithRetry(policy retry.Policy) Option {
	return func(c *Client) { c.retry = policy }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New 创建客户端，baseURL 形如 http://localhost:8011
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "structgen_client"))
	return c
}

// StatusError 表示服务返回了非 2xx 状态
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("structgen returned %d: %s", e.StatusCode, e.Body)
}

// GenerateStructured 调用 POST /generate_structured
func (c *Client) GenerateStructured(ctx context.Context, req *api.GenerationRequest) (*api.GenerationResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("sending generation request",
		zap.Int("context_fields", req.Context.Len()),
		zap.Int("schema_fields", len(req.Schema)),
	)

	policy := c.retry
	policy.Retryable = isRetryable
	body, err := retry.Do(ctx, policy, c.logger, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, "/generate_structured", payload)
	})
	if err != nil {
		return nil, err
	}

	var out api.GenerationResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		c.logger.Warn("generation failed",
			zap.String("error_code", string(out.ErrorCode)),
			zap.String("message", out.Message),
		)
	}
	return &out, nil
}

// post 发送一次请求，返回 2xx 响应体
func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("structgen call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := truncate(string(body), maxErrorBody)
		c.logger.Error("structgen error response",
			zap.Int("status", resp.StatusCode),
			zap.String("body", snippet),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// isRetryable 传输错误与暂时性状态码可重试，调用方取消不重试
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}

// HealthCheck 调用 GET /health，5 秒内返回 200 视为健康
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
