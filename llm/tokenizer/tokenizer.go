package tokenizer

import (
	"fmt"
	"strings"
	"sync"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数，
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Message 是 tokenizer 包内部使用的轻量消息结构，避免依赖 llm 包。
type Message struct {
	Role    string
	Content string
}

var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// RegisterTokenizer 为给定的模型名称注册分词器.
func RegisterTokenizer(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// GetTokenizer 返回为给定模型注册的分词器。
// 精确匹配优先，其次取最长的前缀匹配（"gpt-4o-mini-2024" 命中 "gpt-4o-mini" 而非 "gpt-4o"）。
func GetTokenizer(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}

	var best Tokenizer
	bestLen := 0
	for prefix, t := range modelTokenizers {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	if best != nil {
		return best, nil
	}
	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// GetTokenizerOrEstimator 返回该模型注册的分词器，未注册时回退到估算器。
func GetTokenizerOrEstimator(model string) Tokenizer {
	t, err := GetTokenizer(model)
	if err != nil {
		return NewEstimatorTokenizer(model, 0)
	}
	return t
}

// Fallback 包装一个主分词器，主分词器出错（如编码数据无法下载）时改用估算器。
type Fallback struct {
	Primary   Tokenizer
	Estimator *EstimatorTokenizer
}

// NewFallback 创建带估算器兜底的分词器.
func NewFallback(model string) *Fallback {
	primary := GetTokenizerOrEstimator(model)
	return &Fallback{Primary: primary, Estimator: NewEstimatorTokenizer(model, primary.MaxTokens())}
}

func (f *Fallback) CountTokens(text string) (int, error) {
	if n, err := f.Primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.Estimator.CountTokens(text)
}

func (f *Fallback) CountMessages(messages []Message) (int, error) {
	if n, err := f.Primary.CountMessages(messages); err == nil {
		return n, nil
	}
	return f.Estimator.CountMessages(messages)
}

func (f *Fallback) MaxTokens() int { return f.Primary.MaxTokens() }

func (f *Fallback) Name() string { return f.Primary.Name() }
