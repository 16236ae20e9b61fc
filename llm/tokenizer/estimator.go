package tokenizer

// 估算比例：CJK 约 1.5 字符/token，其余文本约 4 字符/token。
// JSON 结构符号在 BPE 词表里几乎总是独立 token，单独计数。
const (
	cjkCharsPerToken  = 1.5
	textCharsPerToken = 4.0

	// perMessageOverhead 角色标记与分隔符
	perMessageOverhead = 4
	// replyPrimingOverhead 对话结尾的回复引导
	replyPrimingOverhead = 3
)

// EstimatorTokenizer 在没有精确编码时估算 prompt 大小。
// 提示词里大量是 schema 行与 JSON 值，结构符号单独计入。
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer creates an estimator. maxTokens <= 0 means 4096.
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

// textStats 是一段文本按 token 估算口径的分类计数
type textStats struct {
	cjk        int
	structural int
	other      int
}

func classify(text string) textStats {
	var s textStats
	for _, r := range text {
		switch {
		case isCJK(r):
			s.cjk++
		case isJSONStructural(r):
			s.structural++
		default:
			s.other++
		}
	}
	return s
}

func (s textStats) tokens() int {
	n := s.structural + int(float64(s.cjk)/cjkCharsPerToken+float64(s.other)/textCharsPerToken)
	if n == 0 {
		return 1
	}
	return n
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return classify(text).tokens(), nil
}

func (e *EstimatorTokenizer) CountMessages(messages []Message) (int, error) {
	total := replyPrimingOverhead
	for _, msg := range messages {
		n, err := e.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		total += n + perMessageOverhead
	}
	return total, nil
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.maxTokens }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

func isJSONStructural(r rune) bool {
	switch r {
	case '{', '}', '[', ']', ':', ',', '"':
		return true
	}
	return false
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
