// Package tokenizer 提供 prompt token 计数，
// tiktoken 精确计数优先，未知模型或编码数据不可用时回退到 CJK 感知估算器。
package tokenizer
