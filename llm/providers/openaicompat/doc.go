// Package openaicompat implements llm.Provider for any backend speaking the
// OpenAI Chat Completions wire format.
//
// OpenAI, DeepSeek, Qwen, vLLM and Ollama all share the same request and
// response shape. The provider covers blocking and SSE streaming calls, the
// json_object response format, and the separate reasoning_content channel
// that reasoning models populate.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openai",
//	    APIKey:       cfg.LLM.APIKey,
//	    BaseURL:      "https://api.openai.com/v1",
//	    DefaultModel: "gpt-4o",
//	}, logger)
package openaicompat
