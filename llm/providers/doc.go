// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容服务商的通用适配能力，是 openaicompat
子包的公共基础层：请求/响应转换、错误映射与模型选择。

# 核心类型

  - OpenAICompat* 系列 — OpenAI 兼容 API 的请求/响应结构体，含 reasoning_content 与 response_format

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ReadErrorMessage — 解析上游错误体，失败时回退原始文本
  - ToLLMChatResponse — 转换为 llm.ChatResponse，保留推理通道
  - ChooseModel — 请求 > 配置 > 默认 的模型选择
*/
package providers
