// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层。

# 概述

本包屏蔽不同 OpenAI 兼容服务商在鉴权、错误语义和流式协议上的差异，
对上层暴露一致的请求与响应模型。

# 核心接口

  - [Provider]：Completion / Stream / HealthCheck / Name
  - [ChatRequest] / [ChatResponse] / [StreamChunk]：请求与响应模型
  - [Message]：包含 content 与可选的 reasoning_content 推理通道
  - [Error]：带错误码、HTTP 状态与可重试标记的 Provider 错误

具体的 HTTP 实现位于 providers/openaicompat 子包。
*/
package llm
