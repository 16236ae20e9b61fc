// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 structgen 全局共享的类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 structured、llm、api
等上层模块提供统一的错误码与 Context 传播工具，避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误，含 HTTP 状态码、Retryable 与 Cause
  - 生成结果错误码：CONTEXT_TOO_LARGE、API_ERROR、INVALID_JSON、SCHEMA_VALIDATION_FAILED

# Context 传播

WithRequestID / WithTenantID / WithUserID / WithRoles 及对应读取函数。
*/
package types
