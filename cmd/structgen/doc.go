// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 structgen 服务端程序入口。

# 概述

cmd/structgen 启动结构化生成 HTTP 服务，并提供版本查询与健康检查
子命令。配置来自 YAML 文件、.env 与环境变量，日志使用 zap，指标在
独立端口以 Prometheus 格式暴露。

# 核心类型

  - Server     — 组装 Provider、Generator、缓存与 Handler，管理 HTTP 与 Metrics 双端口
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、RateLimiter（基于 IP）、APIKeyAuth、JWTAuth
  - 优雅关闭：信号取消 ctx 后并行关闭 HTTP、Metrics、遥测与缓存
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
