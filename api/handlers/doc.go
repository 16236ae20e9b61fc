/*
包 handlers 实现 structgen 的 HTTP 处理器。

# 核心类型

  - GenerateHandler：同步生成、SSE 流与 WebSocket 流三个端点；
    请求体先经内嵌 JSON Schema 校验，再解码为有序的管线请求。
  - HealthHandler：/health、/healthz、/ready、/version。
  - ResponseWriter：捕获状态码与字节数的包装器，透传 Flush/Hijack。

生成失败始终以 HTTP 200 + success=false 返回；只有请求格式错误与
内部故障使用 4xx/5xx。内部错误的细节只写日志，不回显给调用方。
*/
package handlers
