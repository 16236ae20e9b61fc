// Package api defines the wire types of the structgen HTTP API.
//
// # API Overview
//
//	POST /generate_structured         同步生成，返回 GenerationResponse
//	POST /generate_structured_stream  SSE 流式输出原始片段（stream 必须为 true）
//	GET  /generate_structured_ws      WebSocket 流式输出
//	GET  /health                      服务状态、默认模型与上下文上限
//	GET  /healthz /ready /version     探针与版本
//
// 四种生成失败（CONTEXT_TOO_LARGE、API_ERROR、INVALID_JSON、
// SCHEMA_VALIDATION_FAILED）都以 HTTP 200 + success=false 返回；
// 请求格式错误为 400 INVALID_REQUEST，内部故障为 500 INTERNAL_ERROR。
//
// # Authentication
//
// 配置了 API Key 时，请求需携带 X-API-Key 头；配置了 JWT 时携带
// Authorization: Bearer <token>。健康检查端点不需要认证。
package api
