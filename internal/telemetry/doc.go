// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 structgen 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 生成管线的 span（structured.Generate / structured.Stream）与 HTTP
// 中间件的 span 都挂在这里注册的全局 provider 上。
// 遥测禁用时保持 noop，不连接任何外部服务。
package telemetry
