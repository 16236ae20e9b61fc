// Package config 提供 structgen 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → .env 文件 → 兼容的扁平环境变量
// → STRUCTGEN_ 前缀环境变量 的顺序叠加，启动时调用一次 Validate，
// 缺少 llm.api_key 视为致命错误。
package config
