// Package tlsutil 为出站 LLM 调用与 Redis 连接提供加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
