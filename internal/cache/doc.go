// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，并在其上实现结构化生成的
结果缓存。

# 核心类型

  - Manager：持有 go-redis 客户端，按字节读写 Get/Set/Delete，
    后台定时 Ping，可选 TLS。
  - ResultStore：实现 structured.ResultCache，按请求摘要存取
    校验通过的结果对象，读写失败只记日志并按未命中处理。

只缓存同步模式下校验通过、且请求显式设置 cache: true 的结果；
其余请求、失败结果与流式输出从不写入。
*/
package cache
