// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、LLM 调用、
结构化生成管线与结果缓存四个维度。

# 核心类型

  - Collector：持有 promauto 注册的向量指标，按 namespace 隔离；
    实现 structured.Recorder，直接挂到 Generator 上。
  - InstrumentProvider：包装 llm.Provider，记录每次上游调用的
    状态、耗时与 token 用量。

# 指标

  - HTTP：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM：请求总数、耗时、prompt/completion token，按 provider/model 分组。
  - 生成：按 mode/outcome/model 计数与耗时，提取策略命中分布，
    schema 偏差按 expected/received 计数，prompt token 估算直方图。
  - 缓存：命中与未命中计数。
*/
package metrics
