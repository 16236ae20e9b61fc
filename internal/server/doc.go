// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理：非阻塞启动、优雅关闭与
异步错误传播。structgen 用它同时托管业务 API 与 /metrics 两个监听。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start/Shutdown/
    Errors/Addr 等生命周期方法。
  - Config：监听地址、读写与空闲超时、最大请求头与优雅关闭超时。

流式接口的整个生命周期受 WriteTimeout 约束，需大于上游 LLM 超时。
*/
package server
