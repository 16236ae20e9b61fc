/*
Package client 是 structgen 服务的 Go 客户端，供游戏后端调用。

Client.GenerateStructured 发送 api.GenerationRequest 并返回解码后的
api.GenerationResponse；四种生成失败属于正常结果，只有传输错误、非 2xx
状态与无法解码的响应体才返回 error。

BuildEventRequest 按玩家输入类型（action 或 question）拼装事件生成请求，
EventSchema 给出固定的输出结构，ApplyContextChanges 把生成结果中的
context_changes 合并回游戏状态。
*/
package client
