// Package structured 实现结构化生成管线：提示词构建、补全调用、
// 容错 JSON 提取、schema 校验，以及把每种失败映射为类型化结果的编排器。
//
// 同步模式：
//
//	gen := structured.NewGenerator(structured.Config{DefaultModel: "gpt-4o"}, invoker, logger)
//	out, err := gen.Generate(ctx, req) // err 仅表示内部故障
//	if !out.Success {
//	    // out.Code 为 CONTEXT_TOO_LARGE / API_ERROR / INVALID_JSON / SCHEMA_VALIDATION_FAILED
//	}
//
// 流式模式只转发原始片段，不做提取与校验，调用方需自行拼接并校验。
package structured
