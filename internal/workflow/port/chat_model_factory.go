// Package port 定义工作流层对外部能力的最小依赖。
package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelFactory 定义工作流层对 LLM ChatModel 的最小依赖（port）。
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// StructuredOutput 要求模型输出 JSON 的实现相关选项。
// OpenAI 兼容模型通过 response_format 实现，其他实现读取该选项自行处理。
type StructuredOutput struct {
	Name   string
	Schema map[string]any
}

// WithStructuredOutput 生成 StructuredOutput 选项
func WithStructuredOutput(name string, schema map[string]any) model.Option {
	return model.WrapImplSpecificOptFn(func(o *StructuredOutput) {
		o.Name = name
		o.Schema = schema
	})
}
