// Package chain 基于 eino compose 组织报告生成、评审与问答的模型调用链。
package chain

import (
	"context"
	"fmt"
	"strings"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	llmctx "rail-inspection-ai-api/internal/domain/service"
	wfmodel "rail-inspection-ai-api/internal/workflow/model"
	wfnode "rail-inspection-ai-api/internal/workflow/node"
	workflowport "rail-inspection-ai-api/internal/workflow/port"
	workflowprompt "rail-inspection-ai-api/internal/workflow/prompt"
	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
)

var defaultPromptRegistry = workflowprompt.NewRegistry()

// jsonSchema 结构化输出约束；为空表示纯文本输出
type jsonSchema struct {
	Name   string
	Schema map[string]any
}

// generate 调用模型；结构化输出不被支持时退回纯提示词约束再试一次。
func generate(ctx context.Context, factory workflowport.ChatModelFactory, workflow string, params wfmodel.ModelParams, msgs []*schema.Message, js *jsonSchema) (*schema.Message, error) {
	if factory == nil {
		return nil, apperrors.New(apperrors.CodeLLMProviderError, "llm factory not configured")
	}
	provider := strings.TrimSpace(params.Provider)
	ctx = llmctx.WithWorkflowProvider(ctx, workflow, provider)

	chatModel, err := factory.Get(ctx, provider)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLLMProviderError, "llm provider unavailable")
	}

	outMsg, err := chatModel.Generate(ctx, msgs, buildModelOptions(params, js)...)
	if err != nil && js != nil && wfnode.IsResponseFormatUnsupportedError(err) {
		logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
			"workflow", workflow,
			"provider", provider,
			"error", err.Error(),
		)
		outMsg, err = chatModel.Generate(ctx, msgs, buildModelOptions(params, nil)...)
	}
	if err != nil {
		if wfnode.IsRateLimitError(err) {
			return nil, apperrors.Wrap(err, apperrors.CodeTooManyRequests, "llm rate limited")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeLLMCallFailed, fmt.Sprintf("%s call failed", workflow))
	}
	if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
		return nil, apperrors.New(apperrors.CodeLLMCallFailed, "empty llm response")
	}
	return outMsg, nil
}

func buildModelOptions(params wfmodel.ModelParams, js *jsonSchema) []model.Option {
	opts := make([]model.Option, 0, 5)
	if params.Temperature != nil {
		opts = append(opts, model.WithTemperature(*params.Temperature))
	}
	if params.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*params.MaxTokens))
	}
	if m := strings.TrimSpace(params.Model); m != "" {
		opts = append(opts, model.WithModel(m))
	}
	if js != nil {
		opts = append(opts,
			openaiopts.WithExtraFields(map[string]any{
				"response_format": map[string]any{
					"type": "json_schema",
					"json_schema": map[string]any{
						"name":   js.Name,
						"strict": false,
						"schema": js.Schema,
					},
				},
			}),
			workflowport.WithStructuredOutput(js.Name, js.Schema),
		)
	}
	return opts
}

func decodeOutput(workflow string, msg *schema.Message, v any) error {
	if err := wfnode.DecodeModelJSON(msg.Content, v); err != nil {
		return apperrors.Wrap(err, apperrors.CodeGenerationFailed, workflow+" output is not valid json")
	}
	return nil
}
