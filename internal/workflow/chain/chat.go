package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "rail-inspection-ai-api/internal/domain/service"
	wfmodel "rail-inspection-ai-api/internal/workflow/model"
	wfnode "rail-inspection-ai-api/internal/workflow/node"
	workflowport "rail-inspection-ai-api/internal/workflow/port"
	workflowprompt "rail-inspection-ai-api/internal/workflow/prompt"
)

// ChatChain 基于已选定的检索上下文合成回答
type ChatChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.ChatAnswerInput, string]
	chainErr  error
}

func NewChatChain(factory workflowport.ChatModelFactory) *ChatChain {
	return &ChatChain{factory: factory}
}

func (c *ChatChain) Invoke(ctx context.Context, in *wfmodel.ChatAnswerInput) (string, error) {
	if c == nil || c.factory == nil {
		return "", fmt.Errorf("llm factory not configured")
	}
	if in == nil || strings.TrimSpace(in.Question) == "" {
		return "", fmt.Errorf("question is required")
	}
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	if c.chainErr != nil {
		return "", c.chainErr
	}
	return c.chain.Invoke(ctx, in)
}

type chatChainState struct {
	In       *wfmodel.ChatAnswerInput
	Messages []*schema.Message
}

func (c *ChatChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.ChatAnswerInput, string], error) {
	chain := compose.NewChain[*wfmodel.ChatAnswerInput, string]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *wfmodel.ChatAnswerInput) (*chatChainState, error) {
			tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptChatAnswerV1)
			if err != nil {
				return nil, err
			}
			msgs, err := tpl.Format(ctx, map[string]any{
				"question":           strings.TrimSpace(in.Question),
				"regulation_context": wfnode.OrNone(strings.TrimSpace(in.RegulationContext)),
				"report_context":     wfnode.OrNone(strings.TrimSpace(in.ReportContext)),
				"web_context":        wfnode.OrNone(strings.TrimSpace(in.WebContext)),
			})
			if err != nil {
				return nil, err
			}
			return &chatChainState{In: in, Messages: msgs}, nil
		}),
		compose.WithNodeName("chat.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *chatChainState) (string, error) {
			out, err := generate(ctx, c.factory, llmctx.WorkflowChatAnswer, st.In.ModelParams, st.Messages, nil)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(out.Content), nil
		}),
		compose.WithNodeName("chat.llm"),
	)

	return chain.Compile(ctx)
}
