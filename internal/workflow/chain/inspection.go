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

type draftChainState struct {
	In       *wfmodel.DraftInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

// DraftChain 生成（或按评审意见重写）报告草稿
type DraftChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.DraftInput, *wfmodel.DraftOutput]
	chainErr  error
}

func NewDraftChain(factory workflowport.ChatModelFactory) *DraftChain {
	return &DraftChain{factory: factory}
}

func (c *DraftChain) Invoke(ctx context.Context, in *wfmodel.DraftInput) (*wfmodel.DraftOutput, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	if c.chainErr != nil {
		return nil, c.chainErr
	}
	return c.chain.Invoke(ctx, in)
}

func (c *DraftChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.DraftInput, *wfmodel.DraftOutput], error) {
	chain := compose.NewChain[*wfmodel.DraftInput, *wfmodel.DraftOutput]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, in *wfmodel.DraftInput) (*draftChainState, error) {
			if strings.TrimSpace(in.DetectionsBlock) == "" {
				return nil, fmt.Errorf("detections block is required")
			}
			return &draftChainState{In: in}, nil
		}),
		compose.WithNodeName("draft.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *draftChainState) (*draftChainState, error) {
			msgs, err := formatDraftMessages(ctx, st.In)
			if err != nil {
				return nil, err
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("draft.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *draftChainState) (*draftChainState, error) {
			out, err := generate(ctx, c.factory, llmctx.WorkflowInspectionDraft, st.In.ModelParams, st.Messages,
				&jsonSchema{Name: "inspection_draft", Schema: draftJSONSchema()})
			if err != nil {
				return nil, err
			}
			st.OutMsg = out
			return st, nil
		}),
		compose.WithNodeName("draft.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *draftChainState) (*wfmodel.DraftOutput, error) {
			var out wfmodel.DraftOutput
			if err := decodeOutput(llmctx.WorkflowInspectionDraft, st.OutMsg, &out); err != nil {
				return nil, err
			}
			out.Usage = wfmodel.UsageFromMessage(st.In.Provider, st.OutMsg)
			return &out, nil
		}),
		compose.WithNodeName("draft.parse"),
	)

	return chain.Compile(ctx)
}

func formatDraftMessages(ctx context.Context, in *wfmodel.DraftInput) ([]*schema.Message, error) {
	id := workflowprompt.PromptInspectionDraftV1
	if strings.TrimSpace(in.Feedback) != "" {
		id = workflowprompt.PromptInspectionReviseV1
	}
	tpl, err := defaultPromptRegistry.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	allowed := "(없음)"
	if len(in.AllowedIDs) > 0 {
		allowed = strings.Join(in.AllowedIDs, ", ")
	}
	vars := map[string]any{
		"action_table":       wfnode.BuildActionTableBlock(),
		"allowed_ids":        allowed,
		"serial":             strings.TrimSpace(in.Serial),
		"category":           strings.TrimSpace(in.Category),
		"detections_block":   strings.TrimSpace(in.DetectionsBlock),
		"environment_block":  wfnode.OrNone(strings.TrimSpace(in.EnvironmentBlock)),
		"regulation_context": wfnode.OrNone(strings.TrimSpace(in.RegulationContext)),
		"previous_draft":     wfnode.OrNone(strings.TrimSpace(in.PreviousDraft)),
		"feedback":           wfnode.OrNone(strings.TrimSpace(in.Feedback)),
	}
	return tpl.Format(ctx, vars)
}

func draftJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"narrative", "risk_grade", "recommended_action", "cited_regulation_ids"},
		"properties": map[string]any{
			"defect_type":        map[string]any{"type": "string"},
			"defect_state":       map[string]any{"type": "string"},
			"narrative":          map[string]any{"type": "string"},
			"risk_grade":         map[string]any{"type": "string", "enum": []any{"E", "O", "X1", "X2", "S"}},
			"grade_rationale":    map[string]any{"type": "string"},
			"recommended_action": map[string]any{"type": "string"},
			"cited_regulation_ids": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}
}

type reviewChainState struct {
	In       *wfmodel.ReviewInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

// ReviewChain 对照规程评审草稿
type ReviewChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.ReviewInput, *wfmodel.ReviewVerdict]
	chainErr  error
}

func NewReviewChain(factory workflowport.ChatModelFactory) *ReviewChain {
	return &ReviewChain{factory: factory}
}

func (c *ReviewChain) Invoke(ctx context.Context, in *wfmodel.ReviewInput) (*wfmodel.ReviewVerdict, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	if c.chainErr != nil {
		return nil, c.chainErr
	}
	return c.chain.Invoke(ctx, in)
}

func (c *ReviewChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.ReviewInput, *wfmodel.ReviewVerdict], error) {
	chain := compose.NewChain[*wfmodel.ReviewInput, *wfmodel.ReviewVerdict]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *wfmodel.ReviewInput) (*reviewChainState, error) {
			if strings.TrimSpace(in.DraftJSON) == "" {
				return nil, fmt.Errorf("draft is required")
			}
			tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptInspectionReviewV1)
			if err != nil {
				return nil, err
			}
			msgs, err := tpl.Format(ctx, map[string]any{
				"action_table":       wfnode.OrNone(in.ActionTable),
				"detections_block":   wfnode.OrNone(strings.TrimSpace(in.DetectionsBlock)),
				"regulation_context": wfnode.OrNone(strings.TrimSpace(in.RegulationContext)),
				"draft_json":         strings.TrimSpace(in.DraftJSON),
			})
			if err != nil {
				return nil, err
			}
			return &reviewChainState{In: in, Messages: msgs}, nil
		}),
		compose.WithNodeName("review.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *reviewChainState) (*reviewChainState, error) {
			out, err := generate(ctx, c.factory, llmctx.WorkflowInspectionReview, st.In.ModelParams, st.Messages,
				&jsonSchema{Name: "inspection_review", Schema: reviewJSONSchema()})
			if err != nil {
				return nil, err
			}
			st.OutMsg = out
			return st, nil
		}),
		compose.WithNodeName("review.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *reviewChainState) (*wfmodel.ReviewVerdict, error) {
			var out wfmodel.ReviewVerdict
			if err := decodeOutput(llmctx.WorkflowInspectionReview, st.OutMsg, &out); err != nil {
				return nil, err
			}
			out.Usage = wfmodel.UsageFromMessage(st.In.Provider, st.OutMsg)
			return &out, nil
		}),
		compose.WithNodeName("review.parse"),
	)

	return chain.Compile(ctx)
}

func reviewJSONSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"approved", "grade_consistent", "action_consistent", "narrative_consistent", "feedback"},
		"properties": map[string]any{
			"approved":             map[string]any{"type": "boolean"},
			"grade_consistent":     map[string]any{"type": "boolean"},
			"action_consistent":    map[string]any{"type": "boolean"},
			"narrative_consistent": map[string]any{"type": "boolean"},
			"feedback":             map[string]any{"type": "string"},
			"patch": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"op", "path"},
					"properties": map[string]any{
						"op":    map[string]any{"type": "string", "enum": []any{"add", "replace"}},
						"path":  map[string]any{"type": "string"},
						"value": map[string]any{},
					},
				},
			},
		},
	}
}
