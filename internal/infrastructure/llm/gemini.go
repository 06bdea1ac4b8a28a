package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"rail-inspection-ai-api/internal/config"
	workflowport "rail-inspection-ai-api/internal/workflow/port"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiChatModel 以 eino ChatModel 接口包装 Gemini。
// 结构化输出选项映射为 response_mime_type 与 response_schema。
type GeminiChatModel struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewGeminiChatModel 创建 Gemini ChatModel
func NewGeminiChatModel(ctx context.Context, cfg config.ProviderConfig) (*GeminiChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}
	return &GeminiChatModel{
		client:      client,
		model:       name,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Close 释放客户端
func (g *GeminiChatModel) Close() error {
	return g.client.Close()
}

func (g *GeminiChatModel) GetType() string { return "Gemini" }

// IsCallbacksEnabled 由组件自身触发回调
func (g *GeminiChatModel) IsCallbacksEnabled() bool { return true }

func (g *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (out *schema.Message, err error) {
	common := model.GetCommonOptions(&model.Options{
		Model:       &g.model,
		Temperature: &g.temperature,
		MaxTokens:   &g.maxTokens,
	}, opts...)
	structured := model.GetImplSpecificOptions(&workflowport.StructuredOutput{}, opts...)

	cbConfig := &model.Config{Model: derefString(common.Model)}
	if common.Temperature != nil {
		cbConfig.Temperature = *common.Temperature
	}
	if common.MaxTokens != nil {
		cbConfig.MaxTokens = *common.MaxTokens
	}

	ctx = callbacks.EnsureRunInfo(ctx, g.GetType(), components.ComponentOfChatModel)
	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Messages: input, Config: cbConfig})
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	gm := g.client.GenerativeModel(cbConfig.Model)
	gm.SetTemperature(cbConfig.Temperature)
	if cbConfig.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(cbConfig.MaxTokens))
	}
	if structured != nil && structured.Schema != nil {
		gm.ResponseMIMEType = "application/json"
		gm.ResponseSchema = toGenaiSchema(structured.Schema)
	}

	system, history, last := splitMessages(input)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if last == "" {
		return nil, fmt.Errorf("gemini: no user message to send")
	}

	cs := gm.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := responseText(resp)
	out = schema.AssistantMessage(text, nil)
	usage := &model.TokenUsage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}}
	callbacks.OnEnd(ctx, &model.CallbackOutput{Message: out, Config: cbConfig, TokenUsage: usage})
	return out, nil
}

// Stream 一次性生成后以单元素流返回
func (g *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := g.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// splitMessages 拆出系统指令、历史与最后一条用户消息
func splitMessages(input []*schema.Message) (string, []*genai.Content, string) {
	var (
		system  []string
		history []*genai.Content
		last    string
	)
	for i, m := range input {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			system = append(system, m.Content)
			continue
		case schema.User:
			if i == len(input)-1 {
				last = m.Content
				continue
			}
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case schema.Assistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	return strings.Join(system, "\n\n"), history, last
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// toGenaiSchema 将 JSON Schema 子集（type/properties/required/enum/items/description）转换为 Gemini Schema
func toGenaiSchema(js map[string]any) *genai.Schema {
	if js == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := js["type"].(string); ok {
		switch t {
		case "object":
			s.Type = genai.TypeObject
		case "array":
			s.Type = genai.TypeArray
		case "string":
			s.Type = genai.TypeString
		case "integer":
			s.Type = genai.TypeInteger
		case "number":
			s.Type = genai.TypeNumber
		case "boolean":
			s.Type = genai.TypeBoolean
		}
	}
	if d, ok := js["description"].(string); ok {
		s.Description = d
	}
	if props, ok := js["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if sub, ok := v.(map[string]any); ok {
				s.Properties[k] = toGenaiSchema(sub)
			}
		}
	}
	s.Required = toStrings(js["required"])
	s.Enum = toStrings(js["enum"])
	if items, ok := js["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	return s
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
