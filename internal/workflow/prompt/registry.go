// Package prompt 管理内嵌的提示词模板。
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// 每个提示词由 <id>.system.txt 与 <id>.user.txt 两个文件组成，变量使用 FString 语法
//
//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptInspectionDraftV1  PromptID = "inspection_draft_v1"
	PromptInspectionReviseV1 PromptID = "inspection_revise_v1"
	PromptInspectionReviewV1 PromptID = "inspection_review_v1"
	PromptChatAnswerV1       PromptID = "chat_answer_v1"
)

// Registry 首次使用时解析模板并缓存，并发安全
type Registry struct {
	mu    sync.Mutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{cache: map[PromptID]einoprompt.ChatTemplate{}}
}

// ChatTemplate 返回 system + user 两条消息组成的模板
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}
	system, err := load(id, "system")
	if err != nil {
		return nil, err
	}
	user, err := load(id, "user")
	if err != nil {
		return nil, err
	}
	tpl := einoprompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

func load(id PromptID, role string) (string, error) {
	b, err := templatesFS.ReadFile("templates/" + string(id) + "." + role + ".txt")
	if err != nil {
		return "", fmt.Errorf("prompt %s has no %s template: %w", id, role, err)
	}
	return strings.TrimSpace(string(b)), nil
}
