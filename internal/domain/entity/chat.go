package entity

// TierTrace 问答级联中单层的执行记录
type TierTrace struct {
	Tier       Tier   `json:"tier"`
	Attempted  bool   `json:"attempted"`
	Sufficient bool   `json:"sufficient"`
	Hits       int    `json:"hits"`
	Error      string `json:"error,omitempty"`
}

// ChatAnswer 问答结果
type ChatAnswer struct {
	AnswerText         string      `json:"answer_text"`
	CitedRegulationIDs []string    `json:"cited_regulation_ids"`
	CitedReportIDs     []string    `json:"cited_report_ids"`
	UsedWebSearch      bool        `json:"used_web_search"`
	WebSources         []string    `json:"web_sources,omitempty"`
	Insufficient       bool        `json:"insufficient_grounding"`
	Tiers              []TierTrace `json:"tiers"`
}

// Provenance 实际参与回答的最高优先级层级
func (a *ChatAnswer) Provenance() Tier {
	switch {
	case len(a.CitedRegulationIDs) > 0:
		return TierRegulation
	case len(a.CitedReportIDs) > 0:
		return TierReport
	case a.UsedWebSearch:
		return TierWeb
	}
	return TierModel
}
