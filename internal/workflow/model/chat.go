package model

// ChatAnswerInput 问答合成输入；各层上下文为空表示该层未参与
type ChatAnswerInput struct {
	ModelParams

	Question          string
	RegulationContext string
	ReportContext     string
	WebContext        string
}
