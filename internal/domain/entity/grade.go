package entity

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// RiskGrade 风险等级，严重程度 E < O < X1 < X2 < S
type RiskGrade string

const (
	GradeE  RiskGrade = "E"
	GradeO  RiskGrade = "O"
	GradeX1 RiskGrade = "X1"
	GradeX2 RiskGrade = "X2"
	GradeS  RiskGrade = "S"
)

// AllGrades 按严重程度升序
var AllGrades = []RiskGrade{GradeE, GradeO, GradeX1, GradeX2, GradeS}

// 固定的处置对照表，对外可见，评审时强制校验
var gradeActions = map[RiskGrade]string{
	GradeE:  "no replacement, routine inspection",
	GradeO:  "continued monitoring",
	GradeX1: "replace within 1 month",
	GradeX2: "replace within 10 days",
	GradeS:  "replace same day",
}

var gradeActionsKo = map[RiskGrade]string{
	GradeE:  "교체 불필요, 정기 점검 유지",
	GradeO:  "지속 모니터링",
	GradeX1: "1개월 이내 교체",
	GradeX2: "10일 이내 교체",
	GradeS:  "당일 교체",
}

// ParseRiskGrade 解析等级字符串
func ParseRiskGrade(s string) (RiskGrade, error) {
	g := RiskGrade(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := gradeActions[g]; !ok {
		return "", fmt.Errorf("unknown risk grade %q", s)
	}
	return g, nil
}

// Valid 是否为合法等级
func (g RiskGrade) Valid() bool {
	_, ok := gradeActions[g]
	return ok
}

// Severity 严重程度序号，非法等级返回 -1
func (g RiskGrade) Severity() int {
	for i, v := range AllGrades {
		if v == g {
			return i
		}
	}
	return -1
}

// Less 严重程度比较
func (g RiskGrade) Less(o RiskGrade) bool {
	return g.Severity() < o.Severity()
}

// Action 对照表中的处置措施
func (g RiskGrade) Action() string {
	return gradeActions[g]
}

// ActionKo 报告正文使用的韩文处置措施
func (g RiskGrade) ActionKo() string {
	return gradeActionsKo[g]
}

// ActionMatches 判断处置文本是否符合该等级的对照表
func (g RiskGrade) ActionMatches(action string) bool {
	a := strings.ToLower(strings.TrimSpace(action))
	if a == "" || !g.Valid() {
		return false
	}
	return a == gradeActions[g] || a == strings.ToLower(gradeActionsKo[g])
}

// MaxGrade 返回最严重的等级，空输入返回 E
func MaxGrade(grades ...RiskGrade) RiskGrade {
	out := GradeE
	for _, g := range grades {
		if out.Less(g) {
			out = g
		}
	}
	return out
}

// mentionPattern 等级陈述的匹配规则。grade 为空时等级取自捕获组 1，命中范围为整个匹配；
// 否则捕获组 1 为暗示该等级的处置短语，命中范围仅为该短语。
type mentionPattern struct {
	re    *regexp.Regexp
	grade RiskGrade
}

const gradeToken = `([EOXS][12]?)\b`

var (
	reportGradePattern   = regexp.MustCompile(`위험도\s*등급[:\s]*([EOXS][12]?)`)
	gradeMentionPatterns = append([]mentionPattern{
		{re: regexp.MustCompile(`(?:위험도\s*)?등급\s*(?:[은는이가을]|으로)?\s*[:：(]?\s*\(?` + gradeToken)},
		{re: regexp.MustCompile(`위험도\s*(?:[은는이가]\s*)?[:：]?\s*` + gradeToken)},
		{re: regexp.MustCompile(`\b([EOXS][12]?)\s*등급`)},
		{re: regexp.MustCompile(`(?i)\bgrade\s*[:=]?\s*` + gradeToken)},
		{re: regexp.MustCompile(`\b(X[12])\b`)},
	}, actionPatterns()...)
)

// actionPatterns 处置对照表中的短语同样视为等级陈述，空白可有可无
func actionPatterns() []mentionPattern {
	var out []mentionPattern
	for _, g := range AllGrades {
		for _, phrase := range []string{gradeActionsKo[g], gradeActions[g]} {
			expr := strings.Join(strings.Fields(regexp.QuoteMeta(phrase)), `\s*`)
			// 数字开头的短语不能接在其他数字之后，避免 「11개월」 命中 「1개월」
			out = append(out, mentionPattern{
				re:    regexp.MustCompile(`(?i)(?:^|[^0-9])(` + expr + `)`),
				grade: g,
			})
		}
	}
	return out
}

// FindReportGrade 从报告正文的「위험도 등급」行提取等级
func FindReportGrade(text string) (RiskGrade, bool) {
	m := reportGradePattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	g, err := ParseRiskGrade(m[1])
	if err != nil {
		return "", false
	}
	return g, true
}

// GradeMention 文本中出现的等级陈述
type GradeMention struct {
	Grade      RiskGrade
	Start, End int
}

// FindGradeMentions 查找文本中所有等级陈述（按出现位置排序，去除重叠）
func FindGradeMentions(text string) []GradeMention {
	var out []GradeMention
	covered := func(start, end int) bool {
		for _, m := range out {
			if start < m.End && end > m.Start {
				return true
			}
		}
		return false
	}
	for _, p := range gradeMentionPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if len(loc) < 4 || loc[2] < 0 {
				continue
			}
			m := GradeMention{Grade: p.grade, Start: loc[0], End: loc[1]}
			if p.grade == "" {
				g, err := ParseRiskGrade(text[loc[2]:loc[3]])
				if err != nil {
					continue
				}
				m.Grade = g
			} else {
				m.Start, m.End = loc[2], loc[3]
			}
			if covered(m.Start, m.End) {
				continue
			}
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
