package inspection

import (
	"fmt"
	"regexp"
	"strings"

	"rail-inspection-ai-api/internal/domain/entity"
)

// RenderDocument 按报告分节格式输出正文
func RenderDocument(doc *entity.InspectionDocument) string {
	b := &doc.Batch

	railTypes := strings.Join(b.RailTypes(), ", ")
	if railTypes == "" {
		railTypes = orDash(b.Route)
	}
	parts := strings.Join(b.PartNames(), ", ")
	if parts == "" {
		parts = "Unknown"
	}

	refs := "-"
	if len(doc.CitedRegulationIDs) > 0 {
		refs = strings.Join(doc.CitedRegulationIDs, ", ")
	} else if doc.Marker != "" {
		refs = doc.Marker
	}

	var sb strings.Builder
	section := func(name, body string) {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", name, strings.TrimSpace(body))
	}
	section("일련번호", doc.Serial)
	section("철도분류", railTypes)
	section("부품명", parts)
	section("노선정보", fmt.Sprintf("노선: %s\n위치: %s", orDash(b.Route), orDash(b.Location)))
	section("결함정보", fmt.Sprintf("결함유형: %s\n결함상태: %s", strings.Join(defectKeys(b), ", "), FixLineBreaks(doc.Narrative)))
	section("위험도평가", "위험도 등급: "+string(doc.RiskGrade))
	section("참조 규정", refs)
	section("권장 조치내용", fmt.Sprintf("%s (%s)", doc.RiskGrade.ActionKo(), doc.RecommendedAction))
	section("조치결과", "미조치 - 추후 작성 예정")
	section("작업이력", "작업일자:\n작업내용:")

	return strings.TrimSpace(sb.String())
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return strings.TrimSpace(s)
}

type lineFix struct {
	re   *regexp.Regexp
	repl string
}

// 模型输出中被错误折行的数字、单位与括号
var lineFixes = []lineFix{
	{regexp.MustCompile(`(\d+)\.\s*\n\s*(\d+)`), "$1.$2"},
	{regexp.MustCompile(`\(\s*\n\s*`), "("},
	{regexp.MustCompile(`\s*\n\s*\)`), ")"},
	{regexp.MustCompile(`\)\s*\n\s*([가-힣])`), ")$1"},
	{regexp.MustCompile(`(\d+\.?\d*°C)\s*\n\s*([가-힣])`), "$1$2"},
	{regexp.MustCompile(`(\d+\.?\d*%)\s*\n\s*([가-힣])`), "$1$2"},
	{regexp.MustCompile(`(\d+\.?\d*)\s*\n\s*(°C)`), "$1$2"},
	{regexp.MustCompile(`([가-힣])\s*\n\s*(\d)`), "$1 $2"},
	{regexp.MustCompile(`([가-힣]),\s*\n\s*(\d)`), "$1, $2"},
	{regexp.MustCompile(`(\d+(?:일|개월|개소?))\s*\n\s*([가-힣])`), "$1 $2"},
	{regexp.MustCompile(`(\d+\.?\d*%)\s*,\s*\n\s*(\d)`), "$1, $2"},
	{regexp.MustCompile(`(\d+\.?\d*%)\s*~\s*\n\s*(\d)`), "$1~$2"},
	{regexp.MustCompile(`:[ \t]*\n[ \t]*([가-힣])`), ": $1"},
	{regexp.MustCompile(`,\s*\n\s*(\d)`), ", $1"},
	{regexp.MustCompile(`-[ \t]*\n\s*(\w)`), "- $1"},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

var (
	parenWithBreak = regexp.MustCompile(`\([^)]*\n[^)]*\)`)
	innerBreak     = regexp.MustCompile(`\s*\n\s*`)
	sectionHeader  = regexp.MustCompile(`^\[(.+?)\]$`)
)

// FixLineBreaks 修复模型正文中数字、单位与括号内的错误换行
func FixLineBreaks(text string) string {
	for _, f := range lineFixes {
		text = f.re.ReplaceAllString(text, f.repl)
	}
	for i := 0; i < 5 && parenWithBreak.MatchString(text); i++ {
		text = parenWithBreak.ReplaceAllStringFunc(text, func(m string) string {
			return innerBreak.ReplaceAllString(m, " ")
		})
	}
	return text
}

// ParseSections 按 [标题] 行拆分报告正文
func ParseSections(content string) map[string]string {
	sections := make(map[string]string)
	current := ""
	var lines []string
	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(strings.Join(lines, "\n"))
		}
	}
	for _, line := range strings.Split(content, "\n") {
		if m := sectionHeader.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			current = m[1]
			lines = lines[:0]
			continue
		}
		if current != "" {
			lines = append(lines, line)
		}
	}
	flush()
	return sections
}
