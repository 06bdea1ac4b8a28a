package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExtractJSONObject 返回模型输出中第一个括号配平的 JSON 对象或数组。
// 模型常在 JSON 前后附带说明文字或 ``` 围栏；找不到配平的值时返回去除首尾空白的原文。
func ExtractJSONObject(s string) string {
	text := strings.TrimSpace(s)
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		if end := matchBracket(text, start); end > 0 && json.Valid([]byte(text[start:end+1])) {
			return text[start : end+1]
		}
	}
	return text
}

// matchBracket 返回 text[start] 处括号的配对位置，跳过字符串字面量；未配平返回 -1
func matchBracket(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeModelJSON 从模型输出中截取 JSON 并解码到 v
func DecodeModelJSON(content string, v any) error {
	raw := ExtractJSONObject(content)
	if raw == "" {
		return errors.New("empty model output")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("model output is not valid json: %w", err)
	}
	return nil
}
