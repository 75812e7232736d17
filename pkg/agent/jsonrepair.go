package agent

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// 模型输出的 JSON 常见三类变形：包在代码围栏里、数字键周围混入全角标点、
// 对象或数组收尾前多一个逗号。RepairJSON 依次做最小化修复，仍然解析不了
// 的内容由调用方按无效结果处理。

var (
	// 数字键周围的全角引号/逗号/冒号，如 ，“3”： 归一化为 ,\n"3":
	fullWidthKeyRe = regexp2.MustCompile(`(["“”])?\s*[，,]\s*["“”]\s*(\d+)\s*["“”]\s*[：:]\s*(["“”])?`, regexp2.None)
	// 收尾括号前的多余逗号，需要前瞻
	trailingCommaRe = regexp2.MustCompile(`,(?=\s*[}\]])`, regexp2.None)
)

// RepairJSON 修复模型输出中常见的 JSON 变形。
func RepairJSON(s string) string {
	s = stripCodeFence(s)
	s = trimToJSON(s)
	s = fixFullWidthKeys(s)
	s = removeTrailingCommas(s)
	return s
}

// stripCodeFence 去掉包裹内容的 Markdown 代码围栏与围栏行上的语言标记。
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// trimToJSON 裁掉 JSON 前后的闲聊文本，保留首个对象或数组。
func trimToJSON(s string) string {
	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	start, closer := objStart, byte('}')
	if objStart < 0 || (arrStart >= 0 && arrStart < objStart) {
		start, closer = arrStart, byte(']')
	}
	if start < 0 {
		return s
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}

func fixFullWidthKeys(s string) string {
	out, err := fullWidthKeyRe.ReplaceFunc(s, func(m regexp2.Match) string {
		var sb strings.Builder
		if len(m.GroupByNumber(1).Captures) > 0 {
			sb.WriteString(`"`)
		}
		sb.WriteString(",\n\"")
		sb.WriteString(m.GroupByNumber(2).String())
		sb.WriteString(`":`)
		if len(m.GroupByNumber(3).Captures) > 0 {
			sb.WriteString(`"`)
		}
		return sb.String()
	}, -1, -1)
	if err != nil {
		return s
	}
	return out
}

func removeTrailingCommas(s string) string {
	out, err := trailingCommaRe.Replace(s, "", -1, -1)
	if err != nil {
		return s
	}
	return out
}
