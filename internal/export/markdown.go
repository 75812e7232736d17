package export

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Kunde21/markdownfmt/v3"
	"github.com/Kunde21/markdownfmt/v3/markdown"
)

var (
	latexBlockRe  = regexp.MustCompile(`\$\$[\s\S]*?\$\$`)
	latexInlineRe = regexp.MustCompile(`\$[^$]+\$`)
)

// NormalizeMarkdown 用 markdownfmt 统一 Markdown 排版。
// 公式块先替换成标记保护起来，排版后再还原。
func NormalizeMarkdown(content []byte) ([]byte, error) {
	protected, markers := protectMath(string(content))

	formatted, err := markdownfmt.Process("", []byte(protected),
		markdown.WithCodeFormatters(markdown.GoCodeFormatter),
	)
	if err != nil {
		return nil, fmt.Errorf("markdown 排版失败: %w", err)
	}

	result := restoreMath(string(formatted), markers)
	if result != "" && !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	return []byte(result), nil
}

func protectMath(text string) (string, map[string]string) {
	markers := map[string]string{}
	counter := 0
	protect := func(re *regexp.Regexp, prefix, s string) string {
		return re.ReplaceAllStringFunc(s, func(match string) string {
			counter++
			marker := fmt.Sprintf("@@%s_%d@@", prefix, counter)
			markers[marker] = match
			return marker
		})
	}

	// 先保护块级公式，再保护行内公式
	text = protect(latexBlockRe, "LATEX_BLOCK", text)
	text = protect(latexInlineRe, "LATEX_INLINE", text)
	return text, markers
}

func restoreMath(text string, markers map[string]string) string {
	for marker, original := range markers {
		text = strings.ReplaceAll(text, marker, original)
	}
	return text
}
