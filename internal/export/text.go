package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// TextToHTML 把纯文本渲染成单文件 HTML 预览，每行一个段落。
// 文本内容先做 HTML 转义再写入，纯文本不含公式与图表，
// 因此不注入 KaTeX 与 mermaid。
func TextToHTML(source []byte, opts HTMLOptions) ([]byte, error) {
	var body strings.Builder
	for i, line := range strings.Split(string(source), "\n") {
		if i > 0 {
			body.WriteString("\n")
		}
		body.WriteString("<p>")
		body.WriteString(template.HTMLEscapeString(line))
		body.WriteString("</p>")
	}

	vars := shellVars{
		Title: opts.Title,
		Body:  template.HTML(body.String()),
	}
	if opts.CDN {
		vars.Pico = template.HTML(picoCDN)
	}

	var out bytes.Buffer
	if err := shellTemplate.Execute(&out, vars); err != nil {
		return nil, fmt.Errorf("渲染 HTML 模板失败: %w", err)
	}
	return out.Bytes(), nil
}
