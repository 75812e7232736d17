package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
	mathjax "github.com/litao91/goldmark-mathjax"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// CDN 资源标签
const (
	picoCDN = `<link rel="stylesheet" href="https://s4.zstatic.net/ajax/libs/picocss/2.1.1/pico.min.css" integrity="sha512-+4kjFgVD0n6H3xt19Ox84B56MoS7srFn60tgdWFuO4hemtjhySKyW4LnftYZn46k3THUEiTTsbVjrHai+0MOFw==" crossorigin="anonymous" referrerpolicy="no-referrer" />`

	katexCSSCDN = `<link rel="stylesheet" href="https://s4.zstatic.net/ajax/libs/KaTeX/0.16.9/katex.min.css" integrity="sha512-fHwaWebuwA7NSF5Qg/af4UeDx9XqUpYpOGgubo3yWu+b2IQR4UeQwbb42Ti7gVAjNtVoI/I9TEoYeu9omwcC6g==" crossorigin="anonymous" referrerpolicy="no-referrer" />`

	katexJSCDN = `<script src="https://s4.zstatic.net/ajax/libs/KaTeX/0.16.9/katex.min.js" integrity="sha512-LQNxIMR5rXv7o+b1l8+N1EZMfhG7iFZ9HhnbJkTp4zjNr5Wvst75AqUeFDxeRUa7l5vEDyUiAip//r+EFLLCyA==" crossorigin="anonymous" referrerpolicy="no-referrer"></script>`

	autoRenderCDN = `<script src="https://s4.zstatic.net/ajax/libs/KaTeX/0.16.9/contrib/auto-render.min.js" integrity="sha512-iWiuBS5nt6r60fCz26Nd0Zqe0nbk1ZTIQbl3Kv7kYsX+yKMUFHzjaH2+AnM6vp2Xs+gNmaBAVWJjSmuPw76Efg==" crossorigin="anonymous" referrerpolicy="no-referrer"></script>`

	mermaidCDN = `<script src="https://s4.zstatic.net/ajax/libs/mermaid/10.9.1/mermaid.min.js"></script>
<script>mermaid.initialize({startOnLoad: true});</script>`
)

const renderMathScript = `<script>
    document.addEventListener("DOMContentLoaded", function () {
        renderMathInElement(document.body, {
            delimiters: [
                {left: '$$', right: '$$', display: true},
                {left: '\\[', right: '\\]', display: true},
                {left: '$', right: '$', display: false},
                {left: '\\(', right: '\\)', display: false}
            ],
            throwOnError: false
        })
    });
</script>`

const htmlShell = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    {{.Pico}}
    {{.KatexCSS}}
    {{.KatexJS}}
    {{.AutoRender}}
</head>
<body>
<main class="container">
{{.Body}}
</main>
{{.RenderMath}}
{{.Mermaid}}
</body>
</html>
`

var shellTemplate = template.Must(template.New("markdown").Parse(htmlShell))

type shellVars struct {
	Title      string
	Pico       template.HTML
	KatexCSS   template.HTML
	KatexJS    template.HTML
	AutoRender template.HTML
	Body       template.HTML
	RenderMath template.HTML
	Mermaid    template.HTML
}

// HTMLOptions HTML 导出选项
type HTMLOptions struct {
	// Title 页面标题，front matter 中有 title 时以后者为准
	Title string
	// CDN 为 true 时样式与公式渲染脚本走 CDN，
	// 否则输出不带外部依赖的纯 HTML
	CDN bool
}

// MarkdownToHTML 把 Markdown 渲染成单文件 HTML 预览
func MarkdownToHTML(source []byte, opts HTMLOptions) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			extension.TaskList,
			extension.Table,
			extension.Strikethrough,
			extension.DefinitionList,
			mathjax.MathJax,
			meta.Meta,
			extension.Footnote,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithAttribute(),
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithUnsafe(),
		),
	)

	var body bytes.Buffer
	ctx := parser.NewContext()
	if err := md.Convert(source, &body, parser.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("渲染 Markdown 失败: %w", err)
	}

	title := opts.Title
	if metaTitle, ok := meta.Get(ctx)["title"].(string); ok && metaTitle != "" {
		title = metaTitle
	}

	bodyHTML, err := postprocessBody(body.String())
	if err != nil {
		return nil, err
	}

	vars := shellVars{
		Title:      title,
		Body:       template.HTML(bodyHTML),
		RenderMath: template.HTML(renderMathScript),
	}
	if opts.CDN {
		vars.Pico = template.HTML(picoCDN)
		vars.KatexCSS = template.HTML(katexCSSCDN)
		vars.KatexJS = template.HTML(katexJSCDN)
		vars.AutoRender = template.HTML(autoRenderCDN)
		vars.Mermaid = template.HTML(mermaidCDN)
	} else {
		// 没有 KaTeX 时公式渲染脚本也一并省去
		vars.RenderMath = ""
	}

	var out bytes.Buffer
	if err := shellTemplate.Execute(&out, vars); err != nil {
		return nil, fmt.Errorf("渲染 HTML 模板失败: %w", err)
	}
	return out.Bytes(), nil
}

// postprocessBody 对渲染出的正文做 DOM 级修整：
// mermaid 代码块转成 mermaid.js 期望的 <pre class="mermaid">，
// 外部链接新窗口打开，图片懒加载
func postprocessBody(bodyHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if err != nil {
		return "", fmt.Errorf("解析正文 HTML 失败: %w", err)
	}

	doc.Find("pre > code.language-mermaid").Each(func(_ int, s *goquery.Selection) {
		source := s.Text()
		s.Parent().ReplaceWithHtml(`<pre class="mermaid">` + template.HTMLEscapeString(source) + `</pre>`)
	})

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			s.SetAttr("target", "_blank")
			s.SetAttr("rel", "noopener")
		}
	})

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		s.SetAttr("loading", "lazy")
	})

	return doc.Find("body").Html()
}
