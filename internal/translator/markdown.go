package translator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-doctranslate/pkg/agent"
)

// MarkdownTranslator 翻译 Markdown 文档：
// 先把图片语法替换为占位符，按字节上限拆块后并发翻译，
// 再拼回完整文本并还原占位符。YAML front matter 原样保留不参与翻译。
type MarkdownTranslator struct {
	opts           Options
	glossaryAgent  *agent.GlossaryAgent
	translateAgent *agent.MarkdownAgent
	logger         *zap.Logger
}

// NewMarkdownTranslator 创建 Markdown 翻译器。
func NewMarkdownTranslator(opts Options) (*MarkdownTranslator, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	t := &MarkdownTranslator{
		opts:          opts,
		glossaryAgent: newGlossaryAgent(opts),
		logger:        opts.Logger,
	}
	if !opts.SkipTranslate {
		t.translateAgent = agent.NewMarkdownAgent(agent.MarkdownAgentConfig{
			Config:       opts.agentConfig(),
			ToLang:       opts.ToLang,
			CustomPrompt: opts.CustomPrompt,
			GlossaryDict: opts.GlossaryDict,
		})
	}
	return t, nil
}

// Translate 翻译一篇 Markdown 文档并返回新内容。
func (t *MarkdownTranslator) Translate(ctx context.Context, content []byte) (*Result, error) {
	t.logger.Info("开始翻译 Markdown")

	mask := newMaskDict()
	masked := urisToPlaceholder(string(content), mask)
	frontMatter, body := splitFrontMatter(masked)

	chunks := splitMarkdownText(body, t.opts.ChunkSize)
	t.logger.Info("Markdown 拆分完成", zap.Int("chunk_count", len(chunks)))

	res := &Result{Chunks: len(chunks)}

	if t.glossaryAgent != nil && len(chunks) > 0 {
		dict, stats := t.glossaryAgent.SendSegments(ctx, chunks, t.opts.ChunkSize, t.opts.OnProgress)
		res.Glossary = dict
		res.Stats = append(res.Stats, stats)
		if t.translateAgent != nil {
			t.translateAgent.UpdateGlossaryDict(dict)
		}
	}

	translated := chunks
	if t.translateAgent != nil {
		var stats agent.BatchStats
		translated, stats = t.translateAgent.SendChunks(ctx, chunks, t.opts.OnProgress)
		res.Stats = append(res.Stats, stats)
	}

	joined := joinMarkdownTexts(translated)
	// 模型偶尔会把转义括号写成全角，修回来
	joined = strings.ReplaceAll(joined, `\（`, `\(`)
	joined = strings.ReplaceAll(joined, `\）`, `\)`)

	if frontMatter != "" {
		joined = frontMatter + "\n" + joined
	}

	res.Content = []byte(placeholderToURIs(joined, mask))
	t.logger.Info("Markdown 翻译完成")
	return res, nil
}

// splitFrontMatter 分离文档开头的 YAML front matter，没有则原样返回
func splitFrontMatter(text string) (frontMatter, body string) {
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return "", text
	}

	lines := strings.SplitAfter(text, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r\n") == "---" {
			fm := strings.Join(lines[:i+1], "")
			return fm, text[len(fm):]
		}
	}
	return "", text
}
