package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerdneilsfield/go-doctranslate/pkg/glossary"
)

const markdownSystemPromptTemplate = `
# Role
You are a professional machine translation engine.

# Task
Translate the input markdown text.
Target language: %s

# Requirements
- The translation must be professional and accurate.
- Do not output any explanations or annotations.
- Do not change placeholders in the format of ` + "`<ph-xxxxxx>`" + `.
- All formulas, regardless of length, must be represented as valid, parsable LaTeX. They must be correctly enclosed by ` + "`$`, `\\(\\)`, or `$$`" + `. If a formula is not formatted correctly, you must fix it.
- Remove or correct any obviously abnormal characters, but without altering the original meaning.
- When citing references, strictly preserve the original text; do not translate them. Examples of reference formats are as follows:
  [1] Author A, Author B. "Original Title". Journal, 2023.
  [2] 作者C. 《中文标题》. 期刊, 2022.

# Output
The translated markdown text as plain text (not in a markdown code block, with no extraneous text).

# Example
## Target language is Chinese
Input:
hello, what's your nam*@e?
![photo title](<ph-abcdde>)
The equation is E=mc 2. This is famous.
1+1=2$$
(c_0,c_1_1,c_2^2)is a coordinate.

Output:
你好，你叫什么名字？
![图像标题](<ph-abcdde>)
这个方程是 $E=mc^2$。这很有名。
$$1+1=2$$
\((c_0,c_1,c_2^2)\)是一个坐标。`

// MarkdownAgentConfig 配置 Markdown 翻译智能体
type MarkdownAgentConfig struct {
	Config
	// ToLang 目标语言
	ToLang string
	// CustomPrompt 追加到 system prompt 的重要规则或背景
	CustomPrompt string
	// GlossaryDict 术语表，命中的条目在发送前注入 system prompt
	GlossaryDict map[string]string
}

// MarkdownAgent 按块翻译 Markdown 文本，块内容原样作为 prompt 发送，
// 失败的块以原文回填。
type MarkdownAgent struct {
	*Agent

	mu           sync.Mutex
	glossaryDict map[string]string
}

// NewMarkdownAgent 创建 Markdown 翻译智能体。
func NewMarkdownAgent(cfg MarkdownAgentConfig) *MarkdownAgent {
	base := New(cfg.Config)
	prompt := fmt.Sprintf(markdownSystemPromptTemplate, cfg.ToLang)
	if cfg.CustomPrompt != "" {
		prompt += "\n# 重要规则或背景【非常重要】\n" + cfg.CustomPrompt + "\n"
	}
	base.SystemPrompt = prompt

	return &MarkdownAgent{
		Agent:        base,
		glossaryDict: cfg.GlossaryDict,
	}
}

// UpdateGlossaryDict 合并术语表，已有条目优先。
func (m *MarkdownAgent) UpdateGlossaryDict(update map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.glossaryDict == nil {
		m.glossaryDict = map[string]string{}
	}
	for src, dst := range update {
		if _, ok := m.glossaryDict[src]; !ok {
			m.glossaryDict[src] = dst
		}
	}
}

// SendChunks 并发翻译一组 Markdown 块，结果与输入同序等长。
func (m *MarkdownAgent) SendChunks(ctx context.Context, chunks []string, onProgress func(completed, total int)) ([]string, BatchStats) {
	results, stats := m.SendPrompts(ctx, chunks, &SendOptions{
		PreSend:    m.preSend,
		OnProgress: onProgress,
	})

	translated := make([]string, len(results))
	for i, r := range results {
		if s, ok := r.(string); ok {
			translated[i] = s
		} else {
			translated[i] = fmt.Sprint(r)
		}
	}
	return translated, stats
}

// preSend 把命中的术语注入 system prompt。
func (m *MarkdownAgent) preSend(systemPrompt, prompt string) (string, string) {
	m.mu.Lock()
	dict := m.glossaryDict
	m.mu.Unlock()

	if len(dict) > 0 {
		systemPrompt += glossary.New(dict).AppendSystemPrompt(prompt)
	}
	return systemPrompt, prompt
}
