package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-doctranslate/pkg/chunk"
)

const glossarySystemPromptTemplate = `
# Role
You are a professional glossary extractor

# Task
You will receive a JSON-formatted list of paragraphs where keys are paragraph numbers and values are paragraph contents.
You need to extract person names and location names from these paragraphs and translate these terms into %[1]s.
Finally, output a glossary of original terms:translated terms

# Requirements
- Do not include special tags or tags formatted as ` + "`<ph-xxxxxx>`" + ` in the glossary
- The src in the output glossary must exactly match the original term, while dst is the %[1]s translation of the term
- The same src should only appear once in the glossary without repetition
-Do not include common nouns in the glossary.

# Output
The output format should be plain JSON text in a list format
[{'src': '<Original Term>', 'dst': '<Translated Term>'}]

# Example
## Input
{"0":"Jobs likes apples","1":"Bill Gates is sunbathing in Shanghai."}
## Output(Assuming the target language is Chinese)
[{"src": "Jobs", "dst": "乔布斯"}, {"src": "Bill Gates", "dst": "比尔盖茨"}, {"src": "Shanghai", "dst": "上海"}]`

// GlossaryPair 一条术语对。
type GlossaryPair struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// GlossaryAgentConfig 术语抽取智能体配置。
type GlossaryAgentConfig struct {
	Config
	// ToLang 术语翻译的目标语言
	ToLang string
}

// GlossaryAgent 术语抽取智能体：从文档段落中抽取人名地名并给出译法，
// 汇总成 src→dst 的术语表。抽取失败的块直接跳过，不触发重试。
type GlossaryAgent struct {
	*Agent

	toLang string
}

// NewGlossaryAgent 创建术语抽取智能体。
func NewGlossaryAgent(cfg GlossaryAgentConfig) *GlossaryAgent {
	base := New(cfg.Config)
	base.SystemPrompt = fmt.Sprintf(glossarySystemPromptTemplate, cfg.ToLang)

	return &GlossaryAgent{
		Agent:  base,
		toLang: cfg.ToLang,
	}
}

// SendSegments 从一组文本段中抽取术语表。
// 返回合并后的术语表，同一源词先到先得。
func (g *GlossaryAgent) SendSegments(ctx context.Context, segments []string, chunkSize int, onProgress func(completed, total int)) (map[string]string, BatchStats) {
	g.logger.Info("开始提取术语表", zap.String("toLang", g.toLang))

	_, chunks, _ := chunk.SegmentsToChunks(segments, chunkSize)
	prompts := make([]string, len(chunks))
	for i, c := range chunks {
		prompts[i] = chunk.MarshalChunkCompact(c)
	}

	results, stats := g.SendPrompts(ctx, prompts, &SendOptions{
		ResultHandler: g.resultHandler,
		ErrorHandler:  g.errorResultHandler,
		OnProgress:    onProgress,
	})

	merged := map[string]string{}
	for _, res := range results {
		pairs, ok := res.([]GlossaryPair)
		if !ok {
			g.logger.Info("术语块无法使用，已跳过", zap.Any("chunk", res))
			continue
		}
		for _, pair := range pairs {
			if pair.Src == "" {
				continue
			}
			if _, exists := merged[pair.Src]; !exists {
				merged[pair.Src] = pair.Dst
			}
		}
	}

	g.logger.Info("术语表提取完成", zap.Int("terms", len(merged)))
	return merged, stats
}

// resultHandler 解析术语列表。解析失败不重试，直接退到兜底结果。
func (g *GlossaryAgent) resultHandler(content, originPrompt string, logger *zap.Logger) (any, error) {
	if content == "" {
		return []GlossaryPair{}, nil
	}
	pairs, err := parseGlossaryList(content)
	if err != nil {
		logger.Error("术语表结果不能正确解析", zap.Error(err))
		return g.errorResultHandler(originPrompt, logger), nil
	}
	return pairs, nil
}

// errorResultHandler 兜底：返回解析后的原始 prompt，合并阶段会跳过它。
func (g *GlossaryAgent) errorResultHandler(originPrompt string, logger *zap.Logger) any {
	if originPrompt == "" {
		return []GlossaryPair{}
	}
	var parsed any
	if err := json.Unmarshal([]byte(RepairJSON(originPrompt)), &parsed); err != nil {
		logger.Error("prompt 不是 JSON 格式", zap.String("prompt", truncateForLog(originPrompt)))
		return originPrompt
	}
	return parsed
}

func parseGlossaryList(content string) ([]GlossaryPair, error) {
	var pairs []GlossaryPair
	if err := json.Unmarshal([]byte(content), &pairs); err != nil {
		repaired := RepairJSON(content)
		if err2 := json.Unmarshal([]byte(repaired), &pairs); err2 != nil {
			return nil, err2
		}
	}
	return pairs, nil
}
