package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-doctranslate/pkg/chunk"
	"github.com/nerdneilsfield/go-doctranslate/pkg/glossary"
)

const segmentsSystemPromptTemplate = `
# Role
- You are a professional machine translation engine.
# Task
- You will receive a sequence of segments to be translated, represented in JSON format. The keys are the segment IDs, and the values are the segments for translation.
- You need to translate these segments into the target language.
- Target language: %[1]s
# Requirements
- The translation must be professional and accurate.
- Do not output any explanations or annotations.
- For personal names and proper nouns, use the most commonly used words for translation.
- For special tags or other non-translatable elements (like codes, brand names, specific jargon), keep them in their original form.
- If a segment is already in the target language(%[1]s), keep it as is.
- Do not merge multiple segment translations into one translation.
- (very important) All keys that appear in the input JSON must exist in the output JSON.
# Output
- The translated sequence of segments, represented as JSON text (note: not a code block). The keys are the segment IDs, and the values are the translated segments.
- The response must be a JSON object with the following structure:
{
"<segment_id>": "<translation>"
}
- (very important) The segment IDs in the output must exactly match those in the input. And all segment IDs in input must appear in the output.
# Example(Assuming the target language is English in the example, %[1]s is the actual target language)
## Input
{
"21": "汤姆说：“你好”",
"22": "苹果",
"23": "错误",
"24": "香蕉"
}
## Correct Output
{
"21": "Tom says:\"hello\"",
"22": "apple",
"23": "error",
"24": "banana"
}`

// SegmentsAgentConfig 分段翻译智能体配置。
type SegmentsAgentConfig struct {
	Config
	// ToLang 目标语言
	ToLang string
	// CustomPrompt 追加到 system prompt 的重要规则或背景
	CustomPrompt string
	// GlossaryDict 术语表，命中的条目在发送前注入 system prompt
	GlossaryDict map[string]string
}

// SegmentsAgent 分段翻译智能体：把有序文本段打包成 JSON 块批量翻译，
// 对每块做键集校验与部分结果合成，再还原为原始顺序的译文段。
type SegmentsAgent struct {
	*Agent

	toLang       string
	customPrompt string

	mu           sync.Mutex
	glossaryDict map[string]string
}

// NewSegmentsAgent 创建分段翻译智能体。
func NewSegmentsAgent(cfg SegmentsAgentConfig) *SegmentsAgent {
	base := New(cfg.Config)
	prompt := fmt.Sprintf(segmentsSystemPromptTemplate, cfg.ToLang)
	if cfg.CustomPrompt != "" {
		prompt += "\n# **Important rules or background** \n" + cfg.CustomPrompt + "\nEND\n"
	}
	base.SystemPrompt = prompt

	return &SegmentsAgent{
		Agent:        base,
		toLang:       cfg.ToLang,
		customPrompt: cfg.CustomPrompt,
		glossaryDict: cfg.GlossaryDict,
	}
}

// UpdateGlossaryDict 合并术语表，已有条目优先。
func (s *SegmentsAgent) UpdateGlossaryDict(update map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.glossaryDict == nil {
		s.glossaryDict = map[string]string{}
	}
	for src, dst := range update {
		if _, ok := s.glossaryDict[src]; !ok {
			s.glossaryDict[src] = dst
		}
	}
}

// SendSegments 翻译一组有序文本段。
//
// 段列表先经 chunk 编码为大小受限的 JSON 块，块并发发送后按键集
// 校验合并，最后按合并区间还原出与输入等长的译文段列表。
// 单块的失败以原文回填，永远不会使整个调用失败。
func (s *SegmentsAgent) SendSegments(ctx context.Context, segments []string, chunkSize int, onProgress func(completed, total int)) ([]string, BatchStats) {
	indexed, chunks, mergeRanges := chunk.SegmentsToChunks(segments, chunkSize)

	prompts := make([]string, len(chunks))
	for i, c := range chunks {
		prompts[i] = chunk.MarshalChunk(c)
	}

	results, stats := s.SendPrompts(ctx, prompts, &SendOptions{
		PreSend:       s.preSend,
		ResultHandler: s.resultHandler,
		ErrorHandler:  s.errorResultHandler,
		OnProgress:    onProgress,
	})

	return s.mergeResults(indexed, mergeRanges, results), stats
}

// preSend 把命中的术语注入 system prompt。
func (s *SegmentsAgent) preSend(systemPrompt, prompt string) (string, string) {
	s.mu.Lock()
	dict := s.glossaryDict
	s.mu.Unlock()

	if len(dict) > 0 {
		systemPrompt += glossary.New(dict).AppendSystemPrompt(prompt)
	}
	return systemPrompt, prompt
}

// resultHandler 校验一个返回块：
// 键集完全匹配时返回值全部字符串化的映射；键集不匹配时合成部分结果
// （共有键取译文，缺失键回填原文）并以软错误触发重试；非对象或与原文
// 完全相同的返回视为无效结果。
func (s *SegmentsAgent) resultHandler(content, originPrompt string, logger *zap.Logger) (any, error) {
	if content == "" {
		if strings.TrimSpace(originPrompt) != "" {
			return nil, NewResultInvalid("返回内容为空但原文非空")
		}
		return map[string]string{}, nil
	}

	var originalChunk map[string]string
	if err := json.Unmarshal([]byte(originPrompt), &originalChunk); err != nil {
		return nil, NewResultInvalid("原始 prompt 不是合法 JSON: " + err.Error())
	}

	received, err := parseChunkObject(content)
	if err != nil {
		return nil, NewResultInvalid("返回内容无法解析为 JSON 对象: " + err.Error())
	}

	if chunkEqualsOriginal(received, originalChunk) {
		return nil, NewResultInvalid("译文与原文完全一致，疑似翻译失败")
	}

	var missing, extra []string
	finalChunk := make(map[string]string, len(originalChunk))
	for key, original := range originalChunk {
		if value, ok := received[key]; ok {
			finalChunk[key] = stringify(value)
		} else {
			missing = append(missing, key)
			finalChunk[key] = original
		}
	}
	for key := range received {
		if _, ok := originalChunk[key]; !ok {
			extra = append(extra, key)
		}
	}

	if len(missing) > 0 || len(extra) > 0 {
		logger.Warn("返回键集与发送键集不一致，将重试",
			zap.Strings("missing", missing),
			zap.Strings("extra", extra),
		)
		return nil, NewPartialResult("键集不匹配", finalChunk)
	}

	return finalChunk, nil
}

// errorResultHandler 所有重试失败后的兜底：把原始块的值字符串化返回，
// 保证失败的段以原文形式出现在最终输出里。
func (s *SegmentsAgent) errorResultHandler(originPrompt string, logger *zap.Logger) any {
	if originPrompt == "" {
		return map[string]string{}
	}

	var original map[string]any
	if err := json.Unmarshal([]byte(originPrompt), &original); err != nil {
		logger.Error("原始 prompt 不是合法 JSON", zap.String("prompt", truncateForLog(originPrompt)))
		return map[string]string{"error": originPrompt}
	}

	out := make(map[string]string, len(original))
	for key, value := range original {
		out[key] = stringify(value)
	}
	return out
}

// mergeResults 把各块结果并入 id→文本 映射并还原段顺序。
// 未知键与非法块只告警不中断。
func (s *SegmentsAgent) mergeResults(indexed map[string]string, mergeRanges []chunk.MergeRange, results []any) []string {
	merged := make(map[string]string, len(indexed))
	for k, v := range indexed {
		merged[k] = v
	}

	for _, res := range results {
		m, ok := res.(map[string]string)
		if !ok {
			s.logger.Warn("结果块不是合法映射，已跳过", zap.Any("chunk", res))
			continue
		}
		for key, value := range m {
			if _, ok := merged[key]; ok {
				merged[key] = value
			} else {
				s.logger.Warn("结果块中出现未知键，已忽略", zap.String("key", key))
			}
		}
	}

	return chunk.ChunksToSegments(merged, mergeRanges)
}

// parseChunkObject 解析返回内容为 JSON 对象，必要时先做修复。
func parseChunkObject(content string) (map[string]any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		repaired := RepairJSON(content)
		if err2 := json.Unmarshal([]byte(repaired), &parsed); err2 != nil {
			return nil, err2
		}
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, errors.New("不是 JSON 对象")
	}
	return obj, nil
}

// chunkEqualsOriginal 判断返回块与原始块是否逐键逐值相同。
func chunkEqualsOriginal(received map[string]any, original map[string]string) bool {
	if len(received) != len(original) {
		return false
	}
	for key, value := range received {
		str, ok := value.(string)
		if !ok {
			return false
		}
		orig, ok := original[key]
		if !ok || orig != str {
			return false
		}
	}
	return true
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
