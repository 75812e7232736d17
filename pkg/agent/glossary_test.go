package agent

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestGlossaryAgentSendSegments 测试术语对合并与同词先到先得
func TestGlossaryAgentSendSegments(t *testing.T) {
	server := newChatServer(t, func(system, user string) string {
		return `[
			{"src": "Tom", "dst": "汤姆"},
			{"src": "Tom", "dst": "汤姆二号"},
			{"src": "Paris", "dst": "巴黎"},
			{"src": "", "dst": "空源词"}
		]`
	})
	defer server.Close()

	g := NewGlossaryAgent(GlossaryAgentConfig{
		Config: testConfig(server.URL),
		ToLang: "简体中文",
	})

	merged, stats := g.SendSegments(context.Background(), []string{"Tom took Paris."}, 3000, nil)

	assert.Equal(t, map[string]string{"Tom": "汤姆", "Paris": "巴黎"}, merged)
	assert.Equal(t, 0, stats.HardErrors)
	assert.Equal(t, 0, stats.Unresolved)
}

// TestGlossaryAgentFencedOutput 测试围栏包裹的术语列表先修复再解析
func TestGlossaryAgentFencedOutput(t *testing.T) {
	server := newChatServer(t, func(system, user string) string {
		return "```json\n[{\"src\": \"Rome\", \"dst\": \"罗马\"}]\n```"
	})
	defer server.Close()

	g := NewGlossaryAgent(GlossaryAgentConfig{
		Config: testConfig(server.URL),
		ToLang: "简体中文",
	})

	merged, _ := g.SendSegments(context.Background(), []string{"All roads lead to Rome."}, 3000, nil)
	assert.Equal(t, map[string]string{"Rome": "罗马"}, merged)
}

// TestGlossaryAgentUnusableChunkSkipped 测试解析失败的块不重试不报错
func TestGlossaryAgentUnusableChunkSkipped(t *testing.T) {
	var calls atomic.Int32
	server := newChatServer(t, func(system, user string) string {
		calls.Add(1)
		return "抱歉，我无法提取术语。"
	})
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retry = 2
	g := NewGlossaryAgent(GlossaryAgentConfig{Config: cfg, ToLang: "简体中文"})

	merged, stats := g.SendSegments(context.Background(), []string{"some text"}, 3000, nil)

	assert.Empty(t, merged)
	// 抽取是尽力而为，失败块直接跳过，不触发重试
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, stats.Unresolved)
	assert.Equal(t, 0, stats.HardErrors)
}

// TestGlossaryAgentResultHandler 测试结果解析的三种路径
func TestGlossaryAgentResultHandler(t *testing.T) {
	g := NewGlossaryAgent(GlossaryAgentConfig{
		Config: Config{Logger: zap.NewNop()},
		ToLang: "简体中文",
	})

	// 正常列表
	result, err := g.resultHandler(`[{"src": "Tom", "dst": "汤姆"}]`, `{"0": "Tom"}`, zap.NewNop())
	require.NoError(t, err)
	pairs, ok := result.([]GlossaryPair)
	require.True(t, ok)
	assert.Equal(t, []GlossaryPair{{Src: "Tom", Dst: "汤姆"}}, pairs)

	// 空返回视为没有术语
	result, err = g.resultHandler("", `{"0": "Tom"}`, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []GlossaryPair{}, result)

	// 解析失败退到兜底结果且不返回错误
	result, err = g.resultHandler("完全不是列表", `{"0": "Tom"}`, zap.NewNop())
	require.NoError(t, err)
	_, isPairs := result.([]GlossaryPair)
	assert.False(t, isPairs)
}

// TestGlossaryAgentSystemPrompt 测试目标语言写进抽取提示
func TestGlossaryAgentSystemPrompt(t *testing.T) {
	g := NewGlossaryAgent(GlossaryAgentConfig{
		Config: Config{Logger: zap.NewNop()},
		ToLang: "德语",
	})

	assert.Contains(t, g.SystemPrompt, "professional glossary extractor")
	assert.Contains(t, g.SystemPrompt, "德语")
}
