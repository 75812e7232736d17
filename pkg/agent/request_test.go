package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, b *requestBuilder, prompt, systemPrompt string) map[string]any {
	t.Helper()
	raw, err := b.buildBody(prompt, systemPrompt)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

// TestBuildHeadersDefault 测试标准的 OpenAI 兼容请求头
func TestBuildHeadersDefault(t *testing.T) {
	b := &requestBuilder{domain: "api.example.com", apiKey: "sk-1"}
	header := b.buildHeaders()

	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "Bearer sk-1", header.Get("Authorization"))
	assert.Empty(t, header.Get("x-goog-api-key"))
}

// TestBuildHeadersGemini 测试 Gemini 端点改用 x-goog-api-key 鉴权
func TestBuildHeadersGemini(t *testing.T) {
	b := &requestBuilder{domain: geminiDomain, apiKey: "sk-2"}
	header := b.buildHeaders()

	assert.Empty(t, header.Get("Authorization"))
	assert.Equal(t, "sk-2", header.Get("x-goog-api-key"))
}

// TestBuildHeadersOpenRouter 测试 OpenRouter 的来源标识头
func TestBuildHeadersOpenRouter(t *testing.T) {
	t.Setenv("OPENROUTER_REFERRER", "https://me.example")
	t.Setenv("OPENROUTER_TITLE", "doctranslate")

	b := &requestBuilder{domain: "openrouter.ai", apiKey: "sk-3"}
	header := b.buildHeaders()

	assert.Equal(t, "Bearer sk-3", header.Get("Authorization"))
	assert.Equal(t, "https://me.example", header.Get("HTTP-Referer"))
	assert.Equal(t, "doctranslate", header.Get("X-Title"))
}

// TestBuildBodyShape 测试请求体的基本结构
func TestBuildBodyShape(t *testing.T) {
	b := &requestBuilder{
		modelID:     "m1",
		temperature: 0.3,
		topP:        0.8,
		thinking:    ThinkingDefault,
	}
	body := decodeBody(t, b, "用户内容", "系统提示")

	assert.Equal(t, "m1", body["model"])
	assert.InDelta(t, 0.3, body["temperature"], 1e-6)
	assert.InDelta(t, 0.8, body["top_p"], 1e-6)

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	second := messages[1].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "系统提示", first["content"])
	assert.Equal(t, "user", second["role"])
	assert.Equal(t, "用户内容", second["content"])

	// default 模式不附加任何思考字段
	assert.NotContains(t, body, "thinking")
	assert.NotContains(t, body, "extra_body")
	assert.NotContains(t, body, "enable_thinking")
}

// TestBuildBodyThinkingGLM 测试智谱端点的思考模式字段
func TestBuildBodyThinkingGLM(t *testing.T) {
	b := &requestBuilder{domain: "open.bigmodel.cn", thinking: ThinkingEnable}
	body := decodeBody(t, b, "p", "s")
	assert.Equal(t, map[string]any{"type": "enabled"}, body["thinking"])

	b.thinking = ThinkingDisable
	body = decodeBody(t, b, "p", "s")
	assert.Equal(t, map[string]any{"type": "disabled"}, body["thinking"])
}

// TestBuildBodyThinkingSiliconFlow 测试硅基流动端点的布尔开关
func TestBuildBodyThinkingSiliconFlow(t *testing.T) {
	b := &requestBuilder{domain: "api.siliconflow.cn", thinking: ThinkingEnable}
	body := decodeBody(t, b, "p", "s")
	assert.Equal(t, true, body["enable_thinking"])
}

// TestBuildBodyThinkingUnknownDomain 测试未登记的端点不附加思考字段
func TestBuildBodyThinkingUnknownDomain(t *testing.T) {
	b := &requestBuilder{domain: "api.example.com", thinking: ThinkingEnable}
	body := decodeBody(t, b, "p", "s")

	assert.NotContains(t, body, "thinking")
	assert.NotContains(t, body, "extra_body")
	assert.NotContains(t, body, "enable_thinking")
}

// TestBuildBodyNoHTMLEscape 测试占位符等尖括号内容不被转义
func TestBuildBodyNoHTMLEscape(t *testing.T) {
	b := &requestBuilder{thinking: ThinkingDefault}
	raw, err := b.buildBody("保留 <ph-abc123> & 符号", "s")
	require.NoError(t, err)

	assert.Contains(t, string(raw), "<ph-abc123> &")
	assert.NotContains(t, string(raw), `<`)
}
