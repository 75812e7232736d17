package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExtractTokenInfoMissing 测试 usage 缺失或为 null 时全零
func TestExtractTokenInfoMissing(t *testing.T) {
	assert.Equal(t, TokenUsage{}, extractTokenInfo(nil))
	assert.Equal(t, TokenUsage{}, extractTokenInfo(json.RawMessage("")))
	assert.Equal(t, TokenUsage{}, extractTokenInfo(json.RawMessage("null")))
	assert.Equal(t, TokenUsage{}, extractTokenInfo(json.RawMessage("  null  ")))
}

// TestExtractTokenInfoOpenAI 测试 prompt_tokens_details 结构
func TestExtractTokenInfoOpenAI(t *testing.T) {
	raw := json.RawMessage(`{
		"prompt_tokens": 100,
		"completion_tokens": 50,
		"prompt_tokens_details": {"cached_tokens": 20},
		"completion_tokens_details": {"reasoning_tokens": 5}
	}`)

	u := extractTokenInfo(raw)
	assert.Equal(t, TokenUsage{Input: 100, Cached: 20, Output: 50, Reasoning: 5}, u)
	assert.False(t, u.Failed())
}

// TestExtractTokenInfoResponsesDetails 测试 input/output_tokens_details 结构优先
func TestExtractTokenInfoResponsesDetails(t *testing.T) {
	raw := json.RawMessage(`{
		"prompt_tokens": 30,
		"completion_tokens": 10,
		"input_tokens_details": {"cached_tokens": 8},
		"prompt_tokens_details": {"cached_tokens": 999},
		"output_tokens_details": {"reasoning_tokens": 2}
	}`)

	u := extractTokenInfo(raw)
	assert.Equal(t, 8, u.Cached)
	assert.Equal(t, 2, u.Reasoning)
}

// TestExtractTokenInfoDeepSeek 测试 prompt_cache_hit_tokens 兜底
func TestExtractTokenInfoDeepSeek(t *testing.T) {
	raw := json.RawMessage(`{
		"prompt_tokens": 40,
		"completion_tokens": 15,
		"prompt_cache_hit_tokens": 12
	}`)

	u := extractTokenInfo(raw)
	assert.Equal(t, TokenUsage{Input: 40, Cached: 12, Output: 15}, u)
}

// TestExtractTokenInfoBareCounts 测试只有基础计数的最小结构
func TestExtractTokenInfoBareCounts(t *testing.T) {
	u := extractTokenInfo(json.RawMessage(`{"prompt_tokens": 3, "completion_tokens": 1}`))
	assert.Equal(t, TokenUsage{Input: 3, Output: 1}, u)
}

// TestExtractTokenInfoMalformed 测试类型不符时返回 -1 哨兵
func TestExtractTokenInfoMalformed(t *testing.T) {
	cases := []string{
		`"not an object"`,
		`{"prompt_tokens": "lots"}`,
		`{"prompt_tokens": 1, "prompt_tokens_details": "oops"}`,
		`{"prompt_tokens": 1, "completion_tokens_details": {"reasoning_tokens": "deep"}}`,
	}
	for _, c := range cases {
		u := extractTokenInfo(json.RawMessage(c))
		assert.True(t, u.Failed(), "期望解析失败: %s", c)
		assert.Equal(t, usageExtractFailed, u)
	}
}
