package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseObject(t *testing.T, s string) map[string]string {
	t.Helper()
	var parsed map[string]string
	require.NoError(t, json.Unmarshal([]byte(s), &parsed), "修复后仍无法解析: %s", s)
	return parsed
}

// TestRepairJSONWellFormed 测试规范输入修复后语义不变
func TestRepairJSONWellFormed(t *testing.T) {
	repaired := RepairJSON(`{"0": "hello", "1": "world"}`)
	assert.Equal(t, map[string]string{"0": "hello", "1": "world"}, mustParseObject(t, repaired))
}

// TestRepairJSONCodeFence 测试剥掉 Markdown 代码围栏
func TestRepairJSONCodeFence(t *testing.T) {
	repaired := RepairJSON("```json\n{\"0\": \"你好\"}\n```")
	assert.Equal(t, map[string]string{"0": "你好"}, mustParseObject(t, repaired))

	// 无语言标记的围栏
	repaired = RepairJSON("```\n{\"0\": \"hi\"}\n```")
	assert.Equal(t, map[string]string{"0": "hi"}, mustParseObject(t, repaired))
}

// TestRepairJSONChatter 测试裁掉 JSON 前后的闲聊文本
func TestRepairJSONChatter(t *testing.T) {
	repaired := RepairJSON("Sure! Here is the translation:\n{\"0\": \"译文\"}\nHope it helps.")
	assert.Equal(t, map[string]string{"0": "译文"}, mustParseObject(t, repaired))
}

// TestRepairJSONFullWidthPunctuation 测试数字键周围的全角标点归一化
func TestRepairJSONFullWidthPunctuation(t *testing.T) {
	repaired := RepairJSON(`{"0": "甲"，“1”："乙"}`)
	assert.Equal(t, map[string]string{"0": "甲", "1": "乙"}, mustParseObject(t, repaired))
}

// TestRepairJSONTrailingComma 测试收尾前的多余逗号
func TestRepairJSONTrailingComma(t *testing.T) {
	repaired := RepairJSON(`{"0": "a", "1": "b",}`)
	assert.Equal(t, map[string]string{"0": "a", "1": "b"}, mustParseObject(t, repaired))

	var arr []string
	require.NoError(t, json.Unmarshal([]byte(RepairJSON(`["x", "y",]`)), &arr))
	assert.Equal(t, []string{"x", "y"}, arr)
}

// TestRepairJSONCombined 测试围栏、全角标点与尾逗号叠加出现
func TestRepairJSONCombined(t *testing.T) {
	input := "```json\n{\"0\": \"a\"，“1”：\"b\",}\n```"
	assert.Equal(t, map[string]string{"0": "a", "1": "b"}, mustParseObject(t, RepairJSON(input)))
}

// TestRepairJSONArray 测试数组形式的术语表输出
func TestRepairJSONArray(t *testing.T) {
	repaired := RepairJSON("以下是术语表：\n[{\"src\": \"Tom\", \"dst\": \"汤姆\"}]\n")

	var pairs []GlossaryPair
	require.NoError(t, json.Unmarshal([]byte(repaired), &pairs))
	require.Len(t, pairs, 1)
	assert.Equal(t, GlossaryPair{Src: "Tom", Dst: "汤姆"}, pairs[0])
}

// TestRepairJSONUnfixable 测试没有任何 JSON 痕迹时原样返回
func TestRepairJSONUnfixable(t *testing.T) {
	out := RepairJSON("我做不到这个任务")
	var v any
	assert.Error(t, json.Unmarshal([]byte(out), &v))
}
