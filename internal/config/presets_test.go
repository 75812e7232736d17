package config

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPresetNames 测试预置名列表完整且有序
func TestPresetNames(t *testing.T) {
	names := PresetNames()

	assert.Len(t, names, len(DefaultPresets()))
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "deepseek")
	assert.Contains(t, names, "ollama")
}

// TestResolvePreset 测试按名查找与大小写归一
func TestResolvePreset(t *testing.T) {
	preset, err := ResolvePreset("deepseek")
	require.NoError(t, err)
	assert.Equal(t, "https://api.deepseek.com/v1", preset.BaseURL)
	assert.Equal(t, "deepseek-chat", preset.DefaultModel)

	preset, err = ResolvePreset("DeepSeek")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", preset.Name)
}

// TestResolvePresetSuggestion 测试拼写接近时给出建议
func TestResolvePresetSuggestion(t *testing.T) {
	_, err := ResolvePreset("deepsek")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deepseek")
}

// TestResolvePresetUnknown 测试完全未知时列出可用值
func TestResolvePresetUnknown(t *testing.T) {
	_, err := ResolvePreset("zzz-unrelated")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未知的预置服务商")
}

// TestDefaultPresetsThinkingFlags 测试思考开关标记
func TestDefaultPresetsThinkingFlags(t *testing.T) {
	presets := DefaultPresets()
	assert.True(t, presets["glm"].Thinking)
	assert.True(t, presets["qwen"].Thinking)
	assert.False(t, presets["openai"].Thinking)
}

// TestLoadPresetsFile 测试从 TOML 文件读取自定义预置
func TestLoadPresetsFile(t *testing.T) {
	path := writeConfigFile(t, "presets.toml", `
[presets.MyCorp]
base_url = "https://llm.mycorp.example/v1"
default_model = "mycorp-large"
thinking = true
description = "内部网关"

[presets.lab]
base_url = "http://lab.local:8000/v1"
default_model = "lab-7b"
`)

	presets, err := LoadPresetsFile(path)
	require.NoError(t, err)
	require.Len(t, presets, 2)

	// 预置名统一转小写
	corp, ok := presets["mycorp"]
	require.True(t, ok)
	assert.Equal(t, "mycorp", corp.Name)
	assert.Equal(t, "https://llm.mycorp.example/v1", corp.BaseURL)
	assert.Equal(t, "mycorp-large", corp.DefaultModel)
	assert.True(t, corp.Thinking)
	assert.Equal(t, "内部网关", corp.Description)

	lab := presets["lab"]
	assert.False(t, lab.Thinking)
	assert.Equal(t, "自定义预置", lab.Description)
}

// TestLoadPresetsFileMissing 测试预置文件不存在时报错
func TestLoadPresetsFileMissing(t *testing.T) {
	_, err := LoadPresetsFile(filepath.Join(t.TempDir(), "none.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "预置文件不存在")
}

// TestLoadPresetsFileIncomplete 测试缺少必填字段时报错
func TestLoadPresetsFileIncomplete(t *testing.T) {
	path := writeConfigFile(t, "presets.toml", `
[presets.bad]
base_url = "https://api.example.com/v1"
`)

	_, err := LoadPresetsFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "缺少 base_url 或 default_model")
}

// TestMergePresets 测试自定义预置叠加与同名覆盖
func TestMergePresets(t *testing.T) {
	merged := MergePresets(map[string]Preset{
		"mycorp": {Name: "mycorp", BaseURL: "https://llm.mycorp.example/v1", DefaultModel: "mycorp-large"},
		"deepseek": {
			Name:         "deepseek",
			BaseURL:      "https://proxy.example/v1",
			DefaultModel: "deepseek-chat",
		},
	})

	assert.Len(t, merged, len(DefaultPresets())+1)
	// 同名时自定义覆盖内置
	assert.Equal(t, "https://proxy.example/v1", merged["deepseek"].BaseURL)
	// 其余内置不受影响
	assert.Equal(t, "https://api.openai.com/v1", merged["openai"].BaseURL)

	preset, err := ResolvePresetIn(merged, "MyCorp")
	require.NoError(t, err)
	assert.Equal(t, "mycorp-large", preset.DefaultModel)

	// 拼写接近的自定义名也能给出建议
	_, err = ResolvePresetIn(merged, "mycor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mycorp")
}
