package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Preset 描述一个预置服务商
type Preset struct {
	Name         string
	BaseURL      string
	DefaultModel string
	Thinking     bool // 是否支持思考开关
	Description  string
}

// DefaultPresets 返回内置的服务商预置
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		"openai": {
			Name:         "openai",
			BaseURL:      "https://api.openai.com/v1",
			DefaultModel: "gpt-4o-mini",
			Description:  "OpenAI 官方接口",
		},
		"deepseek": {
			Name:         "deepseek",
			BaseURL:      "https://api.deepseek.com/v1",
			DefaultModel: "deepseek-chat",
			Description:  "DeepSeek 官方接口",
		},
		"glm": {
			Name:         "glm",
			BaseURL:      "https://open.bigmodel.cn/api/paas/v4",
			DefaultModel: "glm-4-flash",
			Thinking:     true,
			Description:  "智谱 BigModel 开放平台",
		},
		"qwen": {
			Name:         "qwen",
			BaseURL:      "https://dashscope.aliyuncs.com/compatible-mode/v1",
			DefaultModel: "qwen-plus",
			Thinking:     true,
			Description:  "阿里云百炼 DashScope",
		},
		"doubao": {
			Name:         "doubao",
			BaseURL:      "https://ark.cn-beijing.volces.com/api/v3",
			DefaultModel: "doubao-1-5-pro-32k-250115",
			Thinking:     true,
			Description:  "火山方舟",
		},
		"gemini": {
			Name:         "gemini",
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai/",
			DefaultModel: "gemini-2.0-flash",
			Thinking:     true,
			Description:  "Google Gemini OpenAI 兼容接口",
		},
		"siliconflow": {
			Name:         "siliconflow",
			BaseURL:      "https://api.siliconflow.cn/v1",
			DefaultModel: "Qwen/Qwen2.5-7B-Instruct",
			Thinking:     true,
			Description:  "硅基流动",
		},
		"openrouter": {
			Name:         "openrouter",
			BaseURL:      "https://openrouter.ai/api/v1",
			DefaultModel: "openai/gpt-4o-mini",
			Description:  "OpenRouter 聚合接口",
		},
		"ollama": {
			Name:         "ollama",
			BaseURL:      "http://localhost:11434/v1",
			DefaultModel: "llama3",
			Description:  "本地 Ollama",
		},
	}
}

// presetEntry 预置文件中的一条服务商定义
type presetEntry struct {
	BaseURL      string `toml:"base_url"`
	DefaultModel string `toml:"default_model"`
	Thinking     bool   `toml:"thinking"`
	Description  string `toml:"description"`
}

// presetsFileDoc 自定义预置文件结构
type presetsFileDoc struct {
	Presets map[string]presetEntry `toml:"presets"`
}

// LoadPresetsFile 从 TOML 文件读取自定义服务商预置。
// 预置名统一转小写，base_url 与 default_model 为必填项。
func LoadPresetsFile(path string) (map[string]Preset, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("预置文件不存在: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取预置文件失败: %w", err)
	}

	var doc presetsFileDoc
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("解析预置文件失败: %w", err)
	}

	presets := make(map[string]Preset, len(doc.Presets))
	for name, entry := range doc.Presets {
		if entry.BaseURL == "" || entry.DefaultModel == "" {
			return nil, fmt.Errorf("预置 %q 缺少 base_url 或 default_model", name)
		}
		key := strings.ToLower(name)
		description := entry.Description
		if description == "" {
			description = "自定义预置"
		}
		presets[key] = Preset{
			Name:         key,
			BaseURL:      entry.BaseURL,
			DefaultModel: entry.DefaultModel,
			Thinking:     entry.Thinking,
			Description:  description,
		}
	}
	return presets, nil
}

// MergePresets 把自定义预置叠加到内置预置之上，同名时自定义优先
func MergePresets(custom map[string]Preset) map[string]Preset {
	merged := DefaultPresets()
	for name, preset := range custom {
		merged[name] = preset
	}
	return merged
}

// PresetNames 返回排序后的内置预置名列表
func PresetNames() []string {
	return presetNames(DefaultPresets())
}

func presetNames(presets map[string]Preset) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvePreset 按名称查找内置预置，找不到时给出近似建议
func ResolvePreset(name string) (*Preset, error) {
	return ResolvePresetIn(DefaultPresets(), name)
}

// ResolvePresetIn 在给定预置集合中按名称查找
func ResolvePresetIn(presets map[string]Preset, name string) (*Preset, error) {
	if preset, ok := presets[strings.ToLower(name)]; ok {
		return &preset, nil
	}

	names := presetNames(presets)
	matches := fuzzy.RankFindFold(name, names)
	if len(matches) > 0 {
		sort.Sort(matches)
		return nil, fmt.Errorf("未知的预置服务商 %q，是否想用 %q？", name, matches[0].Target)
	}
	return nil, fmt.Errorf("未知的预置服务商 %q，可用值: %s", name, strings.Join(names, ", "))
}
