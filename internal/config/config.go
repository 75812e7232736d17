package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 保存翻译管线的所有配置
type Config struct {
	// 连接配置
	BaseURL     string `mapstructure:"base_url"` // OpenAI 兼容接口地址
	APIKey      string `mapstructure:"api_key"`
	ModelID     string `mapstructure:"model_id"`
	Preset      string `mapstructure:"preset"`       // 预置服务商名，用于填充 base_url/model_id
	PresetsFile string `mapstructure:"presets_file"` // 自定义预置文件（TOML），与内置预置合并

	// 翻译行为
	ToLang        string  `mapstructure:"to_lang"`
	CustomPrompt  string  `mapstructure:"custom_prompt"`
	ChunkSize     int     `mapstructure:"chunk_size"` // 分块大小，单位字节
	Concurrent    int     `mapstructure:"concurrent"` // 并行请求数
	Temperature   float32 `mapstructure:"temperature"`
	TopP          float32 `mapstructure:"top_p"`
	Timeout       int     `mapstructure:"timeout"`  // 请求超时，单位秒
	Retry         int     `mapstructure:"retry"`    // 失败重试次数
	Thinking      string  `mapstructure:"thinking"` // default/enable/disable
	SkipTranslate bool    `mapstructure:"skip_translate"` // 只解析导出，不调用模型

	// 代理
	SystemProxyEnable bool `mapstructure:"system_proxy_enable"`

	// 结构化文本的写回方式
	InsertMode string `mapstructure:"insert_mode"` // replace/append/prepend
	Separator  string `mapstructure:"separator"`   // append/prepend 模式下的分隔符

	// 术语表
	GlossaryPath     string `mapstructure:"glossary_path"`     // 预置术语表文件（TOML）
	GlossaryGenerate bool   `mapstructure:"glossary_generate"` // 启用术语抽取智能体
	GlossaryBaseURL  string `mapstructure:"glossary_base_url"` // 术语智能体单独的连接配置，缺省沿用主配置
	GlossaryAPIKey   string `mapstructure:"glossary_api_key"`
	GlossaryModelID  string `mapstructure:"glossary_model_id"`

	// 输出
	OutDir    string   `mapstructure:"out_dir"`
	Formats   []string `mapstructure:"formats"`   // markdown/html/txt，空表示按输入类型导出
	HTMLCDN   bool     `mapstructure:"html_cdn"`  // HTML 导出时静态资源走 CDN
	Normalize bool     `mapstructure:"normalize"` // 导出前用 markdownfmt 重排译文

	// 日志
	Debug bool `mapstructure:"debug"`
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果配置路径已指定，则直接使用
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 查找家目录中的配置文件
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		// 添加可能的配置文件路径
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName(".doctranslate")
		v.SetConfigType("yaml")
	}

	// 读取环境变量
	v.AutomaticEnv()
	v.SetEnvPrefix("DOCTRANSLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 兼容常见的 OpenAI 环境变量
	_ = v.BindEnv("base_url", "DOCTRANSLATE_BASE_URL", "OPENAI_BASE_URL", "BASE_URL")
	_ = v.BindEnv("api_key", "DOCTRANSLATE_API_KEY", "OPENAI_API_KEY", "API_KEY")
	_ = v.BindEnv("model_id", "DOCTRANSLATE_MODEL_ID", "OPENAI_MODEL")

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		// 如果找不到配置文件，则使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// 预置服务商只补空位，不覆盖显式配置
	if config.Preset != "" {
		presets, err := config.PresetMap()
		if err != nil {
			return nil, err
		}
		preset, err := ResolvePresetIn(presets, config.Preset)
		if err != nil {
			return nil, err
		}
		applyPreset(&config, preset)
	}

	return &config, nil
}

// PresetMap 返回内置预置与自定义预置文件合并后的集合
func (c *Config) PresetMap() (map[string]Preset, error) {
	if c.PresetsFile == "" {
		return DefaultPresets(), nil
	}
	custom, err := LoadPresetsFile(c.PresetsFile)
	if err != nil {
		return nil, err
	}
	return MergePresets(custom), nil
}

// SaveConfig 将配置保存到文件
func SaveConfig(config *Config, configPath string) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		configPath = filepath.Join(home, ".doctranslate.yaml")
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("base_url", config.BaseURL)
	v.Set("api_key", config.APIKey)
	v.Set("model_id", config.ModelID)
	v.Set("preset", config.Preset)
	v.Set("presets_file", config.PresetsFile)
	v.Set("to_lang", config.ToLang)
	v.Set("custom_prompt", config.CustomPrompt)
	v.Set("chunk_size", config.ChunkSize)
	v.Set("concurrent", config.Concurrent)
	v.Set("temperature", config.Temperature)
	v.Set("top_p", config.TopP)
	v.Set("timeout", config.Timeout)
	v.Set("retry", config.Retry)
	v.Set("thinking", config.Thinking)
	v.Set("system_proxy_enable", config.SystemProxyEnable)
	v.Set("insert_mode", config.InsertMode)
	v.Set("separator", config.Separator)
	v.Set("glossary_path", config.GlossaryPath)
	v.Set("glossary_generate", config.GlossaryGenerate)
	v.Set("out_dir", config.OutDir)
	v.Set("formats", config.Formats)
	v.Set("html_cdn", config.HTMLCDN)
	v.Set("normalize", config.Normalize)

	// 创建父目录（如果不存在）
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return v.WriteConfigAs(configPath)
}

// NewDefaultConfig 创建一个新的默认配置
func NewDefaultConfig() *Config {
	return &Config{
		ToLang:      "简体中文",
		ChunkSize:   3000,
		Concurrent:  30,
		Temperature: 0.7,
		TopP:        0.9,
		Timeout:     1200,
		Retry:       2,
		Thinking:    "default",
		InsertMode:  "replace",
		Separator:   "\n",
		OutDir:      "output",
		HTMLCDN:     true,
	}
}

// setDefaults 设置 viper 默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("to_lang", "简体中文")
	v.SetDefault("chunk_size", 3000)
	v.SetDefault("concurrent", 30)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("top_p", 0.9)
	v.SetDefault("timeout", 1200)
	v.SetDefault("retry", 2)
	v.SetDefault("thinking", "default")
	v.SetDefault("system_proxy_enable", false)
	v.SetDefault("insert_mode", "replace")
	v.SetDefault("separator", "\n")
	v.SetDefault("glossary_generate", false)
	v.SetDefault("out_dir", "output")
	v.SetDefault("html_cdn", true)
	v.SetDefault("normalize", false)
	v.SetDefault("debug", false)
}

// applyPreset 用预置服务商填充未显式配置的连接信息
func applyPreset(config *Config, preset *Preset) {
	if config.BaseURL == "" {
		config.BaseURL = preset.BaseURL
	}
	if config.ModelID == "" {
		config.ModelID = preset.DefaultModel
	}
}
