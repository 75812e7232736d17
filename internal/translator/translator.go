package translator

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-doctranslate/pkg/agent"
)

// Options 翻译管线的公共配置
type Options struct {
	// 连接配置，SkipTranslate 为 false 时必填
	BaseURL string
	APIKey  string
	ModelID string

	ToLang       string
	CustomPrompt string
	// ChunkSize 分块大小，单位字节
	ChunkSize   int
	Temperature float32
	TopP        float32
	Thinking    agent.ThinkingMode
	Concurrent  int
	Timeout     time.Duration
	Retry       int

	SystemProxyEnable bool
	// SkipTranslate 只走解析与导出流程，不调用模型
	SkipTranslate bool

	// GlossaryDict 预置术语表
	GlossaryDict map[string]string
	// GlossaryGenerateEnable 启用术语抽取智能体
	GlossaryGenerateEnable bool
	// GlossaryConfig 术语智能体的独立配置，缺省沿用主配置
	GlossaryConfig *agent.GlossaryAgentConfig

	Logger *zap.Logger
	// OnProgress 每完成一个请求回调一次
	OnProgress func(completed, total int)
}

func (o Options) withDefaults() Options {
	if o.ToLang == "" {
		o.ToLang = "简体中文"
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 3000
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) validate() error {
	if !o.SkipTranslate && (o.BaseURL == "" || o.APIKey == "" || o.ModelID == "") {
		return errors.New("未启用 skip_translate 时 base_url、api_key、model_id 均为必填")
	}
	return nil
}

func (o Options) agentConfig() agent.Config {
	return agent.Config{
		BaseURL:           o.BaseURL,
		APIKey:            o.APIKey,
		ModelID:           o.ModelID,
		Temperature:       o.Temperature,
		TopP:              o.TopP,
		Concurrent:        o.Concurrent,
		Timeout:           o.Timeout,
		Thinking:          o.Thinking,
		Retry:             o.Retry,
		SystemProxyEnable: o.SystemProxyEnable,
		Logger:            o.Logger,
	}
}

// newGlossaryAgent 按配置构造术语抽取智能体，未启用时返回 nil
func newGlossaryAgent(o Options) *agent.GlossaryAgent {
	if !o.GlossaryGenerateEnable {
		return nil
	}
	if o.GlossaryConfig != nil {
		return agent.NewGlossaryAgent(*o.GlossaryConfig)
	}
	return agent.NewGlossaryAgent(agent.GlossaryAgentConfig{
		Config: o.agentConfig(),
		ToLang: o.ToLang,
	})
}

// Result 一次翻译的产物与统计
type Result struct {
	// Content 翻译后的文档内容
	Content []byte
	// Glossary 本次抽取出的术语表，未启用抽取时为 nil
	Glossary map[string]string
	// Chunks 参与翻译的分块数
	Chunks int
	// Stats 各批次的请求统计，术语批次在前
	Stats []agent.BatchStats
}
