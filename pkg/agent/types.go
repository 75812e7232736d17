package agent

import (
	"time"

	"go.uber.org/zap"
)

// ThinkingMode 控制服务商"思考模式"扩展字段的开关。
type ThinkingMode string

const (
	ThinkingEnable  ThinkingMode = "enable"
	ThinkingDisable ThinkingMode = "disable"
	// ThinkingDefault 不在请求体中附加任何思考模式字段
	ThinkingDefault ThinkingMode = "default"
)

// 缺省配置值
const (
	DefaultTemperature float32 = 0.7
	DefaultTopP        float32 = 0.9
	DefaultConcurrent          = 30
	DefaultTimeout             = 1200 * time.Second
	DefaultRetry               = 2
)

// 每多少个请求容忍一次硬错误，决定批次错误配额上限
const maxRequestsPerError = 15

// 两次重试之间的固定等待
const retryDelay = 500 * time.Millisecond

// Config 智能体配置。零值字段会回退到缺省值；Retry 取负数表示禁用重试。
type Config struct {
	BaseURL     string
	APIKey      string
	ModelID     string
	Temperature float32
	TopP        float32
	// Concurrent 批量请求的并发上限
	Concurrent int
	// Timeout 单个 HTTP 请求的读超时
	Timeout  time.Duration
	Thinking ThinkingMode
	// Retry 单个请求的最大重试次数
	Retry int
	// SystemProxyEnable 启用系统代理（HTTP_PROXY/HTTPS_PROXY/ALL_PROXY）
	SystemProxyEnable bool
	Logger            *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.TopP == 0 {
		c.TopP = DefaultTopP
	}
	if c.Concurrent <= 0 {
		c.Concurrent = DefaultConcurrent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Thinking == "" {
		c.Thinking = ThinkingDisable
	}
	if c.Retry == 0 {
		c.Retry = DefaultRetry
	} else if c.Retry < 0 {
		c.Retry = 0
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// PreSendHandler 在发送前调整 system prompt 与 prompt（比如注入术语表）。
type PreSendHandler func(systemPrompt, prompt string) (string, string)

// ResultHandler 校验并转换模型返回的内容。
// 返回 *AgentError（ErrKindResultInvalid / ErrKindPartialResult）表达软错误；
// 其他 error 一律按 ErrKindResultInvalid 处理。
type ResultHandler func(content, prompt string, logger *zap.Logger) (any, error)

// ErrorResultHandler 在重试耗尽或配额超限后构造兜底结果。
type ErrorResultHandler func(prompt string, logger *zap.Logger) any

// SendOptions 一次批量调用的回调与覆盖项，全部可选。
type SendOptions struct {
	// SystemPrompt 非空时覆盖智能体自身的 system prompt
	SystemPrompt  string
	PreSend       PreSendHandler
	ResultHandler ResultHandler
	ErrorHandler  ErrorResultHandler
	// OnProgress 每完成一个请求回调一次，在收集结果的 goroutine 中串行执行
	OnProgress func(completed, total int)
}
