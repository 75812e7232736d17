package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Agent 是批量调度的核心：对一个 OpenAI 兼容端点发起 chat/completions
// 请求，处理成功/软错误/硬错误三类结果，带固定间隔的重试与兜底。
// 具体智能体（分段翻译、术语抽取）通过设置 SystemPrompt 与回调来定制行为。
type Agent struct {
	// SystemPrompt 缺省的 system prompt，可被 SendOptions 覆盖
	SystemPrompt string

	baseURL       string
	domain        string
	modelID       string
	temperature   float32
	maxConcurrent int
	timeout       time.Duration
	retry         int
	systemProxy   bool
	builder       requestBuilder
	logger        *zap.Logger
}

// New 创建智能体。
func New(cfg Config) *Agent {
	cfg = cfg.withDefaults()

	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	domain := ""
	if parsed, err := url.Parse(baseURL); err == nil {
		domain = parsed.Host
	} else {
		cfg.Logger.Warn("无法解析 base-url", zap.String("baseURL", baseURL), zap.Error(err))
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = "xx"
	}

	cfg.Logger.Debug("创建智能体",
		zap.String("baseURL", baseURL),
		zap.String("domain", domain),
		zap.String("model", cfg.ModelID),
		zap.String("apiKeyMasked", maskAuthToken(apiKey)),
		zap.Int("concurrent", cfg.Concurrent),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &Agent{
		baseURL:       baseURL,
		domain:        domain,
		modelID:       strings.TrimSpace(cfg.ModelID),
		temperature:   cfg.Temperature,
		maxConcurrent: cfg.Concurrent,
		timeout:       cfg.Timeout,
		retry:         cfg.Retry,
		systemProxy:   cfg.SystemProxyEnable,
		builder: requestBuilder{
			domain:      domain,
			apiKey:      apiKey,
			modelID:     strings.TrimSpace(cfg.ModelID),
			temperature: cfg.Temperature,
			topP:        cfg.TopP,
			thinking:    cfg.Thinking,
		},
		logger: cfg.Logger,
	}
}

// BaseURL 返回规范化后的端点地址。
func (a *Agent) BaseURL() string {
	return a.baseURL
}

// chatResponse chat/completions 响应结构。
// usage 字段形状因服务商而异，保留原始 JSON 交给 extractTokenInfo。
type chatResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []chatChoice    `json:"choices"`
	Usage   json.RawMessage `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// send 处理一个逻辑请求的完整生命周期：尝试、分类、重试、兜底。
//
// 重试以显式循环实现。硬错误只在首次尝试失败时计入配额；配额超限后
// 本批次所有请求不再重试，直接走兜底链：最优部分结果 → 兜底回调 → 原始 prompt。
// 每条兜底路径都会累计一次未解决错误。
func (a *Agent) send(ctx context.Context, transport *Transport, bc *BatchContext, prompt string, opts *SendOptions) any {
	systemPrompt := a.SystemPrompt
	if opts.SystemPrompt != "" {
		systemPrompt = opts.SystemPrompt
	}
	if opts.PreSend != nil {
		systemPrompt, prompt = opts.PreSend(systemPrompt, prompt)
	}

	var bestPartial any

	for attempt := 0; ; attempt++ {
		result, attemptErr := a.attempt(ctx, transport, bc, prompt, systemPrompt, opts)
		if attemptErr == nil {
			if attempt > 0 {
				a.logger.Info("重试成功",
					zap.String("batchID", bc.ID),
					zap.Int("attempt", attempt),
					zap.Int("maxRetry", a.retry),
				)
			}
			return result
		}

		a.logger.Error("请求尝试失败",
			zap.String("batchID", bc.ID),
			zap.String("kind", attemptErr.Kind.String()),
			zap.Int("attempt", attempt),
			zap.Error(attemptErr),
		)

		// 部分结果沿尝试序列向后携带，作为最终兜底的首选
		if attemptErr.Kind == ErrKindPartialResult && attemptErr.Partial != nil {
			bestPartial = attemptErr.Partial
		}

		if attempt >= a.retry {
			a.logger.Error("重试次数耗尽",
				zap.String("batchID", bc.ID),
				zap.Int("maxRetry", a.retry),
			)
			bc.addUnresolved()
			return a.fallback(bestPartial, prompt, opts)
		}

		if attemptErr.BudgetCounted {
			if attempt == 0 {
				if bc.addHardError() {
					a.logger.Error("硬错误过多，配额超限，放弃重试", zap.String("batchID", bc.ID))
					bc.addUnresolved()
					return a.fallback(bestPartial, prompt, opts)
				}
			} else if bc.reachedLimit() {
				a.logger.Error("硬错误配额已超限，本请求不再重试", zap.String("batchID", bc.ID))
				bc.addUnresolved()
				return a.fallback(bestPartial, prompt, opts)
			}
		}

		a.logger.Info("准备重试",
			zap.String("batchID", bc.ID),
			zap.Int("next", attempt+1),
			zap.Int("maxRetry", a.retry),
		)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			// 取消只影响后续的 HTTP 请求，本循环照常收敛到兜底
		}
	}
}

// attempt 发起一次 HTTP 调用并分类结果。
func (a *Agent) attempt(ctx context.Context, transport *Transport, bc *BatchContext, prompt, systemPrompt string, opts *SendOptions) (any, *AgentError) {
	body, err := a.builder.buildBody(prompt, systemPrompt)
	if err != nil {
		return nil, newEnvelopeError("failed to encode request body", err)
	}

	resp, err := transport.PostJSON(ctx, a.baseURL+"/chat/completions", a.builder.buildHeaders(), body)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPStatusError(resp.StatusCode, truncateForLog(string(data)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, newEnvelopeError("failed to decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, newEnvelopeError("response has no choices", nil)
	}
	content := parsed.Choices[0].Message.Content

	bc.addTokens(extractTokenInfo(parsed.Usage))

	if opts.ResultHandler == nil {
		return content, nil
	}
	result, handlerErr := opts.ResultHandler(content, prompt, a.logger)
	if handlerErr != nil {
		var agentErr *AgentError
		if errors.As(handlerErr, &agentErr) {
			return nil, agentErr
		}
		return nil, &AgentError{
			Kind:    ErrKindResultInvalid,
			Message: handlerErr.Error(),
			Cause:   handlerErr,
		}
	}
	return result, nil
}

// fallback 兜底链：最优部分结果 → 兜底回调 → 原始 prompt。
func (a *Agent) fallback(bestPartial any, prompt string, opts *SendOptions) any {
	if bestPartial != nil {
		a.logger.Info("使用已累积的最优部分结果")
		return bestPartial
	}
	if opts.ErrorHandler != nil {
		return opts.ErrorHandler(prompt, a.logger)
	}
	return prompt
}

// maskAuthToken 遮蔽认证令牌，只显示前4位和后4位
func maskAuthToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

const logBodyLimit = 512

// truncateForLog 截断过长的响应体，避免日志爆炸。
func truncateForLog(s string) string {
	runes := []rune(s)
	if len(runes) <= logBodyLimit {
		return s
	}
	return string(runes[:logBodyLimit]) + "..."
}
