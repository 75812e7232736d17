package agent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"strings"
)

// ChatMessage 聊天消息。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const geminiDomain = "generativelanguage.googleapis.com"

// thinkingSpec 描述某个服务商"思考模式"的请求字段名与开/关取值。
type thinkingSpec struct {
	field    string
	enabled  any
	disabled any
}

// thinkingTable 按端点域名分发思考模式扩展字段，新服务商在此登记即可。
var thinkingTable = map[string]thinkingSpec{
	"open.bigmodel.cn": {
		field:    "thinking",
		enabled:  map[string]any{"type": "enabled"},
		disabled: map[string]any{"type": "disabled"},
	},
	"dashscope.aliyuncs.com": {
		field:    "extra_body",
		enabled:  map[string]any{"enable_thinking": true},
		disabled: map[string]any{"enable_thinking": false},
	},
	"ark.cn-beijing.volces.com": {
		field:    "thinking",
		enabled:  map[string]any{"type": "enabled"},
		disabled: map[string]any{"type": "disabled"},
	},
	geminiDomain: {
		field: "extra_body",
		enabled: map[string]any{
			"google": map[string]any{
				"thinking_config": map[string]any{"thinking_budget": -1, "include_thoughts": true},
			},
		},
		disabled: map[string]any{
			"google": map[string]any{
				"thinking_config": map[string]any{"thinking_budget": 0, "include_thoughts": false},
			},
		},
	},
	"api.siliconflow.cn": {
		field:    "enable_thinking",
		enabled:  true,
		disabled: false,
	},
}

// requestBuilder 构造 chat/completions 的请求头与请求体。
type requestBuilder struct {
	domain      string
	apiKey      string
	modelID     string
	temperature float32
	topP        float32
	thinking    ThinkingMode
}

// buildHeaders 构造默认的 OpenAI 兼容请求头，并按服务商做调整。
func (b *requestBuilder) buildHeaders() http.Header {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+b.apiKey)

	switch {
	case b.domain == geminiDomain:
		// Gemini 的 OpenAI 兼容端点使用 x-goog-api-key 鉴权
		header.Del("Authorization")
		header.Set("x-goog-api-key", b.apiKey)
	case strings.HasSuffix(b.domain, "openrouter.ai"):
		// OpenRouter 建议带上来源标识
		if ref := firstEnv("OPENROUTER_REFERRER", "HTTP_REFERER"); ref != "" {
			header.Set("HTTP-Referer", ref)
		}
		if title := os.Getenv("OPENROUTER_TITLE"); title != "" {
			header.Set("X-Title", title)
		}
	}
	return header
}

// buildBody 构造请求体。thinking 为 default 时不附加扩展字段。
func (b *requestBuilder) buildBody(prompt, systemPrompt string) ([]byte, error) {
	body := map[string]any{
		"model": b.modelID,
		"messages": []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		"temperature": b.temperature,
		"top_p":       b.topP,
	}
	if b.thinking != ThinkingDefault {
		b.applyThinking(body)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *requestBuilder) applyThinking(body map[string]any) {
	ext, ok := thinkingTable[b.domain]
	if !ok {
		return
	}
	switch b.thinking {
	case ThinkingEnable:
		body[ext.field] = ext.enabled
	case ThinkingDisable:
		body[ext.field] = ext.disabled
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
