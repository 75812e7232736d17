package translator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/go-doctranslate/pkg/agent"
)

// newChatServer 启动一个 OpenAI 兼容的模拟端点，回答由 reply 生成
func newChatServer(t *testing.T, reply func(system, user string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []agent.ChatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 2 {
			t.Errorf("请求体不合法: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply(req.Messages[0].Content, req.Messages[1].Content)},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3},
		})
	}))
}

func serverOptions(baseURL string) Options {
	return Options{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		ModelID:    "test-model",
		ChunkSize:  3000,
		Concurrent: 2,
		Timeout:    5 * time.Second,
		Retry:      -1,
	}
}

// TestSplitFrontMatter 测试 YAML front matter 的分离
func TestSplitFrontMatter(t *testing.T) {
	fm, body := splitFrontMatter("---\ntitle: Demo\n---\nBody text\n")
	assert.Equal(t, "---\ntitle: Demo\n---\n", fm)
	assert.Equal(t, "Body text\n", body)

	// 没有 front matter
	fm, body = splitFrontMatter("# Title\n")
	assert.Empty(t, fm)
	assert.Equal(t, "# Title\n", body)

	// 没有闭合线时不拆
	fm, body = splitFrontMatter("---\ntitle: x\nno end\n")
	assert.Empty(t, fm)
	assert.Equal(t, "---\ntitle: x\nno end\n", body)

	// CRLF
	fm, body = splitFrontMatter("---\r\ntitle: x\r\n---\r\nbody")
	assert.Equal(t, "---\r\ntitle: x\r\n---\r\n", fm)
	assert.Equal(t, "body", body)
}

// TestNewMarkdownTranslatorValidation 测试连接配置校验
func TestNewMarkdownTranslatorValidation(t *testing.T) {
	_, err := NewMarkdownTranslator(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url、api_key、model_id 均为必填")

	// skip_translate 下不要求连接配置
	_, err = NewMarkdownTranslator(Options{SkipTranslate: true})
	require.NoError(t, err)
}

// TestMarkdownTranslatorSkipRoundTrip 测试跳过翻译时内容逐字节还原
func TestMarkdownTranslatorSkipRoundTrip(t *testing.T) {
	input := "# Hello\n\nWorld ![logo](https://example.com/l.png) here.\n"

	tr, err := NewMarkdownTranslator(Options{SkipTranslate: true})
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte(input))
	require.NoError(t, err)

	assert.Equal(t, input, string(res.Content))
	assert.Equal(t, 1, res.Chunks)
	assert.Nil(t, res.Glossary)
	assert.Empty(t, res.Stats)
}

// TestMarkdownTranslatorSkipFrontMatter 测试 front matter 原样保留在输出开头
func TestMarkdownTranslatorSkipFrontMatter(t *testing.T) {
	input := "---\ntitle: Demo\n---\n# Hello\n\nWorld.\n"

	tr, err := NewMarkdownTranslator(Options{SkipTranslate: true})
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte(input))
	require.NoError(t, err)

	assert.Equal(t, "---\ntitle: Demo\n---\n\n# Hello\n\nWorld.\n", string(res.Content))
}

// TestMarkdownTranslatorTranslates 测试整条翻译链路
func TestMarkdownTranslatorTranslates(t *testing.T) {
	server := newChatServer(t, func(system, user string) string {
		return "ZH:" + user
	})
	defer server.Close()

	tr, err := NewMarkdownTranslator(serverOptions(server.URL))
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte("Hello\n\nWorld\n"))
	require.NoError(t, err)

	assert.Equal(t, "ZH:Hello\n\nWorld\n", string(res.Content))
	assert.Equal(t, 1, res.Chunks)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, 0, res.Stats[0].Unresolved)
	assert.Equal(t, 7, res.Stats[0].Tokens.Input)
}

// TestMarkdownTranslatorRestoresPlaceholders 测试译文中的占位符还原成图片
func TestMarkdownTranslatorRestoresPlaceholders(t *testing.T) {
	server := newChatServer(t, func(system, user string) string {
		// 占位符按要求原样保留在译文里
		return "译文 " + user
	})
	defer server.Close()

	tr, err := NewMarkdownTranslator(serverOptions(server.URL))
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte("看图 ![logo](https://example.com/l.png)\n"))
	require.NoError(t, err)

	assert.Contains(t, string(res.Content), "![logo](https://example.com/l.png)")
	assert.NotContains(t, string(res.Content), "<ph-")
}

// TestMarkdownTranslatorFullWidthParenFix 测试全角转义括号被修正
func TestMarkdownTranslatorFullWidthParenFix(t *testing.T) {
	server := newChatServer(t, func(system, user string) string {
		return `证明 \（x\）成立`
	})
	defer server.Close()

	tr, err := NewMarkdownTranslator(serverOptions(server.URL))
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte("Proof\n"))
	require.NoError(t, err)

	assert.Equal(t, `证明 \(x\)成立`, string(res.Content))
}

// TestMarkdownTranslatorGlossaryFlow 测试术语抽取并注入翻译请求
func TestMarkdownTranslatorGlossaryFlow(t *testing.T) {
	var translateSystem atomic.Value
	server := newChatServer(t, func(system, user string) string {
		if strings.Contains(system, "glossary extractor") {
			return `[{"src": "Tom", "dst": "汤姆"}]`
		}
		translateSystem.Store(system)
		return "ZH:" + user
	})
	defer server.Close()

	opts := serverOptions(server.URL)
	opts.GlossaryGenerateEnable = true

	tr, err := NewMarkdownTranslator(opts)
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte("Tom waves.\n"))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"Tom": "汤姆"}, res.Glossary)
	// 术语批次在前，翻译批次在后
	require.Len(t, res.Stats, 2)

	system, ok := translateSystem.Load().(string)
	require.True(t, ok)
	assert.Contains(t, system, "Tom=>汤姆")
}
