package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// TestMain 批量调度会派生大量 goroutine，整包跑完后确认没有泄漏
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// chatRequest 模拟端点解码用的请求结构
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	TopP        float32       `json:"top_p"`
}

// newChatServer 启动一个 OpenAI 兼容的模拟端点，回答由 reply 生成
func newChatServer(t *testing.T, reply func(system, user string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("请求路径不对: %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("解码请求体失败: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Messages) != 2 {
			t.Errorf("期望 2 条消息，收到 %d 条", len(req.Messages))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeChatContent(w, reply(req.Messages[0].Content, req.Messages[1].Content))
	}))
}

// writeChatContent 输出一条标准的成功响应，usage 固定 7 入 3 出
func writeChatContent(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":    "chatcmpl-test",
		"model": "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3},
	})
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		ModelID:    "test-model",
		Concurrent: 4,
		Timeout:    5 * time.Second,
		Retry:      -1,
		Logger:     zap.NewNop(),
	}
}

// TestNewNormalizesConfig 测试端点地址与密钥的规范化
func TestNewNormalizesConfig(t *testing.T) {
	a := New(Config{
		BaseURL: " https://api.example.com/v1/ ",
		APIKey:  "  ",
		ModelID: " my-model ",
		Logger:  zap.NewNop(),
	})

	assert.Equal(t, "https://api.example.com/v1", a.BaseURL())
	assert.Equal(t, "api.example.com", a.domain)
	assert.Equal(t, "my-model", a.modelID)
	// 空密钥用占位值填充，兼容不鉴权的本地端点
	assert.Equal(t, "xx", a.builder.apiKey)
}

// TestConfigWithDefaults 测试零值字段回退到缺省值
func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, DefaultTemperature, cfg.Temperature)
	assert.Equal(t, DefaultTopP, cfg.TopP)
	assert.Equal(t, DefaultConcurrent, cfg.Concurrent)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, ThinkingDisable, cfg.Thinking)
	assert.Equal(t, DefaultRetry, cfg.Retry)
	require.NotNil(t, cfg.Logger)

	// 负数表示禁用重试
	assert.Equal(t, 0, Config{Retry: -3}.withDefaults().Retry)
	// 显式 default 不被覆盖
	assert.Equal(t, ThinkingDefault, Config{Thinking: ThinkingDefault}.withDefaults().Thinking)
}

// TestSendPromptsOrderAndStats 测试并发批量请求的结果顺序与统计
func TestSendPromptsOrderAndStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("鉴权头不对: %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("解码请求体失败: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// 注入与下标相关的延迟，让完成顺序不同于提交顺序
		var idx int
		_, _ = fmt.Sscanf(req.Messages[1].Content, "p%d", &idx)
		time.Sleep(time.Duration(idx%3) * 5 * time.Millisecond)
		writeChatContent(w, "T:"+req.Messages[1].Content)
	}))
	defer server.Close()

	a := New(testConfig(server.URL))
	a.SystemPrompt = "你是翻译引擎"

	prompts := make([]string, 12)
	for i := range prompts {
		prompts[i] = fmt.Sprintf("p%d", i)
	}

	var progress []int
	results, stats := a.SendPrompts(context.Background(), prompts, &SendOptions{
		OnProgress: func(completed, total int) {
			assert.Equal(t, 12, total)
			progress = append(progress, completed)
		},
	})

	require.Len(t, results, 12)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("T:p%d", i), r)
	}

	assert.NotEmpty(t, stats.BatchID)
	assert.Equal(t, 0, stats.HardErrors)
	assert.Equal(t, 0, stats.Unresolved)
	assert.Equal(t, 0, stats.MaxErrors)
	assert.False(t, stats.TokenExtractFailed)
	assert.Equal(t, 12*7, stats.Tokens.Input)
	assert.Equal(t, 12*3, stats.Tokens.Output)
	assert.Equal(t, 12*10, stats.Tokens.Total)

	// 进度回调串行执行，完成数单调递增
	require.Len(t, progress, 12)
	for i, completed := range progress {
		assert.Equal(t, i+1, completed)
	}
}

// TestSendPromptsEmpty 测试空批次直接返回
func TestSendPromptsEmpty(t *testing.T) {
	a := New(testConfig("http://127.0.0.1:1"))
	results, stats := a.SendPrompts(context.Background(), nil, nil)

	assert.Empty(t, results)
	assert.Equal(t, 0, stats.HardErrors)
	assert.Equal(t, 0, stats.Unresolved)
}

// TestSendPromptsRetriesSoftError 测试软错误触发重试且不占硬错误配额
func TestSendPromptsRetriesSoftError(t *testing.T) {
	var calls atomic.Int32
	server := newChatServer(t, func(system, user string) string {
		if calls.Add(1) == 1 {
			return "BAD"
		}
		return "GOOD"
	})
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retry = 2
	a := New(cfg)

	results, stats := a.SendPrompts(context.Background(), []string{"原文"}, &SendOptions{
		ResultHandler: func(content, prompt string, logger *zap.Logger) (any, error) {
			if content == "BAD" {
				return nil, NewResultInvalid("译文不完整")
			}
			return content, nil
		},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "GOOD", results[0])
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, stats.HardErrors)
	assert.Equal(t, 0, stats.Unresolved)
}

// TestSendPromptsHardErrorBudget 测试单请求批次的硬错误直接耗尽配额
func TestSendPromptsHardErrorBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retry = 1
	a := New(cfg)

	results, stats := a.SendPrompts(context.Background(), []string{"原文"}, nil)

	require.Len(t, results, 1)
	// 没有兜底回调时退回原始 prompt
	assert.Equal(t, "原文", results[0])
	// 配额为 total/15=0，首个硬错误就放弃重试，只打一次请求
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, stats.HardErrors)
	assert.Equal(t, 0, stats.MaxErrors)
	assert.Equal(t, 1, stats.Unresolved)
}

// TestSendPromptsBudgetSharedAcrossPrompts 测试配额在同一批次的请求间共享
func TestSendPromptsBudgetSharedAcrossPrompts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retry = 1
	// 串行执行让调用次数可以精确断言
	cfg.Concurrent = 1
	a := New(cfg)

	prompts := make([]string, 20)
	for i := range prompts {
		prompts[i] = fmt.Sprintf("p%d", i)
	}

	results, stats := a.SendPrompts(context.Background(), prompts, nil)

	require.Len(t, results, 20)
	for i, r := range results {
		assert.Equal(t, prompts[i], r)
	}
	// 配额为 20/15=1，只有第一个硬错误的请求还有重试机会，
	// 之后计数超限，其余请求都只打一次就直接兜底
	assert.Equal(t, int32(21), calls.Load())
	assert.Equal(t, 20, stats.HardErrors)
	assert.Equal(t, 1, stats.MaxErrors)
	assert.Equal(t, 20, stats.Unresolved)
}

// TestSendPromptsErrorHandler 测试重试耗尽后走兜底回调
func TestSendPromptsErrorHandler(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	a := New(testConfig(server.URL))

	results, stats := a.SendPrompts(context.Background(), []string{"原文"}, &SendOptions{
		ErrorHandler: func(prompt string, logger *zap.Logger) any {
			return "兜底:" + prompt
		},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "兜底:原文", results[0])
	assert.Equal(t, 1, stats.Unresolved)
	// 重试禁用时第一轮失败直接收敛，配额没有被动用
	assert.Equal(t, 0, stats.HardErrors)
}

// TestSendPromptsPartialResultCarried 测试部分结果沿重试携带并成为最终兜底
func TestSendPromptsPartialResultCarried(t *testing.T) {
	var calls atomic.Int32
	server := newChatServer(t, func(system, user string) string {
		calls.Add(1)
		return `{"0":"部分"}`
	})
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Retry = 1
	a := New(cfg)

	partial := map[string]string{"0": "部分", "1": "补全"}
	results, stats := a.SendPrompts(context.Background(), []string{`{"0":"a","1":"b"}`}, &SendOptions{
		ResultHandler: func(content, prompt string, logger *zap.Logger) (any, error) {
			return nil, NewPartialResult("键集不匹配", partial)
		},
	})

	require.Len(t, results, 1)
	assert.Equal(t, partial, results[0])
	// 软错误照常重试，两次尝试都失败后才落到部分结果
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, 0, stats.HardErrors)
}

// TestSendPromptsPreSendAndOverride 测试 system prompt 覆盖与发送前改写
func TestSendPromptsPreSendAndOverride(t *testing.T) {
	var gotSystem, gotUser atomic.Value
	server := newChatServer(t, func(system, user string) string {
		gotSystem.Store(system)
		gotUser.Store(user)
		return "ok"
	})
	defer server.Close()

	a := New(testConfig(server.URL))
	a.SystemPrompt = "默认提示"

	results, _ := a.SendPrompts(context.Background(), []string{"hi"}, &SendOptions{
		SystemPrompt: "覆盖提示",
		PreSend: func(systemPrompt, prompt string) (string, string) {
			return systemPrompt + "+术语", prompt + "+正文"
		},
	})

	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0])
	assert.Equal(t, "覆盖提示+术语", gotSystem.Load())
	assert.Equal(t, "hi+正文", gotUser.Load())
}

// TestTruncateForLog 测试日志截断按 rune 计数
func TestTruncateForLog(t *testing.T) {
	assert.Equal(t, "short", truncateForLog("short"))

	long := make([]rune, logBodyLimit+10)
	for i := range long {
		long[i] = '试'
	}
	out := truncateForLog(string(long))
	assert.Equal(t, logBodyLimit+len("..."), len([]rune(out)))
	assert.True(t, len(out) > logBodyLimit)
}
