package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchContext 承载一次批量调用的全部共享可变状态：
// 硬错误配额、未解决错误数与 token 累计。每次 SendPrompts 新建一个，
// 由批内所有并发请求共享，不存在跨批次的全局状态。
type BatchContext struct {
	// ID 批次标识，出现在本批次的所有日志里
	ID string

	mu                 sync.Mutex
	errorCount         int
	maxErrors          int
	unresolved         int
	totals             TokenTotals
	tokenExtractFailed bool
}

func newBatchContext(total int) *BatchContext {
	return &BatchContext{
		ID:        uuid.New().String(),
		maxErrors: total / maxRequestsPerError,
	}
}

// addHardError 记录一次硬错误，返回配额是否已超限。
// 每个逻辑请求只在首次尝试失败时调用一次。
func (bc *BatchContext) addHardError() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.errorCount++
	return bc.errorCount > bc.maxErrors
}

// reachedLimit 返回配额是否已超限。超限后在本批次内保持为真。
func (bc *BatchContext) reachedLimit() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.errorCount > bc.maxErrors
}

// addUnresolved 记录一次最终未解决（走了兜底路径）的请求。
func (bc *BatchContext) addUnresolved() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.unresolved++
}

func (bc *BatchContext) addTokens(u TokenUsage) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.totals.Input += u.Input
	bc.totals.Cached += u.Cached
	bc.totals.Output += u.Output
	bc.totals.Reasoning += u.Reasoning
	bc.totals.Total += u.Input + u.Output
	if u.Failed() {
		bc.tokenExtractFailed = true
	}
}

// Stats 返回当前的只读统计快照。
func (bc *BatchContext) Stats() BatchStats {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return BatchStats{
		BatchID:            bc.ID,
		HardErrors:         bc.errorCount,
		MaxErrors:          bc.maxErrors,
		Unresolved:         bc.unresolved,
		Tokens:             bc.totals,
		TokenExtractFailed: bc.tokenExtractFailed,
	}
}

// TokenTotals 一个批次内累计的 token 用量。
type TokenTotals struct {
	Input     int
	Cached    int
	Output    int
	Reasoning int
	Total     int
}

// BatchStats 批次结束时的统计结果。
// TokenExtractFailed 为 true 时 token 数字不可信，展示层必须单独呈现。
type BatchStats struct {
	BatchID            string
	HardErrors         int
	MaxErrors          int
	Unresolved         int
	Tokens             TokenTotals
	TokenExtractFailed bool
}

// SendPrompts 并发发送一组 prompt，结果顺序与输入一致。
//
// 并发上限由配置的 Concurrent 控制（计数信号量，先完成的请求立即让出名额）。
// 每个 prompt 独立走完自己的重试与兜底流程，单个失败不影响其他请求，
// 因此本方法不返回 error：失败以降级结果的形式并入返回值。
// ctx 只透传给每次 HTTP 请求，批次本身不会被整体取消。
func (a *Agent) SendPrompts(ctx context.Context, prompts []string, opts *SendOptions) ([]any, BatchStats) {
	if opts == nil {
		opts = &SendOptions{}
	}

	bc := newBatchContext(len(prompts))
	a.logger.Info("开始批量请求",
		zap.String("batchID", bc.ID),
		zap.String("baseURL", a.baseURL),
		zap.String("model", a.modelID),
		zap.Int("total", len(prompts)),
		zap.Int("concurrent", a.maxConcurrent),
		zap.Float32("temperature", a.temperature),
		zap.Bool("systemProxy", a.systemProxy),
		zap.Int("maxErrors", bc.maxErrors),
	)

	if len(prompts) == 0 {
		return []any{}, bc.Stats()
	}

	transport := newTransport(a.maxConcurrent, a.timeout, a.systemProxy)
	defer transport.Close()

	type indexedResult struct {
		index int
		value any
	}

	resultChan := make(chan indexedResult, len(prompts))
	semaphore := make(chan struct{}, a.maxConcurrent)
	var wg sync.WaitGroup

	for i, prompt := range prompts {
		wg.Add(1)
		go func(idx int, promptText string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			value := a.send(ctx, transport, bc, promptText, opts)
			resultChan <- indexedResult{index: idx, value: value}
		}(i, prompt)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]any, len(prompts))
	completed := 0
	for res := range resultChan {
		results[res.index] = res.value
		completed++
		a.logger.Debug("批量进度",
			zap.String("batchID", bc.ID),
			zap.Int("completed", completed),
			zap.Int("total", len(prompts)),
		)
		if opts.OnProgress != nil {
			opts.OnProgress(completed, len(prompts))
		}
	}

	stats := bc.Stats()
	a.logger.Info("批量请求完成",
		zap.String("batchID", bc.ID),
		zap.Int("unresolved", stats.Unresolved),
		zap.Int("hardErrors", stats.HardErrors),
	)
	if stats.TokenExtractFailed {
		a.logger.Warn("token 统计提取失败", zap.String("batchID", bc.ID))
	} else {
		a.logger.Info("token 用量",
			zap.String("batchID", bc.ID),
			zap.Int("input", stats.Tokens.Input),
			zap.Int("cached", stats.Tokens.Cached),
			zap.Int("output", stats.Tokens.Output),
			zap.Int("reasoning", stats.Tokens.Reasoning),
			zap.Int("total", stats.Tokens.Total),
		)
	}

	return results, stats
}
