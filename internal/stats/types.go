package stats

import (
	"time"
)

// HistoryDB 运行历史的持久化结构
type HistoryDB struct {
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`

	// 总体统计
	TotalRuns       int64         `json:"total_runs"`
	TotalChunks     int64         `json:"total_chunks"`
	TotalBytes      int64         `json:"total_bytes"`
	TotalUnresolved int64         `json:"total_unresolved"`
	TotalDuration   time.Duration `json:"total_duration"`

	// 按模型聚合
	ModelStats map[string]*ModelStats `json:"model_stats"`

	// 按文档格式聚合
	FormatStats map[string]*FormatStats `json:"format_stats"`

	// 最近的运行记录
	RecentRuns []*RunRecord `json:"recent_runs"`
}

// ModelStats 按模型聚合的统计
type ModelStats struct {
	ModelID         string        `json:"model_id"`
	RunCount        int64         `json:"run_count"`
	ChunkCount      int64         `json:"chunk_count"`
	TotalTokens     int64         `json:"total_tokens"`
	AverageDuration time.Duration `json:"average_duration"`
	LastUsed        time.Time     `json:"last_used"`
}

// FormatStats 按文档格式聚合的统计
type FormatStats struct {
	Format          string        `json:"format"`
	RunCount        int64         `json:"run_count"`
	ByteCount       int64         `json:"byte_count"`
	AverageDuration time.Duration `json:"average_duration"`
	SuccessRate     float64       `json:"success_rate"`
	LastUsed        time.Time     `json:"last_used"`
}

// RunRecord 一次翻译运行的记录
type RunRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	InputFile string    `json:"input_file"`
	Format    string    `json:"format"`
	ToLang    string    `json:"to_lang"`
	ModelID   string    `json:"model_id"`

	// 请求统计
	Chunks     int           `json:"chunks"`
	HardErrors int           `json:"hard_errors"`
	Unresolved int           `json:"unresolved"`
	InputBytes int           `json:"input_bytes"`
	Duration   time.Duration `json:"duration"`

	// token 统计，-1 表示服务商返回的 usage 无法解析
	InputTokens     int64 `json:"input_tokens"`
	CachedTokens    int64 `json:"cached_tokens"`
	OutputTokens    int64 `json:"output_tokens"`
	ReasoningTokens int64 `json:"reasoning_tokens"`
	TotalTokens     int64 `json:"total_tokens"`

	// GlossaryTerms 本次抽取出的术语条数
	GlossaryTerms int `json:"glossary_terms"`

	// Status completed / partial，存在未解决请求时为 partial
	Status string `json:"status"`
}

// 运行状态
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
)
