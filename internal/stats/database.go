package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	HistoryDBVersion = "1.0.0"
	MaxRecentRuns    = 100
)

// Database 运行历史数据库，JSON 文件存储
type Database struct {
	filePath string
	data     *HistoryDB
	mutex    sync.RWMutex
	logger   *zap.Logger
}

// DefaultPath 返回历史库的默认位置 ~/.doctranslate/history.json
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".doctranslate", "history.json"), nil
}

// NewDatabase 打开或创建运行历史数据库
func NewDatabase(filePath string, logger *zap.Logger) (*Database, error) {
	db := &Database{
		filePath: filePath,
		logger:   logger,
	}

	// 确保目录存在
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建统计目录失败: %w", err)
	}

	if err := db.load(); err != nil {
		return nil, fmt.Errorf("加载运行历史失败: %w", err)
	}

	return db, nil
}

// load 加载历史数据
func (db *Database) load() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if _, err := os.Stat(db.filePath); os.IsNotExist(err) {
		db.data = &HistoryDB{
			Version:     HistoryDBVersion,
			CreatedAt:   time.Now(),
			LastUpdated: time.Now(),
			ModelStats:  make(map[string]*ModelStats),
			FormatStats: make(map[string]*FormatStats),
			RecentRuns:  make([]*RunRecord, 0),
		}
		return db.saveUnsafe()
	}

	data, err := os.ReadFile(db.filePath)
	if err != nil {
		return fmt.Errorf("读取历史文件失败: %w", err)
	}

	var history HistoryDB
	if err := json.Unmarshal(data, &history); err != nil {
		return fmt.Errorf("解析历史文件失败: %w", err)
	}

	// 兼容旧文件中可能为 nil 的字段
	if history.ModelStats == nil {
		history.ModelStats = make(map[string]*ModelStats)
	}
	if history.FormatStats == nil {
		history.FormatStats = make(map[string]*FormatStats)
	}
	if history.RecentRuns == nil {
		history.RecentRuns = make([]*RunRecord, 0)
	}

	db.data = &history
	db.logger.Debug("运行历史已加载",
		zap.String("version", history.Version),
		zap.Int64("total_runs", history.TotalRuns))

	return nil
}

// Save 保存历史数据
func (db *Database) Save() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.saveUnsafe()
}

// saveUnsafe 保存，调用者必须已持有锁
func (db *Database) saveUnsafe() error {
	db.data.LastUpdated = time.Now()

	data, err := json.MarshalIndent(db.data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化历史数据失败: %w", err)
	}

	// 先写临时文件再原子替换
	tempFile := db.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("写入临时历史文件失败: %w", err)
	}
	if err := os.Rename(tempFile, db.filePath); err != nil {
		return fmt.Errorf("替换历史文件失败: %w", err)
	}

	return nil
}

// AddRunRecord 追加一条运行记录并更新聚合统计
func (db *Database) AddRunRecord(record *RunRecord) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.data.TotalRuns++
	db.data.TotalChunks += int64(record.Chunks)
	db.data.TotalBytes += int64(record.InputBytes)
	db.data.TotalUnresolved += int64(record.Unresolved)
	db.data.TotalDuration += record.Duration

	// 按模型聚合
	model, exists := db.data.ModelStats[record.ModelID]
	if !exists {
		model = &ModelStats{ModelID: record.ModelID}
		db.data.ModelStats[record.ModelID] = model
	}
	model.RunCount++
	model.ChunkCount += int64(record.Chunks)
	if record.TotalTokens > 0 {
		model.TotalTokens += record.TotalTokens
	}
	model.LastUsed = record.Timestamp
	if model.RunCount > 0 {
		totalDuration := time.Duration(int64(model.AverageDuration) * (model.RunCount - 1))
		model.AverageDuration = (totalDuration + record.Duration) / time.Duration(model.RunCount)
	}

	// 按格式聚合
	format, exists := db.data.FormatStats[record.Format]
	if !exists {
		format = &FormatStats{Format: record.Format}
		db.data.FormatStats[record.Format] = format
	}
	format.RunCount++
	format.ByteCount += int64(record.InputBytes)
	format.LastUsed = record.Timestamp
	if format.RunCount > 0 {
		totalDuration := time.Duration(int64(format.AverageDuration) * (format.RunCount - 1))
		format.AverageDuration = (totalDuration + record.Duration) / time.Duration(format.RunCount)
	}
	successCount := int64(format.SuccessRate * float64(format.RunCount-1))
	if record.Unresolved == 0 {
		successCount++
	}
	format.SuccessRate = float64(successCount) / float64(format.RunCount)

	// 追加到最近记录
	db.data.RecentRuns = append(db.data.RecentRuns, record)
	if len(db.data.RecentRuns) > MaxRecentRuns {
		sort.Slice(db.data.RecentRuns, func(i, j int) bool {
			return db.data.RecentRuns[i].Timestamp.After(db.data.RecentRuns[j].Timestamp)
		})
		db.data.RecentRuns = db.data.RecentRuns[:MaxRecentRuns]
	}

	return db.saveUnsafe()
}

// GetStats 获取历史数据的只读副本
func (db *Database) GetStats() *HistoryDB {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	data, _ := json.Marshal(db.data)
	var clone HistoryDB
	_ = json.Unmarshal(data, &clone)

	return &clone
}

// GetRecentRuns 获取最近的运行记录，最新在前
func (db *Database) GetRecentRuns(limit int) []*RunRecord {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	if limit <= 0 || limit > len(db.data.RecentRuns) {
		limit = len(db.data.RecentRuns)
	}

	sorted := make([]*RunRecord, len(db.data.RecentRuns))
	copy(sorted, db.data.RecentRuns)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	return sorted[:limit]
}
