package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-doctranslate/internal/stats"
)

var (
	// stats 命令的标志
	statsFormat string
	recentLimit int
	exportPath  string
	resetStats  bool
)

// NewStatsCommand 创建 stats 命令
func NewStatsCommand() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "查看翻译历史统计",
		Long: `查看本机的翻译历史统计，包括总量概览、按模型与
按文档类型的分布，以及最近的运行记录。

示例:
  doctranslate stats                  # 概览与最近记录
  doctranslate stats --recent 20      # 最近 20 次运行
  doctranslate stats --models         # 按模型统计
  doctranslate stats --formats        # 按文档类型统计
  doctranslate stats --export s.json  # 导出统计到文件
  doctranslate stats --export s.csv --format csv
  doctranslate stats --reset          # 清空统计`,
		RunE: runStatsCommand,
	}

	statsCmd.Flags().StringVar(&statsFormat, "format", "json", "导出格式 (json, csv)")
	statsCmd.Flags().IntVar(&recentLimit, "recent", 10, "显示最近多少次运行")
	statsCmd.Flags().StringVar(&exportPath, "export", "", "把统计导出到指定文件")
	statsCmd.Flags().BoolVar(&resetStats, "reset", false, "清空所有统计（需要确认）")

	statsCmd.Flags().Bool("models", false, "只显示按模型统计")
	statsCmd.Flags().Bool("formats", false, "只显示按文档类型统计")

	return statsCmd
}

// runStatsCommand 执行 stats 命令
func runStatsCommand(cmd *cobra.Command, args []string) error {
	log := newRunLogger()
	defer func() {
		_ = log.Sync()
	}()

	statsPath, err := stats.DefaultPath()
	if err != nil {
		return fmt.Errorf("定位历史数据库失败: %w", err)
	}

	// 重置直接删文件，不需要先加载
	if resetStats {
		return handleStatsReset(statsPath, log)
	}

	db, err := stats.NewDatabase(statsPath, log)
	if err != nil {
		return fmt.Errorf("打开历史数据库失败: %w", err)
	}

	if exportPath != "" {
		return handleStatsExport(db, exportPath)
	}

	visualizer := stats.NewVisualizer(db)

	showModels, _ := cmd.Flags().GetBool("models")
	showFormats, _ := cmd.Flags().GetBool("formats")

	if showModels {
		visualizer.ShowModels()
		return nil
	}
	if showFormats {
		visualizer.ShowFormats()
		return nil
	}

	visualizer.ShowOverview()
	fmt.Println()
	visualizer.ShowRecent(recentLimit)

	return nil
}

// handleStatsReset 处理统计重置
func handleStatsReset(statsPath string, log *zap.Logger) error {
	fmt.Print("确认要清空所有统计数据吗？此操作不可撤销。(y/N): ")

	var confirmation string
	fmt.Scanln(&confirmation)

	if confirmation != "y" && confirmation != "Y" && confirmation != "yes" {
		fmt.Println("已取消。")
		return nil
	}

	if err := os.Remove(statsPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("清空统计失败: %w", err)
	}

	fmt.Println("✅ 统计数据已清空。")
	log.Info("statistics reset", zap.String("path", statsPath))

	return nil
}

// handleStatsExport 处理统计导出
func handleStatsExport(db *stats.Database, exportPath string) error {
	data, err := marshalStats(db.GetStats(), statsFormat)
	if err != nil {
		return fmt.Errorf("序列化统计数据失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0o755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}
	if err := os.WriteFile(exportPath, data, 0o644); err != nil {
		return fmt.Errorf("写入导出文件失败: %w", err)
	}

	fmt.Printf("✅ 统计已导出到: %s\n", exportPath)
	return nil
}

// marshalStats 序列化统计数据
func marshalStats(data *stats.HistoryDB, format string) ([]byte, error) {
	switch format {
	case "csv":
		return marshalStatsCSV(data)
	default:
		return json.MarshalIndent(data, "", "  ")
	}
}

// marshalStatsCSV 把最近运行记录转成 CSV
func marshalStatsCSV(data *stats.HistoryDB) ([]byte, error) {
	var result strings.Builder

	result.WriteString("timestamp,input_file,format,to_lang,model_id,chunks,hard_errors,unresolved,input_bytes,duration_ms,total_tokens,status\n")

	for _, record := range data.RecentRuns {
		result.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%d,%d,%d,%d,%d,%d,%s\n",
			record.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			record.InputFile,
			record.Format,
			record.ToLang,
			record.ModelID,
			record.Chunks,
			record.HardErrors,
			record.Unresolved,
			record.InputBytes,
			record.Duration.Milliseconds(),
			record.TotalTokens,
			record.Status,
		))
	}

	return []byte(result.String()), nil
}
