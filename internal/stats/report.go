package stats

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"

	"github.com/nerdneilsfield/go-doctranslate/pkg/agent"
)

// PrintRunReport 在一次运行结束后输出摘要与各批次的 token 统计
func PrintRunReport(record *RunRecord, batches []agent.BatchStats) {
	title := color.New(color.FgCyan, color.Bold)
	title.Println("📊 翻译完成")
	title.Println(strings.Repeat("=", 50))

	fmt.Println()
	printSection("🎯 本次运行", [][]string{
		{"输入文件", runewidth.Truncate(record.InputFile, 48, "...")},
		{"格式", record.Format},
		{"目标语言", record.ToLang},
		{"模型", record.ModelID},
		{"分块数", formatNumber(int64(record.Chunks))},
		{"硬错误", formatNumber(int64(record.HardErrors))},
		{"未解决请求", formatNumber(int64(record.Unresolved))},
		{"输入大小", formatBytes(int64(record.InputBytes))},
		{"耗时", formatDuration(record.Duration)},
	})

	if record.GlossaryTerms > 0 {
		fmt.Println()
		printSection("📖 术语表", [][]string{
			{"抽取条数", formatNumber(int64(record.GlossaryTerms))},
		})
	}

	if len(batches) > 0 {
		fmt.Println()
		printBatchTable(batches)
	}

	if record.Unresolved > 0 {
		warn := color.New(color.FgYellow)
		warn.Printf("\n⚠️  有 %d 个请求最终以原文回填，请检查输出\n", record.Unresolved)
	}
}

// printBatchTable 输出各批次的错误与 token 统计表
func printBatchTable(batches []agent.BatchStats) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)

	tw.AppendRow(table.Row{"批次", "硬错误", "错误上限", "未解决", "输入", "缓存", "输出", "推理", "总计"})
	tw.AppendSeparator()

	for _, b := range batches {
		id := runewidth.Truncate(b.BatchID, 8, "")
		tw.AppendRow(table.Row{
			id,
			b.HardErrors,
			b.MaxErrors,
			b.Unresolved,
			tokenCell(b.Tokens.Input),
			tokenCell(b.Tokens.Cached),
			tokenCell(b.Tokens.Output),
			tokenCell(b.Tokens.Reasoning),
			tokenCell(b.Tokens.Total),
		})
	}

	tw.SetStyle(table.StyleLight)
	tw.Render()
}

// tokenCell 渲染 token 数，负数表示 usage 无法解析
func tokenCell(v int) string {
	if v < 0 {
		return "N/A"
	}
	return formatNumber(int64(v))
}

// Visualizer 历史统计展示
type Visualizer struct {
	db *Database
}

// NewVisualizer 创建展示器
func NewVisualizer(db *Database) *Visualizer {
	return &Visualizer{db: db}
}

// ShowOverview 显示总览
func (v *Visualizer) ShowOverview() {
	stats := v.db.GetStats()

	title := color.New(color.FgCyan, color.Bold)
	title.Println("📊 翻译历史总览")
	title.Println(strings.Repeat("=", 50))

	fmt.Println()
	printSection("🎯 总体统计", [][]string{
		{"运行次数", formatNumber(stats.TotalRuns)},
		{"累计分块", formatNumber(stats.TotalChunks)},
		{"累计输入", formatBytes(stats.TotalBytes)},
		{"未解决请求", formatNumber(stats.TotalUnresolved)},
		{"累计耗时", formatDuration(stats.TotalDuration)},
		{"建库时间", formatTime(stats.CreatedAt)},
		{"最近更新", formatTime(stats.LastUpdated)},
	})
}

// ShowModels 按模型显示统计
func (v *Visualizer) ShowModels() {
	stats := v.db.GetStats()

	title := color.New(color.FgMagenta, color.Bold)
	title.Println("🤖 模型统计")
	title.Println(strings.Repeat("=", 50))

	if len(stats.ModelStats) == 0 {
		fmt.Println("暂无模型统计数据。")
		return
	}

	models := make([]*ModelStats, 0, len(stats.ModelStats))
	for _, m := range stats.ModelStats {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].RunCount > models[j].RunCount
	})

	fmt.Println()
	for i, m := range models {
		if i > 0 {
			fmt.Println()
		}
		printSection(fmt.Sprintf("🔄 %s", m.ModelID), [][]string{
			{"运行次数", formatNumber(m.RunCount)},
			{"分块数", formatNumber(m.ChunkCount)},
			{"累计 tokens", formatNumber(m.TotalTokens)},
			{"平均耗时", formatDuration(m.AverageDuration)},
			{"最近使用", formatTime(m.LastUsed)},
		})
	}
}

// ShowFormats 按文档格式显示统计
func (v *Visualizer) ShowFormats() {
	stats := v.db.GetStats()

	title := color.New(color.FgGreen, color.Bold)
	title.Println("📄 格式统计")
	title.Println(strings.Repeat("=", 50))

	if len(stats.FormatStats) == 0 {
		fmt.Println("暂无格式统计数据。")
		return
	}

	formats := make([]*FormatStats, 0, len(stats.FormatStats))
	for _, f := range stats.FormatStats {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool {
		return formats[i].RunCount > formats[j].RunCount
	})

	fmt.Println()
	for i, f := range formats {
		if i > 0 {
			fmt.Println()
		}
		printSection(fmt.Sprintf("📋 %s", strings.ToUpper(f.Format)), [][]string{
			{"运行次数", formatNumber(f.RunCount)},
			{"累计输入", formatBytes(f.ByteCount)},
			{"成功率", fmt.Sprintf("%.1f%%", f.SuccessRate*100)},
			{"平均耗时", formatDuration(f.AverageDuration)},
			{"最近使用", formatTime(f.LastUsed)},
		})
	}
}

// ShowRecent 显示最近的运行记录
func (v *Visualizer) ShowRecent(limit int) {
	records := v.db.GetRecentRuns(limit)

	title := color.New(color.FgBlue, color.Bold)
	title.Printf("🕒 最近运行（%d 条）\n", len(records))
	title.Println(strings.Repeat("=", 50))

	if len(records) == 0 {
		fmt.Println("暂无运行记录。")
		return
	}

	for i, record := range records {
		if i > 0 {
			fmt.Println()
		}

		status := "✅"
		if record.Status == StatusPartial {
			status = "❌"
		}
		header := runewidth.Truncate(fmt.Sprintf("%s %s", status, record.InputFile), 60, "...")

		printSection(header, [][]string{
			{"时间", formatTime(record.Timestamp)},
			{"目标语言", record.ToLang},
			{"格式", record.Format},
			{"模型", record.ModelID},
			{"分块数", formatNumber(int64(record.Chunks))},
			{"未解决请求", formatNumber(int64(record.Unresolved))},
			{"tokens", tokenCell(int(record.TotalTokens))},
			{"耗时", formatDuration(record.Duration)},
		})
	}
}

// printSection 打印一个对齐的小节，标签宽度按显示宽度计算
func printSection(title string, data [][]string) {
	sectionColor := color.New(color.FgYellow, color.Bold)
	sectionColor.Printf("%s\n", title)

	maxLabelWidth := 0
	for _, row := range data {
		if w := runewidth.StringWidth(row[0]); w > maxLabelWidth {
			maxLabelWidth = w
		}
	}

	labelColor := color.New(color.FgCyan)
	valueColor := color.New(color.FgWhite, color.Bold)
	for _, row := range data {
		labelColor.Printf("  %s: ", runewidth.FillRight(row[0], maxLabelWidth))
		valueColor.Println(row[1])
	}
}

// 辅助函数

// formatNumber 格式化数字，加千位分隔符
func formatNumber(n int64) string {
	str := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(str, "-")
	if neg {
		str = str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	var result strings.Builder
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(char)
	}
	if neg {
		return "-" + result.String()
	}
	return result.String()
}

// formatBytes 格式化字节数
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}

// formatDuration 格式化持续时间
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Nanoseconds())/1e6)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// formatTime 格式化时间
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}

	now := time.Now()
	if t.Year() == now.Year() && t.Month() == now.Month() && t.Day() == now.Day() {
		return t.Format("15:04:05")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02 15:04")
	}
	return t.Format("2006-01-02 15:04")
}
