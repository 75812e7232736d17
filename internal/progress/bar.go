package progress

import (
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// Bar 把 pterm 进度条包装成批量请求的进度回调。
// 一次运行里可能有多个批次（术语抽取、翻译），总数变化时自动换新条。
type Bar struct {
	title string

	mu        sync.Mutex
	bar       *pterm.ProgressbarPrinter
	total     int
	completed int
	startTime time.Time
}

// NewBar 创建进度条，title 为空时使用"翻译进度"。
func NewBar(title string) *Bar {
	if title == "" {
		title = "翻译进度"
	}
	return &Bar{title: title}
}

// Callback 返回可直接用作 Options.OnProgress 的回调。
func (b *Bar) Callback() func(completed, total int) {
	return b.update
}

func (b *Bar) update(completed, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// 新批次开始
	if b.bar == nil || total != b.total || completed < b.completed {
		if b.bar != nil {
			_, _ = b.bar.Stop()
		}
		bar, err := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle(b.title).
			WithRemoveWhenDone(false).
			Start()
		if err != nil {
			return
		}
		b.bar = bar
		b.total = total
		b.completed = 0
		b.startTime = time.Now()
	}

	if delta := completed - b.completed; delta > 0 {
		b.bar.Add(delta)
		b.completed = completed
	}

	elapsed := time.Since(b.startTime).Seconds()
	if elapsed > 0 && completed > 0 {
		speed := float64(completed) / elapsed
		remaining := time.Duration(float64(total-completed)/speed) * time.Second
		b.bar.UpdateTitle(pterm.Sprintf(
			"%s: %d/%d 块 | %.1f 块/秒 | 剩余时间: %s",
			b.title, completed, total, speed, formatDuration(remaining),
		))
	}

	if completed >= total {
		_, _ = b.bar.Stop()
		b.bar = nil
	}
}

// Stop 提前收尾，正常跑完时无需调用。
func (b *Bar) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_, _ = b.bar.Stop()
		b.bar = nil
	}
}

// formatDuration 把时长格式化成 1h02m03s 形式
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return pterm.Sprintf("%dh%02dm%02ds", h, m, s)
	} else if m > 0 {
		return pterm.Sprintf("%dm%02ds", m, s)
	}
	return pterm.Sprintf("%ds", s)
}
