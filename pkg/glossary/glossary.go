// Package glossary 维护术语对照表，并在请求发送前把命中的条目注入 system prompt。
package glossary

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Glossary 术语表，源词 → 译词。
type Glossary struct {
	Entries map[string]string
}

// New 创建术语表。
func New(entries map[string]string) *Glossary {
	if entries == nil {
		entries = map[string]string{}
	}
	return &Glossary{Entries: entries}
}

// Update 合并新条目，已有条目优先不覆盖。
func (g *Glossary) Update(update map[string]string) {
	for src, dst := range update {
		if _, ok := g.Entries[src]; !ok {
			g.Entries[src] = dst
		}
	}
}

// AppendSystemPrompt 生成追加到 system prompt 的术语表片段，
// 只收录源词出现在待译文本里的条目，按源词排序保证输出稳定。
func (g *Glossary) AppendSystemPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("\n以下为参考术语表:\n")
	for _, src := range g.sortedSources() {
		if strings.Contains(text, src) {
			sb.WriteString(src)
			sb.WriteString("=>")
			sb.WriteString(g.Entries[src])
			sb.WriteString("\n")
		}
	}
	sb.WriteString("术语表结束\n")
	return sb.String()
}

func (g *Glossary) sortedSources() []string {
	sources := make([]string, 0, len(g.Entries))
	for src := range g.Entries {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return sources
}

// glossaryFile 术语表 TOML 文件结构。
type glossaryFile struct {
	Terms map[string]string `toml:"terms"`
}

// LoadFile 从 TOML 文件读取术语表。
func LoadFile(path string) (*Glossary, error) {
	var f glossaryFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("读取术语表失败: %w", err)
	}
	return New(f.Terms), nil
}

// SaveFile 把术语表写入 TOML 文件。
func (g *Glossary) SaveFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建术语表文件失败: %w", err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(glossaryFile{Terms: g.Entries}); err != nil {
		return fmt.Errorf("写入术语表失败: %w", err)
	}
	return nil
}
