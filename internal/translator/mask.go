package translator

import (
	"regexp"
	"sync"

	"github.com/google/uuid"
)

var (
	imageURIRe    = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	placeholderRe = regexp.MustCompile(`<ph-([a-zA-Z0-9]+)>`)
)

// maskDict 占位符 id 到被保护原文的映射
type maskDict struct {
	mu sync.Mutex
	m  map[string]string
}

func newMaskDict() *maskDict {
	return &maskDict{m: map[string]string{}}
}

// createID 生成尚未占用的 6 位十六进制 id
func (d *maskDict) createID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		id := uuid.New().String()[:6]
		if _, ok := d.m[id]; !ok {
			return id
		}
	}
}

func (d *maskDict) get(id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.m[id]
	return v, ok
}

func (d *maskDict) set(id, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[id] = value
}

// urisToPlaceholder 把图片语法整体替换成 <ph-id> 占位符，
// 避免译文破坏链接或 base64 数据
func urisToPlaceholder(markdown string, dict *maskDict) string {
	return imageURIRe.ReplaceAllStringFunc(markdown, func(match string) string {
		id := dict.createID()
		dict.set(id, match)
		return "<ph-" + id + ">"
	})
}

// placeholderToURIs 把占位符还原为原文，未登记的占位符原样保留
func placeholderToURIs(markdown string, dict *maskDict) string {
	return placeholderRe.ReplaceAllStringFunc(markdown, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		if uri, ok := dict.get(sub[1]); ok {
			return uri
		}
		return match
	})
}
