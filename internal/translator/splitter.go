package translator

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```.*?```|~~~.*?~~~")
	blankRunRe    = regexp.MustCompile(`\n{2,}`)
	listMarkerRe  = regexp.MustCompile(`^\s*([-*+]|\d+\.)\s+`)
)

// markdownBlockSplitter 按字节上限拆分 Markdown 文本，
// 保证普通块直接拼接即可还原原文（被拆开的代码块除外）
type markdownBlockSplitter struct {
	maxBlockSize int
}

func (s *markdownBlockSplitter) splitMarkdown(text string) []string {
	logicalBlocks := s.splitIntoLogicalBlocks(text)

	var chunks []string
	var currentParts []string
	currentSize := 0

	for _, block := range logicalBlocks {
		blockSize := len(block)

		// 单个块已经超限，先输出累积内容再单独拆它
		if blockSize > s.maxBlockSize {
			if len(currentParts) > 0 {
				chunks = append(chunks, strings.Join(currentParts, ""))
				currentParts = nil
				currentSize = 0
			}
			chunks = append(chunks, s.splitLargeBlock(block)...)
			continue
		}

		// 加入后会超限，先封口再另起一块
		if currentSize+blockSize > s.maxBlockSize {
			if len(currentParts) > 0 {
				chunks = append(chunks, strings.Join(currentParts, ""))
			}
			currentParts = []string{block}
			currentSize = blockSize
		} else {
			currentParts = append(currentParts, block)
			currentSize += blockSize
		}
	}

	if len(currentParts) > 0 {
		chunks = append(chunks, strings.Join(currentParts, ""))
	}

	return chunks
}

// splitIntoLogicalBlocks 把文本切成逻辑块：
// 围栏代码块整体保留，其余内容按空行切开，空行本身也作为块保留
func (s *markdownBlockSplitter) splitIntoLogicalBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	parts := splitKeepSeparators(fencedBlockRe, text)

	var blocks []string
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i%2 == 1 {
			// 代码块
			blocks = append(blocks, part)
		} else {
			for _, p := range splitKeepSeparators(blankRunRe, part) {
				if p != "" {
					blocks = append(blocks, p)
				}
			}
		}
	}
	return blocks
}

// splitLargeBlock 拆分超限的单个块，代码块按行拆并复制围栏
func (s *markdownBlockSplitter) splitLargeBlock(block string) []string {
	if strings.HasPrefix(block, "```") || strings.HasPrefix(block, "~~~") {
		lines := strings.Split(block, "\n")
		header := lines[0]
		footer := lines[len(lines)-1]
		var contentLines []string
		if len(lines) > 2 {
			contentLines = lines[1 : len(lines)-1]
		}

		var chunks []string
		currentLines := []string{header}
		currentSize := len(header) + 1

		for _, line := range contentLines {
			lineSize := len(line) + 1
			if currentSize+lineSize+len(footer) > s.maxBlockSize {
				currentLines = append(currentLines, footer)
				chunks = append(chunks, strings.Join(currentLines, "\n"))
				currentLines = []string{header, line}
				currentSize = len(header) + 1 + lineSize
			} else {
				currentLines = append(currentLines, line)
				currentSize += lineSize
			}
		}

		if len(currentLines) > 1 {
			currentLines = append(currentLines, footer)
			chunks = append(chunks, strings.Join(currentLines, "\n"))
		}
		return chunks
	}

	// 普通大块按行拆
	lines := strings.Split(block, "\n")
	var chunks []string
	var currentLines []string
	currentSize := 0
	for _, line := range lines {
		lineSize := len(line) + 1
		if currentSize+lineSize > s.maxBlockSize && len(currentLines) > 0 {
			chunks = append(chunks, strings.Join(currentLines, "\n"))
			currentLines = []string{line}
			currentSize = lineSize - 1 // 首行前面没有换行
		} else {
			currentLines = append(currentLines, line)
			currentSize += lineSize
		}
	}
	if len(currentLines) > 0 {
		chunks = append(chunks, strings.Join(currentLines, "\n"))
	}
	return chunks
}

// splitKeepSeparators 在匹配处切分并保留分隔串本身，
// 结果按 非匹配/匹配 交替排列，空串保留以维持奇偶位置
func splitKeepSeparators(re *regexp.Regexp, s string) []string {
	matches := re.FindAllStringIndex(s, -1)
	parts := make([]string, 0, len(matches)*2+1)
	last := 0
	for _, m := range matches {
		parts = append(parts, s[last:m[0]], s[m[0]:m[1]])
		last = m[1]
	}
	parts = append(parts, s[last:])
	return parts
}

// splitMarkdownText 把 Markdown 文本拆成不超过 maxBlockSize 字节的块，
// 并丢弃只含空白的块
func splitMarkdownText(text string, maxBlockSize int) []string {
	splitter := &markdownBlockSplitter{maxBlockSize: maxBlockSize}
	chunks := splitter.splitMarkdown(text)

	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	return out
}

// needsSingleNewlineJoin 判断两个块之间是否只该用单个换行，
// 表格行、列表项、引用块连续时成立
func needsSingleNewlineJoin(prev, next string) bool {
	if strings.TrimSpace(prev) == "" || strings.TrimSpace(next) == "" {
		return false
	}

	prevLines := strings.Split(strings.TrimRightFunc(prev, unicode.IsSpace), "\n")
	lastLine := strings.TrimLeftFunc(prevLines[len(prevLines)-1], unicode.IsSpace)
	nextLines := strings.Split(strings.TrimLeftFunc(next, unicode.IsSpace), "\n")
	firstLine := strings.TrimLeftFunc(nextLines[0], unicode.IsSpace)

	// 表格
	if strings.HasPrefix(lastLine, "|") && strings.HasSuffix(lastLine, "|") &&
		strings.HasPrefix(firstLine, "|") && strings.HasSuffix(firstLine, "|") {
		return true
	}

	// 列表（有序和无序）
	if listMarkerRe.MatchString(lastLine) && listMarkerRe.MatchString(firstLine) {
		return true
	}

	// 引用
	if strings.HasPrefix(lastLine, ">") && strings.HasPrefix(firstLine, ">") {
		return true
	}

	return false
}

// joinMarkdownTexts 把翻译后的块拼回完整文本
func joinMarkdownTexts(texts []string) string {
	if len(texts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(texts[0])
	for i := 1; i < len(texts); i++ {
		if needsSingleNewlineJoin(texts[i-1], texts[i]) {
			b.WriteString("\n")
		} else {
			b.WriteString("\n\n")
		}
		b.WriteString(texts[i])
	}
	return b.String()
}
