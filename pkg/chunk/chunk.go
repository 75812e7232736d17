// Package chunk 将有序文本段打包成大小受限的 JSON 对象块（id→文本），
// 并在翻译完成后把块还原为最初的段序列。
package chunk

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// MergeRange 标记 [Start, End) 区间内的段由同一个原始段拆分而来，
// 还原时按序无分隔符拼接。只有真正发生拆分（区间长度大于 1）才会记录；
// 区间互不重叠且按 Start 升序。
type MergeRange struct {
	Start int
	End   int
}

// JSONSize 计算 map 序列化为 JSON 后的 UTF-8 字节数，不转义 HTML 字符。
func JSONSize(m map[string]string) int {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return 0
	}
	// Encode 末尾会追加一个换行
	return buf.Len() - 1
}

// SegmentsToChunks 把有序段列表转换成若干大小受限的 JSON 块。
//
// 返回值依次为：完整的 id→原文 映射（键为 "0".."N-1" 连续编号）、
// 块列表、合并区间列表。
//
// 估算单段大小时使用刻意偏长的合成 id，避免短 id 造成低估。
// 单段超限时按行拆分（保留行结束符）：行在子段内贪心累积，任何会导致超限的
// 行都会独立成为一个子段，即使该行自身仍超限（超长单行按原样发送）。
// 打包阶段同样贪心：候选加入后超限且当前块非空时封块；只含单个候选的块
// 允许超限，确保永远不会产出空块。所有大小比较都用严格大于。
func SegmentsToChunks(segments []string, chunkSizeMax int) (map[string]string, []map[string]string, []MergeRange) {
	newSegments := []string{}
	mergeRanges := []MergeRange{}

	for _, segment := range segments {
		longKeyEstimate := strconv.Itoa(len(segments) + len(newSegments))
		if JSONSize(map[string]string{longKeyEstimate: segment}) > chunkSizeMax {
			subSegments := []string{}
			currentSub := ""
			for _, line := range splitLinesKeepEnds(segment) {
				nextSub := currentSub + line
				if JSONSize(map[string]string{longKeyEstimate: nextSub}) > chunkSizeMax {
					if currentSub != "" {
						subSegments = append(subSegments, currentSub)
					}
					subSegments = append(subSegments, line)
					currentSub = ""
				} else {
					currentSub = nextSub
				}
			}
			if currentSub != "" {
				subSegments = append(subSegments, currentSub)
			}
			if len(subSegments) == 0 && segment == "" {
				subSegments = append(subSegments, "")
			}

			start := len(newSegments)
			newSegments = append(newSegments, subSegments...)
			end := len(newSegments)
			if end-start > 1 {
				mergeRanges = append(mergeRanges, MergeRange{Start: start, End: end})
			}
		} else {
			newSegments = append(newSegments, segment)
		}
	}

	if len(newSegments) == 0 {
		return map[string]string{}, []map[string]string{}, []MergeRange{}
	}

	chunks := []map[string]string{}
	current := map[string]string{}
	for key, val := range newSegments {
		prospective := make(map[string]string, len(current)+1)
		for k, v := range current {
			prospective[k] = v
		}
		prospective[strconv.Itoa(key)] = val

		if JSONSize(prospective) > chunkSizeMax && len(current) > 0 {
			chunks = append(chunks, current)
			current = map[string]string{strconv.Itoa(key): val}
		} else {
			current = prospective
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	indexed := make(map[string]string, len(newSegments))
	for i, segment := range newSegments {
		indexed[strconv.Itoa(i)] = segment
	}

	return indexed, chunks, mergeRanges
}

// ChunksToSegments 按 id 顺序（"0".."N-1"）读取映射值，把每个合并区间内的
// 值拼接成一个段，其余值原样透传，恢复调用方最初提供的段序列。
func ChunksToSegments(indexed map[string]string, mergeRanges []MergeRange) []string {
	values := make([]string, len(indexed))
	for i := range values {
		values[i] = indexed[strconv.Itoa(i)]
	}

	result := []string{}
	lastEnd := 0
	for _, r := range mergeRanges {
		result = append(result, values[lastEnd:r.Start]...)
		result = append(result, strings.Join(values[r.Start:r.End], ""))
		lastEnd = r.End
	}
	result = append(result, values[lastEnd:]...)
	return result
}

// MarshalChunk 把块序列化成供模型读取的多行 JSON 文本：
// 键按数值升序排列，每行一个键值对，不转义 HTML 字符，
// 这样占位符之类的内容不会被改写。
func MarshalChunk(chunk map[string]string) string {
	keys := sortedKeys(chunk)

	var sb strings.Builder
	sb.WriteString("{\n")
	for i, k := range keys {
		sb.WriteString(encodeJSONString(k))
		sb.WriteString(": ")
		sb.WriteString(encodeJSONString(chunk[k]))
		if i < len(keys)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

// MarshalChunkCompact 与 MarshalChunk 相同，但输出单行形式。
func MarshalChunkCompact(chunk map[string]string) string {
	keys := sortedKeys(chunk)

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(encodeJSONString(k))
		sb.WriteString(": ")
		sb.WriteString(encodeJSONString(chunk[k]))
	}
	sb.WriteString("}")
	return sb.String()
}

// sortedKeys 数值键按数值排序，其余键按字典序排在数值键之后。
func sortedKeys(chunk map[string]string) []string {
	keys := make([]string, 0, len(chunk))
	for k := range chunk {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

func encodeJSONString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// 字符串编码不会失败
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// splitLinesKeepEnds 按行拆分并保留行结束符（\n、\r\n 或单独的 \r）。
func splitLinesKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			lines = append(lines, s[start:i+1])
			start = i + 1
		case '\r':
			end := i + 1
			if end < len(s) && s[end] == '\n' {
				end++
			}
			lines = append(lines, s[start:end])
			start = end
			i = end - 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
