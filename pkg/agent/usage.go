package agent

import (
	"bytes"
	"encoding/json"
)

// TokenUsage 单次响应中提取出的 token 用量。
type TokenUsage struct {
	Input     int
	Cached    int
	Output    int
	Reasoning int
}

// Failed 表示提取时遇到类型错误，四个字段均为 -1 哨兵值。
func (u TokenUsage) Failed() bool {
	return u.Input < 0
}

var usageExtractFailed = TokenUsage{Input: -1, Cached: -1, Output: -1, Reasoning: -1}

// extractTokenInfo 从响应的 usage 字段提取 token 用量。
//
// 兼容三种已知的服务商嵌套结构：
//  1. usage.input_tokens_details.cached_tokens 与 usage.output_tokens_details.reasoning_tokens
//  2. usage.prompt_tokens_details.cached_tokens 与 usage.completion_tokens_details.reasoning_tokens
//  3. usage.prompt_cache_hit_tokens
//
// usage 缺失时四个字段均为 0；嵌套值类型不符时返回 -1 哨兵，
// 由批次汇总单独呈现，不得当作普通计数。
func extractTokenInfo(raw json.RawMessage) TokenUsage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return TokenUsage{}
	}

	var usage map[string]any
	if err := json.Unmarshal(trimmed, &usage); err != nil {
		return usageExtractFailed
	}

	probe := usageProbe{usage: usage}
	result := TokenUsage{
		Input:  probe.intAt("prompt_tokens"),
		Output: probe.intAt("completion_tokens"),
	}

	if v, found := probe.nestedInt("input_tokens_details", "cached_tokens"); found {
		result.Cached = v
	} else if v, found := probe.nestedInt("prompt_tokens_details", "cached_tokens"); found {
		result.Cached = v
	} else if v, found := probe.optionalInt("prompt_cache_hit_tokens"); found {
		result.Cached = v
	}

	if v, found := probe.nestedInt("output_tokens_details", "reasoning_tokens"); found {
		result.Reasoning = v
	} else if v, found := probe.nestedInt("completion_tokens_details", "reasoning_tokens"); found {
		result.Reasoning = v
	}

	if probe.failed {
		return usageExtractFailed
	}
	return result
}

// usageProbe 逐字段探测 usage 结构，任何类型不符都会置位 failed。
type usageProbe struct {
	usage  map[string]any
	failed bool
}

// intAt 读取顶层整数字段，缺失时为 0。
func (p *usageProbe) intAt(key string) int {
	v, found := p.optionalInt(key)
	if !found {
		return 0
	}
	return v
}

// optionalInt 读取顶层整数字段，返回值与是否存在。
func (p *usageProbe) optionalInt(key string) (int, bool) {
	raw, ok := p.usage[key]
	if !ok {
		return 0, false
	}
	n, ok := asInt(raw)
	if !ok {
		p.failed = true
		return 0, false
	}
	return n, true
}

// nestedInt 读取两层嵌套的整数字段，外层或内层缺失都视为未找到。
func (p *usageProbe) nestedInt(outer, inner string) (int, bool) {
	rawOuter, ok := p.usage[outer]
	if !ok {
		return 0, false
	}
	details, ok := rawOuter.(map[string]any)
	if !ok {
		p.failed = true
		return 0, false
	}
	rawInner, ok := details[inner]
	if !ok {
		return 0, false
	}
	n, ok := asInt(rawInner)
	if !ok {
		p.failed = true
		return 0, false
	}
	return n, true
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
