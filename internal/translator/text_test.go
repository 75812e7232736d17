package translator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// segmentReply 解析 JSON 块并给每个值加前缀，模拟分段翻译
func segmentReply(t *testing.T, prefix string) func(system, user string) string {
	return func(system, user string) string {
		var chunk map[string]string
		if err := json.Unmarshal([]byte(user), &chunk); err != nil {
			t.Errorf("用户 prompt 不是 JSON 块: %v", err)
			return ""
		}
		out := make(map[string]string, len(chunk))
		for k, v := range chunk {
			out[k] = prefix + v
		}
		data, _ := json.Marshal(out)
		return string(data)
	}
}

// TestDecodeText 测试常见编码识别
func TestDecodeText(t *testing.T) {
	// UTF-8 透传
	assert.Equal(t, "你好, world", decodeText([]byte("你好, world")))

	// UTF-8 BOM 剥离
	assert.Equal(t, "hi", decodeText([]byte{0xEF, 0xBB, 0xBF, 'h', 'i'}))

	// GBK 编码的 "你好"
	assert.Equal(t, "你好", decodeText([]byte{0xC4, 0xE3, 0xBA, 0xC3}))

	// UTF-16 LE 带 BOM
	assert.Equal(t, "hi", decodeText([]byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00}))

	// UTF-16 BE 带 BOM
	assert.Equal(t, "hi", decodeText([]byte{0xFE, 0xFF, 0x00, 'h', 0x00, 'i'}))

	assert.Equal(t, "", decodeText(nil))
}

// TestSplitLines 测试按行拆分
func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitLines("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, splitLines("a\r\nb\r\n"))
	assert.Equal(t, []string{"a", "b"}, splitLines("a\rb"))
	assert.Equal(t, []string{"a", "", "b"}, splitLines("a\n\nb"))
	assert.Equal(t, []string{"one"}, splitLines("one"))
	assert.Nil(t, splitLines(""))
}

// TestNewTextTranslatorDefaults 测试写回方式与分隔串的缺省值
func TestNewTextTranslatorDefaults(t *testing.T) {
	tr, err := NewTextTranslator(TextOptions{Options: Options{SkipTranslate: true}})
	require.NoError(t, err)
	assert.Equal(t, InsertReplace, tr.opts.InsertMode)
	assert.Equal(t, "\n", tr.opts.Separator)

	_, err = NewTextTranslator(TextOptions{})
	require.Error(t, err)
}

// TestTextTranslatorSkipTranslate 测试跳过翻译时按行重组
func TestTextTranslatorSkipTranslate(t *testing.T) {
	tr, err := NewTextTranslator(TextOptions{Options: Options{SkipTranslate: true}})
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte("第一行\n\n第二行\n"))
	require.NoError(t, err)

	// 行尾换行不保留，空白行原样保留
	assert.Equal(t, "第一行\n\n第二行", string(res.Content))
	assert.Equal(t, 2, res.Chunks)
	assert.Empty(t, res.Stats)
}

// TestTextTranslatorEmptyInput 测试空输入直接原样返回
func TestTextTranslatorEmptyInput(t *testing.T) {
	tr, err := NewTextTranslator(TextOptions{Options: Options{SkipTranslate: true}})
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte{})
	require.NoError(t, err)
	assert.Empty(t, res.Content)
	assert.Equal(t, 0, res.Chunks)
}

// TestTextAssembleModes 测试三种写回方式
func TestTextAssembleModes(t *testing.T) {
	original := []string{"原一", "", "原二"}
	translated := []string{"译一", "", "译二"}

	newTr := func(mode, sep string) *TextTranslator {
		tr, err := NewTextTranslator(TextOptions{
			Options:    Options{SkipTranslate: true},
			InsertMode: mode,
			Separator:  sep,
		})
		require.NoError(t, err)
		return tr
	}

	assert.Equal(t, "译一\n\n译二", string(newTr(InsertReplace, "").assemble(translated, original)))
	assert.Equal(t, "原一 | 译一\n\n原二 | 译二", string(newTr(InsertAppend, " | ").assemble(translated, original)))
	assert.Equal(t, "译一 | 原一\n\n译二 | 原二", string(newTr(InsertPrepend, " | ").assemble(translated, original)))

	// append/prepend 会裁掉原文与译文两侧的空白
	out := newTr(InsertAppend, " => ").assemble([]string{"  译  "}, []string{"  原  "})
	assert.Equal(t, "原 => 译", string(out))
}

// TestTextTranslatorTranslates 测试逐行翻译与重复行共享译文
func TestTextTranslatorTranslates(t *testing.T) {
	server := newChatServer(t, segmentReply(t, "译"))
	defer server.Close()

	opts := TextOptions{Options: serverOptions(server.URL)}
	tr, err := NewTextTranslator(opts)
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte("Tom\nJerry\nTom\n"))
	require.NoError(t, err)

	assert.Equal(t, "译Tom\n译Jerry\n译Tom", string(res.Content))
	assert.Equal(t, 3, res.Chunks)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, 0, res.Stats[0].Unresolved)
}

// TestTextTranslatorAppendMode 测试对照模式保留原文
func TestTextTranslatorAppendMode(t *testing.T) {
	server := newChatServer(t, segmentReply(t, "译"))
	defer server.Close()

	tr, err := NewTextTranslator(TextOptions{
		Options:    serverOptions(server.URL),
		InsertMode: InsertAppend,
		Separator:  " => ",
	})
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte("Hello\n\nWorld\n"))
	require.NoError(t, err)

	assert.Equal(t, "Hello => 译Hello\n\nWorld => 译World", string(res.Content))
}

// TestTextTranslatorGlossaryOnly 测试只抽术语不翻译正文
func TestTextTranslatorGlossaryOnly(t *testing.T) {
	server := newChatServer(t, func(system, user string) string {
		return `[{"src": "Alice", "dst": "爱丽丝"}]`
	})
	defer server.Close()

	opts := serverOptions(server.URL)
	opts.SkipTranslate = true
	opts.GlossaryGenerateEnable = true

	tr, err := NewTextTranslator(TextOptions{Options: opts})
	require.NoError(t, err)

	res, err := tr.Translate(context.Background(), []byte("Alice speaks.\n"))
	require.NoError(t, err)

	// 正文原样，术语表有结果
	assert.Equal(t, "Alice speaks.", string(res.Content))
	assert.Equal(t, map[string]string{"Alice": "爱丽丝"}, res.Glossary)
	require.Len(t, res.Stats, 1)
}
