package translator

import (
	"bytes"
	"context"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/nerdneilsfield/go-doctranslate/pkg/agent"
)

// 译文写回方式
const (
	InsertReplace = "replace"
	InsertAppend  = "append"
	InsertPrepend = "prepend"
)

// TextOptions 纯文本翻译的配置
type TextOptions struct {
	Options
	// InsertMode 译文写回方式：replace 替换原文，append 原文后追加，prepend 原文前插入
	InsertMode string
	// Separator append/prepend 模式下原文与译文之间的分隔串
	Separator string
}

// TextTranslator 逐行翻译纯文本文件，
// 空白行原样保留，重复的行共享同一条译文。
type TextTranslator struct {
	opts           TextOptions
	glossaryAgent  *agent.GlossaryAgent
	translateAgent *agent.SegmentsAgent
	logger         *zap.Logger
}

// NewTextTranslator 创建纯文本翻译器。
func NewTextTranslator(opts TextOptions) (*TextTranslator, error) {
	opts.Options = opts.Options.withDefaults()
	if opts.InsertMode == "" {
		opts.InsertMode = InsertReplace
	}
	if opts.Separator == "" {
		opts.Separator = "\n"
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	t := &TextTranslator{
		opts:          opts,
		glossaryAgent: newGlossaryAgent(opts.Options),
		logger:        opts.Logger,
	}
	if !opts.SkipTranslate {
		t.translateAgent = agent.NewSegmentsAgent(agent.SegmentsAgentConfig{
			Config:       opts.agentConfig(),
			ToLang:       opts.ToLang,
			CustomPrompt: opts.CustomPrompt,
			GlossaryDict: opts.GlossaryDict,
		})
	}
	return t, nil
}

// Translate 翻译一份纯文本文件并返回新内容。
func (t *TextTranslator) Translate(ctx context.Context, content []byte) (*Result, error) {
	t.logger.Info("开始翻译文本")

	text := decodeText(content)
	originalTexts := splitLines(text)
	if len(originalTexts) == 0 {
		t.logger.Info("未发现可翻译的文本内容")
		return &Result{Content: content}, nil
	}

	// 跳过纯空白行，避免无意义的请求
	textsToTranslate := make([]string, 0, len(originalTexts))
	for _, line := range originalTexts {
		if strings.TrimSpace(line) != "" {
			textsToTranslate = append(textsToTranslate, line)
		}
	}

	res := &Result{Chunks: len(textsToTranslate)}

	if t.glossaryAgent != nil && len(textsToTranslate) > 0 {
		dict, stats := t.glossaryAgent.SendSegments(ctx, textsToTranslate, t.opts.ChunkSize, t.opts.OnProgress)
		res.Glossary = dict
		res.Stats = append(res.Stats, stats)
		if t.translateAgent != nil {
			t.translateAgent.UpdateGlossaryDict(dict)
		}
	}

	translatedMap := map[string]string{}
	if t.translateAgent != nil && len(textsToTranslate) > 0 {
		segments, stats := t.translateAgent.SendSegments(ctx, textsToTranslate, t.opts.ChunkSize, t.opts.OnProgress)
		res.Stats = append(res.Stats, stats)
		for i, orig := range textsToTranslate {
			if i < len(segments) {
				translatedMap[orig] = segments[i]
			}
		}
	}

	// 未翻译的行原样保留
	finalTexts := make([]string, len(originalTexts))
	for i, orig := range originalTexts {
		if translated, ok := translatedMap[orig]; ok {
			finalTexts[i] = translated
		} else {
			finalTexts[i] = orig
		}
	}

	res.Content = t.assemble(finalTexts, originalTexts)
	t.logger.Info("文本翻译完成")
	return res, nil
}

// assemble 按写回方式把译文合并回原始行序列
func (t *TextTranslator) assemble(translated, original []string) []byte {
	processed := make([]string, 0, len(original))
	for i, orig := range original {
		// 空白行不参与翻译，原样保留
		if strings.TrimSpace(orig) == "" {
			processed = append(processed, orig)
			continue
		}

		line := translated[i]
		switch t.opts.InsertMode {
		case InsertReplace:
			processed = append(processed, line)
		case InsertAppend:
			processed = append(processed, strings.TrimSpace(orig)+t.opts.Separator+strings.TrimSpace(line))
		case InsertPrepend:
			processed = append(processed, strings.TrimSpace(line)+t.opts.Separator+strings.TrimSpace(orig))
		default:
			t.logger.Error("insert_mode 配置有误，回退为 replace", zap.String("insert_mode", t.opts.InsertMode))
			processed = append(processed, line)
		}
	}
	return []byte(strings.Join(processed, "\n"))
}

// splitLines 按行拆分文本，行尾换行不产生额外空行
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// decodeText 识别常见编码并转成 UTF-8，识别失败时原样返回
func decodeText(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	// UTF-8 BOM
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		data = data[3:]
	}
	if utf8.Valid(data) {
		return string(data)
	}

	// UTF-16 BOM
	if len(data) >= 2 {
		if data[0] == 0xFF && data[1] == 0xFE {
			dec := xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM).NewDecoder()
			res, err := io.ReadAll(transform.NewReader(bytes.NewReader(data[2:]), dec))
			if err == nil && utf8.Valid(res) {
				return string(res)
			}
		} else if data[0] == 0xFE && data[1] == 0xFF {
			dec := xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM).NewDecoder()
			res, err := io.ReadAll(transform.NewReader(bytes.NewReader(data[2:]), dec))
			if err == nil && utf8.Valid(res) {
				return string(res)
			}
		}
	}

	// 常见编码逐个尝试
	encodings := []encoding.Encoding{
		simplifiedchinese.GBK,
		simplifiedchinese.GB18030,
		traditionalchinese.Big5,
		japanese.ShiftJIS,
		japanese.EUCJP,
		korean.EUCKR,
		charmap.Windows1252,
		charmap.ISO8859_1,
		xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM),
		xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM),
	}
	for _, enc := range encodings {
		dec := enc.NewDecoder()
		res, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), dec))
		if err == nil && utf8.Valid(res) && reasonableText(string(res)) {
			return string(res)
		}
	}

	return string(data)
}

// reasonableText 粗查解码结果是否像正常文本
func reasonableText(text string) bool {
	if len(text) == 0 {
		return false
	}
	printable := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return float64(printable)/float64(total) > 0.9
}
