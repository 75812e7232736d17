package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-doctranslate/internal/config"
	"github.com/nerdneilsfield/go-doctranslate/internal/export"
	"github.com/nerdneilsfield/go-doctranslate/internal/logger"
	"github.com/nerdneilsfield/go-doctranslate/internal/progress"
	"github.com/nerdneilsfield/go-doctranslate/internal/stats"
	"github.com/nerdneilsfield/go-doctranslate/internal/translator"
	"github.com/nerdneilsfield/go-doctranslate/pkg/agent"
	"github.com/nerdneilsfield/go-doctranslate/pkg/glossary"
)

// 面向编排环境的退出码
const (
	exitOK           = 0
	exitInvalidInput = 10
	exitLLMError     = 30
	exitExportError  = 40
)

// 文档类型
const (
	formatMarkdown = "markdown"
	formatTXT      = "txt"
)

var (
	// 命令行标志变量
	cfgFile      string
	presetName   string
	presetsFile  string
	baseURL      string
	apiKey       string
	modelID      string
	toLang       string
	customPrompt string

	chunkSize   int
	concurrent  int
	temperature float32
	topP        float32
	timeout     int
	retry       int
	thinking    string

	skipTranslate bool
	systemProxy   bool

	// 纯文本写回方式
	insertMode string
	separator  string

	// 术语表相关标志
	glossaryPath     string
	glossaryGenerate bool
	glossaryBaseURL  string
	glossaryAPIKey   string
	glossaryModelID  string
	saveAttachments  bool

	// 输出相关标志
	outDir       string
	formats      []string
	htmlCDN      bool
	normalizeOut bool
	emitManifest string

	debugMode   bool
	quietMode   bool
	dryRun      bool // 预演模式，只显示将要执行的操作
	showVersion bool
	listPresets bool
	showConfig  bool
)

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "doctranslate [flags] input_file",
		Short: "doctranslate 基于大语言模型批量翻译文档",
		Long: `doctranslate 读取 Markdown 或纯文本文档，按块并发调用 OpenAI 兼容接口翻译，
然后把译文导出为 Markdown、纯文本和带样式的 HTML 预览。

特点:
  - 失败请求自动重试，超出错误预算时原文回填，整体流程不会中断
  - 图片链接在翻译前替换为占位符，翻译后原样还原
  - 可选的术语抽取智能体，统一人名地名译法
  - 预置常见服务商（openai、deepseek、glm、qwen、doubao、gemini 等），
    用 --list-presets 查看

连接配置按 标志 > 环境变量 > 配置文件 > 预置服务商 的顺序取值，
环境变量兼容 OPENAI_BASE_URL、OPENAI_API_KEY 与 OPENAI_MODEL。`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		Args: func(cmd *cobra.Command, args []string) error {
			// 对于特殊的标志命令，不需要参数
			if showVersion || listPresets || showConfig {
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("accepts 1 arg(s), received %d", len(args))
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			log := newRunLogger()
			defer func() {
				_ = log.Sync()
			}()

			if showVersion {
				fmt.Printf("doctranslate %s (commit %s, built %s)\n", version, commit, buildDate)
				return
			}

			if listPresets {
				handleListPresets()
				return
			}

			if showConfig {
				handleShowConfig(cmd, log)
				return
			}

			if len(args) < 1 {
				log.Error("缺少输入文件参数")
				fmt.Println("使用方法: doctranslate [flags] input_file")
				os.Exit(exitInvalidInput)
			}

			if dryRun {
				handleDryRun(cmd, args, log)
				return
			}

			runTranslate(cmd, args[0], version, log)
		},
	}

	// 添加全局标志
	addGlobalFlags(rootCmd)

	// 添加子命令
	rootCmd.AddCommand(NewFormatCommand())
	rootCmd.AddCommand(NewGlossaryCommand())
	rootCmd.AddCommand(NewModelsCommand())
	rootCmd.AddCommand(NewStatsCommand())

	return rootCmd
}

// newRunLogger 按 --quiet/--debug 初始化日志
func newRunLogger() *zap.Logger {
	if quietMode {
		return logger.NewSilentLogger()
	}
	return logger.NewLogger(debugMode)
}

// addGlobalFlags 添加全局标志
func addGlobalFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&presetName, "preset", "", "预置服务商，用 --list-presets 查看可用值")
	rootCmd.PersistentFlags().StringVar(&presetsFile, "presets-file", "", "自定义预置服务商文件（TOML），与内置预置合并")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "OpenAI 兼容接口地址，缺省读 OPENAI_BASE_URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API Key，缺省读 OPENAI_API_KEY")
	rootCmd.PersistentFlags().StringVar(&modelID, "model-id", "", "模型 ID，缺省读 OPENAI_MODEL")
	rootCmd.PersistentFlags().StringVar(&toLang, "to-lang", "简体中文", "目标语言")
	rootCmd.PersistentFlags().StringVar(&customPrompt, "custom-prompt", "", "附加的自定义翻译要求")

	rootCmd.PersistentFlags().IntVar(&chunkSize, "chunk-size", 3000, "分块大小（字节）")
	rootCmd.PersistentFlags().IntVar(&concurrent, "concurrent", 30, "并行请求数")
	rootCmd.PersistentFlags().Float32Var(&temperature, "temperature", 0.7, "采样温度")
	rootCmd.PersistentFlags().Float32Var(&topP, "top-p", 0.9, "top_p 采样参数")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 1200, "单请求超时（秒）")
	rootCmd.PersistentFlags().IntVar(&retry, "retry", 2, "失败重试次数")
	rootCmd.PersistentFlags().StringVar(&thinking, "thinking", "default", "思考模式 (default, enable, disable)")
	rootCmd.PersistentFlags().BoolVar(&skipTranslate, "skip-translate", false, "只解析导出，不调用模型")
	rootCmd.PersistentFlags().BoolVar(&systemProxy, "system-proxy", false, "使用系统代理 (HTTP_PROXY/HTTPS_PROXY/ALL_PROXY)")

	rootCmd.PersistentFlags().StringVar(&insertMode, "insert-mode", "replace", "纯文本译文写回方式 (replace, append, prepend)")
	rootCmd.PersistentFlags().StringVar(&separator, "separator", "\n", "append/prepend 模式下原文与译文的分隔符")

	rootCmd.PersistentFlags().StringVar(&glossaryPath, "glossary", "", "预置术语表文件路径（TOML）")
	rootCmd.PersistentFlags().BoolVar(&glossaryGenerate, "glossary-generate", false, "翻译前先用术语抽取智能体统一译名")
	rootCmd.PersistentFlags().StringVar(&glossaryBaseURL, "glossary-base-url", "", "术语智能体接口地址，缺省沿用主配置")
	rootCmd.PersistentFlags().StringVar(&glossaryAPIKey, "glossary-api-key", "", "术语智能体 API Key，缺省沿用主配置")
	rootCmd.PersistentFlags().StringVar(&glossaryModelID, "glossary-model-id", "", "术语智能体模型 ID，缺省沿用主配置")
	rootCmd.PersistentFlags().BoolVar(&saveAttachments, "save-attachments", false, "保存附属产物（抽取出的术语表）")

	rootCmd.PersistentFlags().StringVar(&outDir, "out-dir", "output", "输出目录")
	rootCmd.PersistentFlags().StringSliceVar(&formats, "formats", nil, "导出格式 (markdown, txt, html)，省略时按输入类型导出")
	rootCmd.PersistentFlags().BoolVar(&htmlCDN, "html-cdn", true, "HTML 导出时静态资源走 CDN")
	rootCmd.PersistentFlags().BoolVar(&normalizeOut, "normalize", false, "导出前用 markdownfmt 重排译文（仅 Markdown 输入）")
	rootCmd.PersistentFlags().StringVar(&emitManifest, "emit-manifest", "", "把产物清单写到指定 JSON 文件")

	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "启用调试模式")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "静默模式，只输出错误日志")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "预演模式，只显示将要执行的操作，不实际进行翻译")
	rootCmd.PersistentFlags().BoolVar(&showVersion, "version", false, "显示版本信息")
	rootCmd.PersistentFlags().BoolVar(&listPresets, "list-presets", false, "列出预置服务商")
	rootCmd.PersistentFlags().BoolVar(&showConfig, "show-config", false, "显示当前配置信息")
}

// documentTranslator 按文档类型选出的翻译管线
type documentTranslator interface {
	Translate(ctx context.Context, content []byte) (*translator.Result, error)
}

// runTranslate 执行完整的翻译与导出流程
func runTranslate(cmd *cobra.Command, inputPath, version string, log *zap.Logger) {
	startTotal := time.Now()

	info, err := os.Stat(inputPath)
	if err != nil {
		log.Error("输入文件不存在", zap.String("path", inputPath), zap.Error(err))
		os.Exit(exitInvalidInput)
	}
	if info.IsDir() {
		log.Error("输入路径是目录，需要一个文件", zap.String("path", inputPath))
		os.Exit(exitInvalidInput)
	}

	format, err := detectFormat(inputPath)
	if err != nil {
		log.Error("无法处理的输入文件", zap.Error(err))
		os.Exit(exitInvalidInput)
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		log.Error("加载配置失败", zap.Error(err))
		os.Exit(exitInvalidInput)
	}
	updateConfigFromFlags(cmd, cfg)
	if err := applyPresetFlag(cmd, cfg); err != nil {
		log.Error("解析预置服务商失败", zap.Error(err))
		os.Exit(exitInvalidInput)
	}

	content, err := os.ReadFile(inputPath)
	if err != nil {
		log.Error("读取输入文件失败", zap.Error(err))
		os.Exit(exitInvalidInput)
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))

	// 快速路径：.md 且跳过翻译且只要 Markdown 时原样拷贝
	if format == formatMarkdown && cfg.SkipTranslate && markdownOnly(cfg.Formats) {
		outputs, err := copyThrough(stem, content, cfg)
		if err != nil {
			log.Error("导出失败", zap.Error(err))
			os.Exit(exitExportError)
		}
		if emitManifest != "" {
			cfg.Formats = []string{formatMarkdown}
			m := buildManifest(version, inputPath, info.Size(), cfg, outputs, 0, 0, time.Since(startTotal))
			if err := writeManifest(emitManifest, m); err != nil {
				log.Warn("写入产物清单失败", zap.Error(err))
			}
		}
		return
	}

	var glossaryDict map[string]string
	if cfg.GlossaryPath != "" {
		g, err := glossary.LoadFile(cfg.GlossaryPath)
		if err != nil {
			log.Error("读取术语表失败", zap.Error(err))
			os.Exit(exitInvalidInput)
		}
		glossaryDict = g.Entries
	}

	opts, err := buildOptions(cfg, glossaryDict, log)
	if err != nil {
		log.Error("配置无效", zap.Error(err))
		os.Exit(exitInvalidInput)
	}

	var bar *progress.Bar
	if !quietMode {
		bar = progress.NewBar("")
		opts.OnProgress = bar.Callback()
	}

	trans, err := newDocumentTranslator(format, cfg, opts)
	if err != nil {
		log.Error("初始化翻译器失败", zap.Error(err))
		os.Exit(exitInvalidInput)
	}

	translateStart := time.Now()
	result, err := trans.Translate(cmd.Context(), content)
	if bar != nil {
		bar.Stop()
	}
	if err != nil {
		log.Error("翻译失败", zap.Error(err))
		os.Exit(exitLLMError)
	}
	translateElapsed := time.Since(translateStart)

	// 重排只是排版修饰，失败时保留原始译文继续导出
	if cfg.Normalize && format == formatMarkdown {
		if normalized, err := export.NormalizeMarkdown(result.Content); err != nil {
			log.Warn("译文重排失败，保留原始排版", zap.Error(err))
		} else {
			result.Content = normalized
		}
	}

	exportStart := time.Now()
	outputs, err := exportOutputs(stem, format, result.Content, cfg)
	if err != nil {
		log.Error("导出失败", zap.Error(err))
		os.Exit(exitExportError)
	}

	if saveAttachments && len(result.Glossary) > 0 {
		path := filepath.Join(cfg.OutDir, stem+"_glossary.toml")
		if err := glossary.New(result.Glossary).SaveFile(path); err != nil {
			log.Warn("保存术语表失败", zap.Error(err))
		} else {
			printGenerated(path)
		}
	}
	exportElapsed := time.Since(exportStart)

	record := buildRunRecord(inputPath, format, cfg, result, len(content), time.Since(startTotal))
	if !quietMode {
		stats.PrintRunReport(record, result.Stats)
	}
	recordHistory(record, log)

	if emitManifest != "" {
		m := buildManifest(version, inputPath, info.Size(), cfg, outputs, translateElapsed, exportElapsed, time.Since(startTotal))
		if err := writeManifest(emitManifest, m); err != nil {
			log.Warn("写入产物清单失败", zap.Error(err))
		}
	}

	if len(outputs) == 0 {
		log.Error("没有生成任何输出文件")
		os.Exit(exitExportError)
	}
}

// newDocumentTranslator 按文档类型构造翻译管线
func newDocumentTranslator(format string, cfg *config.Config, opts translator.Options) (documentTranslator, error) {
	switch format {
	case formatMarkdown:
		return translator.NewMarkdownTranslator(opts)
	case formatTXT:
		return translator.NewTextTranslator(translator.TextOptions{
			Options:    opts,
			InsertMode: cfg.InsertMode,
			Separator:  cfg.Separator,
		})
	default:
		return nil, fmt.Errorf("不支持的文档类型: %s", format)
	}
}

// buildOptions 把配置转换成翻译管线选项
func buildOptions(cfg *config.Config, glossaryDict map[string]string, log *zap.Logger) (translator.Options, error) {
	thinkingMode, err := parseThinking(cfg.Thinking)
	if err != nil {
		return translator.Options{}, err
	}

	opts := translator.Options{
		BaseURL:                cfg.BaseURL,
		APIKey:                 cfg.APIKey,
		ModelID:                cfg.ModelID,
		ToLang:                 cfg.ToLang,
		CustomPrompt:           cfg.CustomPrompt,
		ChunkSize:              cfg.ChunkSize,
		Temperature:            cfg.Temperature,
		TopP:                   cfg.TopP,
		Thinking:               thinkingMode,
		Concurrent:             cfg.Concurrent,
		Timeout:                time.Duration(cfg.Timeout) * time.Second,
		Retry:                  cfg.Retry,
		SystemProxyEnable:      cfg.SystemProxyEnable,
		SkipTranslate:          cfg.SkipTranslate,
		GlossaryDict:           glossaryDict,
		GlossaryGenerateEnable: cfg.GlossaryGenerate,
		Logger:                 log,
	}

	// 术语智能体允许单独指定连接信息，未给出的部分沿用主配置
	if cfg.GlossaryGenerate && (cfg.GlossaryBaseURL != "" || cfg.GlossaryAPIKey != "" || cfg.GlossaryModelID != "") {
		opts.GlossaryConfig = &agent.GlossaryAgentConfig{
			Config: agent.Config{
				BaseURL:           firstNonEmpty(cfg.GlossaryBaseURL, cfg.BaseURL),
				APIKey:            firstNonEmpty(cfg.GlossaryAPIKey, cfg.APIKey),
				ModelID:           firstNonEmpty(cfg.GlossaryModelID, cfg.ModelID),
				Temperature:       cfg.Temperature,
				TopP:              cfg.TopP,
				Concurrent:        cfg.Concurrent,
				Timeout:           time.Duration(cfg.Timeout) * time.Second,
				Thinking:          thinkingMode,
				Retry:             cfg.Retry,
				SystemProxyEnable: cfg.SystemProxyEnable,
				Logger:            log,
			},
			ToLang: cfg.ToLang,
		}
	}

	return opts, nil
}

// parseThinking 校验思考模式取值
func parseThinking(mode string) (agent.ThinkingMode, error) {
	switch agent.ThinkingMode(mode) {
	case agent.ThinkingDefault, agent.ThinkingEnable, agent.ThinkingDisable:
		return agent.ThinkingMode(mode), nil
	case "":
		return agent.ThinkingDefault, nil
	default:
		return "", fmt.Errorf("thinking 取值必须是 default、enable 或 disable，收到 %q", mode)
	}
}

// updateConfigFromFlags 使用命令行参数更新配置
func updateConfigFromFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("preset") {
		cfg.Preset = presetName
	}
	if cmd.Flags().Changed("presets-file") {
		cfg.PresetsFile = presetsFile
	}
	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = baseURL
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = apiKey
	}
	if cmd.Flags().Changed("model-id") {
		cfg.ModelID = modelID
	}
	if cmd.Flags().Changed("to-lang") {
		cfg.ToLang = toLang
	}
	if cmd.Flags().Changed("custom-prompt") {
		cfg.CustomPrompt = customPrompt
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.ChunkSize = chunkSize
	}
	if cmd.Flags().Changed("concurrent") {
		cfg.Concurrent = concurrent
	}
	if cmd.Flags().Changed("temperature") {
		cfg.Temperature = temperature
	}
	if cmd.Flags().Changed("top-p") {
		cfg.TopP = topP
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = timeout
	}
	if cmd.Flags().Changed("retry") {
		cfg.Retry = retry
	}
	if cmd.Flags().Changed("thinking") {
		cfg.Thinking = thinking
	}
	if cmd.Flags().Changed("skip-translate") {
		cfg.SkipTranslate = skipTranslate
	}
	if cmd.Flags().Changed("system-proxy") {
		cfg.SystemProxyEnable = systemProxy
	}
	if cmd.Flags().Changed("insert-mode") {
		cfg.InsertMode = insertMode
	}
	if cmd.Flags().Changed("separator") {
		cfg.Separator = separator
	}
	if cmd.Flags().Changed("glossary") {
		cfg.GlossaryPath = glossaryPath
	}
	if cmd.Flags().Changed("glossary-generate") {
		cfg.GlossaryGenerate = glossaryGenerate
	}
	if cmd.Flags().Changed("glossary-base-url") {
		cfg.GlossaryBaseURL = glossaryBaseURL
	}
	if cmd.Flags().Changed("glossary-api-key") {
		cfg.GlossaryAPIKey = glossaryAPIKey
	}
	if cmd.Flags().Changed("glossary-model-id") {
		cfg.GlossaryModelID = glossaryModelID
	}
	if cmd.Flags().Changed("out-dir") {
		cfg.OutDir = outDir
	}
	if cmd.Flags().Changed("formats") {
		cfg.Formats = formats
	}
	if cmd.Flags().Changed("html-cdn") {
		cfg.HTMLCDN = htmlCDN
	}
	if cmd.Flags().Changed("normalize") {
		cfg.Normalize = normalizeOut
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = debugMode
	}
}

// applyPresetFlag 解析 --preset 并补齐未显式给出的连接配置。
// 预置只补空位，显式标志、环境变量与配置文件都优先于预置值。
func applyPresetFlag(cmd *cobra.Command, cfg *config.Config) error {
	if !cmd.Flags().Changed("preset") {
		return nil
	}
	presets, err := cfg.PresetMap()
	if err != nil {
		return err
	}
	preset, err := config.ResolvePresetIn(presets, cfg.Preset)
	if err != nil {
		return err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = preset.BaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = preset.DefaultModel
	}
	return nil
}

// detectFormat 按扩展名推断文档类型
func detectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return formatMarkdown, nil
	case ".txt":
		return formatTXT, nil
	default:
		return "", fmt.Errorf("不支持的文件类型 %q，当前支持 .md 与 .txt", filepath.Ext(path))
	}
}

// markdownOnly 判断导出格式是否只需要 Markdown（空列表视为默认，原样拷贝即可满足）
func markdownOnly(formats []string) bool {
	for _, f := range formats {
		if f != formatMarkdown {
			return false
		}
	}
	return true
}

// selectedFormats 解析导出格式列表，空配置按输入类型取默认组合
func selectedFormats(cfg *config.Config, format string) []string {
	if len(cfg.Formats) > 0 {
		return cfg.Formats
	}
	if format == formatMarkdown {
		return []string{"markdown", "html"}
	}
	return []string{"txt", "html"}
}

// outputName 按导出格式生成输出文件名
func outputName(stem, ftype string) string {
	switch ftype {
	case "markdown":
		return stem + "_translated.md"
	case "txt":
		return stem + "_translated.txt"
	default:
		return stem + "_translated." + ftype
	}
}

// outputFile 一条导出产物记录
type outputFile struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// exportOutputs 把译文写到输出目录。单个格式失败只跳过该格式，
// 返回成功生成的产物列表。
func exportOutputs(stem, format string, content []byte, cfg *config.Config) ([]outputFile, error) {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	htmlOpts := export.HTMLOptions{Title: stem, CDN: cfg.HTMLCDN}

	var outputs []outputFile
	for _, ftype := range selectedFormats(cfg, format) {
		var (
			data []byte
			err  error
		)
		switch ftype {
		case "markdown":
			if format != formatMarkdown {
				fmt.Printf("跳过不支持的导出格式: %s\n", ftype)
				continue
			}
			data = content
		case "txt":
			if format != formatTXT {
				fmt.Printf("跳过不支持的导出格式: %s\n", ftype)
				continue
			}
			data = content
		case "html":
			if format == formatMarkdown {
				data, err = export.MarkdownToHTML(content, htmlOpts)
			} else {
				data, err = export.TextToHTML(content, htmlOpts)
			}
			if err != nil {
				fmt.Printf("导出 %s 失败: %v\n", ftype, err)
				continue
			}
		default:
			fmt.Printf("跳过不支持的导出格式: %s\n", ftype)
			continue
		}

		path := filepath.Join(cfg.OutDir, outputName(stem, ftype))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Printf("导出 %s 失败: %v\n", ftype, err)
			continue
		}
		printGenerated(path)
		outputs = append(outputs, outputFile{Type: ftype, Path: absPath(path)})
	}
	return outputs, nil
}

// copyThrough 跳过翻译时把输入原样拷到输出目录
func copyThrough(stem string, content []byte, cfg *config.Config) ([]outputFile, error) {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	path := filepath.Join(cfg.OutDir, outputName(stem, "markdown"))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("写入输出文件失败: %w", err)
	}
	printGenerated(path)
	return []outputFile{{Type: "markdown", Path: absPath(path)}}, nil
}

// buildRunRecord 汇总一次运行的统计记录
func buildRunRecord(inputPath, format string, cfg *config.Config, result *translator.Result, inputBytes int, elapsed time.Duration) *stats.RunRecord {
	record := &stats.RunRecord{
		ID:            uuid.New().String()[:8],
		Timestamp:     time.Now(),
		InputFile:     inputPath,
		Format:        format,
		ToLang:        cfg.ToLang,
		ModelID:       cfg.ModelID,
		Chunks:        result.Chunks,
		InputBytes:    inputBytes,
		Duration:      elapsed,
		GlossaryTerms: len(result.Glossary),
		Status:        stats.StatusCompleted,
	}

	tokensOK := true
	var totals agent.TokenTotals
	for _, batch := range result.Stats {
		record.HardErrors += batch.HardErrors
		record.Unresolved += batch.Unresolved
		if batch.TokenExtractFailed {
			tokensOK = false
		}
		totals.Input += batch.Tokens.Input
		totals.Cached += batch.Tokens.Cached
		totals.Output += batch.Tokens.Output
		totals.Reasoning += batch.Tokens.Reasoning
		totals.Total += batch.Tokens.Total
	}

	if tokensOK {
		record.InputTokens = int64(totals.Input)
		record.CachedTokens = int64(totals.Cached)
		record.OutputTokens = int64(totals.Output)
		record.ReasoningTokens = int64(totals.Reasoning)
		record.TotalTokens = int64(totals.Total)
	} else {
		record.InputTokens = -1
		record.CachedTokens = -1
		record.OutputTokens = -1
		record.ReasoningTokens = -1
		record.TotalTokens = -1
	}

	if record.Unresolved > 0 {
		record.Status = stats.StatusPartial
	}
	return record
}

// recordHistory 把运行记录追加到历史数据库，失败只告警不中断
func recordHistory(record *stats.RunRecord, log *zap.Logger) {
	path, err := stats.DefaultPath()
	if err != nil {
		log.Warn("定位历史数据库失败", zap.Error(err))
		return
	}
	db, err := stats.NewDatabase(path, log)
	if err != nil {
		log.Warn("打开历史数据库失败", zap.Error(err))
		return
	}
	if err := db.AddRunRecord(record); err != nil {
		log.Warn("写入历史记录失败", zap.Error(err))
	}
}

// manifest 翻译产物清单，供编排环境消费
type manifest struct {
	Version  string           `json:"version"`
	Input    manifestInput    `json:"input"`
	Settings manifestSettings `json:"settings"`
	Outputs  []outputFile     `json:"outputs"`
	Metrics  manifestMetrics  `json:"metrics"`
}

type manifestInput struct {
	Path   string `json:"path"`
	Suffix string `json:"suffix"`
	Size   int64  `json:"size"`
}

type manifestSettings struct {
	ToLang        string   `json:"to_lang"`
	SkipTranslate bool     `json:"skip_translate"`
	Formats       []string `json:"formats"`
	Concurrent    int      `json:"concurrent"`
	ChunkSize     int      `json:"chunk_size"`
	ModelID       string   `json:"model_id"`
}

type manifestMetrics struct {
	TranslateMS int64 `json:"translate_ms"`
	ExportMS    int64 `json:"export_ms"`
	TotalMS     int64 `json:"total_ms"`
}

func buildManifest(version, inputPath string, inputSize int64, cfg *config.Config, outputs []outputFile, translateElapsed, exportElapsed, totalElapsed time.Duration) manifest {
	return manifest{
		Version: version,
		Input: manifestInput{
			Path:   absPath(inputPath),
			Suffix: strings.ToLower(filepath.Ext(inputPath)),
			Size:   inputSize,
		},
		Settings: manifestSettings{
			ToLang:        cfg.ToLang,
			SkipTranslate: cfg.SkipTranslate,
			Formats:       cfg.Formats,
			Concurrent:    cfg.Concurrent,
			ChunkSize:     cfg.ChunkSize,
			ModelID:       cfg.ModelID,
		},
		Outputs: outputs,
		Metrics: manifestMetrics{
			TranslateMS: translateElapsed.Milliseconds(),
			ExportMS:    exportElapsed.Milliseconds(),
			TotalMS:     totalElapsed.Milliseconds(),
		},
	}
}

// writeManifest 把产物清单写成 JSON 文件
func writeManifest(path string, m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	printGenerated(path)
	return nil
}

// handleListPresets 列出内置与自定义的预置服务商
func handleListPresets() {
	presets := config.DefaultPresets()
	if presetsFile != "" {
		custom, err := config.LoadPresetsFile(presetsFile)
		if err != nil {
			fmt.Printf("⚠️  读取自定义预置失败: %v\n", err)
		} else {
			presets = config.MergePresets(custom)
		}
	}

	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("支持的预置服务商:")
	for _, name := range names {
		p := presets[name]
		fmt.Printf("  - %-12s %s\n", name, p.Description)
		fmt.Printf("    接口地址: %s\n", p.BaseURL)
		fmt.Printf("    默认模型: %s\n", p.DefaultModel)
	}
}

// handleShowConfig 显示当前配置信息
func handleShowConfig(cmd *cobra.Command, log *zap.Logger) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		log.Warn("加载配置失败，显示默认配置", zap.Error(err))
		cfg = config.NewDefaultConfig()
	}
	updateConfigFromFlags(cmd, cfg)
	if err := applyPresetFlag(cmd, cfg); err != nil {
		fmt.Printf("⚠️  警告: %v\n", err)
	}

	fmt.Println("🔧 当前配置信息")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Println("\n📋 基本翻译配置:")
	fmt.Printf("  目标语言: %s\n", cfg.ToLang)
	fmt.Printf("  预置服务商: %s\n", valueOrUnset(cfg.Preset))
	fmt.Printf("  接口地址: %s\n", valueOrUnset(cfg.BaseURL))
	fmt.Printf("  模型: %s\n", valueOrUnset(cfg.ModelID))
	fmt.Printf("  API Key: %s\n", describeSecret(cfg.APIKey))
	fmt.Printf("  跳过翻译: %t\n", cfg.SkipTranslate)
	if cfg.CustomPrompt != "" {
		fmt.Printf("  自定义要求: %s\n", cfg.CustomPrompt)
	}

	fmt.Println("\n⚡ 性能配置:")
	fmt.Printf("  分块大小: %d 字节\n", cfg.ChunkSize)
	fmt.Printf("  并行度: %d\n", cfg.Concurrent)
	fmt.Printf("  温度: %.2f\n", cfg.Temperature)
	fmt.Printf("  top_p: %.2f\n", cfg.TopP)
	fmt.Printf("  请求超时: %d 秒\n", cfg.Timeout)
	fmt.Printf("  重试次数: %d\n", cfg.Retry)
	fmt.Printf("  思考模式: %s\n", cfg.Thinking)
	fmt.Printf("  系统代理: %t\n", cfg.SystemProxyEnable)

	fmt.Println("\n📚 术语表配置:")
	fmt.Printf("  术语表路径: %s\n", valueOrUnset(cfg.GlossaryPath))
	fmt.Printf("  术语抽取: %t\n", cfg.GlossaryGenerate)
	if cfg.GlossaryBaseURL != "" || cfg.GlossaryModelID != "" {
		fmt.Printf("  术语智能体接口: %s\n", valueOrUnset(cfg.GlossaryBaseURL))
		fmt.Printf("  术语智能体模型: %s\n", valueOrUnset(cfg.GlossaryModelID))
	}

	fmt.Println("\n📤 输出配置:")
	fmt.Printf("  输出目录: %s\n", cfg.OutDir)
	if len(cfg.Formats) > 0 {
		fmt.Printf("  导出格式: %s\n", strings.Join(cfg.Formats, ", "))
	} else {
		fmt.Printf("  导出格式: 按输入类型\n")
	}
	fmt.Printf("  HTML 使用 CDN: %t\n", cfg.HTMLCDN)
	fmt.Printf("  导出前重排: %t\n", cfg.Normalize)
	fmt.Printf("  纯文本写回方式: %s\n", cfg.InsertMode)
}

// handleDryRun 处理预演模式
func handleDryRun(cmd *cobra.Command, args []string, log *zap.Logger) {
	inputFile := args[0]

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		log.Error("加载配置失败", zap.Error(err))
		cfg = config.NewDefaultConfig()
	}
	updateConfigFromFlags(cmd, cfg)
	if err := applyPresetFlag(cmd, cfg); err != nil {
		fmt.Printf("❌ 错误: %v\n", err)
		return
	}

	fmt.Println("🎭 预演模式 - 显示将要执行的操作")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("📄 输入文件: %s\n", inputFile)
	fileInfo, err := os.Stat(inputFile)
	if err != nil {
		fmt.Printf("❌ 错误: 输入文件不存在\n")
		return
	}
	fmt.Printf("📏 文件大小: %d 字节\n", fileInfo.Size())

	format, err := detectFormat(inputFile)
	if err != nil {
		fmt.Printf("❌ 错误: %v\n", err)
		return
	}
	fmt.Printf("📑 文档类型: %s\n", format)

	stem := strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile))
	fmt.Println("\n📝 将生成:")
	for _, ftype := range selectedFormats(cfg, format) {
		fmt.Printf("  %s\n", filepath.Join(cfg.OutDir, outputName(stem, ftype)))
	}
	if saveAttachments && cfg.GlossaryGenerate {
		fmt.Printf("  %s\n", filepath.Join(cfg.OutDir, stem+"_glossary.toml"))
	}

	fmt.Printf("\n🔧 翻译配置:\n")
	fmt.Printf("  目标语言: %s\n", cfg.ToLang)
	fmt.Printf("  接口地址: %s\n", valueOrUnset(cfg.BaseURL))
	fmt.Printf("  模型: %s\n", valueOrUnset(cfg.ModelID))
	fmt.Printf("  跳过翻译: %t\n", cfg.SkipTranslate)
	fmt.Printf("  术语抽取: %t\n", cfg.GlossaryGenerate)

	fmt.Printf("\n⚡ 处理配置:\n")
	fmt.Printf("  并行度: %d\n", cfg.Concurrent)
	fmt.Printf("  分块大小: %d 字节\n", cfg.ChunkSize)
	fmt.Printf("  重试次数: %d\n", cfg.Retry)
	fmt.Printf("  请求超时: %d 秒\n", cfg.Timeout)

	fmt.Printf("\n✅ 预演完成 - 使用相同参数但不加 --dry-run 来执行实际翻译\n")
}

// printGenerated 打印生成的产物路径
func printGenerated(path string) {
	fmt.Printf("已生成: %s\n", absPath(path))
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func valueOrUnset(s string) string {
	if s == "" {
		return "未设置"
	}
	return s
}

func describeSecret(s string) string {
	if s == "" {
		return "未设置"
	}
	return fmt.Sprintf("已设置 (%d 位)", len(s))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
