package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerdneilsfield/go-doctranslate/internal/config"
	"github.com/nerdneilsfield/go-doctranslate/internal/progress"
	"github.com/nerdneilsfield/go-doctranslate/pkg/glossary"
)

var glossaryOutput string

// NewGlossaryCommand 创建术语抽取命令
func NewGlossaryCommand() *cobra.Command {
	glossaryCmd := &cobra.Command{
		Use:   "glossary [flags] input_file",
		Short: "从文档抽取术语表",
		Long: `只运行术语抽取智能体，不翻译正文。模型从文档中挑出
人名、地名、机构名等专有名词并给出统一译法，结果保存为
TOML 术语表，之后可以通过 --glossary 传给翻译命令复用。

指定 --glossary 时会先载入已有术语表，新抽取的条目
合并进去，已有译法不会被覆盖。

示例:
  doctranslate glossary --preset deepseek --api-key sk-xxx paper.md
  doctranslate glossary -o terms.toml --glossary terms.toml book.txt`,
		Args: cobra.ExactArgs(1),
		RunE: runGlossaryCommand,
	}

	glossaryCmd.Flags().StringVarP(&glossaryOutput, "output", "o", "glossary.toml", "术语表输出路径")

	return glossaryCmd
}

func runGlossaryCommand(cmd *cobra.Command, args []string) error {
	log := newRunLogger()
	defer func() {
		_ = log.Sync()
	}()

	inputPath := args[0]
	format, err := detectFormat(inputPath)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	updateConfigFromFlags(cmd, cfg)
	if err := applyPresetFlag(cmd, cfg); err != nil {
		return err
	}

	// 翻译管线在 skip_translate 下不校验连接配置，这里自己查
	effBaseURL := firstNonEmpty(cfg.GlossaryBaseURL, cfg.BaseURL)
	effAPIKey := firstNonEmpty(cfg.GlossaryAPIKey, cfg.APIKey)
	effModelID := firstNonEmpty(cfg.GlossaryModelID, cfg.ModelID)
	if effBaseURL == "" || effAPIKey == "" || effModelID == "" {
		return errors.New("术语抽取需要 base_url、api_key 与 model_id")
	}

	content, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("读取输入文件失败: %w", err)
	}

	// 复用翻译管线的解析与分块，正文不动，只跑术语智能体
	cfg.SkipTranslate = true
	cfg.GlossaryGenerate = true
	opts, err := buildOptions(cfg, nil, log)
	if err != nil {
		return err
	}

	var bar *progress.Bar
	if !quietMode {
		bar = progress.NewBar("术语抽取")
		opts.OnProgress = bar.Callback()
	}

	trans, err := newDocumentTranslator(format, cfg, opts)
	if err != nil {
		if bar != nil {
			bar.Stop()
		}
		return err
	}

	result, err := trans.Translate(cmd.Context(), content)
	if bar != nil {
		bar.Stop()
	}
	if err != nil {
		return fmt.Errorf("术语抽取失败: %w", err)
	}

	merged := glossary.New(nil)
	if cfg.GlossaryPath != "" {
		existing, err := glossary.LoadFile(cfg.GlossaryPath)
		if err != nil {
			return fmt.Errorf("读取已有术语表失败: %w", err)
		}
		merged = existing
	}
	before := len(merged.Entries)
	merged.Update(result.Glossary)

	if err := merged.SaveFile(glossaryOutput); err != nil {
		return fmt.Errorf("保存术语表失败: %w", err)
	}

	var hardErrors int
	for _, batch := range result.Stats {
		hardErrors += batch.HardErrors
	}
	fmt.Printf("共 %d 条术语，新增 %d 条", len(merged.Entries), len(merged.Entries)-before)
	if hardErrors > 0 {
		fmt.Printf("，%d 个请求失败", hardErrors)
	}
	fmt.Println()
	printGenerated(glossaryOutput)

	return nil
}
