package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-doctranslate/internal/export"
)

var (
	fmtWrite      bool
	fmtOutputFile string
)

// NewFormatCommand 创建 Markdown 重排命令
func NewFormatCommand() *cobra.Command {
	fmtCmd := &cobra.Command{
		Use:   "fmt [flags] <file1> [file2] ...",
		Short: "重排 Markdown 文件",
		Long: `把 Markdown 文件解析后按统一风格重新渲染，
行内与块级公式、代码块内容保持原样。

示例:
  doctranslate fmt doc.md              # 重排结果输出到标准输出
  doctranslate fmt -w doc.md other.md  # 原地改写多个文件
  doctranslate fmt -o out.md doc.md    # 写到指定文件`,
		Args: cobra.MinimumNArgs(1),
		RunE: runFormatCommand,
	}

	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "原地改写输入文件")
	fmtCmd.Flags().StringVarP(&fmtOutputFile, "output", "o", "", "输出文件路径，只能配合单个输入文件")

	return fmtCmd
}

func runFormatCommand(cmd *cobra.Command, args []string) error {
	log := newRunLogger()
	defer func() {
		_ = log.Sync()
	}()

	if fmtOutputFile != "" && len(args) > 1 {
		return fmt.Errorf("-o 只能配合单个输入文件，收到 %d 个", len(args))
	}

	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("读取 %s 失败: %w", path, err)
		}

		formatted, err := export.NormalizeMarkdown(content)
		if err != nil {
			return fmt.Errorf("重排 %s 失败: %w", path, err)
		}

		switch {
		case fmtOutputFile != "":
			if err := os.WriteFile(fmtOutputFile, formatted, 0o644); err != nil {
				return fmt.Errorf("写入 %s 失败: %w", fmtOutputFile, err)
			}
			log.Info("已写入重排结果", zap.String("path", fmtOutputFile))
		case fmtWrite:
			if err := os.WriteFile(path, formatted, 0o644); err != nil {
				return fmt.Errorf("写入 %s 失败: %w", path, err)
			}
			log.Info("已原地重排", zap.String("path", path))
		default:
			fmt.Print(string(formatted))
		}
	}
	return nil
}
