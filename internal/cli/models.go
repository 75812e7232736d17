package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/nerdneilsfield/go-doctranslate/internal/config"
)

// NewModelsCommand 创建模型列表命令
func NewModelsCommand() *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "列出接口可用的模型",
		Long: `请求 /models 端点，列出当前接口下可用的模型，
方便确认 --model-id 该填什么。

示例:
  doctranslate models --preset deepseek --api-key sk-xxx
  OPENAI_BASE_URL=... OPENAI_API_KEY=... doctranslate models`,
		RunE: runModelsCommand,
	}

	return modelsCmd
}

func runModelsCommand(cmd *cobra.Command, args []string) error {
	log := newRunLogger()
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	updateConfigFromFlags(cmd, cfg)
	if err := applyPresetFlag(cmd, cfg); err != nil {
		return err
	}

	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return errors.New("列出模型需要 base_url 与 api_key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	// API 路径自带斜杠前缀，去掉尾部斜杠避免双斜杠
	clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	client := openai.NewClientWithConfig(clientCfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	list, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("请求模型列表失败: %w", err)
	}

	models := list.Models
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRow(table.Row{"模型", "所属", "创建时间"})
	tw.AppendSeparator()
	for _, m := range models {
		created := "-"
		if m.CreatedAt > 0 {
			created = time.Unix(m.CreatedAt, 0).Format("2006-01-02")
		}
		tw.AppendRow(table.Row{m.ID, m.OwnedBy, created})
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()

	fmt.Printf("共 %d 个模型\n", len(models))
	return nil
}
