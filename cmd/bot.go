package cmd

import (
	"fmt"

	"openhowl/bot"
	"openhowl/config"
	"openhowl/logger"

	"github.com/spf13/cobra"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "启动Discord机器人",
	Long:  `连接Discord并响应 join / leave / play <sound_id> 指令，音频从服务器的预览接口获取。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogger(cfg)
		defer logger.Sync()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		b, err := bot.New(cfg)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
		logger.Info("Discord机器人启动中",
			logger.String("prefix", cfg.BotPrefix),
			logger.String("api", cfg.APIBaseURL))
		return b.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}
