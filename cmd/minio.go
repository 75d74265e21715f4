package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"openhowl/config"
	"openhowl/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "查看音频存储",
	Long:  `列出音频存储中的文件并显示统计信息。配置了 MINIO_ENDPOINT 时查看MinIO存储桶，否则查看本地音频目录。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		ctx := context.Background()

		name := cfg.SoundsDir
		if cfg.MinioEnabled() {
			fmt.Println("开始连接MinIO服务器...")
			fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
			name = cfg.MinioBucket
		}

		assets, err := openAssets(ctx, cfg)
		if err != nil {
			log.Fatalf("无法打开音频存储: %v", err)
		}
		objects, err := assets.List(ctx)
		if err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}

		filtered := objects[:0]
		for _, obj := range objects {
			if strings.HasPrefix(obj.Key, minioPrefix) {
				filtered = append(filtered, obj)
			}
		}

		if minioStats {
			st := storage.Stats(filtered)
			fmt.Printf("存储: %s\n文件数: %d\n总大小: %s\n", name, st.TotalObjects, storage.FormatSize(st.TotalSize))
			return
		}
		storage.PrintStatus(os.Stdout, name, filtered)
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "只显示统计信息")

	minioCmd.Example = `  # 列出所有音频
  openhowl minio

  # 按前缀过滤
  openhowl minio -p "sounds/ab"

  # 显示统计信息
  openhowl minio -s`
}
