package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"soundwaves/config"
	"soundwaves/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看 BLOB_BACKEND=minio 时保存在存储桶中的离线音频，支持按前缀列出文件和查看统计信息。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		store, err := storage.InitMinioBlobStore(ctx, cfg)
		if err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		objects, stats, err := store.List(ctx, minioPrefix)
		if err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}

		if minioStats {
			fmt.Println("\n存储桶统计信息:")
			fmt.Printf("  文件数量: %d\n", stats.TotalObjects)
			fmt.Printf("  总大小:   %s\n", storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("  最近修改: %s\n", stats.LastModified.Format(time.RFC3339))
			}
			return
		}

		fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", minioPrefix)
		for _, obj := range objects {
			fmt.Printf("  %-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format(time.RFC3339))
		}
		fmt.Printf("\n共 %d 个文件\n", len(objects))
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "audio/", "按前缀过滤文件")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")

	minioCmd.Example = `  # 列出所有离线音频
  soundwaves minio

  # 显示存储桶统计信息
  soundwaves minio -s

  # 按前缀过滤文件
  soundwaves minio -p "audio/yt-"`
}
