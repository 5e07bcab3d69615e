package cmd

import (
	"context"
	"fmt"

	"soundwaves/config"
	"soundwaves/core/importer"
	"soundwaves/db"
	"soundwaves/repository"
	"soundwaves/storage"

	"github.com/spf13/cobra"
)

var (
	libraryStats     bool
	libraryReconcile bool
	libraryImport    string
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "本地曲库维护",
	Long:  `查看曲库统计、重新核对下载标记，或把本地目录中的音频导入曲库。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		ctx := context.Background()

		gdb, err := db.OpenLibraryDB(cfg.LibraryDBPath)
		if err != nil {
			return err
		}
		defer db.Close(gdb)

		var blobs storage.BlobStore = storage.NewDBBlobStore(gdb)
		if cfg.BlobBackend == "minio" {
			store, err := storage.InitMinioBlobStore(ctx, cfg)
			if err != nil {
				return err
			}
			blobs = store
		}
		lib := repository.NewGormLibraryRepository(gdb, blobs)

		if libraryImport != "" {
			n, err := importer.New(lib).ImportDir(ctx, libraryImport)
			if err != nil {
				return err
			}
			fmt.Printf("已导入 %d 首歌曲\n", n)
		}

		if libraryReconcile {
			cleared, err := lib.Reconcile(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("清除了 %d 个失效的下载标记\n", cleared)
		}

		if libraryStats || (libraryImport == "" && !libraryReconcile) {
			stats, err := lib.StorageStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("歌曲: %d\n歌单: %d\n已下载: %d\n估计占用: %s\n",
				stats.SongsCount, stats.PlaylistsCount, stats.DownloadedCount, storage.FormatSize(stats.EstimatedSize))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(libraryCmd)

	libraryCmd.Flags().BoolVarP(&libraryStats, "stats", "s", false, "显示曲库统计")
	libraryCmd.Flags().BoolVar(&libraryReconcile, "reconcile", false, "核对下载标记与音频数据")
	libraryCmd.Flags().StringVarP(&libraryImport, "import", "i", "", "导入目录中的音频文件")
}
