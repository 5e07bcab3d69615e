package cmd

import (
	"soundwaves/logger"
	"soundwaves/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 Soundwaves 服务器",
	Long:  `启动 HTTP 服务器，提供曲库、歌单、下载、推荐、YouTube 解析和播放器 API`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		return server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
