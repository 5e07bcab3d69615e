package cmd

import (
	"context"
	"encoding/json"
	"os"

	"soundwaves/config"
	"soundwaves/core/resolver"

	"github.com/spf13/cobra"
)

var resolveInfoOnly bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <video-id|url>",
	Short: "解析 YouTube 视频的元数据和音频地址",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		r := resolver.New(resolver.OptionsFromConfig(cfg))

		req := resolver.Request{URL: args[0]}
		if resolveInfoOnly {
			req.Action = resolver.ActionInfo
		}
		data, err := r.Handle(context.Background(), req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().BoolVar(&resolveInfoOnly, "info", false, "只获取元数据，不探测镜像")
}
