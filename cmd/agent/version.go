package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"auroraagent/internal/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Long:  "显示 Aurora 的版本信息，包括版本号、构建时间、Git 提交和 Go 版本。",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetInfo()
		_ = pterm.DefaultTable.WithData(pterm.TableData{
			{"Version", info.Version},
			{"API Version", info.APIVersion},
			{"Build Time", info.BuildTime},
			{"Git Commit", info.GitCommit},
			{"Go Version", info.GoVersion},
		}).Render()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
