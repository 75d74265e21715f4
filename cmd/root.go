package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "openhowl",
	Short: "OpenHowl is a shared soundboard service.",
	Long:  `OpenHowl 音效板：HTTP API、实时广播与 Discord 机器人。默认启动HTTP服务器。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context(), "")
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
