package cmd

import (
	"os"

	"github.com/mezonai/ockham/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ockham",
	Short: "Ockham validator CLI",
	Long:  "Command line interface for running an Ockham consensus validator.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
