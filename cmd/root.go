package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sapas",
	Short: "Stock analysis platform with a strategy backtesting engine",
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncBarsCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
