package cli

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "memgarden",
	Short: "Associative memory for AI agents",
	Long:  "Memgarden grows a long-term memory from agent conversations: consolidation, weighted retrieval, recurrence detection, and garbage collection behind one HTTP API.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tendCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(clearCmd)
}
