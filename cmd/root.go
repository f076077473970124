package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// configFile is shared by every command
var configFile string

var rootCmd = &cobra.Command{
	Use:   "moderator",
	Short: "Bayesian comment moderator",
	Long: `moderator classifies user comments as ham, spam or unsure with a
Bayesian word classifier, hides spam and comments reported by down votes,
and learns from moderator decisions.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Comment moderator")
		fmt.Println("Use 'moderator --help' for usage information")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}
