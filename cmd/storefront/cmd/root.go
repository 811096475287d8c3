package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront is a small shop web service",
	Long: `A storefront web service with cookie sessions, CSRF protection and
product image uploads. Settings come from flags, an optional YAML file and
STOREFRONT_* environment variables.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
}
