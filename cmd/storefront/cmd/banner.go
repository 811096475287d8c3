package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

const banner = `
  ____  _                  __                 _
 / ___|| |_ ___  _ __ ___ / _|_ __ ___  _ __ | |_
 \___ \| __/ _ \| '__/ _ \ |_| '__/ _ \| '_ \| __|
  ___) | || (_) | | |  __/  _| | | (_) | | | | |_
 |____/ \__\___/|_|  \___|_| |_|  \___/|_| |_|\__|
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Storefront - Version %s\x1b[0m\n\n", Version)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
