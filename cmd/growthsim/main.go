// growthsim animates compound growth: a value improved (or worsened) by a
// fixed rate every simulated day.
//
// Usage:
//
//	growthsim serve
//	growthsim project [--days=365] [--rate=0.01] [--start=1] [--final]
//	growthsim run [--days=365] [--rate=0.01] [--interval=20ms]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "growthsim",
	Short: "Compound growth simulation",
	Long:  "growthsim shows what a small daily change adds up to, either served over\nHTTP, projected in closed form, or animated day by day in the terminal.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
