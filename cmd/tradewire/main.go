package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┬─┐┌─┐┌┬┐┌─┐╦ ╦┬┬─┐┌─┐
   ║ ├┬┘├─┤ ││├┤ ║║║│├┬┘├┤
   ╩ ┴└─┴ ┴─┴┘└─┘╚╩╝┴┴└─└─┘
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "tradewire",
		Short: "Real-time market data streaming client",
		Long: `Tradewire streams live market data over a WebSocket feed.

Subscribe to quote updates for any set of symbols, follow chart
series, and capture raw feed traffic for later replay. Features:

  • Live quote streaming with field selection
  • Chart series with historical bars
  • Traffic capture to local files or S3
  • Prometheus metrics endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		streamCmd(),
		captureCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the Tradewire ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Printf("\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
