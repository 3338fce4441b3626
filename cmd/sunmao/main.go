// Command sunmao evaluates expressions, renders application documents and
// serves running applications.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔═╗┬ ┬┌┐┌┌┬┐┌─┐┌─┐
  ╚═╗│ ││││││├─┤│ │
  ╚═╝└─┘┘└┘┴ ┴┴ ┴└─┘
`

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "sunmao",
		Short: "Runtime for low-code application documents",
		Long: `Sunmao runs low-code application documents.

Component properties may embed expressions in {{ }} that read the
state of other components. The runtime keeps every property current
as state changes. Commands:

  • eval     evaluate an expression against a state store
  • render   print the evaluated components of an application
  • serve    serve an application over HTTP and WebSocket`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default ./sunmao.json or ./sunmao.yaml)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(
		evalCmd(g),
		renderCmd(g),
		serveCmd(g),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		errorPrinter(rootCmd, os.Stderr).Print(err)
		os.Exit(1)
	}
}

// errorPrinter picks how a failed command reports its error: JSON when
// logs are JSON, the full report on a terminal, one line otherwise.
func errorPrinter(cmd *cobra.Command, w io.Writer) *serrors.Printer {
	logFormat, _ := cmd.PersistentFlags().GetString("log-format")
	noColor, _ := cmd.PersistentFlags().GetBool("no-color")

	p := serrors.NewPrinter(w)
	switch {
	case logFormat == "json":
		p.Style = serrors.StyleJSON
	case !serrors.IsTerminal(w):
		p.Style = serrors.StyleCompact
	}
	if noColor {
		p.Color = false
	}
	return p
}

// printBanner prints the Sunmao ASCII art banner.
func printBanner() {
	fmt.Fprint(os.Stderr, banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
