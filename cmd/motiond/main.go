// motiond runs the single-axis motion kernel as a service.
//
// Usage:
//
//	motiond run -c motiond.yml
//
// Other commands write or print the configuration, run the built-in
// demos, plot recorded traces, follow the live status stream and issue
// API tokens. Run "motiond help" for the list.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plcmotion/pkg/log"
)

var version = "dev"

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "motiond",
	Short: "motiond - PLCopen single-axis motion kernel",
	Long: `motiond drives simulated or real servo axes at a fixed cycle frequency and
exposes PLCopen style motion commands over an HTTP API with a websocket
status stream.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		l := log.Default()
		if logLevel != "" {
			l.SetLevel(log.ParseLevel(logLevel))
		}
		if logFormat != "" {
			l.SetFormat(log.ParseFormat(logFormat))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mkconfCmd)
	rootCmd.AddCommand(confCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(plotCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tokenCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "motiond %s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
