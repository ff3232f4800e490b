// Package commands implements gistd's CLI command tree.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "gistd",
	Short: "gistd - GIST/NTLP signaling daemon",
	Long: `gistd implements the General Internet Signaling Transport (GIST)
protocol: it maintains routing state between adjacent signaling peers and
carries NSLP messages (NAT/Firewall, QoS) over Query/Response/Confirm/Data
exchanges in either Q-mode (connectionless, UDP) or C-mode (TCP/TLS/SCTP).

Use "gistd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gistd.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
