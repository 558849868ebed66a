package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "provision",
		Short: "Download, verify, and repair studio components",
		Long: `Provision keeps a workstation's optional components installed and
intact: it downloads manifest-declared artifacts with resume support,
verifies SHA-256 digests, extracts archives, and runs post-install
probes. Interrupted downloads pick up where they left off.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "provision.json", "Path to the JSON config file")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		installCmd(&configPath),
		repairCmd(&configPath),
		removeCmd(&configPath),
		verifyCmd(&configPath),
		statusCmd(&configPath),
		manifestCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("provision %s (%s, %s/%s, %s)\n",
				version, commit, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
