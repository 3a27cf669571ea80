package main

import (
    "fmt"
    "os"

    "github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
    Use:   "dirnode",
    Short: "Content-directory nodes on a simulated multi-hop overlay",
    Long: `dirnode runs content-directory nodes that answer server-type, listing
and item requests over a fragmenting, multi-hop overlay.

Configuration is read from --config, $DIRMESH_CONFIG or ./dirmesh.yaml,
with DIRMESH_* environment overrides (e.g. DIRMESH_LOG_LEVEL=debug).`,
    SilenceUsage: true,
}

var versionCmd = &cobra.Command{
    Use:   "version",
    Short: "Display the version of dirnode",
    Run: func(cmd *cobra.Command, args []string) {
        fmt.Fprintf(cmd.OutOrStdout(), "dirnode version %s\n", Version)
    },
}

func init() {
    rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
    rootCmd.AddCommand(demoCmd, configCmd, versionCmd)
}

func main() {
    if err := rootCmd.Execute(); err != nil {
        os.Exit(1)
    }
}
