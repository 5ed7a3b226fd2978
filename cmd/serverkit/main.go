package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/serverkit/pkg/logger"
)

func main() {
	err := rootCmd.Execute()
	logger.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:           "serverkit",
	Short:         "serverkit: assemble and run an HTTP server from a settings file",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "serverkit.yaml", "settings file (YAML or JSON)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(pluginsCmd)
}
