// Command mindmap serves the mind-map API and generates mind maps from the
// command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/mindmapd/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mindmap",
	Short: "Turn text and documents into mind maps with a language model",
	Long: `mindmap drives a language model to turn free text into a Markdown mind map
and documents into a structured topic tree. Configuration is read from the
environment and an optional .env file.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, generateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates configuration.
func loadConfig() (config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
