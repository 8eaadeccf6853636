package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "matching",
	Short: "Commodity trading matching backend",
	Long: `Bilateral matching backend for commodity trading: matches buyer
requirements against seller availabilities with location-first filtering,
composite scoring, a two-tier risk gate, atomic allocation, and signed
webhook delivery to tenant endpoints.`,
}

//nolint:gochecknoglobals // Cobra boilerplate
var configPath string

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
}
