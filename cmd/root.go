/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "covidtrack-api"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "covidtrack",
	Short: "Epidemiological observation API server",
	Long: `covidtrack stores daily epidemiological observations per country and
region and serves them, together with per-country statistics, over an
authenticated JSON API.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
