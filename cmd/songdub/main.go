package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verseforge/songdub/logger"
)

var rootCmd = &cobra.Command{
	Use:           "songdub",
	Short:         "songdub - AI song dubbing service",
	Version:       version,
	SilenceUsage:  true,  // Don't print usage on error
	SilenceErrors: false, // Do print errors
	Long: `songdub analyzes an uploaded song with a generative AI service, translates
its lyrics into a target language, and synthesizes a dubbed vocal track as a
playable WAV file.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Runs before all subcommands
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
				return
			}
			logger.SetVerbose(verbose)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose debug logging for API calls")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}

func main() {
	Execute()
}
