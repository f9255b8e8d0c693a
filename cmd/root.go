/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wellspring",
	Short: "Wellspring wellness session platform",
	Long: `Wellspring serves the API for authoring and browsing wellness sessions.

	wellspring server          start the HTTP API
	wellspring migrate up      apply database migrations
	wellspring events consume  log session events from the broker
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
