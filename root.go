package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oldiberezkoo/0xLider/services"
)

// exitInterrupted is the exit status after SIGINT or SIGTERM.
const exitInterrupted = 130

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lider",
		Short: "Collect, filter and enrich real-estate listings",
		Long: `lider crawls the apartment listings of olx.uz, filters out listings whose
title or description mentions one of the configured keywords, and asks a local
Ollama model to extract structured attributes from the rest.

Every stage reads and writes plain JSON files under OUTPUT_DIR, so stages can be
run separately and resumed after an interruption.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().String("env-file", "", "Load configuration from this file instead of .env")

	cmd.AddCommand(NewCollectCmd())
	cmd.AddCommand(NewFilterCmd())
	cmd.AddCommand(NewEnrichCmd())
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewExportCmd())

	return cmd
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()

	switch {
	case err == nil:
	case services.IsCancelled(err):
		fmt.Fprintln(os.Stderr, "interrupted, partial results were saved")
		os.Exit(exitInterrupted)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
