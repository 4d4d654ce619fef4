package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oldiberezkoo/0xLider/config"
)

// stageFunc is one pipeline stage bound to an app.
type stageFunc func(a *app, ctx context.Context) error

// runStages builds the app from cmd and runs stages in order, stopping at
// the first failure.
func runStages(cmd *cobra.Command, stages ...stageFunc) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	for _, stage := range stages {
		if err := stage(a, cmd.Context()); err != nil {
			return err
		}
	}
	return nil
}

// NewCollectCmd creates the collect command.
func NewCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Gather listing links from the search result pages",
		Long: `Collect walks the search result pages under BASE_URL and merges every
listing link it finds into LINKS_FILE. Links already in the file are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd, (*app).collect)
		},
	}
	addCollectFlags(cmd)
	return cmd
}

// NewFilterCmd creates the filter command.
func NewFilterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Classify collected links by keyword and write the report",
		Long: `Filter opens every collected link that has no verdict yet, checks its title
and description against the keyword list and writes the report to
FILTER_OUTPUT_FILE. Listings without a keyword match are ready for enrichment.

Examples:
  # Continue where the previous run stopped
  lider filter

  # Reclassify everything with four browser tabs
  lider filter --full --concurrency 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd, (*app).filter)
		},
	}
	addFilterFlags(cmd)
	return cmd
}

// NewEnrichCmd creates the enrich command.
func NewEnrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Extract structured attributes from ready listings",
		Long: `Enrich opens every listing the filter marked ready for use, asks the Ollama
model for its attributes and appends the result to PROCESSED_FILE. Rentals and
listings that fail are recorded in LEAKED_FILE so they are not retried.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd, (*app).enrich)
		},
	}
	addEnrichFlags(cmd)
	return cmd
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run collect, filter and enrich in sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stages := []stageFunc{(*app).filter, (*app).enrich}
			if skip, _ := cmd.Flags().GetBool("skip-collect"); !skip {
				stages = append([]stageFunc{(*app).collect}, stages...)
			}
			if export, _ := cmd.Flags().GetBool("export"); export {
				stages = append(stages, (*app).export)
			}
			return runStages(cmd, stages...)
		},
	}
	addCollectFlags(cmd)
	addFilterFlags(cmd)
	addEnrichFlags(cmd)
	cmd.Flags().Bool("skip-collect", false, "Start from the existing links file")
	cmd.Flags().Bool("export", false, "Write the CSV export when enrichment finishes")
	return cmd
}

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write enriched listings as CSV and print insights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd, (*app).export)
		},
	}
}

func addCollectFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-pages", 0, "Maximum number of search pages to walk (default from MAX_PAGES)")
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("concurrency", "c", 0, "Browser tabs used for classification (default from CONCURRENCY)")
	cmd.Flags().String("policy", config.PolicySkip,
		"What to do with links that fail every attempt: skip, leak or unavailable")
	cmd.Flags().Bool("full", false, "Ignore the previous report and reclassify every link")
}

func addEnrichFlags(cmd *cobra.Command) {
	cmd.Flags().Int("enrich-concurrency", 0, "Listings enriched in parallel (default from ENRICH_CONCURRENCY)")
}
