package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/oldiberezkoo/0xLider/config"
	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/storage"
	"github.com/oldiberezkoo/0xLider/utils"
)

// app is what every command needs: configuration, a logger and the writer
// for human-readable output.
type app struct {
	cfg    *config.Config
	logger *utils.Logger
	out    io.Writer
}

// newApp loads the configuration named by --env-file, applies the flags the
// user set on cmd and validates the result.
func newApp(cmd *cobra.Command) (*app, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, err
	}
	var cfg *config.Config
	if envFile != "" {
		cfg = config.Load(envFile)
	} else {
		cfg = config.Load()
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := utils.NewLogger()
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger.SetLevel(utils.LevelDebug)
	}
	return &app{cfg: cfg, logger: logger, out: cmd.OutOrStdout()}, nil
}

// applyFlags copies explicitly set command flags over the environment values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	ints := map[string]*int{
		"concurrency":        &cfg.Concurrency,
		"enrich-concurrency": &cfg.EnrichConcurrency,
		"max-pages":          &cfg.MaxPages,
	}
	for name, dst := range ints {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if flags.Lookup("policy") != nil && flags.Changed("policy") {
		v, err := flags.GetString("policy")
		if err != nil {
			return err
		}
		cfg.ExhaustedPolicy = v
	}
	if flags.Lookup("full") != nil && flags.Changed("full") {
		full, err := flags.GetBool("full")
		if err != nil {
			return err
		}
		cfg.Incremental = !full
	}
	return nil
}

// openStore opens the state store selected by STATE_BACKEND.
func openStore(cfg *config.Config) (storage.StateStore, error) {
	var (
		store *storage.SQLStore
		err   error
	)
	switch cfg.StoreBackend {
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.DSN())
	case "sqlite":
		store, err = storage.NewSQLiteStore(cfg.SQLitePath)
	case "memory", "":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s state store: %w", cfg.StoreBackend, err)
	}
	return store, nil
}

func (a *app) linksFile() *storage.LinkListFile {
	return storage.NewLinkListFile(a.cfg.Path(a.cfg.LinksFileName))
}

func (a *app) leakedFile() *storage.LinkListFile {
	return storage.NewLinkListFile(a.cfg.Path(a.cfg.LeakedFileName))
}

func (a *app) processedFile() *storage.JSONArrayFile[*models.ExtractedListing] {
	return storage.NewJSONArrayFile[*models.ExtractedListing](a.cfg.Path(a.cfg.ProcessedFileName))
}
