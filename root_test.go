package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oldiberezkoo/0xLider/config"
	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/scraper/olx"
	"github.com/oldiberezkoo/0xLider/services"
	"github.com/oldiberezkoo/0xLider/storage"
	"github.com/oldiberezkoo/0xLider/utils"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "lider" {
		t.Errorf("expected use 'lider', got %q", cmd.Use)
	}
	for _, name := range []string{"verbose", "env-file"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag %q", name)
		}
	}

	want := map[string]bool{"collect": false, "filter": false, "enrich": false, "run": false, "export": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestApplyFlagsOverridesOnlyChangedFlags(t *testing.T) {
	cmd := NewRunCmd()
	if err := cmd.ParseFlags([]string{"--concurrency", "4", "--full", "--policy", "leak"}); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Concurrency: 2, EnrichConcurrency: 3, MaxPages: 25, Incremental: true, ExhaustedPolicy: "skip"}
	if err := applyFlags(cmd, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Concurrency != 4 || cfg.Incremental || cfg.ExhaustedPolicy != "leak" {
		t.Errorf("changed flags not applied: %+v", cfg)
	}
	if cfg.EnrichConcurrency != 3 || cfg.MaxPages != 25 {
		t.Errorf("unchanged flags overrode config: %+v", cfg)
	}
}

func TestApplyFlagsIgnoresFlagsTheCommandLacks(t *testing.T) {
	cfg := &config.Config{Concurrency: 2}
	if err := applyFlags(NewExportCmd(), cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d", cfg.Concurrency)
	}
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"memory", false},
		{"sqlite", false},
		{"mongo", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := &config.Config{StoreBackend: tt.backend, SQLitePath: filepath.Join(t.TempDir(), "db", "state.db")}
			store, err := openStore(cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer store.Close()
			if err := store.AddDiscovered(context.Background(), "a"); err != nil {
				t.Errorf("AddDiscovered: %v", err)
			}
		})
	}
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OUTPUT_DIR", dir)
	t.Setenv("PROCESSED_FILE", "processed.json")
	t.Setenv("EXPORT_FILE", "listings.csv")
	t.Setenv("STATE_BACKEND", "memory")

	processed := storage.NewJSONArrayFile[*models.ExtractedListing](filepath.Join(dir, "processed.json"))
	if err := processed.Append(&models.ExtractedListing{Link: "https://www.olx.uz/d/1.html", Price: "65000"}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"export", "--env-file", filepath.Join(dir, "missing.env")})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "listings.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "https://www.olx.uz/d/1.html,65000") {
		t.Errorf("csv:\n%s", data)
	}
	if !strings.Contains(out.String(), "LISTING INSIGHTS") {
		t.Errorf("insights not printed:\n%s", out.String())
	}
}

func TestCommandRejectsInvalidConfig(t *testing.T) {
	t.Setenv("OUTPUT_DIR", t.TempDir())
	t.Setenv("STATE_BACKEND", "mongo")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"export", "--env-file", filepath.Join(t.TempDir(), "missing.env")})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestFilterFinalizesWhenBrowserFailsToLaunch(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	t.Setenv("OUTPUT_DIR", dir)
	t.Setenv("FILTER_OUTPUT_FILE", "filtered.json")
	t.Setenv("STATE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("KEYWORDS", "ипотека")

	ctx := context.Background()
	seed, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_ = seed.AddDiscovered(ctx, "https://www.olx.uz/d/1.html", "https://www.olx.uz/d/2.html")
	_ = seed.RecordClassification(ctx, models.ClassificationRecord{
		Link: "https://www.olx.uz/d/1.html", IsAvailable: true, MatchedKeywords: []string{},
	})
	if err := seed.Close(); err != nil {
		t.Fatal(err)
	}

	errNoChrome := errors.New("chrome not found")
	orig := launchChrome
	launchChrome = func(*config.Config, *utils.Logger) (*olx.Browser, error) { return nil, errNoChrome }
	defer func() { launchChrome = orig }()

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"filter", "--env-file", filepath.Join(dir, "missing.env")})
	if err := cmd.ExecuteContext(ctx); !errors.Is(err, errNoChrome) {
		t.Fatalf("expected launch error, got %v", err)
	}

	report, err := services.LoadReport(filepath.Join(dir, "filtered.json"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if len(report.AllLinks) != 2 || len(report.ReadyForUse) != 1 {
		t.Errorf("report = %+v", report)
	}
}
