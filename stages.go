package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/oldiberezkoo/0xLider/llm"
	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/scraper"
	"github.com/oldiberezkoo/0xLider/scraper/olx"
	"github.com/oldiberezkoo/0xLider/services"
	"github.com/oldiberezkoo/0xLider/storage"
)

// launchChrome starts the browser behind every stage that loads pages.
var launchChrome = olx.Launch

// launchBrowser starts Chrome. Failing to launch is fatal for every stage
// that needs it.
func (a *app) launchBrowser() (*olx.Browser, error) {
	b, err := launchChrome(a.cfg, a.logger)
	if err != nil {
		a.logger.Error("Browser launch failed: %v", err)
		return nil, err
	}
	return b, nil
}

func (a *app) collect(ctx context.Context) error {
	a.logger.Info("=== Stage 1: collecting links from %s ===", a.cfg.BaseURL)

	browser, err := a.launchBrowser()
	if err != nil {
		return err
	}
	defer browser.Close()

	source, err := olx.NewSource(ctx, browser, a.cfg.BaseURL)
	if err != nil {
		return err
	}
	defer source.Close()

	links := a.linksFile()
	collector := services.NewCollector(source, links, a.cfg.MaxPages, a.cfg.PageRetries,
		a.cfg.RetryDelay, a.cfg.RateLimitMs, a.logger)
	added, err := collector.Run(ctx)
	if errors.Is(err, scraper.ErrBlocked) {
		a.logger.Warn("Collection stopped by a block page; %d new links kept in %s", added, links.Path())
		return nil
	}
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	a.logger.Success("Collected %d new links into %s", added, links.Path())
	return nil
}

func (a *app) filter(ctx context.Context) error {
	a.logger.Info("=== Stage 2: filtering by keywords (concurrency %d, policy %s, incremental %t) ===",
		a.cfg.Concurrency, a.cfg.ExhaustedPolicy, a.cfg.Incremental)

	if err := a.cfg.ResolveKeywords(); err != nil {
		return err
	}
	classifier := services.NewClassifier(a.cfg.Keywords, a.logger)

	store, err := openStore(a.cfg)
	if err != nil {
		a.logger.Error("State store unavailable: %v", err)
		return err
	}
	defer store.Close()

	reportPath := a.cfg.Path(a.cfg.OutputFile)
	finalizer := services.NewFinalizer(store, reportPath, a.logger)

	browser, err := a.launchBrowser()
	if err != nil {
		if _, ferr := finalizer.FinalizePending(context.WithoutCancel(ctx)); ferr != nil {
			a.logger.Error("Finalization after failed launch: %v", ferr)
			return errors.Join(err, ferr)
		}
		return err
	}
	defer browser.Close()

	coordinator := services.NewCoordinator(a.cfg, browser, classifier, store, a.leakedFile(), a.logger)
	stage := services.NewFilterStage(a.linksFile(), store, coordinator, finalizer,
		reportPath, a.cfg.Incremental, a.cfg.Concurrency, a.logger)

	report, err := stage.Run(ctx)
	if report != nil {
		a.logger.Info("Report: %d links, %d unavailable, %d matched, %d ready for use",
			len(report.AllLinks), len(report.UnavailableLinks),
			len(report.KeywordMatchedLinks), len(report.ReadyForUse))
	}
	return err
}

func (a *app) enrich(ctx context.Context) error {
	a.logger.Info("=== Stage 3: extracting attributes with %s at %s ===", a.cfg.OllamaModel, a.cfg.OllamaURL)

	browser, err := a.launchBrowser()
	if err != nil {
		return err
	}
	defer browser.Close()

	model := llm.NewOllama(a.cfg.OllamaURL, a.cfg.OllamaModel, a.cfg.LLMTimeout)
	audit := storage.NewJSONArrayFile[models.AuditEntry](a.cfg.Path(a.cfg.DebugFileName))
	extractor := services.NewExtractor(model, audit, a.cfg.ExchangeRate, a.logger)

	enricher := services.NewEnricher(a.cfg, browser.WithTimeout(a.cfg.DetailTimeout), extractor,
		a.processedFile(), a.leakedFile(), a.logger)
	summary, err := enricher.Run(ctx)
	if summary != nil {
		a.logger.Info("Enriched %d of %d pending links (%d leaked)", summary.Extracted, summary.Total, summary.Leaked)
	}
	return err
}

func (a *app) export(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exporter := services.NewExporter(a.processedFile(), a.cfg.Path(a.cfg.ExportFileName), a.logger)
	_, err := exporter.Export(a.out)
	return err
}
