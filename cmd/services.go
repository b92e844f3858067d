package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"pita/internal/config"
	"pita/internal/document"
	"pita/internal/extract"
	"pita/internal/ledger"
	"pita/internal/ocr"
	"pita/internal/pdf"
	"pita/internal/pipeline"
	"pita/internal/sheets"
	"pita/internal/signature"
	"pita/internal/storage"
	"pita/internal/summary"
	"pita/internal/validation"
)

// loadConfig reads the environment configuration.
func loadConfig(log zerolog.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT/SIGTERM and, when timeout is positive,
// after timeout.
func signalContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, finishing current packets")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// createOCRService builds the configured OCR engine.
func createOCRService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Service, error) {
	svc, err := ocr.New(ctx, ocr.Options{
		Engine:  cfg.OCREngine,
		Command: cfg.OCRCommand,
		Timeout: cfg.OCRTimeout,
		DocumentAI: ocr.DocumentAIConfig{
			ProjectID:        cfg.GoogleCloudProject,
			Location:         cfg.GoogleCloudLocation,
			ProcessorID:      cfg.DocumentAIProcessorID,
			ProcessorVersion: cfg.DocumentAIProcessorVersion,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("engine", cfg.OCREngine).Msg("Failed to create OCR service")
		return nil, fmt.Errorf("failed to create OCR service: %w", err)
	}
	log.Debug().Str("engine", cfg.OCREngine).Msg("OCR service created")
	return svc, nil
}

// createAnalyzer wires extraction, signature detection and validation.
func createAnalyzer(cfg *config.Config, log zerolog.Logger) (*pipeline.Analyzer, error) {
	var extractor extract.Service = extract.NewRuleExtractor()
	if cfg.ExtractionCompletion == "openai" {
		completion, err := extract.NewCompletionExtractor(extractor, cfg.OpenAIAPIKey, extract.CompletionConfig{
			Model: cfg.OpenAIModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create completion extractor: %w", err)
		}
		extractor = completion
		log.Debug().Str("model", cfg.OpenAIModel).Msg("Field completion enabled")
	}

	required := make([]document.Type, 0, len(cfg.RequiredDocuments))
	for _, name := range cfg.RequiredDocuments {
		t := document.Type(name)
		if !t.Known() {
			return nil, fmt.Errorf("unknown document type in REQUIRED_DOCUMENTS: %s", name)
		}
		required = append(required, t)
	}

	var images pipeline.ImageSourceFunc
	if cfg.SignatureImageAnalysis {
		images = func(path string) signature.ImageSource {
			return pdf.NewPageImages(path)
		}
	}

	return pipeline.NewAnalyzer(pipeline.AnalyzerOptions{
		Extractor:         extractor,
		Validator:         validation.New(required),
		Images:            images,
		Thresholds:        cfg.SignatureThresholds(),
		ExtractionTimeout: cfg.ExtractionTimeout,
	}), nil
}

// createArchive returns the GCS archive when a bucket is configured and the
// local history folder otherwise.
func createArchive(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.Archive, func(), error) {
	if cfg.GCSArchiveBucket == "" {
		return storage.NewLocalArchive(cfg.ArchiveDir), func() {}, nil
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	log.Debug().Str("bucket", cfg.GCSArchiveBucket).Msg("Archiving to Cloud Storage")
	return storage.NewGCSArchive(client, cfg.GCSArchiveBucket, cfg.GCSArchiveFolder), func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close storage client")
		}
	}, nil
}

// createSink collects the configured run summary exports. Nil means none.
func createSink(ctx context.Context, cfg *config.Config, log zerolog.Logger) (summary.Sink, error) {
	var sinks summary.MultiSink
	if cfg.SummaryXLSX != "" {
		sinks = append(sinks, summary.NewXLSXSink(cfg.SummaryXLSX))
	}
	if cfg.GoogleSheetURL != "" {
		svc, err := sheets.NewSheetsService(ctx, cfg.GoogleSheetURL, cfg.GoogleSheetWorksheet)
		if err != nil {
			return nil, fmt.Errorf("failed to create Google Sheets service: %w", err)
		}
		sinks = append(sinks, svc)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	log.Debug().Int("sinks", len(sinks)).Msg("Run summary export enabled")
	return sinks, nil
}

// createPipeline wires every service of a run. The returned func releases
// the clients.
func createPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pipeline.Pipeline, func(), error) {
	layout := cfg.Layout()

	audit, err := ledger.Open(layout.LogFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	ocrService, err := createOCRService(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := ocr.Close(ocrService); err != nil {
			log.Warn().Err(err).Msg("Failed to close OCR service")
		}
	}

	analyzer, err := createAnalyzer(cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	archive, closeArchive, err := createArchive(ctx, cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closeOCR := cleanup
	cleanup = func() {
		closeArchive()
		closeOCR()
	}

	sink, err := createSink(ctx, cfg, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	p, err := pipeline.New(pipeline.Options{
		Layout:    layout,
		MaxErrors: cfg.MaxErrors,
		MaxTmpAge: cfg.MaxTmpAge,
		Workers:   cfg.Workers,
		Languages: cfg.OCRLanguages,
		OCR:       ocrService,
		Merger:    pdf.NewTool(),
		Analyzer:  analyzer,
		Archive:   archive,
		Audit:     audit,
		Sink:      sink,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return p, cleanup, nil
}
