package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elviscruz45/api-facturas-transmind/internal/archive"
	"github.com/elviscruz45/api-facturas-transmind/internal/classifier"
	"github.com/elviscruz45/api-facturas-transmind/internal/common"
	"github.com/elviscruz45/api-facturas-transmind/internal/export"
	"github.com/elviscruz45/api-facturas-transmind/internal/extract"
	"github.com/elviscruz45/api-facturas-transmind/internal/gateway/gemini"
	"github.com/elviscruz45/api-facturas-transmind/internal/orchestrator"
	"github.com/elviscruz45/api-facturas-transmind/internal/repository"
	"github.com/elviscruz45/api-facturas-transmind/internal/server"
	"github.com/elviscruz45/api-facturas-transmind/internal/sorter"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Persistence is optional; without DB_URL the daemon runs
	// extraction-only.
	var (
		db     *sql.DB
		pool   *pgxpool.Pool
		store  server.ResultStore
		pinger server.Pinger
	)
	if cfg.Database.DSN != "" {
		var err error
		db, pool, err = repository.Open(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer repository.Close(db, pool, logger)

		if err := repository.HealthCheck(ctx, pool, 5*time.Second, logger); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		store = repository.NewInvoiceRepository(db, logger)
		pinger = pool
	} else {
		logger.Info("persistence disabled, DB_URL not set")
	}

	gatewayClient := gemini.NewClient(gemini.Config{
		BaseURL:          cfg.Gateway.BaseURL,
		APIKey:           cfg.Gateway.APIKey,
		Model:            cfg.Gateway.Model,
		Timeout:          cfg.Gateway.Timeout,
		ConcurrencyLimit: cfg.Gateway.ConcurrencyLimit,
		MinCallSpacing:   cfg.Gateway.MinCallSpacing,
		MaxRetries:       cfg.Gateway.MaxRetries,
		BaseBackoff:      cfg.Gateway.BaseBackoff,
	}, logger)

	orch := orchestrator.New(
		sorter.NewSorter(logger),
		classifier.NewClassifier(logger),
		extract.NewTextProcessor(logger),
		extract.NewImageProcessor(cfg.Extractor.MaxImageWidth, cfg.Extractor.MaxImageHeight, logger),
		extract.NewPDFProcessor(extract.PDFConfig{
			MinCharsPerPage: cfg.Extractor.MinCharsPerPage,
			TextPageRatio:   cfg.Extractor.TextPageRatio,
			MaxPagesToCheck: cfg.Extractor.MaxPDFPages,
		}, logger),
		gatewayClient,
		logger,
	)

	handler := server.NewHandler(
		archive.NewExtractor(logger),
		orch,
		export.NewService(logger),
		store,
		pinger,
		cfg.Pipeline.ScratchDir,
		cfg.Server.MaxUploadSizeMB,
		logger,
	)

	srv := server.New(cfg.Server, handler, logger)
	if err := srv.Run(); err != nil {
		logger.Error("server terminated", "error", err)
		os.Exit(1)
	}
}
