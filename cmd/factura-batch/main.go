package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elviscruz45/api-facturas-transmind/internal/archive"
	"github.com/elviscruz45/api-facturas-transmind/internal/classifier"
	"github.com/elviscruz45/api-facturas-transmind/internal/common"
	"github.com/elviscruz45/api-facturas-transmind/internal/export"
	"github.com/elviscruz45/api-facturas-transmind/internal/extract"
	"github.com/elviscruz45/api-facturas-transmind/internal/gateway/gemini"
	"github.com/elviscruz45/api-facturas-transmind/internal/orchestrator"
	"github.com/elviscruz45/api-facturas-transmind/internal/repository"
	"github.com/elviscruz45/api-facturas-transmind/internal/sorter"
)

// printError prints to stderr, falling back to stdout if stderr fails.
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		zipPath = flag.String("zip", "", "WhatsApp export ZIP to process (required)")
		out     = flag.String("out", "", "output file path (defaults next to the archive)")
		format  = flag.String("format", "json", "output format: json or xlsx")
		persist = flag.Bool("persist", false, "save results to the database (requires DB_URL)")
	)
	flag.Parse()

	if *zipPath == "" {
		printError("Error: --zip is required\n")
		os.Exit(1)
	}
	if *format != "json" && *format != "xlsx" {
		printError("Error: --format must be json or xlsx\n")
		os.Exit(1)
	}
	if *out == "" {
		base := strings.TrimSuffix(filepath.Base(*zipPath), filepath.Ext(*zipPath))
		*out = filepath.Join(filepath.Dir(*zipPath), base+"-invoices."+*format)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

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

	extractor := archive.NewExtractor(logger)
	descriptors, cleanup, err := extractor.ExtractZip(ctx, *zipPath, cfg.Pipeline.ScratchDir)
	defer cleanup()
	if err != nil {
		printError("Error: failed to extract archive: %v\n", err)
		os.Exit(1)
	}

	response := orch.Process(ctx, descriptors)

	if *persist {
		if cfg.Database.DSN == "" {
			printError("Error: --persist requires DB_URL\n")
			os.Exit(1)
		}
		db, pool, err := repository.Open(ctx, cfg.Database, logger)
		if err != nil {
			printError("Error: failed to open database: %v\n", err)
			os.Exit(1)
		}
		defer repository.Close(db, pool, logger)
		if err := repository.HealthCheck(ctx, pool, 5*time.Second, logger); err != nil {
			printError("Error: database ping failed: %v\n", err)
			os.Exit(1)
		}
		store := repository.NewInvoiceRepository(db, logger)
		runID, err := store.SaveResults(ctx, response)
		if err != nil {
			printError("Error: failed to save results: %v\n", err)
			os.Exit(1)
		}
		logger.Info("run saved", "run_id", runID.String())
	}

	var data []byte
	switch *format {
	case "xlsx":
		data, err = export.NewService(logger).BuildXLSX(response)
		if err != nil {
			printError("Error: failed to build workbook: %v\n", err)
			os.Exit(1)
		}
	default:
		data, err = json.MarshalIndent(response, "", "  ")
		if err != nil {
			printError("Error: failed to encode response: %v\n", err)
			os.Exit(1)
		}
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		printError("Error: failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}

	fmt.Printf("processed %d files: %d invoices, %d errors -> %s\n",
		response.TotalProcessed, response.SuccessCount, len(response.Errors), *out)
}
