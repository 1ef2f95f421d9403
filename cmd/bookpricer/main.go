package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwdsh/second-hand-book/config"
	"github.com/jwdsh/second-hand-book/crawler"
	"github.com/jwdsh/second-hand-book/models"
	"github.com/jwdsh/second-hand-book/pipeline"
	"github.com/jwdsh/second-hand-book/store"
	"github.com/jwdsh/second-hand-book/valuation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	inputFile := flag.String("input", cfg.InputFile, "Keyword list, one book per line")
	outputFile := flag.String("output", cfg.OutputFile, "Raw listings output path")
	processedFile := flag.String("processed", cfg.ProcessedFile, "Aggregated summary output path")
	outputFormat := flag.String("format", cfg.OutputFormat, "Raw output format: csv, json, or dual")
	imageDir := flag.String("images", cfg.ImageDir, "Directory for downloaded cover images (empty disables)")
	databaseDir := flag.String("db", cfg.DatabaseDir, "Directory for the evaluation database")
	baseURL := flag.String("base-url", cfg.SearchBaseURL, "Search endpoint base URL")
	timeout := flag.Duration("timeout", cfg.Timeout, "Per-request timeout")
	maxRetries := flag.Int("max-retries", cfg.MaxRetries, "Total fetch attempts per keyword")
	retryDelay := flag.Duration("retry-delay", cfg.RetryDelay, "Base delay between retries (grows linearly)")
	cooldown := flag.Duration("cooldown", cfg.Cooldown, "Pause between consecutive keywords")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", cfg.Verbose, "Enable verbose logging")

	isbnFlag := flag.String("isbn", "", "Appraise a single book by ISBN instead of crawling the input file")
	titleFlag := flag.String("title", "", "Appraise a single book by title instead of crawling the input file")
	condition := flag.Float64("condition", 0.9, "Condition score in [0,1] applied during appraisal")
	history := flag.Int("history", 0, "Print the N most recent appraisals as JSON and exit")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg.InputFile = *inputFile
	cfg.OutputFile = *outputFile
	cfg.ProcessedFile = *processedFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.ImageDir = *imageDir
	cfg.DatabaseDir = *databaseDir
	cfg.SearchBaseURL = *baseURL
	cfg.Timeout = *timeout
	cfg.MaxRetries = *maxRetries
	cfg.RetryDelay = *retryDelay
	cfg.Cooldown = *cooldown
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if *history > 0 {
		os.Exit(runHistory(context.Background(), cfg, *history, os.Stdout))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, flushing accumulated results")
	}()

	metrics := crawler.NewMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	gate := crawler.NewGate(cfg, metrics)

	var images *crawler.ImageFetcher
	if cfg.ImageDir != "" {
		images, err = crawler.NewImageFetcher(gate.Client(), cfg.ImageDir, metrics)
		if err != nil {
			slog.Error("initialising image fetcher", slog.Any("error", err))
			os.Exit(1)
		}
	}

	rawWriter, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating raw listings writer", slog.Any("error", err))
		os.Exit(1)
	}
	processedWriter, err := pipeline.NewProcessedWriter(cfg.ProcessedFile)
	if err != nil {
		slog.Error("creating summary writer", slog.Any("error", err))
		os.Exit(1)
	}
	artifacts := pipeline.NewArtifacts(rawWriter, processedWriter)
	defer func() {
		if err := artifacts.Close(); err != nil {
			slog.Error("closing artifact writers", slog.Any("error", err))
		}
	}()

	session := crawler.NewSession(cfg, gate, images, artifacts, metrics)

	exitCode := 0
	if *isbnFlag != "" || *titleFlag != "" {
		exitCode = runAppraisal(ctx, cfg, session, *isbnFlag, *titleFlag, *condition)
	} else {
		exitCode = runBatch(ctx, cfg, session, rawWriter)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// runBatch crawls every keyword from the input file and reports the session
// outcome. Individual keyword failures do not fail the run; persistence
// failures and cancellation do.
func runBatch(ctx context.Context, cfg *config.Config, session *crawler.Session, rawWriter pipeline.ListingWriter) int {
	keywords, err := crawler.LoadKeywords(cfg.InputFile)
	if err != nil {
		slog.Error("loading keywords", slog.String("file", cfg.InputFile), slog.Any("error", err))
		return 1
	}

	slog.Info("starting crawl",
		slog.String("base_url", cfg.SearchBaseURL),
		slog.Int("keywords", len(keywords)),
		slog.String("output", cfg.OutputFile),
	)

	result, agg, err := session.Run(ctx, keywords)
	if err != nil {
		slog.Error("crawl session failed", slog.Any("error", err))
		if result == nil {
			return 1
		}
	}

	// An empty crawl is a valid terminal state; only a session that claims
	// listings must have produced a non-empty artifact.
	if len(result.Listings) > 0 {
		if err := rawWriter.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			return 1
		}
	}

	printSummary(result, agg, cfg.OutputFile)
	if err != nil {
		return 1
	}
	return 0
}

// runAppraisal prices a single book through the valuation service and prints
// the appraisal as JSON on stdout.
func runAppraisal(ctx context.Context, cfg *config.Config, session *crawler.Session, code, title string, condition float64) int {
	db, err := store.Open(cfg.DatabaseDir)
	if err != nil {
		slog.Error("opening evaluation store", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("closing evaluation store", slog.Any("error", err))
		}
	}()

	svc := valuation.NewService(session, fixedScorer(condition), db)
	result, err := svc.Evaluate(ctx, valuation.Request{ISBN: code, Title: title})
	if err != nil {
		if result == nil {
			slog.Error("appraisal failed", slog.Any("error", err))
			return 1
		}
		slog.Error("appraisal finished with errors", slog.Any("error", err))
	}

	encoded, encErr := json.MarshalIndent(result, "", "  ")
	if encErr != nil {
		slog.Error("encoding appraisal", slog.Any("error", encErr))
		return 1
	}
	fmt.Println(string(encoded))

	if err != nil {
		return 1
	}
	return 0
}

// runHistory lists the most recent appraisal records from the evaluation
// database as JSON.
func runHistory(ctx context.Context, cfg *config.Config, limit int, out io.Writer) int {
	db, err := store.Open(cfg.DatabaseDir)
	if err != nil {
		slog.Error("opening evaluation store", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("closing evaluation store", slog.Any("error", err))
		}
	}()

	evals, err := db.RecentEvaluations(ctx, limit)
	if err != nil {
		slog.Error("listing evaluations", slog.Any("error", err))
		return 1
	}
	if evals == nil {
		evals = []models.Evaluation{}
	}

	encoded, err := json.MarshalIndent(evals, "", "  ")
	if err != nil {
		slog.Error("encoding evaluations", slog.Any("error", err))
		return 1
	}
	fmt.Fprintln(out, string(encoded))
	return 0
}

// fixedScorer satisfies valuation.ConditionScorer with a constant score for
// runs where no photo-based scorer is attached.
type fixedScorer float64

func (f fixedScorer) Score(ctx context.Context, imagePath string) (float64, error) {
	return float64(f), nil
}

func createWriter(format, filename string) (pipeline.ListingWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.CrawlResult, agg *models.AggregatedPrice, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	fmt.Printf("  Listings:        %d\n", len(result.Listings))
	if agg != nil {
		fmt.Printf("  Title:           %s\n", agg.Title)
		fmt.Printf("  Average price:   ¥%.2f\n", agg.AveragePrice)
		fmt.Printf("  Samples:         %d\n", agg.SampleCount)
	} else {
		fmt.Println("  Average price:   no market data")
	}
	fmt.Printf("  Requests:        %d\n", result.RequestCount)
	fmt.Printf("  Retries:         %d\n", result.RetryCount)
	fmt.Printf("  Failed keywords: %d\n", len(result.FailedKeywords))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:     %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:        %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Output file:     %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
