package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pedronipalhares/imea/internal/aggregate"
	"github.com/pedronipalhares/imea/internal/config"
	"github.com/pedronipalhares/imea/internal/dataset"
	"github.com/pedronipalhares/imea/internal/fetch"
	"github.com/pedronipalhares/imea/internal/logging"
	"github.com/pedronipalhares/imea/internal/model"
	"github.com/pedronipalhares/imea/internal/normalize"
	"github.com/pedronipalhares/imea/internal/planner"
	"github.com/pedronipalhares/imea/internal/providers"
	"github.com/pedronipalhares/imea/internal/providers/imea"
	"github.com/pedronipalhares/imea/internal/store"
	"github.com/pedronipalhares/imea/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	start := fs.String("start", "", "start month YYYY-MM (default: EXTRACTOR_START or 2021-01)")
	end := fs.String("end", "", "end month YYYY-MM (default: current month)")
	outDir := fs.String("out", "", "output directory (default: EXTRACTOR_OUTPUT_DIR or datasets)")
	dbPath := fs.String("db", "", "sqlite database path (default: EXTRACTOR_DB; empty disables persistence)")
	concurrency := fs.Int("concurrency", 0, "max in-flight requests (default: EXTRACTOR_CONCURRENCY or 15)")
	prices := fs.Bool("prices", false, "also extract current prices")
	dryRun := fs.Bool("dry-run", false, "fetch and aggregate but write nothing")
	verbose := fs.Bool("verbose", false, "debug logging")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "extractor config error:", err)
		os.Exit(1)
	}
	applyFlags(&cfg, *start, *outDir, *dbPath, *concurrency, *verbose)

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := runExtractor(cfg, *end, *prices, *dryRun, log); err != nil {
		log.Error().Err(err).Msg("extractor run failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: extractor run [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -start        start month YYYY-MM (default: EXTRACTOR_START or 2021-01)")
	fmt.Fprintln(os.Stderr, "  -end          end month YYYY-MM (default: current month)")
	fmt.Fprintln(os.Stderr, "  -out          output directory (default: datasets)")
	fmt.Fprintln(os.Stderr, "  -db           sqlite database path (empty disables persistence)")
	fmt.Fprintln(os.Stderr, "  -concurrency  max in-flight requests (default: 15)")
	fmt.Fprintln(os.Stderr, "  -prices       also extract current prices")
	fmt.Fprintln(os.Stderr, "  -dry-run      fetch and aggregate but write nothing")
	fmt.Fprintln(os.Stderr, "  -verbose      debug logging")
}

func applyFlags(cfg *config.Config, start, outDir, dbPath string, concurrency int, verbose bool) {
	if strings.TrimSpace(start) != "" {
		if parsed, err := time.Parse("2006-01", start); err == nil {
			cfg.Start = parsed
		}
	}
	if strings.TrimSpace(outDir) != "" {
		cfg.OutputDir = outDir
	}
	if strings.TrimSpace(dbPath) != "" {
		cfg.DBPath = dbPath
	}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
}

func runExtractor(cfg config.Config, endFlag string, prices, dryRun bool, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	end := time.Now().UTC()
	if strings.TrimSpace(endFlag) != "" {
		parsed, err := time.Parse("2006-01", endFlag)
		if err != nil {
			return fmt.Errorf("invalid -end (want YYYY-MM): %w", err)
		}
		// include the whole requested end month
		end = parsed.AddDate(0, 1, -1)
	}

	icfg := imea.ConfigFromEnv()
	icfg.Timeout = cfg.Timeout
	icfg.MaxRetries = cfg.Retries
	provider, err := imea.NewWithConfig(icfg)
	if err != nil {
		return err
	}

	if err := provider.Authenticate(ctx); err != nil {
		return err
	}
	log.Info().Msg("authenticated")

	seasons, err := provider.ListSeasons(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("season listing failed, proceeding without season filter")
	} else {
		log.Info().Int("seasons", len(seasons)).Msg("harvest seasons loaded")
	}

	tasks := planner.Plan(cfg.Start, end, model.Indicators())
	log.Info().
		Int("tasks", len(tasks)).
		Str("start", cfg.Start.Format("2006-01")).
		Str("end", end.Format("2006-01")).
		Int("concurrency", cfg.Concurrency).
		Msg("extraction planned")

	pool := fetch.New(cfg.Concurrency, log)
	results, tally := pool.Run(ctx, tasks, provider.FetchSeries)

	rows := make([]model.Row, 0)
	rawRows := 0
	dropped := make(map[string]int)
	for _, result := range results {
		if result.Err != nil {
			continue
		}
		rawRows += len(result.Records)
		taskRows, taskDropped := normalize.Records(result.Task, result.Records)
		rows = append(rows, taskRows...)
		for reason, count := range taskDropped {
			dropped[reason] += count
		}
	}

	deduped := aggregate.Dedup(rows)
	partitions := aggregate.Partitions(deduped)
	summary := aggregate.Summary(deduped)

	report := aggregate.Report{
		TasksAttempted:  tally.Attempted,
		TasksSucceeded:  tally.Succeeded,
		TasksFailed:     tally.Failed,
		RawRows:         rawRows,
		Dropped:         dropped,
		RowsAfterDedup:  len(deduped),
		PartitionCounts: make(map[string]int, len(partitions)),
		Warnings:        aggregate.MonotonicityWarnings(deduped),
	}
	for _, partition := range partitions {
		report.PartitionCounts[partition.Name()] = len(partition.Rows)
		if len(partition.Rows) == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: no rows in range", partition.Name()))
		}
	}

	var quotes []model.Quote
	if prices {
		quotes = fetchQuotes(ctx, provider, log)
	}

	if err := persist(ctx, cfg.DBPath, dryRun, deduped, quotes, log); err != nil {
		return err
	}

	if dryRun {
		log.Info().Msg("dry-run: skipping dataset write")
	} else {
		counts, err := dataset.WriteDatasets(cfg.OutputDir, partitions, summary)
		if err != nil {
			return err
		}
		for name, count := range counts {
			log.Info().Str("file", name).Int("rows", count).Msg("dataset written")
		}
		if len(quotes) > 0 {
			if err := dataset.WriteQuotes(cfg.OutputDir, quotes); err != nil {
				return err
			}
			log.Info().Str("file", dataset.QuotesFileName).Int("rows", len(quotes)).Msg("dataset written")
		}
	}

	logReport(report, log)

	if len(deduped) == 0 {
		return errors.New("no rows produced")
	}
	return nil
}

func fetchQuotes(ctx context.Context, provider providers.Provider, log zerolog.Logger) []model.Quote {
	quotes := make([]model.Quote, 0)
	for _, crop := range model.Crops() {
		records, err := provider.FetchQuotes(ctx, crop)
		if err != nil {
			log.Warn().Str("chain", string(crop)).Err(err).Msg("quote fetch failed")
			continue
		}
		chainQuotes, droppedCount := normalize.Quotes(crop, records)
		if droppedCount > 0 {
			log.Warn().Str("chain", string(crop)).Int("dropped", droppedCount).Msg("malformed quote records dropped")
		}
		quotes = append(quotes, chainQuotes...)
	}
	return quotes
}

func persist(ctx context.Context, dbPath string, dryRun bool, rows []model.Row, quotes []model.Quote, log zerolog.Logger) error {
	if dryRun {
		log.Info().Int("rows", len(rows)).Msg("dry-run: skipping store upsert")
		return nil
	}

	st, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.UpsertRows(ctx, rows); err != nil {
		return err
	}
	if err := st.UpsertQuotes(ctx, quotes); err != nil {
		return err
	}
	if strings.TrimSpace(dbPath) != "" {
		log.Info().Int("rows", len(rows)).Int("quotes", len(quotes)).Str("db", dbPath).Msg("persisted")
	}
	return nil
}

func openStore(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(path)
}

func logReport(report aggregate.Report, log zerolog.Logger) {
	for _, warning := range report.Warnings {
		log.Warn().Msg(warning)
	}
	event := log.Info().
		Int("tasks_attempted", report.TasksAttempted).
		Int("tasks_succeeded", report.TasksSucceeded).
		Int("tasks_failed", report.TasksFailed).
		Int("raw_rows", report.RawRows).
		Int("rows_after_dedup", report.RowsAfterDedup)
	for reason, count := range report.Dropped {
		event = event.Int("dropped_"+reason, count)
	}
	event.Msg("extraction complete")
}
