// Command magraph is the CLI entry point exposing the three control-surface
// verbs as subcommands, plus a serve subcommand starting the REST façade.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/txplain/txplain/internal/api"
	"github.com/txplain/txplain/internal/attribution"
	"github.com/txplain/txplain/internal/bank"
	"github.com/txplain/txplain/internal/config"
	"github.com/txplain/txplain/internal/fetcher"
	"github.com/txplain/txplain/internal/pipeline"
	"github.com/txplain/txplain/internal/store"
	"github.com/txplain/txplain/internal/store/pg"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := newLogger()

	settings, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("magraph: failed to load configuration")
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(settings, &logger, os.Args[2:])
	case "run-pipeline":
		runPipelineCmd(settings, &logger, os.Args[2:])
	case "submit-manual-input":
		runSubmitManualInput(settings, &logger, os.Args[2:])
	case "serve":
		runServe(settings, &logger, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: magraph <ingest|run-pipeline|submit-manual-input|serve> [flags]")
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if os.Getenv("ENV") != "production" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", "magraph").Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "magraph").Logger()
}

// openStore connects to Postgres using settings.DatabaseURL. Every
// subcommand owns its own store connection; none of them share a
// package-level global.
func openStore(ctx context.Context, settings *config.Settings) (store.Store, func(), error) {
	s, err := pg.New(ctx, settings.DatabaseURL, settings.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("magraph: connect to store: %w", err)
	}
	return s, s.Close, nil
}

// newFetcher constructs the process-scoped filing-registry client, with the
// rate limiter as an explicit struct constructed once here and threaded by
// reference rather than held as a package-level variable anywhere.
func newFetcher(settings *config.Settings, log *zerolog.Logger) (*fetcher.Client, error) {
	rl := fetcher.NewRateLimiter(settings.SECRateLimitRequests, time.Duration(settings.SECRateLimitWindowSeconds)*time.Second)
	cfg := fetcher.DefaultConfig()
	cfg.BaseURL = settings.SECBaseURL
	cfg.UserAgent = settings.UserAgent()
	cfg.RateLimiter = rl
	return fetcher.New(cfg, log)
}

// newCore wires a pipeline.Core from settings, loading the attribution
// config fail-fast the way the original service requires (§9's "static
// global state" note: the Config is loaded once and passed by reference,
// never re-read mid-process).
func newCore(ctx context.Context, settings *config.Settings, log *zerolog.Logger) (*pipeline.Core, func(), error) {
	s, closeStore, err := openStore(ctx, settings)
	if err != nil {
		return nil, nil, err
	}

	if err := bank.SeedBanks(ctx, s); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("magraph: seed bank registry: %w", err)
	}

	f, err := newFetcher(settings, log)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("magraph: construct fetcher: %w", err)
	}

	attrCfg, err := attribution.LoadAttributionConfig(settings.AttributionConfigPath)
	if err != nil {
		f.Close()
		closeStore()
		return nil, nil, fmt.Errorf("magraph: load attribution config: %w", err)
	}
	engine := attribution.New(s, attrCfg)

	cleanup := func() {
		f.Close()
		closeStore()
	}
	return pipeline.New(s, f, engine, log), cleanup, nil
}

func runIngest(settings *config.Settings, log *zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cik := fs.String("cik", "", "company CIK to ingest filings for")
	forms := fs.String("forms", "", "comma-separated form types (e.g. 8-K,S-4)")
	start := fs.String("start", "", "start date, YYYY-MM-DD")
	end := fs.String("end", "", "end date, YYYY-MM-DD")
	fs.Parse(args)

	if *cik == "" {
		log.Fatal().Msg("magraph ingest: -cik is required")
	}

	var formTypes []string
	if *forms != "" {
		formTypes = strings.Split(*forms, ",")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	core, cleanup, err := newCore(ctx, settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("magraph ingest: setup failed")
	}
	defer cleanup()

	stats, err := core.Ingest(ctx, *cik, formTypes, *start, *end)
	if err != nil {
		log.Fatal().Err(err).Msg("magraph ingest: failed")
	}
	log.Info().Int("filings_found", stats.FilingsFound).Int("filings_ingested", stats.FilingsIngested).
		Int("facts_extracted", stats.FactsExtracted).Int("alerts_raised", stats.AlertsRaised).Msg("ingest complete")
}

func runPipelineCmd(settings *config.Settings, log *zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("run-pipeline", flag.ExitOnError)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	core, cleanup, err := newCore(ctx, settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("magraph run-pipeline: setup failed")
	}
	defer cleanup()

	summaries, err := core.RunPipeline(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("magraph run-pipeline: failed")
	}
	for _, s := range summaries {
		log.Info().Str("stage", s.Stage).Fields(toAnyMap(s.Details)).Msg("stage complete")
	}
}

func toAnyMap(m map[string]int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func runSubmitManualInput(settings *config.Settings, log *zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("submit-manual-input", flag.ExitOnError)
	alertID := fs.Int64("alert", 0, "alert id this manual input resolves")
	enteredBy := fs.String("entered-by", "", "identifier of the analyst submitting this input")
	inputType := fs.String("input-type", "manual_review", "free-form input type tag")
	payloadPath := fs.String("payload", "", "path to a JSON file holding the payload data")
	notes := fs.String("notes", "", "free-form resolution notes")
	fs.Parse(args)

	if *alertID == 0 || *enteredBy == "" || *payloadPath == "" {
		log.Fatal().Msg("magraph submit-manual-input: -alert, -entered-by, and -payload are required")
	}

	raw, err := os.ReadFile(*payloadPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *payloadPath).Msg("magraph submit-manual-input: failed to read payload")
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Fatal().Err(err).Msg("magraph submit-manual-input: payload is not valid JSON")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	core, cleanup, err := newCore(ctx, settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("magraph submit-manual-input: setup failed")
	}
	defer cleanup()

	input, err := core.SubmitManualInput(ctx, *alertID, *inputType, data, *enteredBy, *notes)
	if err != nil {
		log.Fatal().Err(err).Msg("magraph submit-manual-input: failed")
	}
	log.Info().Int64("manual_input_id", input.ID).Int64("alert_id", *alertID).Msg("manual input submitted")
}

func runServe(settings *config.Settings, log *zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	httpAddr := fs.String("http", ":8080", "HTTP server address")
	fs.Parse(args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, cleanup, err := newCore(ctx, settings, log)
	if err != nil {
		log.Fatal().Err(err).Msg("magraph serve: setup failed")
	}
	defer cleanup()

	server := api.NewServer(*httpAddr, core, log)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Str("address", *httpAddr).Msg("magraph serve: ready")

	select {
	case sig := <-signalChan:
		log.Info().Str("signal", sig.String()).Msg("magraph serve: shutdown requested")
	case err := <-errChan:
		log.Error().Err(err).Msg("magraph serve: server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("magraph serve: error during shutdown")
	}
	log.Info().Msg("magraph serve: shutdown complete")
}
