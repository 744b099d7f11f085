// Command autoclipper drives the clip extraction pipeline: a durable worker
// that executes Pipeline Orchestrator stages off three named queues, a feed
// poller that ingests newly published videos per Subscription, and a small
// set of manual/debug operations for operators.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/autoclipper/pipeline/internal/candidates"
	"github.com/autoclipper/pipeline/internal/config"
	"github.com/autoclipper/pipeline/internal/dispatch"
	"github.com/autoclipper/pipeline/internal/dispatch/pgqueue"
	"github.com/autoclipper/pipeline/internal/feed"
	"github.com/autoclipper/pipeline/internal/health"
	"github.com/autoclipper/pipeline/internal/orchestrator"
	"github.com/autoclipper/pipeline/internal/recut"
	"github.com/autoclipper/pipeline/internal/render"
	"github.com/autoclipper/pipeline/internal/resilience"
	"github.com/autoclipper/pipeline/internal/store"
	"github.com/autoclipper/pipeline/internal/store/postgres"
	"github.com/autoclipper/pipeline/internal/wsprogress"
	gwllm "github.com/autoclipper/pipeline/pkg/gateway/llm"
	llmgateway "github.com/autoclipper/pipeline/pkg/gateway/llm/anyllm"
	"github.com/autoclipper/pipeline/pkg/gateway/media/ffmpeg"
	"github.com/autoclipper/pipeline/pkg/gateway/speech/whisper"
	feedyoutube "github.com/autoclipper/pipeline/pkg/gateway/feed/youtube"
	"github.com/autoclipper/pipeline/pkg/provider/llm"
	llmprovider "github.com/autoclipper/pipeline/pkg/provider/llm/anyllm"
	openaidirect "github.com/autoclipper/pipeline/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "start-worker":
		return runStartWorker(rest)
	case "start-poller":
		return runStartPoller(rest)
	case "manual-backfill":
		return runManualBackfill(rest)
	case "manual-submit":
		return runManualSubmit(rest)
	case "inspect-item":
		return runInspectItem(rest)
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "autoclipper: unknown subcommand %q\n", sub)
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: autoclipper <subcommand> [flags]

subcommands:
  start-worker -config FILE -queues io,ai,render   run a Dispatcher worker pool
  start-poller -config FILE                        run the Feed Poller loop
  manual-backfill -config FILE -subscription ID -n N   backfill up to N items
  manual-submit -config FILE -url URL               submit a single video URL
  inspect-item -config FILE -item ID                print an Item's pipeline state`)
}

// ── shared wiring ────────────────────────────────────────────────────────────

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	path := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*path)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildStore connects the durable Postgres-backed store per cfg.Store.DatabaseURL.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := postgres.NewStore(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	return st, nil
}

// buildGateways constructs the three external-capability Gateways (C4, C5,
// C6) from cfg.Gateways.
func buildGateways(cfg *config.Config) (*ffmpeg.Gateway, *whisper.Gateway, gwllm.Gateway, error) {
	mediaGW, err := ffmpeg.New(cfg.Gateways.Media.WorkDir, ffmpeg.WithBinaries(cfg.Gateways.Media.YtDlpPath, cfg.Gateways.Media.FFmpegPath))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build media gateway: %w", err)
	}

	speechGW, err := whisper.New(cfg.Gateways.Speech.ServerURL, whisper.WithPass1Params(cfg.Gateways.Speech.Pass1Model, cfg.Gateways.Speech.Pass1Beam), whisper.WithPass2Params(cfg.Gateways.Speech.Pass2Model, cfg.Gateways.Speech.Pass2Beam))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build speech gateway: %w", err)
	}

	llmProv, err := llmprovider.NewOpenAI(cfg.Gateways.LLM.Model, anyllmlib.WithAPIKey(cfg.Gateways.LLM.APIKey))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build llm provider: %w", err)
	}

	var provider llm.Provider = llmProv
	if cfg.Gateways.LLM.FallbackModel != "" {
		fallbackProv, err := openaidirect.New(cfg.Gateways.LLM.FallbackAPIKey, cfg.Gateways.LLM.FallbackModel)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build fallback llm provider: %w", err)
		}
		failover := resilience.NewLLMFallback(llmProv, "primary", resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 3},
		})
		failover.AddFallback("fallback", fallbackProv)
		provider = failover
	}

	// The LLM gateway is wrapped in a circuit breaker: a stalled or rate-
	// limited provider should fail shortlist/refine/QC calls fast rather
	// than stack up slow requests behind it.
	llmGW := gwllm.WithCircuitBreaker(llmgateway.New(provider), resilience.CircuitBreakerConfig{Name: "llm"})

	return mediaGW, speechGW, llmGW, nil
}

func buildOrchestrator(cfg *config.Config, st store.Store, d *dispatch.Dispatcher, mediaGW *ffmpeg.Gateway, speechGW *whisper.Gateway, llmGW gwllm.Gateway, log *slog.Logger) *orchestrator.Orchestrator {
	gen := candidates.NewGenerator(mediaGW)
	qc := recut.NewQualityControl(llmGW)
	renderer := render.NewPlanner(mediaGW, cfg.Gateways.Media.WorkDir)

	orchCfg := orchestrator.Config{
		Candidates: candidates.Policy{
			MinLen:   float64(cfg.Candidates.MinClipSec),
			MaxLen:   float64(cfg.Candidates.MaxClipSec),
			ShiftSec: float64(cfg.Candidates.ShiftSec),
			Limit:    cfg.Candidates.Limit,
		},
		ShortlistSendMax: cfg.Shortlist.SendMax,
		ShortlistMax:     cfg.Shortlist.Max,
		WorkDir:          cfg.Gateways.Media.WorkDir,
	}

	orch := orchestrator.New(st, d, mediaGW, speechGW, llmGW, gen, qc, renderer, orchCfg, log)
	orch.RegisterHandlers()
	return orch
}

func pollInterval(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Poller.IntervalSeconds) * time.Second
}

// ── start-worker ─────────────────────────────────────────────────────────────

func runStartWorker(args []string) int {
	fs := flag.NewFlagSet("start-worker", flag.ExitOnError)
	queueList := fs.String("queues", "io,ai,render", "comma-separated queue names to claim work from")
	workers := fs.Int("workers", 4, "number of concurrent worker goroutines")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoclipper: %v\n", err)
		return 1
	}

	log := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(log)

	queues, err := parseQueueNames(*queueList)
	if err != nil {
		log.Error("invalid -queues", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("failed to connect store", "error", err)
		return 1
	}
	defer st.Close()

	jobStore, err := pgqueue.NewStore(ctx, cfg.Queue.BrokerURL)
	if err != nil {
		log.Error("failed to connect queue", "error", err)
		return 1
	}

	d := dispatch.New(jobStore, log)

	mediaGW, speechGW, llmGW, err := buildGateways(cfg)
	if err != nil {
		log.Error("failed to build gateways", "error", err)
		return 1
	}

	orch := buildOrchestrator(cfg, st, d, mediaGW, speechGW, llmGW, log)

	hub := wsprogress.NewHub(log)
	orch.OnProgress = hub.Publish

	var progressSrv *http.Server
	if cfg.Server.ListenAddr != "" {
		healthHandler := health.New(
			health.Checker{Name: "store", Check: func(checkCtx context.Context) error {
				_, err := st.Items().Get(checkCtx, "")
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
				return nil
			}},
		)
		mux := http.NewServeMux()
		mux.Handle("/progress", hub)
		healthHandler.Register(mux)
		progressSrv = &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
		go func() {
			if err := progressSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("progress server exited", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = progressSrv.Shutdown(shutdownCtx)
		}()
	}

	printStartupBanner(cfg, "worker", queues)
	log.Info("worker ready — press Ctrl+C to shut down", "queues", queues, "workers", *workers, "progress_addr", cfg.Server.ListenAddr)

	if err := d.Run(ctx, queues, *workers); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker exited", "error", err)
		return 1
	}
	log.Info("worker stopped")
	return 0
}

func parseQueueNames(list string) ([]dispatch.QueueName, error) {
	var names []dispatch.QueueName
	for _, part := range splitComma(list) {
		switch dispatch.QueueName(part) {
		case dispatch.QueueIO:
			names = append(names, dispatch.QueueIO)
		case dispatch.QueueAI:
			names = append(names, dispatch.QueueAI)
		case dispatch.QueueRender:
			names = append(names, dispatch.QueueRender)
		default:
			return nil, fmt.Errorf("unknown queue %q", part)
		}
	}
	if len(names) == 0 {
		return nil, errors.New("no queues given")
	}
	return names, nil
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// ── start-poller ─────────────────────────────────────────────────────────────

func runStartPoller(args []string) int {
	fs := flag.NewFlagSet("start-poller", flag.ExitOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoclipper: %v\n", err)
		return 1
	}

	log := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("failed to connect store", "error", err)
		return 1
	}
	defer st.Close()

	jobStore, err := pgqueue.NewStore(ctx, cfg.Queue.BrokerURL)
	if err != nil {
		log.Error("failed to connect queue", "error", err)
		return 1
	}
	d := dispatch.New(jobStore, log)

	mediaGW, speechGW, llmGW, err := buildGateways(cfg)
	if err != nil {
		log.Error("failed to build gateways", "error", err)
		return 1
	}
	orch := buildOrchestrator(cfg, st, d, mediaGW, speechGW, llmGW, log)

	poller := feed.New(st, feedyoutube.New(), orch, pollInterval(cfg), log)

	printStartupBanner(cfg, "poller", nil)
	log.Info("poller ready — press Ctrl+C to shut down", "interval", pollInterval(cfg))

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("poller exited", "error", err)
		return 1
	}
	log.Info("poller stopped")
	return 0
}

// ── manual-backfill ──────────────────────────────────────────────────────────

func runManualBackfill(args []string) int {
	fs := flag.NewFlagSet("manual-backfill", flag.ExitOnError)
	subscriptionID := fs.String("subscription", "", "subscription id to backfill")
	n := fs.Int("n", feed.MaxBackfill, "number of most recent entries to backfill (bounded at 10)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoclipper: %v\n", err)
		return 1
	}
	if *subscriptionID == "" {
		fmt.Fprintln(os.Stderr, "autoclipper: -subscription is required")
		return 2
	}

	log := newLogger(cfg.Server.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("failed to connect store", "error", err)
		return 1
	}
	defer st.Close()

	jobStore, err := pgqueue.NewStore(ctx, cfg.Queue.BrokerURL)
	if err != nil {
		log.Error("failed to connect queue", "error", err)
		return 1
	}
	d := dispatch.New(jobStore, log)

	mediaGW, speechGW, llmGW, err := buildGateways(cfg)
	if err != nil {
		log.Error("failed to build gateways", "error", err)
		return 1
	}
	orch := buildOrchestrator(cfg, st, d, mediaGW, speechGW, llmGW, log)

	poller := feed.New(st, feedyoutube.New(), orch, pollInterval(cfg), log)

	created, err := poller.ManualBackfill(ctx, *subscriptionID, *n)
	if err != nil {
		log.Error("manual backfill failed", "error", err)
		return 1
	}
	fmt.Printf("created %d item(s) for subscription %s\n", created, *subscriptionID)
	return 0
}

// ── manual-submit ────────────────────────────────────────────────────────────

func runManualSubmit(args []string) int {
	fs := flag.NewFlagSet("manual-submit", flag.ExitOnError)
	videoURL := fs.String("url", "", "video URL or bare video id to submit")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoclipper: %v\n", err)
		return 1
	}
	if *videoURL == "" {
		fmt.Fprintln(os.Stderr, "autoclipper: -url is required")
		return 2
	}

	log := newLogger(cfg.Server.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("failed to connect store", "error", err)
		return 1
	}
	defer st.Close()

	jobStore, err := pgqueue.NewStore(ctx, cfg.Queue.BrokerURL)
	if err != nil {
		log.Error("failed to connect queue", "error", err)
		return 1
	}
	d := dispatch.New(jobStore, log)

	mediaGW, speechGW, llmGW, err := buildGateways(cfg)
	if err != nil {
		log.Error("failed to build gateways", "error", err)
		return 1
	}
	orch := buildOrchestrator(cfg, st, d, mediaGW, speechGW, llmGW, log)

	poller := feed.New(st, feedyoutube.New(), orch, pollInterval(cfg), log)

	item, err := poller.ManualSubmit(ctx, *videoURL)
	if err != nil {
		log.Error("manual submit failed", "error", err)
		return 1
	}
	fmt.Printf("created item %s (external id %s)\n", item.ID, item.ExternalItemID)
	return 0
}

// ── inspect-item ─────────────────────────────────────────────────────────────

// runInspectItem is a debug operation: it prints an Item's phase, progress,
// and clip summary so an operator can see where a video is stuck without
// reaching for a database client directly.
func runInspectItem(args []string) int {
	fs := flag.NewFlagSet("inspect-item", flag.ExitOnError)
	itemID := fs.String("item", "", "item id to inspect")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoclipper: %v\n", err)
		return 1
	}
	if *itemID == "" {
		fmt.Fprintln(os.Stderr, "autoclipper: -item is required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoclipper: %v\n", err)
		return 1
	}
	defer st.Close()

	item, err := st.Items().Get(ctx, *itemID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoclipper: %v\n", err)
		return 1
	}
	clips, err := st.Clips().ListByItem(ctx, item.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoclipper: %v\n", err)
		return 1
	}

	fmt.Printf("item        %s\n", item.ID)
	fmt.Printf("title       %s\n", item.Title)
	fmt.Printf("source      %s\n", item.Source)
	fmt.Printf("phase       %s (progress %d%%)\n", item.Phase, item.Progress)
	if item.ErrorMessage != "" {
		fmt.Printf("error       %s\n", item.ErrorMessage)
	}
	fmt.Printf("strategy    %s\n", item.Strategy)
	fmt.Printf("duration    %.1fs\n", item.DurationSec)
	fmt.Printf("clips       %d\n", len(clips))
	for _, c := range clips {
		fmt.Printf("  - %s  [%.1f, %.1f)  phase=%s  final_score=%.1f\n", c.ID, c.StartSec, c.EndSec, c.RenderPhase, c.FinalScore)
	}
	return 0
}

// ── startup banner ───────────────────────────────────────────────────────────

func printStartupBanner(cfg *config.Config, role string, queues []dispatch.QueueName) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Printf("║  autoclipper %-10s                 ║\n", role)
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  log level       : %-19s ║\n", string(cfg.Server.LogLevel))
	if queues != nil {
		fmt.Printf("║  queues          : %-19v ║\n", queues)
	} else {
		fmt.Printf("║  poll interval   : %-19s ║\n", pollInterval(cfg))
	}
	fmt.Printf("║  candidate len   : %d-%ds          ║\n", cfg.Candidates.MinClipSec, cfg.Candidates.MaxClipSec)
	fmt.Printf("║  shortlist max   : %-19d ║\n", cfg.Shortlist.Max)
	fmt.Println("╚═══════════════════════════════════════╝")
}
