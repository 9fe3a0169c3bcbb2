package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/callsift/callsift/internal/api/handlers"
	"github.com/callsift/callsift/internal/api/middleware"
	"github.com/callsift/callsift/internal/config"
	"github.com/callsift/callsift/internal/models"
	"github.com/callsift/callsift/internal/observability"
	"github.com/callsift/callsift/internal/openai"
	"github.com/callsift/callsift/internal/repository"
	"github.com/callsift/callsift/internal/search"
	"github.com/callsift/callsift/internal/service"
	"github.com/callsift/callsift/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

const (
	riverQueueDepthInterval = 15 * time.Second
	queryEmbeddingCacheSize = 1000

	hoursPerDay = 24
)

// setupMetrics creates the meter provider and callsift metrics when metrics are enabled.
// When NewMeterProvider returns nil (unsupported or disabled exporter), returns (nil, nil, nil) (metrics disabled).
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, *observability.Metrics, error) {
	mp, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("callsift"))
	if err != nil {
		err2 := observability.ShutdownMeterProvider(context.Background(), mp)
		if err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, metrics, nil
}

// newSearchHooks wires the fan-out notifications to logs and (when enabled) metrics.
func newSearchHooks(metrics observability.SearchMetrics) search.Hooks {
	return search.Hooks{
		OnRetry: func(corpus models.Corpus, err error) {
			slog.Warn("corpus search retrying", "corpus", corpus, "error", err)

			if metrics != nil {
				metrics.RecordRetry(context.Background(), string(corpus))
			}
		},
		OnPartialResult: func(corpus models.Corpus, err error) {
			slog.Error("corpus search failed after retry, degrading to partial results",
				"corpus", corpus, "error", err)

			if metrics != nil {
				metrics.RecordPartialResult(context.Background(), string(corpus))
			}
		},
		OnSearchDone: func(corpus models.Corpus, outcome string, duration time.Duration, matches int) {
			if metrics == nil {
				return
			}

			metrics.RecordCorpusSearch(context.Background(), string(corpus), outcome, duration)

			if outcome == "success" {
				metrics.RecordMatchesReturned(context.Background(), string(corpus), int64(matches))
			}
		},
	}
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err           error
		meterProvider *sdkmetric.MeterProvider
		metrics       *observability.Metrics
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var (
		searchMetrics     observability.SearchMetrics
		enrichmentMetrics observability.EnrichmentMetrics
		cacheMetrics      observability.CacheMetrics
	)
	if metrics != nil {
		searchMetrics = metrics.Search
		enrichmentMetrics = metrics.Enrichment
		cacheMetrics = metrics.Cache
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			if meterProvider != nil {
				if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
					slog.Error("shutdown meter provider after tracer provider error", "error", err2)
				}
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Install TraceContextHandler unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(defaultHandler)))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	callsRepo := repository.NewCallsRepository(db)
	segmentsRepo := repository.NewTranscriptSegmentsRepository(db)
	featuresRepo := repository.NewFeatureRequestsRepository(db)

	// Enrichment and querying both need OpenAI; without a key the server still
	// serves ingestion and call reads, but /v1/search and /v1/ask are not registered.
	var aiClient *openai.Client
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("enrichment and querying disabled (OPENAI_API_KEY not set)")
	} else {
		aiClient = openai.NewClient(cfg.OpenAIAPIKey,
			openai.WithEmbeddingModel(cfg.EmbeddingModel),
			openai.WithChatModel(cfg.ChatModel),
			openai.WithDimensions(cfg.EmbeddingDimensions),
		)
	}

	var riverClient *river.Client[pgx.Tx]

	if aiClient != nil {
		limiter := rate.NewLimiter(rate.Limit(cfg.EmbeddingRateLimit), 1)
		enrichmentWorker := workers.NewCallEnrichmentWorker(
			callsRepo, segmentsRepo, featuresRepo, aiClient, limiter, enrichmentMetrics,
		)

		riverWorkers := river.NewWorkers()
		river.AddWorker(riverWorkers, enrichmentWorker)

		riverClient, err = river.NewClient(riverpgxv5.New(db), &river.Config{
			Queues: map[string]river.QueueConfig{
				service.EnrichmentQueueName: {MaxWorkers: cfg.EnrichmentMaxConcurrent},
			},
			Workers: riverWorkers,
		})
		if err != nil {
			if obsErr := shutdownObservability(context.Background(), tracerProvider, meterProvider); obsErr != nil {
				slog.Error("shutdown observability after River client error", "error", obsErr)
			}

			return nil, fmt.Errorf("create River client: %w", err)
		}
	}

	var jobInserter service.EnrichmentJobInserter
	if riverClient != nil {
		jobInserter = riverClient
	}

	callsService := service.NewCallsService(service.CallsServiceParams{
		Calls:                 callsRepo,
		Segments:              segmentsRepo,
		Features:              featuresRepo,
		Jobs:                  jobInserter,
		EnrichmentMaxAttempts: cfg.EnrichmentMaxAttempts,
		EnrichmentMetrics:     enrichmentMetrics,
		Logger:                slog.Default(),
	})

	var queryHandler *handlers.QueryHandler

	if aiClient != nil {
		queryCache, err := lru.New[string, []float32](queryEmbeddingCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query embedding cache: %w", err)
		}

		matcher := search.NewMatcher(cfg.EmbeddingDimensions)
		fanout := search.NewFanout(
			matcher,
			search.Searchers{
				Summaries:       callsRepo,
				Segments:        segmentsRepo,
				FeatureRequests: featuresRepo,
			},
			search.Thresholds{
				Summaries:       cfg.SummaryThreshold,
				Segments:        cfg.SegmentThreshold,
				FeatureRequests: cfg.FeatureRequestThreshold,
			},
			cfg.SearchTimeout,
			newSearchHooks(searchMetrics),
		)

		queryService := service.NewQueryService(service.QueryServiceParams{
			EmbeddingClient:  aiClient,
			CompletionClient: aiClient,
			Fanout:           fanout,
			DefaultLimit:     cfg.SearchLimit,
			RecentLookback:   time.Duration(cfg.RecentWindowDays) * hoursPerDay * time.Hour,
			ContextMaxChars:  cfg.ContextMaxChars,
			QueryCache:       queryCache,
			CacheMetrics:     cacheMetrics,
			Logger:           slog.Default(),
		})
		queryHandler = handlers.NewQueryHandler(queryService)
	}

	callsHandler := handlers.NewCallsHandler(callsService)
	healthHandler := handlers.NewHealthHandler()

	server := newHTTPServer(cfg, healthHandler, callsHandler, queryHandler, metrics, meterProvider, tracerProvider)

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health, API key on /v1/).
// Handler chain: RequestID -> otelhttp(Metrics(Logging(MaxBody(mux)))) so access logs
// get trace_id/span_id from context and metrics see the final status code.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	calls *handlers.CallsHandler,
	query *handlers.QueryHandler,
	metrics *observability.Metrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/calls", calls.Ingest)
	protected.HandleFunc("GET /v1/calls", calls.List)
	protected.HandleFunc("GET /v1/calls/{id}", calls.Get)
	protected.HandleFunc("GET /v1/calls/{id}/feature-requests", calls.ListFeatureRequests)

	// Query is nil when no OpenAI key is configured; search and ask are not registered then.
	if query != nil {
		protected.HandleFunc("POST /v1/search", query.Search)
		protected.HandleFunc("POST /v1/ask", query.Ask)
	}

	protectedWithAuth := middleware.Auth(cfg.APIKey)(protected)
	mux := http.NewServeMux()
	mux.Handle("/v1/", protectedWithAuth)
	mux.Handle("/", public)

	var httpMetrics observability.HTTPMetrics
	if metrics != nil {
		httpMetrics = metrics.HTTP
	}

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log (trace_id/span_id in access logs).
	inner := middleware.MaxBody(cfg.MaxRequestBodyBytes, httpMetrics)(mux)
	inner = middleware.Logging(inner)
	inner = middleware.Metrics(httpMetrics)(inner)
	handler := otelhttp.NewHandler(inner, "callsift-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 30 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled (e.g. signal)
// or a component fails. When ctx is cancelled or a component fails, it cancels the internal
// River context so River and the queue depth poller stop before Run returns. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if a.river != nil {
		if a.metrics != nil && a.metrics.Enrichment != nil {
			go runRiverQueueDepthPoller(riverCtx, a.db, a.metrics.Enrichment)
		}

		go func() {
			if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
				select {
				case runErr <- fmt.Errorf("river: %w", err):
				default:
				}
			}
		}()
	}

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// runRiverQueueDepthPoller periodically updates the enrichment queue depth gauge.
func runRiverQueueDepthPoller(ctx context.Context, db *pgxpool.Pool, metrics observability.EnrichmentMetrics) {
	ticker := time.NewTicker(riverQueueDepthInterval)
	defer ticker.Stop()

	update := func() {
		var count int64

		err := db.QueryRow(ctx,
			`SELECT COUNT(*) FROM river_job WHERE queue = $1 AND state IN ($2, $3, $4)`,
			service.EnrichmentQueueName,
			rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
		).Scan(&count)
		if err != nil {
			slog.WarnContext(ctx, "river queue depth poll failed", "error", err)

			return
		}

		metrics.SetQueueDepth(ctx, count)
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server and River in order. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if a.river != nil {
			if stopErr := a.river.Stop(ctx); stopErr != nil {
				slog.Error("river stop during server shutdown", "error", stopErr)
			}
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if a.river != nil {
		if err = a.river.Stop(ctx); err != nil {
			return fmt.Errorf("river stop: %w", err)
		}
	}

	return nil
}
