// Command chat is an interactive REPL for asking questions about ingested
// calls from a terminal, using the same query pipeline as POST /v1/ask.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/callsift/callsift/internal/config"
	"github.com/callsift/callsift/internal/openai"
	"github.com/callsift/callsift/internal/repository"
	"github.com/callsift/callsift/internal/search"
	"github.com/callsift/callsift/internal/service"
	"github.com/callsift/callsift/pkg/database"
)

const (
	hoursPerDay             = 24
	queryEmbeddingCacheSize = 100
)

func main() {
	window := flag.String("window", "all", `time window: "all" or "recent"`)
	limit := flag.Int("limit", 0, "max results per corpus (0 uses the server default)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Keep the REPL output clean; only warnings and errors reach the terminal.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if cfg.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required for chat")
		os.Exit(1)
	}

	mode := search.WindowMode(*window)

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	aiClient := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
		openai.WithChatModel(cfg.ChatModel),
		openai.WithDimensions(cfg.EmbeddingDimensions),
	)

	queryCache, err := lru.New[string, []float32](queryEmbeddingCacheSize)
	if err != nil {
		slog.Error("Failed to create query cache", "error", err)
		os.Exit(1)
	}

	fanout := search.NewFanout(
		search.NewMatcher(cfg.EmbeddingDimensions),
		search.Searchers{
			Summaries:       repository.NewCallsRepository(db),
			Segments:        repository.NewTranscriptSegmentsRepository(db),
			FeatureRequests: repository.NewFeatureRequestsRepository(db),
		},
		search.Thresholds{
			Summaries:       cfg.SummaryThreshold,
			Segments:        cfg.SegmentThreshold,
			FeatureRequests: cfg.FeatureRequestThreshold,
		},
		cfg.SearchTimeout,
		search.Hooks{},
	)

	queryService := service.NewQueryService(service.QueryServiceParams{
		EmbeddingClient:  aiClient,
		CompletionClient: aiClient,
		Fanout:           fanout,
		DefaultLimit:     cfg.SearchLimit,
		RecentLookback:   time.Duration(cfg.RecentWindowDays) * hoursPerDay * time.Hour,
		ContextMaxChars:  cfg.ContextMaxChars,
		QueryCache:       queryCache,
	})

	fmt.Println("callsift chat - ask about your calls (Ctrl-D to quit)")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		result, err := queryService.Ask(ctx, question, *limit, mode)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)

			continue
		}

		fmt.Println()
		fmt.Println(result.Answer)
		printSources(result)
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		slog.Error("read input", "error", err)
		os.Exit(1)
	}
}

// printSources lists the citations behind the answer.
func printSources(result service.AskResult) {
	if len(result.Context.Citations) == 0 {
		return
	}

	keys := make([]string, 0, len(result.Context.Citations))
	for key := range result.Context.Citations {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	fmt.Println()
	fmt.Println("Sources:")

	for _, key := range keys {
		citation := result.Context.Citations[key]
		fmt.Printf("  [%s] %s (%s)\n", key, citation.CallTitle, citation.CreatedAt.Format("2006-01-02"))
	}

	if result.Results.Partial() {
		fmt.Println("  (some sources were unavailable; results may be incomplete)")
	}
}
