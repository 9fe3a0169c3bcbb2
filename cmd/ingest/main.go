// Command ingest pulls recent calls from the Gong API and stores them through
// the same ingestion path the HTTP API uses, enqueuing an enrichment job per
// call. Safe to re-run: already-ingested calls are skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/callsift/callsift/internal/config"
	"github.com/callsift/callsift/internal/models"
	"github.com/callsift/callsift/internal/repository"
	"github.com/callsift/callsift/internal/service"
	"github.com/callsift/callsift/pkg/database"
	"github.com/callsift/callsift/pkg/gong"
)

const (
	defaultLookbackDays = 7
	hoursPerDay         = 24
	millisPerSecond     = 1000
)

func main() {
	days := flag.Int("days", defaultLookbackDays, "how many days of calls to pull from Gong")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	if cfg.GongAccessKey == "" || cfg.GongAccessKeySecret == "" {
		slog.Error("GONG_ACCESS_KEY and GONG_ACCESS_KEY_SECRET are required for ingestion")
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Insert-only River client: no workers here, the api process runs the queue.
	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	callsService := service.NewCallsService(service.CallsServiceParams{
		Calls:                 repository.NewCallsRepository(db),
		Segments:              repository.NewTranscriptSegmentsRepository(db),
		Features:              repository.NewFeatureRequestsRepository(db),
		Jobs:                  riverClient,
		EnrichmentMaxAttempts: cfg.EnrichmentMaxAttempts,
		Logger:                slog.Default(),
	})

	gongClient := gong.NewClient(cfg.GongBaseURL, cfg.GongAccessKey, cfg.GongAccessKeySecret)

	to := time.Now()
	from := to.Add(-time.Duration(*days) * hoursPerDay * time.Hour)

	slog.Info("listing calls", "from", from.Format(time.RFC3339), "to", to.Format(time.RFC3339))

	calls, err := gongClient.ListCalls(from, to)
	if err != nil {
		slog.Error("Failed to list calls", "error", err)
		os.Exit(1)
	}

	slog.Info("calls listed", "count", len(calls))

	var ingested, skipped, failed int

	for _, call := range calls {
		switch err := ingestOne(ctx, callsService, gongClient, call); {
		case err == nil:
			ingested++
		case errors.Is(err, service.ErrCallExists):
			slog.Debug("call already ingested", "external_id", call.ID)

			skipped++
		case errors.Is(err, service.ErrCallTooShort):
			slog.Debug("call too short, skipping", "external_id", call.ID, "duration_seconds", call.Duration)

			skipped++
		default:
			slog.Error("ingest call failed", "external_id", call.ID, "error", err)

			failed++
		}
	}

	slog.Info("ingestion finished", "ingested", ingested, "skipped", skipped, "failed", failed)

	if failed > 0 {
		os.Exit(1)
	}
}

// ingestOne fetches one call's transcript from Gong and stores it.
func ingestOne(ctx context.Context, svc *service.CallsService, client *gong.Client, call gong.Call) error {
	startedAt, err := time.Parse(time.RFC3339, call.Started)
	if err != nil {
		return fmt.Errorf("parse call start time %q: %w", call.Started, err)
	}

	transcript, err := client.GetTranscript(call.ID)
	if err != nil {
		return fmt.Errorf("get transcript: %w", err)
	}

	var turns []gong.TranscriptTurn
	if len(transcript.CallTranscripts) > 0 {
		turns = transcript.CallTranscripts[0].Transcript
	}

	text, segments := buildTranscript(turns)

	_, err = svc.IngestCall(ctx, models.CreateCallParams{
		ExternalID:      call.ID,
		Title:           call.Title,
		StartedAt:       startedAt,
		DurationSeconds: call.Duration,
		Transcript:      text,
	}, segments)

	return err
}

// buildTranscript flattens Gong speaker turns into the full transcript text
// plus one segment per turn. Offsets come from the turn's first sentence
// (Gong reports milliseconds into the call).
func buildTranscript(turns []gong.TranscriptTurn) (string, []models.CreateTranscriptSegmentParams) {
	var (
		sb       strings.Builder
		segments []models.CreateTranscriptSegmentParams
	)

	for _, turn := range turns {
		sentences := make([]string, 0, len(turn.Sentences))
		for _, s := range turn.Sentences {
			sentences = append(sentences, s.Text)
		}

		content := strings.TrimSpace(strings.Join(sentences, " "))
		if content == "" {
			continue
		}

		speaker := turn.SpeakerID
		if speaker == "" {
			speaker = "unknown"
		}

		if sb.Len() > 0 {
			sb.WriteString("\n")
		}

		sb.WriteString(speaker)
		sb.WriteString(": ")
		sb.WriteString(content)

		seg := models.CreateTranscriptSegmentParams{
			Speaker: speaker,
			Content: content,
		}
		if len(turn.Sentences) > 0 {
			offset := float64(turn.Sentences[0].Start) / millisPerSecond
			seg.OffsetSeconds = &offset
		}

		segments = append(segments, seg)
	}

	return sb.String(), segments
}

// setupLogging configures slog with the specified log level.
func setupLogging(level string) {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
