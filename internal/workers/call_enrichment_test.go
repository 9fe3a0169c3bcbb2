package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsift/callsift/internal/models"
	"github.com/callsift/callsift/internal/openai"
	"github.com/callsift/callsift/internal/service"
)

type mockEnrichmentCalls struct {
	call        *models.Call
	getErr      error
	setSummary  string
	setSentim   string
	setEmbed    []float32
	setCalled   bool
	setAnalysis error
}

func (m *mockEnrichmentCalls) GetByID(context.Context, uuid.UUID) (*models.Call, error) {
	return m.call, m.getErr
}

func (m *mockEnrichmentCalls) SetAnalysis(_ context.Context, _ uuid.UUID, summary, sentiment string, embedding []float32) error {
	m.setCalled = true
	m.setSummary = summary
	m.setSentim = sentiment
	m.setEmbed = embedding

	return m.setAnalysis
}

type mockEnrichmentSegments struct {
	segments []models.TranscriptSegment
	embedded map[uuid.UUID][]float32
}

func (m *mockEnrichmentSegments) ListByCall(context.Context, uuid.UUID) ([]models.TranscriptSegment, error) {
	return m.segments, nil
}

func (m *mockEnrichmentSegments) SetEmbedding(_ context.Context, id uuid.UUID, embedding []float32) error {
	if m.embedded == nil {
		m.embedded = map[uuid.UUID][]float32{}
	}

	m.embedded[id] = embedding

	return nil
}

type mockEnrichmentFeatures struct {
	deleted bool
	created []models.CreateFeatureRequestParams
}

func (m *mockEnrichmentFeatures) DeleteByCall(context.Context, uuid.UUID) error {
	m.deleted = true

	return nil
}

func (m *mockEnrichmentFeatures) Create(_ context.Context, params models.CreateFeatureRequestParams) (*models.FeatureRequest, error) {
	m.created = append(m.created, params)

	return &models.FeatureRequest{ID: uuid.New(), CallID: params.CallID}, nil
}

type mockAnalysisClient struct {
	analysis    *openai.CallAnalysis
	analysisErr error
	embedErr    error
	embedded    []string
}

func (m *mockAnalysisClient) AnalyzeTranscript(context.Context, string) (*openai.CallAnalysis, error) {
	return m.analysis, m.analysisErr
}

func (m *mockAnalysisClient) CreateEmbedding(_ context.Context, input string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}

	m.embedded = append(m.embedded, input)

	return []float32{0.1, 0.2, 0.3}, nil
}

func enrichmentJob(callID uuid.UUID, attempt, maxAttempts int) *river.Job[service.CallEnrichmentArgs] {
	return &river.Job[service.CallEnrichmentArgs]{
		JobRow: &rivertype.JobRow{Attempt: attempt, MaxAttempts: maxAttempts},
		Args:   service.CallEnrichmentArgs{CallID: callID},
	}
}

func TestCallEnrichmentWorker(t *testing.T) {
	ctx := context.Background()
	callID := uuid.New()

	transcript := "Jordan: We keep hitting onboarding delays.\nSam: Understood."

	analysis := &openai.CallAnalysis{
		Summary:   "Customer reported onboarding delays.",
		Sentiment: "Negative",
		FeatureRequests: []openai.ExtractedFeatureRequest{
			{Request: "Faster onboarding", Context: "we keep hitting onboarding delays", Priority: "high"},
		},
	}

	t.Run("full pipeline stores analysis, segment embeddings, and feature requests", func(t *testing.T) {
		segID := uuid.New()

		calls := &mockEnrichmentCalls{call: &models.Call{ID: callID, Transcript: transcript}}
		segments := &mockEnrichmentSegments{segments: []models.TranscriptSegment{
			{ID: segID, CallID: callID, Content: "We keep hitting onboarding delays."},
		}}
		features := &mockEnrichmentFeatures{}
		ai := &mockAnalysisClient{analysis: analysis}

		worker := NewCallEnrichmentWorker(calls, segments, features, ai, nil, nil)

		err := worker.Work(ctx, enrichmentJob(callID, 1, 3))
		require.NoError(t, err)

		require.True(t, calls.setCalled)
		assert.Equal(t, "Customer reported onboarding delays.", calls.setSummary)
		assert.Equal(t, "negative", calls.setSentim)
		assert.NotEmpty(t, calls.setEmbed)

		assert.Contains(t, segments.embedded, segID)

		require.True(t, features.deleted)
		require.Len(t, features.created, 1)
		assert.Equal(t, "Faster onboarding", features.created[0].Request)
		assert.Equal(t, models.PriorityHigh, features.created[0].Priority)
		assert.NotEmpty(t, features.created[0].Embedding)

		// The feature-request embedding covers both the request and its quote.
		assert.Contains(t, ai.embedded, "Faster onboarding we keep hitting onboarding delays")
	})

	t.Run("missing call is not retried", func(t *testing.T) {
		calls := &mockEnrichmentCalls{getErr: errors.New("not found")}
		worker := NewCallEnrichmentWorker(calls, &mockEnrichmentSegments{}, &mockEnrichmentFeatures{}, &mockAnalysisClient{}, nil, nil)

		err := worker.Work(ctx, enrichmentJob(callID, 1, 3))
		assert.NoError(t, err)
	})

	t.Run("empty transcript is skipped", func(t *testing.T) {
		calls := &mockEnrichmentCalls{call: &models.Call{ID: callID, Transcript: "   "}}
		ai := &mockAnalysisClient{}
		worker := NewCallEnrichmentWorker(calls, &mockEnrichmentSegments{}, &mockEnrichmentFeatures{}, ai, nil, nil)

		err := worker.Work(ctx, enrichmentJob(callID, 1, 3))
		require.NoError(t, err)
		assert.False(t, calls.setCalled)
	})

	t.Run("provider failure before last attempt returns an error for retry", func(t *testing.T) {
		calls := &mockEnrichmentCalls{call: &models.Call{ID: callID, Transcript: transcript}}
		ai := &mockAnalysisClient{analysisErr: errors.New("rate limited")}
		worker := NewCallEnrichmentWorker(calls, &mockEnrichmentSegments{}, &mockEnrichmentFeatures{}, ai, nil, nil)

		err := worker.Work(ctx, enrichmentJob(callID, 1, 3))
		assert.Error(t, err)
	})

	t.Run("provider failure on last attempt gives up without error", func(t *testing.T) {
		calls := &mockEnrichmentCalls{call: &models.Call{ID: callID, Transcript: transcript}}
		ai := &mockAnalysisClient{analysisErr: errors.New("rate limited")}
		worker := NewCallEnrichmentWorker(calls, &mockEnrichmentSegments{}, &mockEnrichmentFeatures{}, ai, nil, nil)

		err := worker.Work(ctx, enrichmentJob(callID, 3, 3))
		assert.NoError(t, err)
	})

	t.Run("blank extracted requests are dropped", func(t *testing.T) {
		calls := &mockEnrichmentCalls{call: &models.Call{ID: callID, Transcript: transcript}}
		features := &mockEnrichmentFeatures{}
		ai := &mockAnalysisClient{analysis: &openai.CallAnalysis{
			Summary:   "s",
			Sentiment: "neutral",
			FeatureRequests: []openai.ExtractedFeatureRequest{
				{Request: "  ", Context: "noise"},
				{Request: "Real request", Context: "quote", Priority: "Medium"},
			},
		}}

		worker := NewCallEnrichmentWorker(calls, &mockEnrichmentSegments{}, features, ai, nil, nil)

		err := worker.Work(ctx, enrichmentJob(callID, 1, 3))
		require.NoError(t, err)
		require.Len(t, features.created, 1)
		assert.Equal(t, "Real request", features.created[0].Request)
	})
}
