package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsift/callsift/internal/callerrors"
	"github.com/callsift/callsift/internal/models"
	"github.com/callsift/callsift/internal/search"
	"github.com/callsift/callsift/internal/service"
)

type mockQueryService struct {
	searchResults search.Results
	searchErr     error
	askResult     service.AskResult
	askErr        error
	gotQuery      string
	gotLimit      int
	gotMode       search.WindowMode
}

func (m *mockQueryService) Search(_ context.Context, query string, limit int, mode search.WindowMode) (search.Results, error) {
	m.gotQuery, m.gotLimit, m.gotMode = query, limit, mode

	return m.searchResults, m.searchErr
}

func (m *mockQueryService) Ask(_ context.Context, query string, limit int, mode search.WindowMode) (service.AskResult, error) {
	m.gotQuery, m.gotLimit, m.gotMode = query, limit, mode

	return m.askResult, m.askErr
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler(rec, req)

	return rec
}

func TestQueryHandlerSearch(t *testing.T) {
	t.Run("returns matches grouped by corpus", func(t *testing.T) {
		svc := &mockQueryService{searchResults: search.Results{
			Summaries: []models.Match{{
				EntityID:   uuid.New(),
				Corpus:     models.CorpusSummaries,
				Content:    "summary",
				Similarity: 0.9,
				Reason:     models.ReasonVector,
				CreatedAt:  time.Now(),
			}},
		}}

		rec := postJSON(t, NewQueryHandler(svc).Search, `{"query":"onboarding delays","limit":3,"window":"recent"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "onboarding delays", svc.gotQuery)
		assert.Equal(t, 3, svc.gotLimit)
		assert.Equal(t, search.WindowRecent, svc.gotMode)

		var resp SearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Summaries, 1)
		assert.Equal(t, "summary", resp.Summaries[0].Content)
	})

	t.Run("invalid body is a 400", func(t *testing.T) {
		rec := postJSON(t, NewQueryHandler(&mockQueryService{}).Search, `{"quer`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty query is a 400", func(t *testing.T) {
		svc := &mockQueryService{searchErr: service.ErrEmptyQuery}
		rec := postJSON(t, NewQueryHandler(svc).Search, `{"query":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("search unavailable is a 503", func(t *testing.T) {
		svc := &mockQueryService{searchErr: callerrors.NewSearchUnavailableError([]string{"summaries", "segments", "feature_requests"})}
		rec := postJSON(t, NewQueryHandler(svc).Search, `{"query":"q"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("provider failure is a 502", func(t *testing.T) {
		svc := &mockQueryService{searchErr: callerrors.NewProviderError("openai", "rate limited")}
		rec := postJSON(t, NewQueryHandler(svc).Search, `{"query":"q"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestQueryHandlerAsk(t *testing.T) {
	t.Run("returns the answer with citations", func(t *testing.T) {
		svc := &mockQueryService{askResult: service.AskResult{
			Answer: "They asked for SSO [call:C-9].",
			Context: search.Context{
				Text:      "## Call summaries\n\n[call:C-9] ...",
				Citations: map[string]search.Citation{"call:C-9": {Key: "call:C-9", CallExternalID: "C-9"}},
			},
		}}

		rec := postJSON(t, NewQueryHandler(svc).Ask, `{"query":"what did they ask for?"}`)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "They asked for SSO [call:C-9].", resp.Answer)
		assert.Contains(t, resp.Citations, "call:C-9")
		assert.False(t, resp.NoContext)
	})

	t.Run("no context is reported, not an error", func(t *testing.T) {
		svc := &mockQueryService{askResult: service.AskResult{
			Answer:  "I could not find any relevant calls for that question.",
			Context: search.Context{Text: search.NoRelevantContext, Empty: true},
		}}

		rec := postJSON(t, NewQueryHandler(svc).Ask, `{"query":"anything"}`)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp AskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.NoContext)
	})
}
