package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/callsift/callsift/internal/models"
)

// ErrFeatureRequestNotFound is returned when no feature request exists for the given ID.
var ErrFeatureRequestNotFound = errors.New("feature request not found")

// FeatureRequestsRepository handles data access for the feature_requests table.
type FeatureRequestsRepository struct {
	db *pgxpool.Pool
}

// NewFeatureRequestsRepository creates a new feature requests repository.
func NewFeatureRequestsRepository(db *pgxpool.Pool) *FeatureRequestsRepository {
	return &FeatureRequestsRepository{db: db}
}

// Create stores one extracted feature request with its embedding.
func (r *FeatureRequestsRepository) Create(
	ctx context.Context, params models.CreateFeatureRequestParams,
) (*models.FeatureRequest, error) {
	fr := &models.FeatureRequest{}

	err := r.db.QueryRow(ctx, `
		INSERT INTO feature_requests (call_id, request, quote, priority, offset_seconds, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, call_id, request, quote, priority, offset_seconds, created_at`,
		params.CallID, params.Request, params.Quote, params.Priority, params.OffsetSeconds,
		pgvector.NewVector(params.Embedding),
	).Scan(&fr.ID, &fr.CallID, &fr.Request, &fr.Quote, &fr.Priority, &fr.OffsetSeconds, &fr.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("feature request insert: %w", err)
	}

	return fr, nil
}

// ListByCall returns a call's feature requests in extraction order.
func (r *FeatureRequestsRepository) ListByCall(ctx context.Context, callID uuid.UUID) ([]models.FeatureRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, call_id, request, quote, priority, offset_seconds, created_at
		FROM feature_requests
		WHERE call_id = $1
		ORDER BY created_at, id`,
		callID,
	)
	if err != nil {
		return nil, fmt.Errorf("list feature requests: %w", err)
	}
	defer rows.Close()

	var requests []models.FeatureRequest

	for rows.Next() {
		var fr models.FeatureRequest
		if err := rows.Scan(&fr.ID, &fr.CallID, &fr.Request, &fr.Quote, &fr.Priority, &fr.OffsetSeconds, &fr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feature request: %w", err)
		}

		requests = append(requests, fr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feature requests: %w", err)
	}

	return requests, nil
}

// DeleteByCall removes all feature requests of a call. Re-running enrichment
// deletes and recreates them so the stored set always matches the latest
// extraction.
func (r *FeatureRequestsRepository) DeleteByCall(ctx context.Context, callID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM feature_requests WHERE call_id = $1`, callID); err != nil {
		return fmt.Errorf("delete feature requests: %w", err)
	}

	return nil
}

// SearchCandidates returns raw candidate rows for the feature requests corpus.
// Each row carries two similarities: the request's own embedding and the
// owning call's summary embedding. The matcher scores a feature request with
// the larger of the two, so a request also surfaces when the overall call is a
// strong match even though the request text itself is not.
func (r *FeatureRequestsRepository) SearchCandidates(
	ctx context.Context, queryText string, queryEmbedding []float32, threshold float64, limit int, windowStart *time.Time,
) ([]models.Candidate, error) {
	pattern := "%" + escapeLike(queryText) + "%"
	queryVec := pgvector.NewVector(queryEmbedding)

	rows, err := r.db.Query(ctx, `
		SELECT fr.id, fr.call_id, c.external_id, c.title, fr.request, fr.quote, fr.priority, fr.offset_seconds, c.created_at,
		       (fr.id::text = $1) AS exact_id,
		       (fr.request ILIKE $2) AS title_match,
		       CASE WHEN fr.embedding IS NULL THEN 0 ELSE 1 - (fr.embedding <=> $3) END AS similarity,
		       CASE WHEN c.embedding IS NULL THEN NULL ELSE 1 - (c.embedding <=> $3) END AS call_similarity
		FROM feature_requests fr
		JOIN calls c ON c.id = fr.call_id
		WHERE ($5::timestamptz IS NULL OR c.created_at >= $5)
		  AND (fr.id::text = $1
		       OR fr.request ILIKE $2
		       OR (fr.embedding IS NOT NULL AND (1 - (fr.embedding <=> $3)) > $4)
		       OR (c.embedding IS NOT NULL AND (1 - (c.embedding <=> $3)) > $4))
		ORDER BY (fr.id::text = $1) DESC, (fr.request ILIKE $2) DESC,
		         GREATEST(
		           CASE WHEN fr.embedding IS NULL THEN 0 ELSE 1 - (fr.embedding <=> $3) END,
		           COALESCE(CASE WHEN c.embedding IS NULL THEN NULL ELSE 1 - (c.embedding <=> $3) END, 0)
		         ) DESC,
		         c.created_at DESC, fr.id
		LIMIT $6`,
		queryText, pattern, queryVec, threshold, windowStart, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search feature requests: %w", err)
	}
	defer rows.Close()

	var candidates []models.Candidate

	for rows.Next() {
		var c models.Candidate

		if err := rows.Scan(
			&c.EntityID, &c.CallID, &c.CallExternalID, &c.CallTitle, &c.Content, &c.Quote, &c.Priority, &c.OffsetSeconds,
			&c.CreatedAt, &c.ExactID, &c.TitleMatch, &c.Similarity, &c.CallSimilarity,
		); err != nil {
			return nil, fmt.Errorf("scan feature request candidate: %w", err)
		}

		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feature request candidates: %w", err)
	}

	return candidates, nil
}
