// Package repository handles data access for calls, transcript segments, and feature requests.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/callsift/callsift/internal/models"
)

// ErrCallNotFound is returned when no call exists for the given identifier.
var ErrCallNotFound = errors.New("call not found")

// CallsRepository handles data access for the calls table.
type CallsRepository struct {
	db *pgxpool.Pool
}

// NewCallsRepository creates a new calls repository.
func NewCallsRepository(db *pgxpool.Pool) *CallsRepository {
	return &CallsRepository{db: db}
}

// escapeLike escapes LIKE/ILIKE metacharacters so user query text is matched literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

	return r.Replace(s)
}

// Create stores a newly ingested call. Summary, sentiment, and the embedding
// stay NULL until the enrichment worker fills them.
func (r *CallsRepository) Create(ctx context.Context, params models.CreateCallParams) (*models.Call, error) {
	call := &models.Call{}

	err := r.db.QueryRow(ctx, `
		INSERT INTO calls (external_id, title, started_at, duration_seconds, transcript)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, external_id, title, started_at, duration_seconds, summary, sentiment, transcript, created_at, updated_at`,
		params.ExternalID, params.Title, params.StartedAt, params.DurationSeconds, params.Transcript,
	).Scan(
		&call.ID, &call.ExternalID, &call.Title, &call.StartedAt, &call.DurationSeconds,
		&call.Summary, &call.Sentiment, &call.Transcript, &call.CreatedAt, &call.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("calls insert: %w", err)
	}

	return call, nil
}

// Delete removes one call; its segments and feature requests cascade.
// Ingestion uses this to roll back a call whose segment batch failed to store.
func (r *CallsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM calls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete call: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrCallNotFound
	}

	return nil
}

// GetByID returns one call. Returns ErrCallNotFound when no row exists.
func (r *CallsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Call, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByExternalID returns the call with the given platform identifier.
// Ingestion uses this to skip calls that were already stored.
func (r *CallsRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Call, error) {
	return r.getOne(ctx, `WHERE external_id = $1`, externalID)
}

func (r *CallsRepository) getOne(ctx context.Context, where string, arg any) (*models.Call, error) {
	call := &models.Call{}

	err := r.db.QueryRow(ctx, `
		SELECT id, external_id, title, started_at, duration_seconds, summary, sentiment, transcript, created_at, updated_at
		FROM calls `+where,
		arg,
	).Scan(
		&call.ID, &call.ExternalID, &call.Title, &call.StartedAt, &call.DurationSeconds,
		&call.Summary, &call.Sentiment, &call.Transcript, &call.CreatedAt, &call.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}

		return nil, fmt.Errorf("get call: %w", err)
	}

	return call, nil
}

// List returns calls matching the filters, newest first, plus the unfiltered-by-paging total.
func (r *CallsRepository) List(ctx context.Context, filters models.ListCallsFilters) ([]models.Call, int64, error) {
	where := []string{"TRUE"}
	args := []any{}

	if filters.Since != nil {
		args = append(args, *filters.Since)
		where = append(where, fmt.Sprintf("started_at >= $%d", len(args)))
	}

	if filters.Until != nil {
		args = append(args, *filters.Until)
		where = append(where, fmt.Sprintf("started_at <= $%d", len(args)))
	}

	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM calls WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	args = append(args, limit, filters.Offset)
	query := fmt.Sprintf(`
		SELECT id, external_id, title, started_at, duration_seconds, summary, sentiment, transcript, created_at, updated_at
		FROM calls WHERE %s
		ORDER BY started_at DESC, id
		LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var calls []models.Call

	for rows.Next() {
		var c models.Call
		if err := rows.Scan(
			&c.ID, &c.ExternalID, &c.Title, &c.StartedAt, &c.DurationSeconds,
			&c.Summary, &c.Sentiment, &c.Transcript, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan call: %w", err)
		}

		calls = append(calls, c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating calls: %w", err)
	}

	return calls, total, nil
}

// SetAnalysis stores the enrichment output: summary, sentiment, and the summary
// embedding, all in one update so the embedding always reflects the stored summary.
func (r *CallsRepository) SetAnalysis(
	ctx context.Context, id uuid.UUID, summary, sentiment string, embedding []float32,
) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE calls SET summary = $2, sentiment = $3, embedding = $4, updated_at = $5
		WHERE id = $1`,
		id, summary, sentiment, pgvector.NewVector(embedding), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("calls set analysis: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrCallNotFound
	}

	return nil
}

// GetEmbedding returns the stored summary embedding, or nil when the call has
// not been enriched yet.
func (r *CallsRepository) GetEmbedding(ctx context.Context, id uuid.UUID) ([]float32, error) {
	var vec *pgvector.Vector

	err := r.db.QueryRow(ctx, `SELECT embedding FROM calls WHERE id = $1`, id).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}

		return nil, fmt.Errorf("get call embedding: %w", err)
	}

	if vec == nil {
		return nil, nil
	}

	return vec.Slice(), nil
}

// SearchCandidates returns raw candidate rows for the summaries corpus:
// enriched calls matching by exact external ID, title substring, or vector
// similarity strictly above threshold. Scores use cosine distance (<=>);
// similarity = 1 - distance. The optional window start excludes calls created
// before it, before the fetch limit applies. Final scoring, deduplication,
// and ordering happen in the matcher.
func (r *CallsRepository) SearchCandidates(
	ctx context.Context, queryText string, queryEmbedding []float32, threshold float64, limit int, windowStart *time.Time,
) ([]models.Candidate, error) {
	pattern := "%" + escapeLike(queryText) + "%"
	queryVec := pgvector.NewVector(queryEmbedding)

	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.id AS call_id, c.external_id, c.title, c.summary, c.created_at,
		       (c.external_id = $1) AS exact_id,
		       (c.title ILIKE $2) AS title_match,
		       CASE WHEN c.embedding IS NULL THEN 0 ELSE 1 - (c.embedding <=> $3) END AS similarity
		FROM calls c
		WHERE c.summary IS NOT NULL
		  AND ($5::timestamptz IS NULL OR c.created_at >= $5)
		  AND (c.external_id = $1
		       OR c.title ILIKE $2
		       OR (c.embedding IS NOT NULL AND (1 - (c.embedding <=> $3)) > $4))
		ORDER BY (c.external_id = $1) DESC, (c.title ILIKE $2) DESC,
		         CASE WHEN c.embedding IS NULL THEN 0 ELSE 1 - (c.embedding <=> $3) END DESC,
		         c.created_at DESC, c.id
		LIMIT $6`,
		queryText, pattern, queryVec, threshold, windowStart, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search call summaries: %w", err)
	}
	defer rows.Close()

	var candidates []models.Candidate

	for rows.Next() {
		var (
			c       models.Candidate
			summary *string
		)

		if err := rows.Scan(
			&c.EntityID, &c.CallID, &c.CallExternalID, &c.CallTitle, &summary, &c.CreatedAt,
			&c.ExactID, &c.TitleMatch, &c.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan summary candidate: %w", err)
		}

		if summary != nil {
			c.Content = *summary
		}

		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summary candidates: %w", err)
	}

	return candidates, nil
}
