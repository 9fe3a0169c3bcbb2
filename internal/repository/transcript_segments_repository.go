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

// ErrSegmentNotFound is returned when no transcript segment exists for the given ID.
var ErrSegmentNotFound = errors.New("transcript segment not found")

// TranscriptSegmentsRepository handles data access for the transcript_segments table.
type TranscriptSegmentsRepository struct {
	db *pgxpool.Pool
}

// NewTranscriptSegmentsRepository creates a new transcript segments repository.
func NewTranscriptSegmentsRepository(db *pgxpool.Pool) *TranscriptSegmentsRepository {
	return &TranscriptSegmentsRepository{db: db}
}

// CreateBatch inserts all segments of one call in a single transaction so a
// call is never stored with a partial transcript.
func (r *TranscriptSegmentsRepository) CreateBatch(
	ctx context.Context, callID uuid.UUID, params []models.CreateTranscriptSegmentParams,
) ([]models.TranscriptSegment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin segments batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	segments := make([]models.TranscriptSegment, 0, len(params))

	for _, p := range params {
		var seg models.TranscriptSegment

		err := tx.QueryRow(ctx, `
			INSERT INTO transcript_segments (call_id, speaker, content, offset_seconds)
			VALUES ($1, $2, $3, $4)
			RETURNING id, call_id, speaker, content, offset_seconds, created_at`,
			callID, p.Speaker, p.Content, p.OffsetSeconds,
		).Scan(&seg.ID, &seg.CallID, &seg.Speaker, &seg.Content, &seg.OffsetSeconds, &seg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert segment: %w", err)
		}

		segments = append(segments, seg)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit segments batch: %w", err)
	}

	return segments, nil
}

// ListByCall returns a call's segments in transcript order.
func (r *TranscriptSegmentsRepository) ListByCall(ctx context.Context, callID uuid.UUID) ([]models.TranscriptSegment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, call_id, speaker, content, offset_seconds, created_at
		FROM transcript_segments
		WHERE call_id = $1
		ORDER BY offset_seconds NULLS LAST, id`,
		callID,
	)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var segments []models.TranscriptSegment

	for rows.Next() {
		var seg models.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.CallID, &seg.Speaker, &seg.Content, &seg.OffsetSeconds, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}

		segments = append(segments, seg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segments: %w", err)
	}

	return segments, nil
}

// SetEmbedding stores the embedding for one segment.
func (r *TranscriptSegmentsRepository) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE transcript_segments SET embedding = $2 WHERE id = $1`,
		id, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("segment set embedding: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrSegmentNotFound
	}

	return nil
}

// SearchCandidates returns raw candidate rows for the transcript segments
// corpus. Exact ID matches the segment UUID rendered as text; title matching
// is delegated to the owning call's title, since segments have no title of
// their own. The window start filters on the owning call's created_at.
func (r *TranscriptSegmentsRepository) SearchCandidates(
	ctx context.Context, queryText string, queryEmbedding []float32, threshold float64, limit int, windowStart *time.Time,
) ([]models.Candidate, error) {
	pattern := "%" + escapeLike(queryText) + "%"
	queryVec := pgvector.NewVector(queryEmbedding)

	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.call_id, c.external_id, c.title, s.content, s.speaker, s.offset_seconds, c.created_at,
		       (s.id::text = $1) AS exact_id,
		       (c.title ILIKE $2) AS title_match,
		       CASE WHEN s.embedding IS NULL THEN 0 ELSE 1 - (s.embedding <=> $3) END AS similarity
		FROM transcript_segments s
		JOIN calls c ON c.id = s.call_id
		WHERE ($5::timestamptz IS NULL OR c.created_at >= $5)
		  AND (s.id::text = $1
		       OR c.title ILIKE $2
		       OR (s.embedding IS NOT NULL AND (1 - (s.embedding <=> $3)) > $4))
		ORDER BY (s.id::text = $1) DESC, (c.title ILIKE $2) DESC,
		         CASE WHEN s.embedding IS NULL THEN 0 ELSE 1 - (s.embedding <=> $3) END DESC,
		         c.created_at DESC, s.id
		LIMIT $6`,
		queryText, pattern, queryVec, threshold, windowStart, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search transcript segments: %w", err)
	}
	defer rows.Close()

	var candidates []models.Candidate

	for rows.Next() {
		var c models.Candidate

		if err := rows.Scan(
			&c.EntityID, &c.CallID, &c.CallExternalID, &c.CallTitle, &c.Content, &c.Speaker, &c.OffsetSeconds,
			&c.CreatedAt, &c.ExactID, &c.TitleMatch, &c.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan segment candidate: %w", err)
		}

		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segment candidates: %w", err)
	}

	return candidates, nil
}
