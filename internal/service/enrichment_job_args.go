package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const callEnrichmentKind = "call_enrichment"

// EnrichmentQueueName is the River queue used for call enrichment jobs.
const EnrichmentQueueName = "enrichment"

// EnrichmentJobInserter inserts enrichment jobs (e.g. River client).
type EnrichmentJobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// CallEnrichmentArgs is the job payload for analyzing one call's transcript:
// summary, sentiment, feature-request extraction, and all embeddings.
// Uniqueness is by CallID so re-ingesting a call does not stack duplicate jobs.
type CallEnrichmentArgs struct {
	CallID uuid.UUID `json:"call_id" river:"unique"`
}

// Kind returns the River job kind.
func (CallEnrichmentArgs) Kind() string { return callEnrichmentKind }

var _ river.JobArgs = CallEnrichmentArgs{}
