package debate

import (
	"context"
	"fmt"
	"time"

	"github.com/conclave-ai/conclave/internal/debate/decompose"
	"github.com/conclave-ai/conclave/internal/debate/voting"
)

// Record is the persistence snapshot of one finished deliberation. The
// engine hands it to the store at completion; the store writes the whole
// record in a single transaction.
type Record struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id,omitempty"`
	Question    string    `json:"question"`
	Protocol    Protocol  `json:"protocol"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	Rounds []RoundResult `json:"rounds,omitempty"`

	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
	Dissent    string    `json:"dissent,omitempty"`
	Taxonomy   *Taxonomy `json:"taxonomy,omitempty"`

	Votes        []voting.VoteResult       `json:"votes,omitempty"`
	SubtaskSpecs []decompose.SubtaskSpec   `json:"subtask_specs,omitempty"`
	Subtasks     []decompose.SubtaskResult `json:"subtasks,omitempty"`

	Cost float64 `json:"cost"`
}

// Store persists completed deliberations. Implementations must write each
// record atomically: either the whole deliberation lands or none of it.
type Store interface {
	SaveDeliberation(ctx context.Context, rec *Record) error
}

// StorageError marks a deliberation that finished but could not be
// persisted. The decision it wraps is still valid.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("deliberation completed but was not persisted: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// record builds the persistence snapshot of a consensus deliberation.
func (e *Engine) record(c *Context, protocol Protocol) *Record {
	return &Record{
		ID:          c.ID,
		OwnerID:     e.cfg.Owner,
		Question:    c.Question,
		Protocol:    protocol,
		StartedAt:   c.StartedAt,
		CompletedAt: e.now(),
		Rounds:      c.RoundHistory,
		Decision:    c.Decision,
		Confidence:  c.Confidence,
		Dissent:     c.Dissent,
		Taxonomy:    c.Taxonomy,
		Cost:        c.Cost,
	}
}

// persist writes the record when a store is configured. A write failure
// never invalidates the decision; the caller receives a StorageError
// alongside the valid result.
func (e *Engine) persist(ctx context.Context, rec *Record) error {
	if e.repo == nil {
		return nil
	}
	if err := e.repo.SaveDeliberation(ctx, rec); err != nil {
		return &StorageError{Err: err}
	}
	return nil
}
