// Package database persists deliberations behind a repository contract.
// The deliberation core never touches storage directly; it hands a
// finished record to a Repository and moves on.
package database

import (
	"context"
	"fmt"

	"github.com/conclave-ai/conclave/internal/debate"
)

// Repository stores and recalls deliberation records. SaveDeliberation
// writes the whole record in one transaction; partial writes never land.
type Repository interface {
	SaveDeliberation(ctx context.Context, rec *debate.Record) error
	GetDeliberation(ctx context.Context, id string) (*debate.Record, error)
	// ListDeliberations returns the most recent records, newest first,
	// scoped to the owner when ownerID is non-empty.
	ListDeliberations(ctx context.Context, ownerID string, limit int) ([]*debate.Record, error)
	Close() error
}

// ErrNotFound is returned when a deliberation id has no record.
var ErrNotFound = fmt.Errorf("deliberation not found")

// summarize produces the short display summary stored beside each thread
// and turn. Summaries are plain prefixes, not model calls.
func summarize(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

const summaryLength = 240
