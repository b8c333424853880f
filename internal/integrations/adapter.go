// Package integrations pulls planned operations out of external farm
// management systems.
package integrations

import (
	"context"
	"fmt"

	"fieldops/internal/lifecycle"
)

// PlanSource is an external system that hands over operation plans.
type PlanSource interface {
	Name() string
	// FetchPlans returns drafts dated on or after since (YYYY-MM-DD); empty since returns all.
	FetchPlans(ctx context.Context, since string) (PlanBatch, error)
}

// PlanBatch is one pull. Rows that failed to parse are reported in Rejected
// and do not stop the rest of the batch.
type PlanBatch struct {
	Drafts   []lifecycle.OperationDraft
	Rejected []RowError
}

type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e RowError) Unwrap() error { return e.Err }
