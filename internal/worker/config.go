// Package worker provides background job processing for Retrace.
package worker

import (
	"time"
)

// SweepConfig holds configuration for the route maintenance sweep.
type SweepConfig struct {
	// Concurrency is the number of routes audited in parallel.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for auditing a single route.
	// Default: 30 seconds
	Timeout time.Duration

	// VerifyDistances enables recomputing each route's cached total
	// distance from its items.
	// Default: true
	VerifyDistances bool

	// VerifySnapshots enables checking that every referenced snapshot blob
	// is still fetchable.
	// Default: true
	VerifySnapshots bool

	// PruneOrphans enables deleting snapshot blobs no route references.
	// Requires a store that can enumerate its keys; skipped otherwise.
	// Default: true
	PruneOrphans bool
}

// DefaultSweepConfig returns the default sweep configuration.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Concurrency:     3,
		Timeout:         30 * time.Second,
		VerifyDistances: true,
		VerifySnapshots: true,
		PruneOrphans:    true,
	}
}
