package scheduler

import (
	"context"
	"time"
)

// Scheduler keeps the evaluation cluster busy with matches between model
// versions.
type Scheduler interface {
	// Start runs the zoo loop. Blocks until ctx is cancelled, Stop is called
	// or an iteration fails.
	Start(ctx context.Context) error

	// Stop ends the loop between iterations and waits for it to return.
	Stop() error

	// Tick runs a single iteration and returns how long to wait before the
	// next one.
	Tick(ctx context.Context) (time.Duration, error)
}

var _ Scheduler = (*Loop)(nil)
