// Package backpressure keeps the number of outstanding evaluation tasks on the
// cluster inside a window and removes jobs that have finished.
package backpressure

import (
	"context"
	"fmt"

	"github.com/me/evalzoo/pkg/model"
)

// Default thresholds, in task completions.
const (
	DefaultMaxTasks = 250
	DefaultMinTasks = 20
)

// InFlight is the total number of completions requested by jobs.
func InFlight(jobs []model.JobSummary) int {
	n := 0
	for _, j := range jobs {
		n += j.Requested
	}
	return n
}

// Governor decides when submission and refill are allowed.
type Governor struct {
	MaxTasks int
	MinTasks int
}

// Allow reports whether another match may be submitted.
func (g Governor) Allow(inFlight int) bool {
	return inFlight < g.MaxTasks
}

// Busy reports whether the cluster is still too full to refill the queue.
func (g Governor) Busy(inFlight int) bool {
	return inFlight > g.MinTasks
}

// Status summarises the cluster for the status line.
type Status struct {
	Finished  int // completions that succeeded
	Requested int // completions requested
	Jobs      int
	Queued    int // pairs waiting to be submitted
}

// NewStatus builds a Status from a job listing and the queue length.
func NewStatus(jobs []model.JobSummary, queued int) Status {
	s := Status{Jobs: len(jobs), Queued: queued}
	for _, j := range jobs {
		s.Finished += j.Succeeded
		s.Requested += j.Requested
	}
	return s
}

func (s Status) String() string {
	return fmt.Sprintf("%d/%d tasks finished across %d jobs, %d pairs queued",
		s.Finished, s.Requested, s.Jobs, s.Queued)
}

// JobLister lists cluster jobs.
type JobLister interface {
	ListJobs(ctx context.Context) ([]model.JobSummary, error)
}

// JobDeleter deletes cluster jobs.
type JobDeleter interface {
	DeleteJob(ctx context.Context, namespace, name string) error
}

// JobCleaner is what Cleanup needs from the cluster.
type JobCleaner interface {
	JobLister
	JobDeleter
}

// Cleanup deletes every finished job and returns the names it deleted. Any
// API error stops the sweep and is returned.
func Cleanup(ctx context.Context, c JobCleaner) ([]string, error) {
	jobs, err := c.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var deleted []string
	for _, j := range jobs {
		if !j.Finished() {
			continue
		}
		if err := c.DeleteJob(ctx, j.Namespace, j.Name); err != nil {
			return deleted, fmt.Errorf("delete finished job %s/%s: %w", j.Namespace, j.Name, err)
		}
		deleted = append(deleted, j.Name)
	}
	return deleted, nil
}
