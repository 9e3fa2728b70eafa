// Package cluster submits evaluation matches as batch jobs and reports on the
// jobs currently known to the cluster.
package cluster

import (
	"context"
	"fmt"

	"github.com/me/evalzoo/pkg/model"
)

// Outcome classifies a submission attempt.
type Outcome int

const (
	// OutcomeSubmitted means both jobs of the match were created.
	OutcomeSubmitted Outcome = iota + 1
	// OutcomeConflict means a job with the derived name already exists.
	OutcomeConflict
	// OutcomeTransient means the API rejected the request for another reason.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeConflict:
		return "conflict"
	case OutcomeTransient:
		return "transient"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MatchRequest describes one match: two jobs with the colours swapped.
type MatchRequest struct {
	Pair        model.Pair
	Black       string // model path playing black in the "-bw" job
	White       string // model path playing white in the "-bw" job
	Name        string // job name stem; "-bw" and "-wb" are appended
	Bucket      string // where the games are written
	Completions int
}

// Validate reports a missing field.
func (r MatchRequest) Validate() error {
	switch {
	case r.Black == "":
		return fmt.Errorf("match %q: black model path is required", r.Name)
	case r.White == "":
		return fmt.Errorf("match %q: white model path is required", r.Name)
	case r.Name == "":
		return fmt.Errorf("match name is required")
	case r.Bucket == "":
		return fmt.Errorf("match %q: bucket is required", r.Name)
	case r.Completions <= 0:
		return fmt.Errorf("match %q: completions must be positive, got %d", r.Name, r.Completions)
	}
	return nil
}

// Submission is the tagged result of SubmitMatch.
type Submission struct {
	Outcome Outcome
	Jobs    []string // names of the jobs that were created
	Err     error    // API error behind a conflict or transient outcome
}

// Gateway is the cluster job API as the scheduler sees it.
type Gateway interface {
	// SubmitMatch creates the two jobs of a match. Conflicts and API
	// rejections are reported in the Submission; the error return is for
	// failures the caller must not retry, such as a cancelled context or an
	// unrenderable job.
	SubmitMatch(ctx context.Context, req MatchRequest) (Submission, error)

	// ListJobs returns every job in every namespace.
	ListJobs(ctx context.Context) ([]model.JobSummary, error)

	// DeleteJob removes a job and, in the background, its pods.
	DeleteJob(ctx context.Context, namespace, name string) error
}
