package model

// SchedulerState is everything the zoo loop must survive a restart with.
// It is loaded once at startup, mutated in memory and saved after every
// mutation.
type SchedulerState struct {
	Pending    Queue     `json:"pending"`
	LastQueued VersionID `json:"last_queued"`
}

// NewSchedulerState returns an empty state: no pending pairs, version 0.
func NewSchedulerState() *SchedulerState {
	return &SchedulerState{Pending: Queue{}}
}

// Clone returns a deep copy of the state.
func (s *SchedulerState) Clone() *SchedulerState {
	return &SchedulerState{
		Pending:    s.Pending.Clone(),
		LastQueued: s.LastQueued,
	}
}

// JobSummary is a read-only snapshot of one cluster job.
type JobSummary struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Succeeded int    `json:"succeeded"`
}

// Finished reports whether every requested completion has succeeded.
func (j JobSummary) Finished() bool {
	return j.Succeeded == j.Requested
}
