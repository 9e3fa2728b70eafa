package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/evalzoo/internal/backpressure"
	"github.com/me/evalzoo/internal/catalog"
	"github.com/me/evalzoo/internal/cluster"
	"github.com/me/evalzoo/internal/metrics"
	"github.com/me/evalzoo/internal/pairing"
	"github.com/me/evalzoo/internal/ranking"
	"github.com/me/evalzoo/internal/store"
	"github.com/me/evalzoo/pkg/model"
	"k8s.io/utils/clock"
)

// Config holds scheduler configuration.
type Config struct {
	MaxTasks int
	MinTasks int

	// Completions is the number of games each of a match's two jobs plays.
	Completions int
	// Bucket is where evaluation jobs write their games.
	Bucket string
	// EvalDir holds finished evaluation games for the ranking subsystem.
	// When empty the loop never refills an exhausted queue.
	EvalDir string

	// MaxConflicts drops a pair after this many name conflicts. 0 retries
	// forever.
	MaxConflicts int
	TopN         int
	IgnoreBefore model.VersionID

	ThrottleDelay time.Duration
	BackoffDelay  time.Duration
	IdleDelay     time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTasks:      backpressure.DefaultMaxTasks,
		MinTasks:      backpressure.DefaultMinTasks,
		Completions:   4,
		MaxConflicts:  6,
		TopN:          pairing.DefaultTopN,
		IgnoreBefore:  pairing.DefaultIgnoreBefore,
		ThrottleDelay: time.Second,
		BackoffDelay:  time.Minute,
		IdleDelay:     10 * time.Minute,
	}
}

// ErrNoRanking is returned by operations that need the ranking subsystem when
// none is configured.
var ErrNoRanking = errors.New("no ranking source configured")

// Option customises a Loop.
type Option func(*Loop)

// WithClock sets the clock used for waits and timestamps.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithRand sets the source used to shuffle the queue.
func WithRand(r *rand.Rand) Option {
	return func(l *Loop) { l.rng = r }
}

// WithMetrics records into m instead of a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// Loop implements the Scheduler interface. It owns the scheduler state: one
// Loop per state store.
type Loop struct {
	store    store.Store
	gateway  cluster.Gateway
	catalog  catalog.Catalog
	ranking  ranking.Source
	config   Config
	governor backpressure.Governor
	metrics  *metrics.Metrics
	clock    clock.Clock
	rng      *rand.Rand
	logger   *slog.Logger

	state     *model.SchedulerState
	topNext   bool
	conflicts map[model.Pair]int

	mu   sync.Mutex
	snap model.QueueStatus

	// runMu orders Start against Stop.
	runMu   sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoop creates a new scheduler loop. rank may be nil, in which case the
// queue is never refilled from rankings.
func NewLoop(st store.Store, gw cluster.Gateway, cat catalog.Catalog, rank ranking.Source, cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		store:     st,
		gateway:   gw,
		catalog:   cat,
		ranking:   rank,
		config:    cfg,
		governor:  backpressure.Governor{MaxTasks: cfg.MaxTasks, MinTasks: cfg.MinTasks},
		topNext:   true,
		conflicts: make(map[model.Pair]int),
		logger:    logger.With("component", "scheduler", "run_id", uuid.NewString()),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = clock.RealClock{}
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if l.metrics == nil {
		l.metrics = metrics.New()
	}
	return l
}

// Start runs the zoo loop. Blocks until ctx is cancelled, Stop is called or
// an iteration fails. State is saved before Start returns.
func (l *Loop) Start(ctx context.Context) error {
	l.runMu.Lock()
	if l.stopped {
		l.runMu.Unlock()
		return nil
	}
	l.running = true
	l.runMu.Unlock()
	defer close(l.doneCh)

	if err := l.ensureLoaded(ctx); err != nil {
		return err
	}
	l.logger.Info("zoo loop started",
		"pending", l.state.Pending.Len(),
		"last_queued", l.state.LastQueued,
		"max_tasks", l.config.MaxTasks,
		"min_tasks", l.config.MinTasks)

	for {
		select {
		case <-ctx.Done():
			return l.shutdown(ctx, ctx.Err())
		case <-l.stopCh:
			return l.shutdown(ctx, nil)
		default:
		}

		wait, err := l.Tick(ctx)
		if err != nil {
			return err
		}

		timer := l.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return l.shutdown(ctx, ctx.Err())
		case <-l.stopCh:
			timer.Stop()
			return l.shutdown(ctx, nil)
		case <-timer.C():
		}
	}
}

// Stop ends the loop between iterations and waits for Start to return. A
// Start that begins after Stop returns immediately.
func (l *Loop) Stop() error {
	l.runMu.Lock()
	if !l.stopped {
		l.stopped = true
		close(l.stopCh)
	}
	running := l.running
	l.runMu.Unlock()
	if running {
		<-l.doneCh
	}
	return nil
}

func (l *Loop) shutdown(ctx context.Context, cause error) error {
	l.logger.Info("zoo loop stopping", "cause", cause)
	if err := l.save(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Tick runs a single iteration: discover new versions, clean up finished
// jobs, apply backpressure, refill an empty queue and submit one pair.
func (l *Loop) Tick(ctx context.Context) (time.Duration, error) {
	if err := l.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	if err := l.discover(ctx); err != nil {
		return 0, l.fail(ctx, fmt.Errorf("discover versions: %w", err))
	}

	if _, err := l.Cleanup(ctx); err != nil {
		return 0, l.fail(ctx, err)
	}

	jobs, err := l.gateway.ListJobs(ctx)
	if err != nil {
		return 0, l.fail(ctx, fmt.Errorf("list jobs: %w", err))
	}
	inFlight := backpressure.InFlight(jobs)
	l.publish(jobs, inFlight)

	if !l.governor.Allow(inFlight) {
		l.logger.Info(backpressure.NewStatus(jobs, l.state.Pending.Len()).String())
		return l.config.BackoffDelay, nil
	}

	if l.state.Pending.Len() == 0 {
		if l.config.EvalDir == "" {
			l.logger.Info("out of pairs, sleeping", "jobs", len(jobs))
			return l.config.IdleDelay, nil
		}
		if l.governor.Busy(inFlight) {
			l.logger.Debug("out of pairs, waiting for cluster to drain", "in_flight", inFlight)
			return l.config.BackoffDelay, nil
		}
		if err := l.refill(ctx); err != nil {
			return 0, l.fail(ctx, fmt.Errorf("refill: %w", err))
		}
		l.publish(jobs, inFlight)
		if l.state.Pending.Len() == 0 {
			l.logger.Info("refill produced no pairs")
			return l.config.BackoffDelay, nil
		}
	}

	if err := l.submitNext(ctx); err != nil {
		return 0, err
	}
	l.publish(jobs, inFlight)
	return l.config.ThrottleDelay, nil
}

// discover queues pairs for every version newer than the watermark, newest
// first.
func (l *Loop) discover(ctx context.Context) error {
	latest, err := l.catalog.Latest(ctx)
	if err != nil {
		return err
	}
	last := l.state.LastQueued
	if latest <= last {
		return nil
	}
	l.logger.Info("adding new versions", "from", last+1, "to", latest)
	for v := latest; v > last; v-- {
		l.state.Pending.Push(pairing.ForVersion(v)...)
	}
	l.state.LastQueued = latest
	return l.save(ctx)
}

// refill syncs evaluation games into the ranking subsystem, then alternates
// between pairing the top of the table and the least certain versions.
func (l *Loop) refill(ctx context.Context) error {
	if l.ranking == nil {
		return ErrNoRanking
	}
	l.logger.Info("out of pairs, syncing evaluation games", "eval_dir", l.config.EvalDir)
	if err := l.ranking.Sync(ctx, l.config.EvalDir); err != nil {
		return err
	}

	var err error
	if l.topNext {
		l.logger.Info("pairing the top of the table")
		_, err = l.AddTopPairs(ctx, false)
	} else {
		l.logger.Info("pairing the least known versions")
		_, err = l.AddUncertainPairs(ctx, false)
	}
	if err != nil {
		return err
	}
	l.topNext = !l.topNext

	if err := l.logTable(ctx); err != nil {
		return err
	}
	return l.reload(ctx)
}

func (l *Loop) logTable(ctx context.Context) error {
	top, err := l.ranking.Top(ctx, l.config.TopN)
	if err != nil {
		return fmt.Errorf("top versions: %w", err)
	}
	for _, r := range top {
		l.logger.Info(fmt.Sprintf("%d: %0.3f (%0.3f)", r.Version, r.Rating, r.Sigma))
	}
	return nil
}

// submitNext pops a random pair and submits it. The pair leaves the queue
// for good only when both jobs were created.
func (l *Loop) submitNext(ctx context.Context) error {
	l.state.Pending.Shuffle(l.rng)
	pair, ok := l.state.Pending.Pop()
	if !ok {
		return nil
	}
	l.logger.Info("enqueuing", "pair", pair.String())

	sub, err := l.SubmitPair(ctx, pair)
	if err != nil {
		l.state.Pending.Push(pair)
		return l.fail(ctx, fmt.Errorf("submit %s: %w", pair, err))
	}
	l.metrics.RecordSubmission(sub.Outcome.String())

	key := pair.Key()
	switch sub.Outcome {
	case cluster.OutcomeSubmitted:
		delete(l.conflicts, key)
	case cluster.OutcomeConflict:
		n := l.conflicts[key] + 1
		if l.config.MaxConflicts > 0 && n >= l.config.MaxConflicts {
			delete(l.conflicts, key)
			l.metrics.RecordDropped()
			l.logger.Warn("dropping pair after repeated conflicts", "pair", pair.String(), "conflicts", n)
			break
		}
		l.conflicts[key] = n
		l.logger.Info("conflict enqueuing, flipping colours", "pair", pair.String(), "conflicts", n)
		l.state.Pending.Push(pair.Swapped())
		l.state.Pending.Shuffle(l.rng)
	case cluster.OutcomeTransient:
		l.logger.Warn("submission failed, requeued", "pair", pair.String(), "error", sub.Err)
		l.state.Pending.Push(pair)
	default:
		l.state.Pending.Push(pair)
		return l.fail(ctx, fmt.Errorf("submit %s: unexpected outcome %s", pair, sub.Outcome))
	}

	if err := l.save(ctx); err != nil {
		return l.fail(ctx, err)
	}
	return nil
}

// fail checkpoints the state and logs what is left before err propagates.
func (l *Loop) fail(ctx context.Context, err error) error {
	l.logger.Error("zoo loop failed", "error", err, "unfinished", len(l.state.Pending))
	for _, p := range l.state.Pending.Sorted() {
		l.logger.Info("unfinished pair", "pair", p.String())
	}
	if serr := l.save(context.WithoutCancel(ctx)); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

// SubmitPair matches two versions of the current run: the first plays black
// in the "-bw" job.
func (l *Loop) SubmitPair(ctx context.Context, pair model.Pair) (cluster.Submission, error) {
	if pair[0] <= 0 || pair[1] <= 0 {
		return cluster.Submission{}, fmt.Errorf("versions must be positive, got %s", pair)
	}
	black, err := l.catalog.Path(ctx, pair[0])
	if err != nil {
		return cluster.Submission{}, fmt.Errorf("resolve version %d: %w", pair[0], err)
	}
	white, err := l.catalog.Path(ctx, pair[1])
	if err != nil {
		return cluster.Submission{}, fmt.Errorf("resolve version %d: %w", pair[1], err)
	}
	return l.LaunchMatch(ctx, cluster.MatchRequest{
		Pair:        pair,
		Black:       black,
		White:       white,
		Name:        pair.Name(),
		Bucket:      l.config.Bucket,
		Completions: l.config.Completions,
	})
}

// LaunchMatch submits an explicit match.
func (l *Loop) LaunchMatch(ctx context.Context, req cluster.MatchRequest) (cluster.Submission, error) {
	if err := req.Validate(); err != nil {
		return cluster.Submission{}, err
	}
	return l.gateway.SubmitMatch(ctx, req)
}

// Cleanup deletes finished jobs from the cluster.
func (l *Loop) Cleanup(ctx context.Context) ([]string, error) {
	deleted, err := backpressure.Cleanup(ctx, l.gateway)
	for _, name := range deleted {
		l.logger.Info("job finished", "job", name)
	}
	l.metrics.RecordDeleted(len(deleted))
	if err != nil {
		return deleted, fmt.Errorf("cleanup: %w", err)
	}
	return deleted, nil
}

// AddTopPairs queues matches among the best ranked versions. With dryRun the
// pairs are returned but not saved.
func (l *Loop) AddTopPairs(ctx context.Context, dryRun bool) ([]model.Pair, error) {
	if l.ranking == nil {
		return nil, ErrNoRanking
	}
	top, err := l.ranking.Top(ctx, l.config.TopN)
	if err != nil {
		return nil, fmt.Errorf("top versions: %w", err)
	}
	pairs := pairing.TopPairs(ranking.Versions(top))
	return pairs, l.appendPairs(ctx, pairs, dryRun)
}

// AddUncertainPairs queues the matches the ranking subsystem is least sure
// about. With dryRun the pairs are returned but not saved.
func (l *Loop) AddUncertainPairs(ctx context.Context, dryRun bool) ([]model.Pair, error) {
	if l.ranking == nil {
		return nil, ErrNoRanking
	}
	pairs, err := pairing.Uncertain(ctx, l.ranking, l.config.IgnoreBefore)
	if err != nil {
		return nil, err
	}
	return pairs, l.appendPairs(ctx, pairs, dryRun)
}

func (l *Loop) appendPairs(ctx context.Context, pairs []model.Pair, dryRun bool) error {
	if err := l.ensureLoaded(ctx); err != nil {
		return err
	}
	l.logger.Info("adding pairs",
		"new", len(pairs),
		"queued", l.state.Pending.Len()+len(pairs),
		"dry_run", dryRun)
	if dryRun {
		return nil
	}
	l.state.Pending.Push(pairs...)
	return l.save(ctx)
}

// State returns a copy of the scheduler state, loading it if needed.
func (l *Loop) State(ctx context.Context) (*model.SchedulerState, error) {
	if err := l.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return l.state.Clone(), nil
}

// Snapshot returns the status view last published by the loop. Safe for
// concurrent use.
func (l *Loop) Snapshot() model.QueueStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.snap
	s.Pending = append([]model.Pair(nil), s.Pending...)
	return s
}

func (l *Loop) publish(jobs []model.JobSummary, inFlight int) {
	l.metrics.RecordCluster(len(jobs), inFlight)
	l.metrics.RecordState(l.state.Pending.Len(), int(l.state.LastQueued))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = model.QueueStatus{
		Pending:    l.state.Pending.Sorted(),
		LastQueued: l.state.LastQueued,
		InFlight:   inFlight,
		Jobs:       len(jobs),
		UpdatedAt:  l.clock.Now().UTC(),
	}
}

func (l *Loop) ensureLoaded(ctx context.Context) error {
	if l.state != nil {
		return nil
	}
	return l.reload(ctx)
}

// reload replaces the in-memory state with the persisted one. Missing
// records start an empty queue at version 0.
func (l *Loop) reload(ctx context.Context) error {
	st, err := l.store.Load(ctx)
	if errors.Is(err, model.ErrStateMissing) {
		l.logger.Info("no saved state, starting fresh", "detail", err)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		st = model.NewSchedulerState()
	}
	if st.Pending == nil {
		st.Pending = model.Queue{}
	}
	l.state = st
	return nil
}

func (l *Loop) save(ctx context.Context) error {
	if l.state == nil {
		return nil
	}
	if err := l.store.Save(ctx, l.state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
