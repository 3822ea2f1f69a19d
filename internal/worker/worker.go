// Package worker implements the crawl orchestrator: a bounded pool of
// workers that drive search tasks through interaction, challenge resolution,
// and extraction, with per-task retry and human pacing. A single task's
// failure never aborts the run; partial success is the normal outcome
// against an adversarial target.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hireloop/jobharvester/internal/challenge"
	"github.com/hireloop/jobharvester/internal/crawl"
	"github.com/hireloop/jobharvester/internal/extract"
	"github.com/hireloop/jobharvester/internal/interact"
	"github.com/hireloop/jobharvester/internal/metrics"
	"github.com/hireloop/jobharvester/internal/session"
)

// Browser opens an automated page bound to a session's identity. The release
// func tears the page down; it must be safe to call once the page is burnt.
type Browser interface {
	NewPage(ctx context.Context, sess *session.Session) (crawl.Page, func(), error)
}

// sessionDropper is implemented by browsers that cache per-session state and
// can discard it once an identity is burnt.
type sessionDropper interface {
	DropSession(sessionID string)
}

// Config controls the orchestrator.
type Config struct {
	Concurrency int           // worker pool size (default 1)
	MaxRetries  int           // retries after challenge timeouts; 0 means none
	TaskTimeout time.Duration // per-task handler ceiling (default 120s)
	GlobalRPS   float64       // optional run-wide throughput ceiling

	// Pacing delays the worker after a successful extraction. A deliberate
	// throughput ceiling, not backoff.
	Pacing crawl.DelayPolicy
	// RetryBackoff spaces retry attempts of the same task.
	RetryBackoff crawl.DelayPolicy
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	// The stock retry budget lives in config defaults; zero here is honored
	// so callers can disable retries outright.
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 120 * time.Second
	}
	return c
}

// Orchestrator owns the worker pool and the run accumulator.
type Orchestrator struct {
	cfg       Config
	sessions  *session.Pool
	browser   Browser
	driver    *interact.Driver
	resolver  *challenge.Resolver
	extractor *extract.Engine
	filters   []crawl.RecordFilter
	clock     crawl.Clock
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(
	cfg Config,
	sessions *session.Pool,
	browser Browser,
	driver *interact.Driver,
	resolver *challenge.Resolver,
	extractor *extract.Engine,
	filters []crawl.RecordFilter,
	clock crawl.Clock,
	logger *zap.Logger,
) *Orchestrator {
	if clock == nil {
		clock = crawl.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	var limiter *rate.Limiter
	if cfg.GlobalRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), 1)
	}
	return &Orchestrator{
		cfg:       cfg,
		sessions:  sessions,
		browser:   browser,
		driver:    driver,
		resolver:  resolver,
		extractor: extractor,
		filters:   filters,
		clock:     clock,
		limiter:   limiter,
		logger:    logger,
	}
}

// Run consumes the task list with the configured worker pool and returns the
// accumulated result once every task has reached a terminal state.
func (o *Orchestrator) Run(ctx context.Context, tasks []crawl.SearchTask) crawl.Result {
	acc := &accumulator{}
	queue := make(chan crawl.SearchTask)

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for task := range queue {
				o.runTask(ctx, worker, task, acc)
			}
		}(i)
	}

	for _, task := range tasks {
		select {
		case queue <- task:
		case <-ctx.Done():
			// Remaining tasks are abandoned as failed so the caller still
			// sees an honest processed/failed accounting.
			acc.fail()
		}
	}
	close(queue)
	wg.Wait()

	return acc.result()
}

func (o *Orchestrator) runTask(ctx context.Context, worker int, task crawl.SearchTask, acc *accumulator) {
	metrics.WorkerActive(1)
	defer metrics.WorkerActive(-1)

	start := o.clock.Now()
	status := o.processTask(ctx, task, acc)
	duration := o.clock.Now().Sub(start)
	metrics.ObserveTask(string(status), duration)

	switch status {
	case crawl.TaskDone:
		acc.done()
	case crawl.TaskSkipped:
		acc.skip()
	case crawl.TaskFailed:
		acc.fail()
	}

	o.logger.Info("task finished",
		zap.Int("worker", worker),
		zap.String("term", task.SearchTerm),
		zap.Int("page_index", task.PageIndex),
		zap.String("status", string(status)),
		zap.Duration("duration", duration),
	)
}

// processTask drives one task through the pipeline, consuming the retry
// budget on challenge timeouts. Every failure is classified here; nothing
// propagates past the orchestrator uncaught.
func (o *Orchestrator) processTask(ctx context.Context, task crawl.SearchTask, acc *accumulator) crawl.TaskStatus {
	attempts := o.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.ObserveRetry()
			if err := o.cfg.RetryBackoff.Wait(ctx, o.clock); err != nil {
				return crawl.TaskFailed
			}
		}

		status, retry := o.attemptTask(ctx, task, acc)
		if !retry {
			return status
		}
		o.logger.Warn("challenge timed out, replacing session",
			zap.String("term", task.SearchTerm),
			zap.Int("page_index", task.PageIndex),
			zap.Int("attempt", attempt+1),
		)
	}
	return crawl.TaskFailed
}

// attemptTask runs one attempt end-to-end. retry is true only for
// challenge-timeout failures, which burn the session and warrant a fresh
// identity.
func (o *Orchestrator) attemptTask(ctx context.Context, task crawl.SearchTask, acc *accumulator) (status crawl.TaskStatus, retry bool) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return crawl.TaskFailed, false
		}
	}

	sess, err := o.sessions.Acquire()
	if err != nil {
		// Concurrency is validated against pool capacity, so exhaustion
		// means misconfiguration rather than contention.
		o.logger.Error("session acquire failed", zap.Error(err))
		return crawl.TaskFailed, false
	}
	metrics.ObserveSession("acquired")

	taskCtx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
	defer cancel()

	page, closePage, err := o.browser.NewPage(taskCtx, sess)
	if err != nil {
		o.logger.Error("page open failed", zap.String("session_id", sess.ID), zap.Error(err))
		o.sessions.Release(sess, session.OutcomeError)
		return crawl.TaskFailed, false
	}
	defer closePage()

	if err := o.prepareSession(taskCtx, sess, page); err != nil {
		o.sessions.Release(sess, session.OutcomeError)
		return crawl.TaskFailed, false
	}

	records, status, retry, err := o.pipeline(taskCtx, page, task, acc)
	if err != nil {
		o.logger.Error("task attempt failed",
			zap.String("term", task.SearchTerm),
			zap.Int("page_index", task.PageIndex),
			zap.Error(err),
		)
	}
	switch {
	case retry:
		// Challenge never cleared: this identity is burnt. Retire it so the
		// retry binds a replacement.
		o.sessions.Retire(sess)
		if dropper, ok := o.browser.(sessionDropper); ok {
			dropper.DropSession(sess.ID)
		}
		metrics.ObserveSession("retired")
		return status, true
	case status == crawl.TaskFailed:
		o.sessions.Release(sess, session.OutcomeError)
		return status, false
	default:
		o.accept(task, records, acc)
		o.sessions.Release(sess, session.OutcomeSuccess)
		if status == crawl.TaskDone && len(records) > 0 {
			if err := o.cfg.Pacing.Wait(ctx, o.clock); err != nil {
				return status, false
			}
		}
		return status, false
	}
}

// prepareSession hardens a fresh session's fingerprint and runs its warm-up
// visit. Warm-up trouble is logged but does not fail the task.
func (o *Orchestrator) prepareSession(ctx context.Context, sess *session.Session, page crawl.Page) error {
	if sess.WarmedUp() {
		return nil
	}
	if err := o.driver.Harden(ctx, page); err != nil {
		if ctx.Err() != nil {
			return err
		}
		o.logger.Warn("fingerprint hardening failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
	if err := o.driver.WarmUp(ctx, page); err != nil {
		if ctx.Err() != nil {
			return err
		}
		o.logger.Warn("warm-up failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
	sess.MarkWarmedUp()
	return nil
}

// pipeline is the per-attempt state machine:
// Interacting -> ChallengeCheck -> Extracting.
func (o *Orchestrator) pipeline(
	ctx context.Context,
	page crawl.Page,
	task crawl.SearchTask,
	acc *accumulator,
) (records []crawl.RawJobRecord, status crawl.TaskStatus, retry bool, err error) {
	// Interacting: reach a results view via form submission, then walk
	// forward page by page for non-first-page tasks.
	ok, err := o.driver.SubmitSearch(ctx, page, task)
	if err != nil {
		return nil, crawl.TaskFailed, false, fmt.Errorf("submit search: %w", err)
	}
	if !ok {
		// Target structure likely changed; an immediate retry will not help.
		return nil, crawl.TaskSkipped, false, nil
	}

	state, err := o.resolver.Resolve(ctx, page)
	metrics.ObserveChallenge(string(state))
	if err != nil {
		return nil, crawl.TaskFailed, false, fmt.Errorf("resolve challenge: %w", err)
	}
	if state == crawl.TimedOut {
		return nil, crawl.TaskFailed, true, nil
	}

	for step := 1; step <= task.PageIndex; step++ {
		stepTask := task
		stepTask.PageIndex = step

		pageStep, err := o.driver.AdvancePage(ctx, page, stepTask)
		if err != nil {
			return nil, crawl.TaskFailed, false, fmt.Errorf("advance page %d: %w", step, err)
		}
		switch pageStep {
		case interact.StepNoMorePages:
			// Pagination exhausted: done with zero records, not a failure.
			return nil, crawl.TaskDone, false, nil
		case interact.StepError:
			return nil, crawl.TaskFailed, false, errors.New("pagination navigation error")
		}

		state, err := o.resolver.Resolve(ctx, page)
		metrics.ObserveChallenge(string(state))
		if err != nil {
			return nil, crawl.TaskFailed, false, fmt.Errorf("resolve challenge: %w", err)
		}
		if state == crawl.TimedOut {
			return nil, crawl.TaskFailed, true, nil
		}
	}

	// Extracting.
	records, dropped, err := o.extractor.ExtractAll(ctx, page)
	if err != nil {
		return nil, crawl.TaskFailed, false, fmt.Errorf("extract results: %w", err)
	}
	if dropped > 0 {
		acc.addDropped(dropped)
		metrics.ObserveRecords(0, dropped, 0)
		o.logger.Debug("cards discarded during extraction", zap.Int("dropped", dropped))
	}
	return records, crawl.TaskDone, false, nil
}

// accept applies the injected record filters and appends survivors.
func (o *Orchestrator) accept(task crawl.SearchTask, records []crawl.RawJobRecord, acc *accumulator) {
	kept := 0
	filtered := 0
	for _, record := range records {
		if !o.keep(record) {
			filtered++
			continue
		}
		acc.append(record)
		kept++
	}
	metrics.ObserveRecords(kept, 0, filtered)
	if filtered > 0 {
		o.logger.Debug("records rejected by filters",
			zap.String("term", task.SearchTerm),
			zap.Int("filtered", filtered),
		)
	}
}

func (o *Orchestrator) keep(record crawl.RawJobRecord) bool {
	for _, filter := range o.filters {
		if !filter.Keep(record) {
			return false
		}
	}
	return true
}

// accumulator is the single serialized accumulation point for records and
// counters; workers never touch the result directly.
type accumulator struct {
	mu       sync.Mutex
	records  []crawl.RawJobRecord
	counters crawl.Counters
}

func (a *accumulator) append(record crawl.RawJobRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
}

func (a *accumulator) addDropped(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.RecordsDropped += n
}

func (a *accumulator) done() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.TasksProcessed++
}

func (a *accumulator) skip() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.TasksProcessed++
	a.counters.TasksSkipped++
}

func (a *accumulator) fail() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.TasksProcessed++
	a.counters.TasksFailed++
}

func (a *accumulator) result() crawl.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return crawl.Result{
		Records:  append([]crawl.RawJobRecord(nil), a.records...),
		Counters: a.counters,
	}
}
