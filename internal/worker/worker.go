// Package worker runs the Postgres-backed notification job queue: a pool of
// processors claims jobs, dispatches them by type and retries failures with
// exponential backoff.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
)

// Handler processes one job. A returned error schedules a retry until the
// job runs out of attempts.
type Handler func(ctx context.Context, job *models.Job) error

// Queue is the job persistence the worker drives.
type Queue interface {
	Enqueue(ctx context.Context, job *models.Job) error
	ClaimNextJob(ctx context.Context, workerID string) (*models.Job, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errorMsg string) error
	ScheduleRetry(ctx context.Context, id int64, errorMsg string, retryAfter time.Time) error
	ReleaseJob(ctx context.Context, id int64) error
	CancelJob(ctx context.Context, id int64) error
	GetStats(ctx context.Context) (*models.JobStats, error)
	ListPendingJobs(ctx context.Context, limit int) ([]models.Job, error)
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Stats holds in-process counters.
type Stats struct {
	JobsProcessed   int64     `json:"jobs_processed"`
	JobsSucceeded   int64     `json:"jobs_succeeded"`
	JobsFailed      int64     `json:"jobs_failed"`
	JobsRetried     int64     `json:"jobs_retried"`
	ActiveJobs      int       `json:"active_jobs"`
	LastProcessedAt time.Time `json:"last_processed_at"`
}

// Config tunes the processor pool.
type Config struct {
	MaxConcurrent   int
	PollInterval    time.Duration
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	JobTimeout      time.Duration
	ShutdownTimeout time.Duration

	// CleanupInterval is how often finished jobs older than Retention are
	// deleted.
	CleanupInterval time.Duration
	Retention       time.Duration
}

// DefaultConfig returns the defaults used for any zero field.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   2,
		PollInterval:    time.Second,
		RetryBaseDelay:  time.Second,
		RetryMaxDelay:   time.Minute,
		JobTimeout:      30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CleanupInterval: time.Hour,
		Retention:       7 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	return c
}

// Worker is the job processor pool.
type Worker struct {
	config   Config
	queue    Queue
	log      *logger.Logger
	workerID string

	mu         sync.RWMutex
	handlers   map[string]Handler
	activeJobs map[int64]context.CancelFunc
	stopCh     chan struct{}
	stopped    bool
	wg         sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

func New(config Config, queue Queue, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	id := fmt.Sprintf("worker-%d-%d", time.Now().UnixNano(), rand.Intn(10000))
	return &Worker{
		config:     config.withDefaults(),
		queue:      queue,
		log:        log.With("component", "Worker", "worker_id", id),
		workerID:   id,
		handlers:   make(map[string]Handler),
		activeJobs: make(map[int64]context.CancelFunc),
		stopCh:     make(chan struct{}),
	}
}

// RegisterHandler binds a job type to its handler.
func (w *Worker) RegisterHandler(jobType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

// Run starts the processors and blocks until ctx is done, then shuts down.
func (w *Worker) Run(ctx context.Context) error {
	w.Start(ctx)
	<-ctx.Done()
	return w.Stop(context.Background())
}

// Start launches the processors.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("worker starting", "processors", w.config.MaxConcurrent)
	for i := 0; i < w.config.MaxConcurrent; i++ {
		w.wg.Add(1)
		go w.processor(ctx)
	}
	w.wg.Add(1)
	go w.cleaner(ctx)
}

// Stop cancels running jobs, releases them back to pending and waits for the
// processors to exit.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	active := make([]int64, 0, len(w.activeJobs))
	for id, cancel := range w.activeJobs {
		cancel()
		active = append(active, id)
	}
	w.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	for _, id := range active {
		if err := w.queue.ReleaseJob(shutdownCtx, id); err != nil {
			w.log.Warn("release job failed", "job_id", id, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("worker stopped")
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("worker: shutdown timeout exceeded")
	}
}

func (w *Worker) processor(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		claimed, err := w.processNext(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.log.Warn("claim job failed", "error", err)
		}
		if claimed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(w.config.PollInterval):
		}
	}
}

// cleaner periodically deletes finished jobs past the retention period.
func (w *Worker) cleaner(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	removed, err := w.queue.CleanupOldJobs(ctx, w.config.Retention)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.log.Warn("cleanup old jobs failed", "error", err)
		}
		return
	}
	if removed > 0 {
		w.log.Info("old jobs removed", "count", removed, "retention", w.config.Retention)
	}
}

// processNext claims and runs one job. It reports whether a job was claimed.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	job, err := w.queue.ClaimNextJob(ctx, w.workerID)
	if err != nil || job == nil {
		return false, err
	}
	w.processJob(ctx, job)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *models.Job) {
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	w.mu.Lock()
	w.activeJobs[job.ID] = cancel
	handler, ok := w.handlers[job.JobType]
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.activeJobs, job.ID)
		w.mu.Unlock()
	}()

	log := w.log.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	var err error
	if !ok {
		err = fmt.Errorf("no handler registered for job type %q", job.JobType)
	} else {
		err = handler(jobCtx, job)
	}

	// Bookkeeping uses the parent context so a job timeout can still be recorded.
	if err != nil {
		w.handleError(ctx, log, job, err)
		return
	}

	w.record(func(s *Stats) { s.JobsSucceeded++ })
	log.Debug("job completed", "duration", time.Since(start))
	if err := w.queue.MarkCompleted(ctx, job.ID); err != nil {
		log.Warn("mark job completed failed", "error", err)
	}
}

func (w *Worker) handleError(ctx context.Context, log *logger.Logger, job *models.Job, jobErr error) {
	w.record(func(s *Stats) { s.JobsFailed++ })

	if !job.CanRetry() {
		log.Error("job failed permanently", "error", jobErr)
		if err := w.queue.MarkFailed(ctx, job.ID, jobErr.Error()); err != nil {
			log.Warn("mark job failed failed", "error", err)
		}
		return
	}

	delay := w.retryDelay(job.Attempts)
	w.record(func(s *Stats) { s.JobsRetried++ })
	log.Warn("job failed; retrying", "error", jobErr, "retry_in", delay)
	if err := w.queue.ScheduleRetry(ctx, job.ID, jobErr.Error(), time.Now().Add(delay)); err != nil {
		log.Warn("schedule retry failed", "error", err)
	}
}

// retryDelay is base * 2^(attempt-1), capped, with ±20% jitter.
func (w *Worker) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(w.config.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	d = math.Min(d, float64(w.config.RetryMaxDelay))
	return time.Duration(d * (0.8 + 0.4*rand.Float64()))
}

func (w *Worker) record(fn func(*Stats)) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.JobsProcessed++
	w.stats.LastProcessedAt = time.Now()
	fn(&w.stats)
}

// Stats returns the in-process counters.
func (w *Worker) Stats() Stats {
	w.statsMu.Lock()
	s := w.stats
	w.statsMu.Unlock()

	w.mu.RLock()
	s.ActiveJobs = len(w.activeJobs)
	w.mu.RUnlock()
	return s
}

// Enqueue adds a job to the queue.
func (w *Worker) Enqueue(ctx context.Context, job *models.Job) error {
	if err := w.queue.Enqueue(ctx, job); err != nil {
		return err
	}
	w.log.Debug("job enqueued", "job_id", job.ID, "job_type", job.JobType)
	return nil
}

// CancelJob cancels a pending or failed job.
func (w *Worker) CancelJob(ctx context.Context, jobID int64) error {
	if err := w.queue.CancelJob(ctx, jobID); err != nil {
		return err
	}
	w.log.Info("job cancelled", "job_id", jobID)
	return nil
}

// QueueStats returns per-status job counts.
func (w *Worker) QueueStats(ctx context.Context) (*models.JobStats, error) {
	return w.queue.GetStats(ctx)
}

// PendingJobs lists runnable jobs.
func (w *Worker) PendingJobs(ctx context.Context, limit int) ([]models.Job, error) {
	return w.queue.ListPendingJobs(ctx, limit)
}
