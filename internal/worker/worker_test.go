package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/storefront/backend/internal/inventory"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
)

type memQueue struct {
	mu        sync.Mutex
	pending   []*models.Job
	nextID    int64
	completed []int64
	failed    []int64
	retried   []int64
	released  []int64
	cleanups  []time.Duration
}

func (q *memQueue) Enqueue(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	job.ID = q.nextID
	job.Status = models.JobStatusPending
	q.pending = append(q.pending, job)
	return nil
}

func (q *memQueue) ClaimNextJob(ctx context.Context, workerID string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Attempts++
	job.Status = models.JobStatusProcessing
	return job, nil
}

func (q *memQueue) MarkCompleted(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, id)
	return nil
}

func (q *memQueue) MarkFailed(ctx context.Context, id int64, errorMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, id)
	return nil
}

func (q *memQueue) ScheduleRetry(ctx context.Context, id int64, errorMsg string, retryAfter time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, id)
	return nil
}

func (q *memQueue) ReleaseJob(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = append(q.released, id)
	return nil
}

func (q *memQueue) CancelJob(ctx context.Context, id int64) error { return nil }

func (q *memQueue) GetStats(ctx context.Context) (*models.JobStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &models.JobStats{Pending: len(q.pending), Completed: len(q.completed)}, nil
}

func (q *memQueue) ListPendingJobs(ctx context.Context, limit int) ([]models.Job, error) {
	return nil, nil
}

func (q *memQueue) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cleanups = append(q.cleanups, olderThan)
	return 3, nil
}

func (q *memQueue) cleanupCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cleanups)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestProcessNextCompletesJob(t *testing.T) {
	q := &memQueue{}
	w := New(Config{}, q, logger.Nop())
	w.RegisterHandler("noop", func(ctx context.Context, job *models.Job) error { return nil })
	require.NoError(t, w.Enqueue(context.Background(), &models.Job{JobType: "noop"}))

	claimed, err := w.processNext(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, []int64{1}, q.completed)
	assert.Equal(t, int64(1), w.Stats().JobsSucceeded)

	claimed, err = w.processNext(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestFailedJobRetriesThenFails(t *testing.T) {
	q := &memQueue{}
	w := New(Config{}, q, logger.Nop())
	w.RegisterHandler("flaky", func(ctx context.Context, job *models.Job) error { return errors.New("smtp down") })

	job := &models.Job{JobType: "flaky", MaxAttempts: 2}
	require.NoError(t, w.Enqueue(context.Background(), job))

	_, err := w.processNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, q.retried)
	assert.Empty(t, q.failed)

	// Simulate the retry window elapsing.
	q.pending = append(q.pending, job)
	_, err = w.processNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, q.failed)
	assert.Equal(t, int64(2), w.Stats().JobsFailed)
}

func TestUnknownJobTypeIsRetried(t *testing.T) {
	q := &memQueue{}
	w := New(Config{}, q, logger.Nop())
	require.NoError(t, w.Enqueue(context.Background(), &models.Job{JobType: "mystery"}))

	_, err := w.processNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, q.retried)
}

func TestRetryDelayIsBounded(t *testing.T) {
	w := New(Config{RetryBaseDelay: time.Second, RetryMaxDelay: 10 * time.Second}, &memQueue{}, logger.Nop())

	for attempt := 1; attempt <= 8; attempt++ {
		d := w.retryDelay(attempt)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	q := &memQueue{}
	w := New(Config{MaxConcurrent: 2, PollInterval: 5 * time.Millisecond}, q, logger.Nop())
	done := make(chan struct{})
	w.RegisterHandler("noop", func(ctx context.Context, job *models.Job) error {
		close(done)
		return nil
	})
	require.NoError(t, w.Enqueue(context.Background(), &models.Job{JobType: "noop"}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job was not processed")
	}
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	require.NoError(t, w.Stop(context.Background()))
}

func TestNotificationJobsSendMail(t *testing.T) {
	q := &memQueue{}
	w := New(Config{}, q, logger.Nop())
	mailer := &recordingMailer{}
	RegisterNotificationJobs(w, mailer)
	n := NewNotifications(w)

	order := &models.Order{ID: 100, CustomerID: 7, Status: models.OrderStatusPaid, TotalAmount: decimal.RequireFromString("43.72")}
	require.NoError(t, n.NotifyOrder(context.Background(), order))
	require.NoError(t, n.AlertLowStock(context.Background(), inventory.LowStock{ProductID: 1, Color: "red", Size: "M", Quantity: 0, Threshold: 5}))

	for i := 0; i < 2; i++ {
		claimed, err := w.processNext(context.Background())
		require.NoError(t, err)
		require.True(t, claimed)
	}

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "customer:7", mailer.sent[0].Recipient)
	assert.Contains(t, mailer.sent[0].Body, "43.72")
	assert.Equal(t, OperatorRecipient, mailer.sent[1].Recipient)
	assert.Contains(t, mailer.sent[1].Subject, "red/M")
	assert.Equal(t, []int64{1, 2}, q.completed)
}

func TestOrderNotificationRequiresOrderID(t *testing.T) {
	h := orderNotificationHandler(&recordingMailer{})
	err := h(context.Background(), &models.Job{Payload: models.JSONB{"customer_id": 7}})
	assert.Error(t, err)
}

func TestRunSweepsOldJobs(t *testing.T) {
	q := &memQueue{}
	w := New(Config{PollInterval: time.Hour, CleanupInterval: 5 * time.Millisecond, Retention: 48 * time.Hour}, q, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return q.cleanupCount() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, 48*time.Hour, q.cleanups[0])
}
