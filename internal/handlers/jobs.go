package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
)

// JobQueue exposes notification queue administration.
type JobQueue interface {
	QueueStats(ctx context.Context) (*models.JobStats, error)
	PendingJobs(ctx context.Context, limit int) ([]models.Job, error)
	CancelJob(ctx context.Context, jobID int64) error
}

// GetJobStats returns per-status job counts.
func GetJobStats(queue JobQueue, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := queue.QueueStats(r.Context())
		if err != nil {
			writeError(w, log, "GetJobStats", err)
			return
		}
		writeJSON(w, log, http.StatusOK, stats)
	}
}

// ListPendingJobs returns runnable jobs, oldest first.
func ListPendingJobs(queue JobQueue, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= 1000 {
				limit = l
			}
		}

		jobs, err := queue.PendingJobs(r.Context(), limit)
		if err != nil {
			writeError(w, log, "ListPendingJobs", err)
			return
		}
		if jobs == nil {
			jobs = []models.Job{}
		}
		writeJSON(w, log, http.StatusOK, map[string]any{
			"jobs":  jobs,
			"count": len(jobs),
		})
	}
}

// CancelJob cancels a pending or failed job.
func CancelJob(queue JobQueue, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := int64Param(w, r, "id")
		if !ok {
			return
		}
		if err := queue.CancelJob(r.Context(), jobID); err != nil {
			writeError(w, log, "CancelJob", err)
			return
		}
		writeJSON(w, log, http.StatusOK, map[string]any{"id": jobID, "status": models.JobStatusCancelled})
	}
}
