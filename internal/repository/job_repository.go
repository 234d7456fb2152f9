package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

type JobRepositoryInterface interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledJob, error)
	RequeueStale(ctx context.Context, staleBefore time.Time, retryBudget int) (int64, error)
	AbandonStale(ctx context.Context, staleBefore time.Time, retryBudget int, now time.Time) ([]*model.ScheduledJob, error)
	CompleteDelivery(ctx context.Context, jobID string, attempt int, requestID string, at time.Time) error
	FailDelivery(ctx context.Context, jobID string, attempt int, requestID, reason string, at time.Time) error
	FailJob(ctx context.Context, jobID string, attempt int, reason string, at time.Time) error
}

type JobRepository struct {
	DB *sqlx.DB
}

// ClaimDue atomically moves up to limit due queued jobs to running and returns them.
// FOR UPDATE SKIP LOCKED keeps concurrent dispatchers from claiming the same row.
func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledJob, error) {
	jobs := []*model.ScheduledJob{}
	err := r.DB.SelectContext(ctx, &jobs, `
		UPDATE scheduled_jobs
		SET status = 'running', claimed_at = $1, attempts = attempts + 1, updated_at = $1
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE status = 'queued' AND run_at <= $1
			ORDER BY run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'queued'
		RETURNING `+jobColumns, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	return jobs, nil
}

// RequeueStale returns running jobs claimed before staleBefore to the queue while
// they still have retry budget left.
func (r *JobRepository) RequeueStale(ctx context.Context, staleBefore time.Time, retryBudget int) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET status = 'queued', claimed_at = NULL, updated_at = NOW()
		WHERE status = 'running' AND claimed_at < $1 AND attempts <= $2`, staleBefore, retryBudget)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// AbandonStale permanently fails stale running jobs that exhausted their retry budget.
func (r *JobRepository) AbandonStale(ctx context.Context, staleBefore time.Time, retryBudget int, now time.Time) ([]*model.ScheduledJob, error) {
	jobs := []*model.ScheduledJob{}
	err := r.DB.SelectContext(ctx, &jobs, `
		UPDATE scheduled_jobs
		SET status = 'failed', last_error = 'stale claim: retry budget exhausted', updated_at = $3
		WHERE status = 'running' AND claimed_at < $1 AND attempts > $2
		RETURNING `+jobColumns, staleBefore, retryBudget, now)
	if err != nil {
		return nil, fmt.Errorf("abandon stale jobs: %w", err)
	}
	return jobs, nil
}

// CompleteDelivery marks the job done and the request sent in one transaction.
// attempt is the job's attempt count as returned by ClaimDue; it fences the claim.
// It returns appErrors.ErrClaimConflict when the job is no longer running under this claim.
func (r *JobRepository) CompleteDelivery(ctx context.Context, jobID string, attempt int, requestID string, at time.Time) error {
	return r.finish(ctx, jobID, attempt, model.JobDone, "", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE review_requests
			SET status = 'sent', sent_at = $2, last_error = ''
			WHERE id = $1 AND status = 'scheduled'`, requestID, at)
		return err
	}, at)
}

// FailDelivery marks the job and its request failed in one transaction.
func (r *JobRepository) FailDelivery(ctx context.Context, jobID string, attempt int, requestID, reason string, at time.Time) error {
	return r.finish(ctx, jobID, attempt, model.JobFailed, reason, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE review_requests
			SET status = 'failed', failed_at = $2, last_error = $3
			WHERE id = $1 AND status IN ('scheduled', 'sent')`, requestID, at, reason)
		return err
	}, at)
}

// FailJob fails a running job that has no deliverable review request behind it.
func (r *JobRepository) FailJob(ctx context.Context, jobID string, attempt int, reason string, at time.Time) error {
	return r.finish(ctx, jobID, attempt, model.JobFailed, reason, func(*sqlx.Tx) error { return nil }, at)
}

// finish closes a job only while it is still running under the same claim. A
// requeue and re-claim bumps attempts, so a stalled first claimant cannot close
// the second claimant's run.
func (r *JobRepository) finish(ctx context.Context, jobID string, attempt int, status model.JobStatus, reason string, updateRequest func(*sqlx.Tx) error, at time.Time) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET status = $2, last_error = $3, updated_at = $4
		WHERE id = $1 AND status = 'running' AND attempts = $5`, jobID, string(status), reason, at, attempt)
	if err != nil {
		return fmt.Errorf("mark job %s: %w", status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get affected rows: %w", err)
	}
	if n == 0 {
		return appErrors.ErrClaimConflict
	}

	if err := updateRequest(tx); err != nil {
		return fmt.Errorf("update review request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish tx: %w", err)
	}
	return nil
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
