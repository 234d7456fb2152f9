// internal/repository/review_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

type ReviewRepositoryInterface interface {
	CreateScheduled(ctx context.Context, req *model.ReviewRequest, job *model.ScheduledJob, dedupWindow time.Duration) (*model.ScheduledJob, error)
	GetByID(ctx context.Context, id string) (*model.ReviewRequest, error)
	GetByToken(ctx context.Context, token string) (*model.ReviewRequest, error)
	Advance(ctx context.Context, id string, to model.ReviewStatus, at time.Time) (bool, error)
	ClaimReminders(ctx context.Context, clickedAfter, clickedBefore, now time.Time, limit int) ([]*model.ReviewRequest, error)
}

type ReviewRepository struct {
	DB *sqlx.DB
}

const reviewColumns = `id, business_id, customer_id, template_id, channel, subject, message_body,
	token, review_link, status, best_send_at, sent_at, opened_at, clicked_at, completed_at,
	failed_at, reminder_sent_at, last_error, created_at`

const jobColumns = `id, business_id, job_type, payload, dedup_key, run_at, status, attempts,
	claimed_at, last_error, created_at, updated_at`

// statusTimestamp maps each forward status to the column recording when it was reached.
var statusTimestamp = map[model.ReviewStatus]string{
	model.ReviewSent:      "sent_at",
	model.ReviewOpened:    "opened_at",
	model.ReviewClicked:   "clicked_at",
	model.ReviewCompleted: "completed_at",
	model.ReviewFailed:    "failed_at",
}

// CreateScheduled writes the review request and its job in one transaction.
// A transaction-scoped advisory lock on the dedup key serialises concurrent
// duplicates; if a job with the same key was created inside dedupWindow the
// existing job is returned with appErrors.ErrSchedulingConflict and nothing is written.
func (r *ReviewRepository) CreateScheduled(ctx context.Context, req *model.ReviewRequest, job *model.ScheduledJob, dedupWindow time.Duration) (*model.ScheduledJob, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin schedule tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, job.DedupKey); err != nil {
		return nil, fmt.Errorf("lock dedup key: %w", err)
	}

	var existing model.ScheduledJob
	err = tx.GetContext(ctx, &existing, `
		SELECT `+jobColumns+` FROM scheduled_jobs
		WHERE dedup_key = $1 AND created_at > $2
		ORDER BY created_at ASC
		LIMIT 1`, job.DedupKey, job.CreatedAt.Add(-dedupWindow))
	switch {
	case err == nil:
		return &existing, appErrors.ErrSchedulingConflict
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("check duplicate trigger: %w", err)
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO review_requests
			(id, business_id, customer_id, template_id, channel, subject, message_body,
			 token, review_link, status, best_send_at, created_at)
		VALUES
			(:id, :business_id, :customer_id, :template_id, :channel, :subject, :message_body,
			 :token, :review_link, :status, :best_send_at, :created_at)`, req)
	if err != nil {
		return nil, fmt.Errorf("insert review request: %w", err)
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO scheduled_jobs
			(id, business_id, job_type, payload, dedup_key, run_at, status, attempts, created_at, updated_at)
		VALUES
			(:id, :business_id, :job_type, :payload, :dedup_key, :run_at, :status, :attempts, :created_at, :updated_at)`, job)
	if err != nil {
		return nil, fmt.Errorf("insert scheduled job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit schedule tx: %w", err)
	}
	return job, nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*model.ReviewRequest, error) {
	var rr model.ReviewRequest
	err := r.DB.GetContext(ctx, &rr, `SELECT `+reviewColumns+` FROM review_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("review request", id)
		}
		return nil, fmt.Errorf("get review request: %w", err)
	}
	return &rr, nil
}

func (r *ReviewRepository) GetByToken(ctx context.Context, token string) (*model.ReviewRequest, error) {
	var rr model.ReviewRequest
	err := r.DB.GetContext(ctx, &rr, `SELECT `+reviewColumns+` FROM review_requests WHERE token = $1`, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("review request", "token")
		}
		return nil, fmt.Errorf("get review request by token: %w", err)
	}
	return &rr, nil
}

// Advance moves the request to `to` only if its current status may legally precede it.
// It reports false when the row was already at or past `to`, which makes repeated
// pixel loads and clicks no-ops.
func (r *ReviewRepository) Advance(ctx context.Context, id string, to model.ReviewStatus, at time.Time) (bool, error) {
	col, ok := statusTimestamp[to]
	if !ok {
		return false, &appErrors.InvalidTransitionError{From: "*", To: string(to)}
	}
	prior := statusStrings(model.PriorStates(to))

	query := fmt.Sprintf(`
		UPDATE review_requests
		SET status = $2, %[1]s = COALESCE(%[1]s, $3)
		WHERE id = $1 AND status = ANY($4)`, col)
	res, err := r.DB.ExecContext(ctx, query, id, string(to), at, pq.Array(prior))
	if err != nil {
		return false, fmt.Errorf("advance review request to %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get affected rows: %w", err)
	}
	return n == 1, nil
}

// ClaimReminders marks up to limit clicked-but-not-completed requests whose click time
// falls in [clickedAfter, clickedBefore] as reminded and returns them. Rows already
// carrying a reminder marker are never returned again.
func (r *ReviewRepository) ClaimReminders(ctx context.Context, clickedAfter, clickedBefore, now time.Time, limit int) ([]*model.ReviewRequest, error) {
	requests := []*model.ReviewRequest{}
	err := r.DB.SelectContext(ctx, &requests, `
		UPDATE review_requests
		SET reminder_sent_at = $4
		WHERE id IN (
			SELECT id FROM review_requests
			WHERE clicked_at IS NOT NULL
			  AND completed_at IS NULL
			  AND reminder_sent_at IS NULL
			  AND clicked_at BETWEEN $1 AND $2
			ORDER BY clicked_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+reviewColumns, clickedAfter, clickedBefore, limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim reminders: %w", err)
	}
	return requests, nil
}

func statusStrings(states []model.ReviewStatus) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

var _ ReviewRepositoryInterface = (*ReviewRepository)(nil)
