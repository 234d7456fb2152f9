// internal/model/scheduled_job.go
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

const (
	JobSendReviewRequest JobType = "send_review_request_now"
)

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

type ScheduledJob struct {
	ID         string          `db:"id" json:"id"`
	BusinessID int64           `db:"business_id" json:"business_id"`
	JobType    JobType         `db:"job_type" json:"job_type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	DedupKey   string          `db:"dedup_key" json:"-"`
	RunAt      time.Time       `db:"run_at" json:"run_at"`
	Status     JobStatus       `db:"status" json:"status"`
	Attempts   int             `db:"attempts" json:"attempts"`
	ClaimedAt  *time.Time      `db:"claimed_at" json:"claimed_at,omitempty"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// JobPayload is the typed body of a scheduled job, one variant per JobType.
type JobPayload interface {
	JobType() JobType
}

// ReviewRequestPayload drives a single review request delivery.
type ReviewRequestPayload struct {
	ReviewRequestID string       `json:"review_request_id"`
	Trigger         TriggerEvent `json:"trigger"`
}

func (ReviewRequestPayload) JobType() JobType { return JobSendReviewRequest }

func EncodePayload(p JobPayload) (json.RawMessage, error) {
	return json.Marshal(p)
}

// DecodePayload returns the typed payload for job.
func DecodePayload(job *ScheduledJob) (JobPayload, error) {
	switch job.JobType {
	case JobSendReviewRequest:
		var p ReviewRequestPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", job.JobType, err)
		}
		if p.ReviewRequestID == "" {
			return nil, fmt.Errorf("decode %s payload: missing review_request_id", job.JobType)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", job.JobType)
	}
}
