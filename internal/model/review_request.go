// internal/model/review_request.go
package model

import "time"

type ReviewStatus string

const (
	ReviewScheduled ReviewStatus = "scheduled"
	ReviewSent      ReviewStatus = "sent"
	ReviewOpened    ReviewStatus = "opened"
	ReviewClicked   ReviewStatus = "clicked"
	ReviewCompleted ReviewStatus = "completed"
	ReviewFailed    ReviewStatus = "failed"
)

// transitions lists the edges of the review request lifecycle. Every edge moves
// forward; sent -> clicked covers channels without open tracking.
var transitions = map[ReviewStatus][]ReviewStatus{
	ReviewScheduled: {ReviewSent, ReviewFailed},
	ReviewSent:      {ReviewOpened, ReviewClicked, ReviewFailed},
	ReviewOpened:    {ReviewClicked},
	ReviewClicked:   {ReviewCompleted},
}

func (s ReviewStatus) Terminal() bool {
	return s == ReviewCompleted || s == ReviewFailed
}

// CanTransition reports whether a request may move from s to next.
func (s ReviewStatus) CanTransition(next ReviewStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// PriorStates lists every status from which next is reachable.
func PriorStates(next ReviewStatus) []ReviewStatus {
	var out []ReviewStatus
	for _, s := range []ReviewStatus{ReviewScheduled, ReviewSent, ReviewOpened, ReviewClicked} {
		if s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}

// ReviewRequest snapshots the matched template copy at scheduling time so later
// template edits only affect future matches.
type ReviewRequest struct {
	ID             string       `db:"id" json:"id"`
	BusinessID     int64        `db:"business_id" json:"business_id"`
	CustomerID     int64        `db:"customer_id" json:"customer_id"`
	TemplateID     string       `db:"template_id" json:"template_id"`
	Channel        Channel      `db:"channel" json:"channel"`
	Subject        string       `db:"subject" json:"subject,omitempty"`
	MessageBody    string       `db:"message_body" json:"message_body"`
	Token          string       `db:"token" json:"-"`
	ReviewLink     string       `db:"review_link" json:"review_link"`
	Status         ReviewStatus `db:"status" json:"status"`
	BestSendAt     time.Time    `db:"best_send_at" json:"best_send_at"`
	SentAt         *time.Time   `db:"sent_at" json:"sent_at,omitempty"`
	OpenedAt       *time.Time   `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt      *time.Time   `db:"clicked_at" json:"clicked_at,omitempty"`
	CompletedAt    *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt       *time.Time   `db:"failed_at" json:"failed_at,omitempty"`
	ReminderSentAt *time.Time   `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	LastError      string       `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
