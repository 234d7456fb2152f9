package model

import (
	"encoding/json"
	"time"
)

const (
	EventTriggerReceived    = "trigger_received"
	EventNoMatchingTemplate = "no_matching_template"
	EventNoReachableChannel = "no_reachable_channel"
	EventDuplicateTrigger   = "duplicate_trigger"
	EventRequestScheduled   = "review_request_scheduled"
	EventRequestSent        = "review_request_sent"
	EventRequestFailed      = "review_request_failed"
	EventRequestOpened      = "review_request_opened"
	EventRequestClicked     = "review_request_clicked"
	EventRequestCompleted   = "review_request_completed"
	EventTrackingInvalid    = "tracking_invalid_token"
	EventReminderSent       = "review_reminder_sent"
	EventReminderFailed     = "review_reminder_failed"
	EventJobAbandoned       = "job_retry_budget_exhausted"
	EventSMSOptOut          = "sms_opt_out"
	EventSMSOptIn           = "sms_opt_in"
)

// TelemetryEvent is an append-only observability record. It never drives control flow.
type TelemetryEvent struct {
	ID         int64           `db:"id" json:"id"`
	BusinessID int64           `db:"business_id" json:"business_id"`
	EventType  string          `db:"event_type" json:"event_type"`
	EventData  json.RawMessage `db:"event_data" json:"event_data"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
