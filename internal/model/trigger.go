package model

import "time"

type TriggerType string

const (
	TriggerJobCompleted         TriggerType = "job_completed"
	TriggerInvoicePaid          TriggerType = "invoice_paid"
	TriggerServiceCompleted     TriggerType = "service_completed"
	TriggerCustomerCreated      TriggerType = "customer_created"
	TriggerAppointmentCompleted TriggerType = "appointment_completed"
	TriggerManual               TriggerType = "manual"
)

var allowedTriggers = map[TriggerType]bool{
	TriggerJobCompleted:         true,
	TriggerInvoicePaid:          true,
	TriggerServiceCompleted:     true,
	TriggerCustomerCreated:      true,
	TriggerAppointmentCompleted: true,
	TriggerManual:               true,
}

func (t TriggerType) Allowed() bool {
	return allowedTriggers[t]
}

// TriggerEvent is the canonical form of every inbound business event.
// It is never stored on its own; the scheduler embeds it in the job payload.
type TriggerEvent struct {
	BusinessID  int64       `json:"business_id"`
	CustomerID  int64       `json:"customer_id"`
	TriggerType TriggerType `json:"trigger_type"`
	FreeText    string      `json:"free_text"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
