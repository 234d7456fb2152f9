package service

import (
	"strings"
	"time"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

// RawEvent is an inbound business event in its source-specific shape.
type RawEvent interface {
	Source() string
	fields() (rawFields, error)
}

type rawFields struct {
	customerID  int64
	triggerType string
	text        []string
	occurredAt  *time.Time
}

// ManualTrigger is the body of POST /trigger.
type ManualTrigger struct {
	CustomerID  int64             `json:"customer_id"`
	TriggerType string            `json:"trigger_type"`
	TriggerData ManualTriggerData `json:"trigger_data"`
}

type ManualTriggerData struct {
	Description string     `json:"description"`
	Service     string     `json:"service"`
	LineItems   []string   `json:"line_items"`
	OccurredAt  *time.Time `json:"occurred_at"`
}

func (ManualTrigger) Source() string { return "manual" }

func (m ManualTrigger) fields() (rawFields, error) {
	text := append([]string{m.TriggerData.Service, m.TriggerData.Description}, m.TriggerData.LineItems...)
	return rawFields{
		customerID:  m.CustomerID,
		triggerType: m.TriggerType,
		text:        text,
		occurredAt:  m.TriggerData.OccurredAt,
	}, nil
}

// CRMWebhook is a job or invoice notification pushed by a connected CRM.
type CRMWebhook struct {
	Provider   string        `json:"-"`
	Topic      string        `json:"topic"`
	CustomerID int64         `json:"customer_id"`
	Title      string        `json:"title"`
	LineItems  []CRMLineItem `json:"line_items"`
	OccurredAt *time.Time    `json:"occurred_at"`
}

type CRMLineItem struct {
	Description string `json:"description"`
}

// crmTopics maps each provider's webhook topic to a trigger type.
var crmTopics = map[string]map[string]model.TriggerType{
	"jobber": {
		"JOB_COMPLETED":  model.TriggerJobCompleted,
		"VISIT_COMPLETE": model.TriggerServiceCompleted,
		"INVOICE_PAID":   model.TriggerInvoicePaid,
		"CLIENT_CREATE":  model.TriggerCustomerCreated,
	},
	"quickbooks": {
		"job.completed":   model.TriggerJobCompleted,
		"invoice.paid":    model.TriggerInvoicePaid,
		"customer.create": model.TriggerCustomerCreated,
	},
}

func (w CRMWebhook) Source() string { return "crm:" + w.Provider }

func (w CRMWebhook) fields() (rawFields, error) {
	topics, ok := crmTopics[strings.ToLower(w.Provider)]
	if !ok {
		return rawFields{}, appErrors.NewInvalidEvent("provider", "is not a supported CRM")
	}
	tt, ok := topics[w.Topic]
	if !ok {
		return rawFields{}, appErrors.NewInvalidEvent("topic", "is not mapped to a trigger type")
	}
	text := []string{w.Title}
	for _, li := range w.LineItems {
		text = append(text, li.Description)
	}
	return rawFields{
		customerID:  w.CustomerID,
		triggerType: string(tt),
		text:        text,
		occurredAt:  w.OccurredAt,
	}, nil
}

// ZapierEvent is the loosely typed payload of the Zapier integration.
type ZapierEvent struct {
	Event      string         `json:"event"`
	CustomerID int64          `json:"customer_id"`
	Data       map[string]any `json:"data"`
}

func (ZapierEvent) Source() string { return "zapier" }

func (z ZapierEvent) fields() (rawFields, error) {
	f := rawFields{customerID: z.CustomerID, triggerType: z.Event}
	for _, key := range []string{"service", "description", "title"} {
		if s, ok := z.Data[key].(string); ok {
			f.text = append(f.text, s)
		}
	}
	if s, ok := z.Data["occurred_at"].(string); ok && s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return rawFields{}, appErrors.NewInvalidEvent("occurred_at", "must be RFC 3339")
		}
		f.occurredAt = &ts
	}
	return f, nil
}

// Normalizer turns raw events into canonical trigger events. It performs no I/O.
type Normalizer struct {
	Now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Normalize validates raw on behalf of businessID, which must come from the
// authenticated principal rather than the payload.
func (n *Normalizer) Normalize(businessID int64, raw RawEvent) (model.TriggerEvent, error) {
	if businessID <= 0 {
		return model.TriggerEvent{}, appErrors.NewInvalidEvent("business_id", "missing from caller context")
	}
	f, err := raw.fields()
	if err != nil {
		return model.TriggerEvent{}, err
	}
	if f.customerID <= 0 {
		return model.TriggerEvent{}, appErrors.NewInvalidEvent("customer_id", "is required")
	}
	tt := model.TriggerType(strings.ToLower(strings.TrimSpace(f.triggerType)))
	if tt == "" {
		return model.TriggerEvent{}, appErrors.NewInvalidEvent("trigger_type", "is required")
	}
	if !tt.Allowed() {
		return model.TriggerEvent{}, appErrors.NewInvalidEvent("trigger_type", "is not supported")
	}

	occurred := n.Now().UTC()
	if f.occurredAt != nil && !f.occurredAt.IsZero() {
		occurred = f.occurredAt.UTC()
	}

	return model.TriggerEvent{
		BusinessID:  businessID,
		CustomerID:  f.customerID,
		TriggerType: tt,
		FreeText:    collapseText(f.text),
		OccurredAt:  occurred,
	}, nil
}

func collapseText(parts []string) string {
	var words []string
	for _, p := range parts {
		words = append(words, strings.Fields(p)...)
	}
	return strings.Join(words, " ")
}
