// internal/model/template.go
package model

import (
	"time"

	"github.com/lib/pq"
)

type TemplateStatus string

const (
	TemplateReady  TemplateStatus = "ready"
	TemplateActive TemplateStatus = "active"
	TemplatePaused TemplateStatus = "paused"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ChannelOrder is the preference order used when a template allows several channels.
var ChannelOrder = []Channel{ChannelEmail, ChannelSMS}

func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// AutomationTemplate is a business-defined rule mapping a trigger to review copy.
type AutomationTemplate struct {
	ID           string         `db:"id" json:"id"`
	BusinessID   int64          `db:"business_id" json:"business_id"`
	Key          string         `db:"key" json:"key"`
	Name         string         `db:"name" json:"name"`
	Status       TemplateStatus `db:"status" json:"status"`
	Channels     pq.StringArray `db:"channels" json:"channels"`
	TriggerType  string         `db:"trigger_type" json:"trigger_type,omitempty"`
	Config       TemplateConfig `db:"config" json:"config"`
	ServiceTypes pq.StringArray `db:"service_types" json:"service_types"`
	IsFallback   bool           `db:"is_fallback" json:"is_fallback"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// HasChannel reports whether the template allows sending on c.
func (t *AutomationTemplate) HasChannel(c Channel) bool {
	for _, ch := range t.Channels {
		if Channel(ch) == c {
			return true
		}
	}
	return false
}

// Delay returns how long after the trigger the request should go out.
func (t *AutomationTemplate) Delay() time.Duration {
	return t.Config.Delay()
}
