package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TemplateConfig is stored as JSONB on automation_templates.config.
type TemplateConfig struct {
	Subject     string   `json:"subject,omitempty"`
	MessageBody string   `json:"message_body"`
	DelayHours  *int     `json:"delay_hours,omitempty"`
	DelayDays   *int     `json:"delay_days,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Delay reads delay_days + delay_hours when days is present, otherwise delay_hours alone.
func (c TemplateConfig) Delay() time.Duration {
	var hours int
	if c.DelayHours != nil {
		hours = *c.DelayHours
	}
	if c.DelayDays != nil {
		return time.Duration(*c.DelayDays)*24*time.Hour + time.Duration(hours)*time.Hour
	}
	return time.Duration(hours) * time.Hour
}

func (c TemplateConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *TemplateConfig) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = TemplateConfig{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("template config: unsupported type %T", src)
	}
	return json.Unmarshal(raw, c)
}
