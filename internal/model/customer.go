// internal/model/customer.go
package model

import "strings"

type Customer struct {
	ID          int64  `db:"id" json:"id"`
	BusinessID  int64  `db:"business_id" json:"business_id"`
	FirstName   string `db:"first_name" json:"first_name"`
	LastName    string `db:"last_name" json:"last_name"`
	Email       string `db:"email" json:"email,omitempty"`
	Phone       string `db:"phone" json:"phone,omitempty"`
	SMSOptedOut bool   `db:"sms_opted_out" json:"sms_opted_out"`
}

func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Reachable reports whether the customer can receive messages on ch.
func (c *Customer) Reachable(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return strings.TrimSpace(c.Email) != ""
	case ChannelSMS:
		return strings.TrimSpace(c.Phone) != "" && !c.SMSOptedOut
	}
	return false
}
