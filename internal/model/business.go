package model

// Business owns templates, customers and every request sent on its behalf.
type Business struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	FromEmail string `db:"from_email" json:"from_email,omitempty"`
	SMSFrom   string `db:"sms_from" json:"sms_from,omitempty"`
	ReviewURL string `db:"review_url" json:"review_url"`
}
