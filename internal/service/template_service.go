// internal/service/template_service.go
package service

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/unclebandit/reviewleopard-backend/internal/channel"
	"github.com/unclebandit/reviewleopard-backend/internal/clickurl"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

const (
	defaultSubject  = "How did we do, {{customer.first_name}}?"
	reminderBody    = "Hi {{customer.first_name}}, thanks again for choosing {{business.name}}. If you have a minute, we'd love to hear how it went: {{review_link}}"
	reminderSubject = "A quick reminder from {{business.name}}"
	anonymousName   = "there"
)

var placeholder = regexp.MustCompile(`\{\{\s*([a-z_.]+)\s*\}\}`)

// RenderTemplate substitutes {{name}} placeholders from data. Unknown placeholders
// are left as written.
func RenderTemplate(template string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// Renderer builds channel messages from a review request's snapshotted copy.
type Renderer struct {
	BaseURL string
	Signer  *clickurl.Signer
}

// TrackingLink is the click-tracked URL that forwards to destination. The
// destination is signed together with the token; the click endpoint only
// redirects to destinations that verify.
func (r *Renderer) TrackingLink(token, destination string) string {
	q := url.Values{}
	q.Set("t", token)
	q.Set("l", destination)
	q.Set("s", r.Signer.Sign(token, destination))
	return r.BaseURL + "/email-track/click?" + q.Encode()
}

func (r *Renderer) PixelURL(token string) string {
	return r.BaseURL + "/email-track/open?t=" + url.QueryEscape(token)
}

func variables(req *model.ReviewRequest, c *model.Customer, b *model.Business, service string) map[string]string {
	first := strings.TrimSpace(c.FirstName)
	if first == "" {
		first = anonymousName
	}
	full := c.FullName()
	if full == "" {
		full = anonymousName
	}
	return map[string]string{
		"customer.name":       full,
		"customer.first_name": first,
		"customer.last_name":  strings.TrimSpace(c.LastName),
		"business.name":       b.Name,
		"review_link":         req.ReviewLink,
		"service":             service,
	}
}

// Compose renders req for delivery on its channel.
func (r *Renderer) Compose(req *model.ReviewRequest, c *model.Customer, b *model.Business, service string) channel.Message {
	return r.compose(req, c, b, service, req.Subject, req.MessageBody)
}

// ComposeReminder renders the one-time follow-up for a clicked request.
func (r *Renderer) ComposeReminder(req *model.ReviewRequest, c *model.Customer, b *model.Business) channel.Message {
	return r.compose(req, c, b, "", reminderSubject, reminderBody)
}

func (r *Renderer) compose(req *model.ReviewRequest, c *model.Customer, b *model.Business, service, subject, body string) channel.Message {
	data := variables(req, c, b, service)
	if strings.TrimSpace(subject) == "" {
		subject = defaultSubject
	}
	msg := channel.Message{
		BusinessID:   b.ID,
		BusinessName: b.Name,
		Subject:      RenderTemplate(subject, data),
		Body:         RenderTemplate(body, data),
		LinkURL:      req.ReviewLink,
	}
	switch req.Channel {
	case model.ChannelEmail:
		msg.To = c.Email
		msg.From = b.FromEmail
		msg.PixelURL = r.PixelURL(req.Token)
	case model.ChannelSMS:
		msg.To = c.Phone
		msg.From = b.SMSFrom
		msg.OptedOut = c.SMSOptedOut
	}
	return msg
}
