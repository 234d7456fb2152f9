package channel

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	DefaultFrom string
}

// EmailAdapter sends HTML review requests over SMTP.
type EmailAdapter struct {
	cfg      EmailConfig
	sendMail SendMailFunc
	now      func() time.Time
}

func NewEmailAdapter(cfg EmailConfig) *EmailAdapter {
	return &EmailAdapter{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

// WithSendMail swaps the SMTP transport. Used in tests.
func (a *EmailAdapter) WithSendMail(fn SendMailFunc) *EmailAdapter {
	a.sendMail = fn
	return a
}

func (a *EmailAdapter) Channel() model.Channel { return model.ChannelEmail }

var emailLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .LinkURL}}<p><a href="{{.LinkURL}}" style="display:inline-block;padding:10px 18px;background:#1a73e8;color:#fff;text-decoration:none;border-radius:4px;">Leave a review</a></p>
{{end}}<p style="color:#888;font-size:12px;">Sent on behalf of {{.BusinessName}}</p>
{{if .PixelURL}}<img src="{{.PixelURL}}" width="1" height="1" alt="" style="display:none;">
{{end}}</body>
</html>
`))

type emailView struct {
	Paragraphs   []string
	LinkURL      template.URL
	PixelURL     template.URL
	BusinessName string
}

// RenderHTML wraps the plain body in the branded layout.
func RenderHTML(msg Message) (string, error) {
	view := emailView{
		LinkURL:      template.URL(msg.LinkURL),
		PixelURL:     template.URL(msg.PixelURL),
		BusinessName: msg.BusinessName,
	}
	for _, p := range strings.Split(msg.Body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			view.Paragraphs = append(view.Paragraphs, p)
		}
	}
	var buf bytes.Buffer
	if err := emailLayout.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

func (a *EmailAdapter) Send(ctx context.Context, msg Message) (Result, error) {
	if err := requireRecipient(model.ChannelEmail, msg.To); err != nil {
		return Result{}, err
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return Result{}, appErrors.NewAdapterFailure(string(model.ChannelEmail), "invalid destination", err)
	}
	from := msg.From
	if from == "" {
		from = a.cfg.DefaultFrom
	}
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return Result{}, appErrors.NewAdapterFailure(string(model.ChannelEmail), "invalid from address", err)
	}

	html, err := RenderHTML(msg)
	if err != nil {
		return Result{}, appErrors.NewAdapterFailure(string(model.ChannelEmail), "render failed", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(sender.Address))
	raw := buildMIME(sender, to, msg.Subject, messageID, html, a.now())

	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.Host)
	}
	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))

	return callWithContext(ctx, model.ChannelEmail, func() (string, error) {
		if err := a.sendMail(addr, auth, sender.Address, []string{to.Address}, raw); err != nil {
			return "", err
		}
		return messageID, nil
	})
}

func buildMIME(from, to *mail.Address, subject, messageID, html string, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Message-ID: " + messageID + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

var _ Adapter = (*EmailAdapter)(nil)
