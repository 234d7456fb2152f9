package channel

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

// DefaultFooter is appended to every SMS that does not already carry opt-out wording.
const DefaultFooter = "Reply STOP to opt out"

// MessageCreator is the slice of the Twilio REST client the adapter uses.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type SMSConfig struct {
	AccountSID  string
	AuthToken   string
	DefaultFrom string
	Footer      string
	PerSecond   float64
}

// SMSAdapter sends review requests through Twilio.
type SMSAdapter struct {
	client      MessageCreator
	defaultFrom string
	footer      string
	limiter     *rate.Limiter
}

// NewTwilioClient builds the REST client from account credentials.
func NewTwilioClient(cfg SMSConfig) MessageCreator {
	c := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return c.Api
}

func NewSMSAdapter(client MessageCreator, cfg SMSConfig) *SMSAdapter {
	footer := cfg.Footer
	if footer == "" {
		footer = DefaultFooter
	}
	limit := rate.Inf
	burst := 1
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
		burst = max(1, int(cfg.PerSecond))
	}
	return &SMSAdapter{
		client:      client,
		defaultFrom: cfg.DefaultFrom,
		footer:      footer,
		limiter:     rate.NewLimiter(limit, burst),
	}
}

func (a *SMSAdapter) Channel() model.Channel { return model.ChannelSMS }

func (a *SMSAdapter) Send(ctx context.Context, msg Message) (Result, error) {
	if msg.OptedOut {
		return Result{}, appErrors.NewAdapterFailure(string(model.ChannelSMS), "recipient opted out", nil)
	}
	if err := requireRecipient(model.ChannelSMS, msg.To); err != nil {
		return Result{}, err
	}
	to, err := NormalizeE164(msg.To)
	if err != nil {
		return Result{}, appErrors.NewAdapterFailure(string(model.ChannelSMS), "invalid destination", err)
	}
	from := msg.From
	if from == "" {
		from = a.defaultFrom
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return Result{}, appErrors.NewAdapterFailure(string(model.ChannelSMS), "rate limit wait aborted", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(a.ComposeBody(msg.Body, msg.LinkURL))

	return callWithContext(ctx, model.ChannelSMS, func() (string, error) {
		resp, err := a.client.CreateMessage(params)
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Sid == nil {
			return "", nil
		}
		return *resp.Sid, nil
	})
}

// ComposeBody appends the review link when the body does not already contain it,
// then the compliance footer.
func (a *SMSAdapter) ComposeBody(body, link string) string {
	out := strings.TrimSpace(body)
	if link != "" && !strings.Contains(out, link) {
		out += "\n" + link
	}
	if !strings.Contains(strings.ToLower(out), "reply stop") {
		out += "\n\n" + a.footer
	}
	return out
}

// NormalizeE164 turns a loosely formatted phone number into +<digits>.
// Ten-digit numbers without a country code are assumed to be North American.
func NormalizeE164(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	plus := strings.HasPrefix(trimmed, "+")
	var digits strings.Builder
	for _, r := range trimmed {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", fmt.Errorf("phone %q contains %q", raw, r)
		}
	}
	d := digits.String()
	if !plus {
		switch {
		case len(d) == 10:
			d = "1" + d
		case len(d) == 11 && d[0] == '1':
		default:
			return "", fmt.Errorf("phone %q has no country code", raw)
		}
	}
	if len(d) < 8 || len(d) > 15 || d[0] == '0' {
		return "", fmt.Errorf("phone %q is not a valid E.164 number", raw)
	}
	return "+" + d, nil
}

// OptAction is what an inbound SMS asks for.
type OptAction int

const (
	OptNone OptAction = iota
	OptOut
	OptIn
)

var optOutKeywords = map[string]bool{
	"STOP": true, "STOPALL": true, "UNSUBSCRIBE": true, "CANCEL": true, "END": true, "QUIT": true,
}

var optInKeywords = map[string]bool{"START": true, "UNSTOP": true}

// ParseKeyword classifies an inbound SMS body. Only a message consisting of the
// keyword alone counts.
func ParseKeyword(body string) OptAction {
	word := strings.ToUpper(strings.Trim(strings.TrimSpace(body), ".!"))
	switch {
	case optOutKeywords[word]:
		return OptOut
	case optInKeywords[word]:
		return OptIn
	default:
		return OptNone
	}
}

var _ Adapter = (*SMSAdapter)(nil)
