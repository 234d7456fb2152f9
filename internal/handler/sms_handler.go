// internal/handler/sms_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/twilio/twilio-go/client"

	"github.com/unclebandit/reviewleopard-backend/internal/channel"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
)

type InboundSMS interface {
	HandleInbound(ctx context.Context, from, body string) (channel.OptAction, error)
}

// SignatureValidator checks a provider webhook signature over the public URL and
// the posted form parameters.
type SignatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

const (
	emptyTwiML            = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	twilioSignatureHeader = "X-Twilio-Signature"
)

// SMSHandler receives the provider's inbound message webhook.
type SMSHandler struct {
	OptOut    InboundSMS
	Validator SignatureValidator
	// URL is the public address the provider posts to; it is part of the signature.
	URL string
	Log logger.Logger
}

// NewSMSHandler verifies inbound webhooks with the Twilio request validator.
func NewSMSHandler(optOut InboundSMS, authToken, publicURL string, log logger.Logger) *SMSHandler {
	validator := client.NewRequestValidator(authToken)
	return &SMSHandler{OptOut: optOut, Validator: &validator, URL: publicURL, Log: log}
}

// Inbound handles POST /sms/inbound. The provider handles the STOP reply itself,
// so the response is always empty.
func (h *SMSHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	sig := r.Header.Get(twilioSignatureHeader)
	if sig == "" || !h.Validator.Validate(h.URL, params, sig) {
		h.Log.Warn("inbound sms signature rejected", logger.String("from", params["From"]))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	from, body := params["From"], params["Body"]
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}
	action, err := h.OptOut.HandleInbound(r.Context(), from, body)
	switch {
	case err != nil:
		h.Log.Error("inbound sms failed", logger.String("from", from), logger.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	case action != channel.OptNone:
		h.Log.Info("sms opt keyword applied", logger.String("from", from), logger.Int("action", int(action)))
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(emptyTwiML))
}
