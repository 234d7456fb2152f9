// internal/controller/trigger_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/reviewleopard-backend/internal/auth"
	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/service"
)

// TriggerHandler runs intake for one raw event.
type TriggerHandler interface {
	Handle(ctx context.Context, businessID int64, raw service.RawEvent) (*service.TriggerResult, error)
}

const maxBodyBytes = 1 << 20

// TriggerController serves trigger intake: the manual call and CRM/Zapier webhooks.
// All routes sit behind auth.Middleware.
type TriggerController struct {
	Triggers TriggerHandler
	Log      logger.Logger
}

func (c *TriggerController) Trigger(w http.ResponseWriter, r *http.Request) {
	var body service.ManualTrigger
	if !decode(w, r, c.Log, &body) {
		return
	}
	c.handle(w, r, body)
}

func (c *TriggerController) CRMWebhook(w http.ResponseWriter, r *http.Request) {
	var body service.CRMWebhook
	if !decode(w, r, c.Log, &body) {
		return
	}
	body.Provider = chi.URLParam(r, "provider")
	c.handle(w, r, body)
}

func (c *TriggerController) ZapierWebhook(w http.ResponseWriter, r *http.Request) {
	var body service.ZapierEvent
	if !decode(w, r, c.Log, &body) {
		return
	}
	c.handle(w, r, body)
}

func (c *TriggerController) handle(w http.ResponseWriter, r *http.Request, raw service.RawEvent) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	res, err := c.Triggers.Handle(r.Context(), p.BusinessID, raw)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	status := http.StatusAccepted
	if res.Outcome != service.OutcomeScheduled {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func decode(w http.ResponseWriter, r *http.Request, log logger.Logger, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, log, appErrors.NewInvalidEvent("", "malformed JSON body"))
		return false
	}
	return true
}
