// internal/handler/cron_handler.go
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/service"
)

const (
	cronSecretHeader   = "X-Cron-Secret"
	defaultCronTimeout = 5 * time.Minute
)

type Ticker interface {
	Tick(ctx context.Context) (service.TickResult, error)
}

type Sweeper interface {
	Run(ctx context.Context) (service.SweepResult, error)
}

// CronHandler lets an external scheduler drive the dispatcher and the recovery
// sweep over HTTP, guarded by a shared secret.
type CronHandler struct {
	Dispatcher Ticker
	Sweep      Sweeper
	Secret     string
	// Timeout bounds one run. Runs outlive the calling client so that in-flight
	// sends still get their outcome recorded.
	Timeout time.Duration
	Log     logger.Logger
}

// Dispatch handles POST /internal/cron/dispatch.
func (h *CronHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	ctx, cancel := h.runContext(r)
	defer cancel()
	res, err := h.Dispatcher.Tick(ctx)
	if err != nil {
		h.Log.Error("dispatch tick failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "dispatch failed", "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Recovery handles POST /internal/cron/recovery.
func (h *CronHandler) Recovery(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	ctx, cancel := h.runContext(r)
	defer cancel()
	res, err := h.Sweep.Run(ctx)
	if err != nil {
		h.Log.Error("recovery sweep failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "recovery failed", "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *CronHandler) runContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultCronTimeout
	}
	return context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
}

func (h *CronHandler) authorized(r *http.Request) bool {
	got := r.Header.Get(cronSecretHeader)
	if h.Secret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
