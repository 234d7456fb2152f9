// internal/handler/tracking_handler.go
package handler

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/unclebandit/reviewleopard-backend/internal/clickurl"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/service"
)

// EngagementTracker records open and click signals.
type EngagementTracker interface {
	Open(ctx context.Context, hit service.Hit) (bool, error)
	Click(ctx context.Context, hit service.Hit) (bool, error)
}

// pixel is a transparent 1x1 PNG.
var pixel, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

// TrackingHandler serves the unauthenticated email tracking endpoints. The
// customer always gets the pixel or the redirect, whatever the store does.
type TrackingHandler struct {
	Tracker EngagementTracker
	Signer  *clickurl.Signer
	// FallbackURL is used when the link's destination is missing or fails
	// signature verification.
	FallbackURL string
	Log         logger.Logger
}

// Open handles GET /email-track/open?t=<token>.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	hit := hitFrom(r)
	if _, err := h.Tracker.Open(r.Context(), hit); err != nil {
		h.Log.Error("record open failed", logger.Error(err))
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.WriteHeader(http.StatusOK)
	w.Write(pixel)
}

// Click handles GET /email-track/click?t=<token>&l=<destination>&s=<signature>.
// Verification needs no store, so the redirect never waits on one.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	hit := hitFrom(r)
	dest := h.FallbackURL
	if h.Signer.Verify(hit.Token, hit.Destination, r.URL.Query().Get("s")) && isWebURL(hit.Destination) {
		dest = hit.Destination
	} else {
		h.Log.Warn("unsigned click destination rejected", logger.String("destination", hit.Destination))
		hit.Destination = ""
	}
	if _, err := h.Tracker.Click(r.Context(), hit); err != nil {
		h.Log.Error("record click failed", logger.Error(err))
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

func hitFrom(r *http.Request) service.Hit {
	q := r.URL.Query()
	return service.Hit{
		Token:       q.Get("t"),
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
		Destination: q.Get("l"),
	}
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
