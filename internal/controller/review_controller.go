package controller

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/reviewleopard-backend/internal/auth"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
)

// Completer records that a customer finished their review.
type Completer interface {
	Complete(ctx context.Context, businessID int64, requestID string) (bool, error)
}

type ReviewController struct {
	Tracker Completer
	Log     logger.Logger
}

// Complete handles POST /review-requests/{id}/complete.
func (c *ReviewController) Complete(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	id := chi.URLParam(r, "id")
	changed, err := c.Tracker.Complete(r.Context(), p.BusinessID, id)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"review_request_id": id,
		"status":            "completed",
		"changed":           changed,
	})
}
