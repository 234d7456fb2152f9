package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

func seedClicked(f *fixture, id string, customer int64, ch model.Channel, clickedAgo time.Duration, completed bool) {
	clicked := t0.Add(-clickedAgo)
	r := model.ReviewRequest{
		ID: id, BusinessID: businessID, CustomerID: customer, Channel: ch,
		Token: "tok-" + id, ReviewLink: "https://reviews.test/email-track/click?t=tok-" + id,
		Status: model.ReviewClicked, ClickedAt: &clicked,
	}
	if completed {
		r.Status = model.ReviewCompleted
		r.CompletedAt = &clicked
	}
	f.store.PutRequest(r)
}

func TestRecoverySweep_RemindsOnce(t *testing.T) {
	f := newFixture()
	seedClicked(f, "rr-1", customerID, model.ChannelEmail, 30*time.Hour, false)

	res, err := f.sweep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reminded)
	require.Equal(t, 1, f.email.Calls())
	msg := f.email.Sent()[0]
	assert.Equal(t, "A quick reminder from Acme Roofing", msg.Subject)
	assert.Contains(t, msg.Body, "https://reviews.test/email-track/click?t=tok-rr-1")

	req := f.store.Request("rr-1")
	assert.Equal(t, model.ReviewClicked, req.Status)
	require.NotNil(t, req.ReminderSentAt)

	f.clock.Set(t0.Add(time.Hour))
	res, err = f.sweep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Selected)
	assert.Equal(t, 1, f.email.Calls())
	assert.Equal(t, 1, f.telemetry.Count(model.EventReminderSent))
}

func TestRecoverySweep_Window(t *testing.T) {
	f := newFixture()
	seedClicked(f, "rr-recent", customerID, model.ChannelEmail, 10*time.Hour, false)
	seedClicked(f, "rr-old", customerID, model.ChannelEmail, 40*time.Hour, false)
	seedClicked(f, "rr-done", customerID, model.ChannelEmail, 30*time.Hour, true)

	res, err := f.sweep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Selected)
	assert.Equal(t, 0, f.email.Calls())
}

func TestRecoverySweep_FailureIsolatedAndNotRetried(t *testing.T) {
	f := newFixture()
	seedClicked(f, "rr-a", customerID, model.ChannelEmail, 25*time.Hour, false)
	seedClicked(f, "rr-b", 12, model.ChannelSMS, 26*time.Hour, false)
	seedClicked(f, "rr-c", customerID, model.ChannelEmail, 27*time.Hour, false)
	f.sms.FailFor["(555) 765-4321"] = true

	res, err := f.sweep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Selected)
	assert.Equal(t, 2, res.Reminded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, f.telemetry.Count(model.EventReminderFailed))

	res, err = f.sweep.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Selected)
	assert.Equal(t, 1, f.sms.Calls())
}
