package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReviewStatus_CanTransition(t *testing.T) {
	allowed := [][2]ReviewStatus{
		{ReviewScheduled, ReviewSent},
		{ReviewScheduled, ReviewFailed},
		{ReviewSent, ReviewOpened},
		{ReviewSent, ReviewClicked},
		{ReviewSent, ReviewFailed},
		{ReviewOpened, ReviewClicked},
		{ReviewClicked, ReviewCompleted},
	}
	for _, tr := range allowed {
		assert.True(t, tr[0].CanTransition(tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]ReviewStatus{
		{ReviewSent, ReviewScheduled},
		{ReviewClicked, ReviewOpened},
		{ReviewOpened, ReviewFailed},
		{ReviewClicked, ReviewFailed},
		{ReviewScheduled, ReviewClicked},
		{ReviewCompleted, ReviewFailed},
		{ReviewFailed, ReviewSent},
		{ReviewOpened, ReviewOpened},
	}
	for _, tr := range denied {
		assert.False(t, tr[0].CanTransition(tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestPriorStates(t *testing.T) {
	assert.Equal(t, []ReviewStatus{ReviewSent, ReviewOpened}, PriorStates(ReviewClicked))
	assert.Equal(t, []ReviewStatus{ReviewScheduled, ReviewSent}, PriorStates(ReviewFailed))
	assert.Equal(t, []ReviewStatus{ReviewClicked}, PriorStates(ReviewCompleted))
	assert.Equal(t, []ReviewStatus{ReviewSent}, PriorStates(ReviewOpened))
}

func TestTemplateConfig_Delay(t *testing.T) {
	h, d := 6, 2
	assert.Equal(t, 6*time.Hour, TemplateConfig{DelayHours: &h}.Delay())
	assert.Equal(t, 54*time.Hour, TemplateConfig{DelayHours: &h, DelayDays: &d}.Delay())
	assert.Equal(t, 48*time.Hour, TemplateConfig{DelayDays: &d}.Delay())
	assert.Equal(t, time.Duration(0), TemplateConfig{}.Delay())
}

func TestDecodePayload(t *testing.T) {
	raw, err := EncodePayload(ReviewRequestPayload{ReviewRequestID: "rr-1"})
	assert.NoError(t, err)

	p, err := DecodePayload(&ScheduledJob{JobType: JobSendReviewRequest, Payload: raw})
	assert.NoError(t, err)
	assert.Equal(t, "rr-1", p.(ReviewRequestPayload).ReviewRequestID)

	_, err = DecodePayload(&ScheduledJob{JobType: JobSendReviewRequest, Payload: []byte(`{}`)})
	assert.Error(t, err)

	_, err = DecodePayload(&ScheduledJob{JobType: "send_social_post", Payload: raw})
	assert.Error(t, err)
}

func TestCustomer_Reachable(t *testing.T) {
	c := Customer{Email: "a@b.test", Phone: "+15551234567", SMSOptedOut: true}
	assert.True(t, c.Reachable(ChannelEmail))
	assert.False(t, c.Reachable(ChannelSMS))
	assert.False(t, (&Customer{}).Reachable(ChannelEmail))
}
