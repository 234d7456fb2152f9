package service_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/reviewleopard-backend/internal/clickurl"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/service"
)

func TestRenderTemplate(t *testing.T) {
	data := map[string]string{"customer.first_name": "Ann", "business.name": "Acme"}

	assert.Equal(t, "Hi Ann from Acme", service.RenderTemplate("Hi {{customer.first_name}} from {{ business.name }}", data))
	assert.Equal(t, "Hi {{customer.nickname}}", service.RenderTemplate("Hi {{customer.nickname}}", data))
	assert.Equal(t, "no placeholders", service.RenderTemplate("no placeholders", data))
}

func TestRenderer_TrackingLink(t *testing.T) {
	r := &service.Renderer{BaseURL: "https://reviews.test", Signer: clickurl.NewSigner("click-secret")}
	link := r.TrackingLink("tok-1", "https://g.page/acme/review?x=1&y=2")

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/email-track/click", u.Path)
	assert.Equal(t, "tok-1", u.Query().Get("t"))
	assert.Equal(t, "https://g.page/acme/review?x=1&y=2", u.Query().Get("l"))
	assert.True(t, clickurl.NewSigner("click-secret").Verify("tok-1", "https://g.page/acme/review?x=1&y=2", u.Query().Get("s")))
	assert.Equal(t, "https://reviews.test/email-track/open?t=tok-1", r.PixelURL("tok-1"))
}

func TestRenderer_ComposeEmail(t *testing.T) {
	r := &service.Renderer{BaseURL: "https://reviews.test", Signer: clickurl.NewSigner("click-secret")}
	req := &model.ReviewRequest{
		Channel:     model.ChannelEmail,
		Token:       "tok-1",
		ReviewLink:  "https://reviews.test/email-track/click?t=tok-1",
		MessageBody: "Hi {{customer.name}}, thanks for the {{service}} job. {{review_link}}",
	}
	c := &model.Customer{Email: "ann@example.com"}
	b := &model.Business{ID: businessID, Name: "Acme", FromEmail: "hello@acme.test"}

	msg := r.Compose(req, c, b, "roof repair")
	assert.Equal(t, "ann@example.com", msg.To)
	assert.Equal(t, "hello@acme.test", msg.From)
	assert.Equal(t, "How did we do, there?", msg.Subject)
	assert.Equal(t, "Hi there, thanks for the roof repair job. https://reviews.test/email-track/click?t=tok-1", msg.Body)
	assert.Equal(t, "https://reviews.test/email-track/open?t=tok-1", msg.PixelURL)
}

func TestRenderer_ComposeSMS(t *testing.T) {
	r := &service.Renderer{BaseURL: "https://reviews.test", Signer: clickurl.NewSigner("click-secret")}
	req := &model.ReviewRequest{Channel: model.ChannelSMS, MessageBody: "Thanks {{customer.first_name}}!"}
	c := &model.Customer{FirstName: "Bo", Phone: "+15557654321", SMSOptedOut: true}
	b := &model.Business{Name: "Acme", SMSFrom: "+15550000000"}

	msg := r.Compose(req, c, b, "")
	assert.Equal(t, "+15557654321", msg.To)
	assert.Equal(t, "+15550000000", msg.From)
	assert.Equal(t, "Thanks Bo!", msg.Body)
	assert.True(t, msg.OptedOut)
	assert.Empty(t, msg.PixelURL)
}
