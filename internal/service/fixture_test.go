package service_test

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/unclebandit/reviewleopard-backend/internal/channel"
	"github.com/unclebandit/reviewleopard-backend/internal/clickurl"
	"github.com/unclebandit/reviewleopard-backend/internal/config"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/service"
)

const (
	businessID = int64(7)
	customerID = int64(11)
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock      *fakeClock
	store      *MockStore
	customers  *MockCustomerRepo
	businesses *MockBusinessRepo
	templates  *MockTemplateRepo
	telemetry  *MockTelemetry
	email      *MockAdapter
	sms        *MockAdapter
	renderer   *service.Renderer
	triggers   *service.TriggerService
	dispatcher *service.Dispatcher
	tracker    *service.Tracker
	sweep      *service.RecoverySweep
}

func intPtr(v int) *int { return &v }

func roofingTemplate() *model.AutomationTemplate {
	return &model.AutomationTemplate{
		ID:          "tpl-roofing",
		BusinessID:  businessID,
		Key:         "roofing",
		Name:        "Roofing follow-up",
		Status:      model.TemplateActive,
		Channels:    []string{"email", "sms"},
		TriggerType: string(model.TriggerJobCompleted),
		Config: model.TemplateConfig{
			Subject:     "Thanks from {{business.name}}",
			MessageBody: "Hi {{customer.first_name}}, how did the {{service}} go? {{review_link}}",
			DelayHours:  intPtr(24),
			Keywords:    []string{"roofing"},
		},
		UpdatedAt: t0.Add(-48 * time.Hour),
	}
}

func newFixture(templates ...*model.AutomationTemplate) *fixture {
	if len(templates) == 0 {
		templates = []*model.AutomationTemplate{roofingTemplate()}
	}
	f := &fixture{
		clock: &fakeClock{t: t0},
		store: NewMockStore(),
		customers: NewMockCustomerRepo(
			&model.Customer{ID: customerID, BusinessID: businessID, FirstName: "Ann", LastName: "Lee", Email: "ann@example.com", Phone: "+15551234567"},
			&model.Customer{ID: 12, BusinessID: businessID, FirstName: "Bo", Phone: "(555) 765-4321"},
			&model.Customer{ID: 21, BusinessID: 8, FirstName: "Eve", Email: "eve@example.com"},
		),
		businesses: &MockBusinessRepo{businesses: map[int64]*model.Business{
			businessID: {ID: businessID, Name: "Acme Roofing", FromEmail: "hello@acme.test", SMSFrom: "+15550000000", ReviewURL: "https://g.page/acme/review"},
			8:          {ID: 8, Name: "Other Co"},
		}},
		templates: &MockTemplateRepo{templates: templates},
		telemetry: &MockTelemetry{},
		email:     NewMockAdapter(model.ChannelEmail),
		sms:       NewMockAdapter(model.ChannelSMS),
		renderer:  &service.Renderer{BaseURL: "https://reviews.test", Signer: clickurl.NewSigner("click-secret")},
	}
	log := logger.NewNop()
	adapters := channel.NewRegistry(f.email, f.sms)

	var seq atomic.Int64
	newID := func() string { return fmt.Sprintf("id-%03d", seq.Add(1)) }

	scheduler := service.NewScheduler(f.store, f.renderer, 5*time.Minute)
	scheduler.Now = f.clock.Now
	scheduler.NewID = newID

	f.triggers = service.NewTriggerService(f.customers, f.businesses, f.templates,
		&service.Matcher{Eligibility: config.EligibilityActive}, scheduler, f.telemetry, nil, log)
	f.triggers.Normalizer.Now = f.clock.Now
	f.triggers.NewID = newID

	f.dispatcher = &service.Dispatcher{
		Jobs:       f.store,
		Reviews:    f.store,
		Customers:  f.customers,
		Businesses: f.businesses,
		Adapters:   adapters,
		Renderer:   f.renderer,
		Telemetry:  f.telemetry,
		Log:        log,
		Config: service.DispatcherConfig{
			BatchSize:   50,
			PoolSize:    4,
			StaleAfter:  15 * time.Minute,
			RetryBudget: 1,
			SendTimeout: time.Second,
		},
		Now: f.clock.Now,
	}

	f.tracker = service.NewTracker(f.store, f.telemetry, nil, log)
	f.tracker.Now = f.clock.Now

	f.sweep = &service.RecoverySweep{
		Reviews:    f.store,
		Customers:  f.customers,
		Businesses: f.businesses,
		Adapters:   adapters,
		Renderer:   f.renderer,
		Telemetry:  f.telemetry,
		Log:        log,
		Config:     service.SweepConfig{WindowStart: 24 * time.Hour, WindowEnd: 36 * time.Hour, BatchSize: 2, SendTimeout: time.Second},
		Now:        f.clock.Now,
	}
	return f
}

func roofTrigger(occurred time.Time) service.ManualTrigger {
	return service.ManualTrigger{
		CustomerID:  customerID,
		TriggerType: "job_completed",
		TriggerData: service.ManualTriggerData{Description: "Roof repair job", OccurredAt: &occurred},
	}
}
