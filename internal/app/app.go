// internal/app/app.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/reviewleopard-backend/internal/auth"
	"github.com/unclebandit/reviewleopard-backend/internal/channel"
	"github.com/unclebandit/reviewleopard-backend/internal/clickurl"
	"github.com/unclebandit/reviewleopard-backend/internal/config"
	"github.com/unclebandit/reviewleopard-backend/internal/controller"
	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/handler"
	"github.com/unclebandit/reviewleopard-backend/internal/logger"
	"github.com/unclebandit/reviewleopard-backend/internal/metrics"
	"github.com/unclebandit/reviewleopard-backend/internal/queue"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
	"github.com/unclebandit/reviewleopard-backend/internal/service"
)

// App holds the wired pipeline shared by the server and worker binaries.
type App struct {
	Config     *config.Config
	Log        logger.Logger
	DB         *sqlx.DB
	Queue      queue.Queue
	Signer     *clickurl.Signer
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Triggers   *service.TriggerService
	Dispatcher *service.Dispatcher
	Sweep      *service.RecoverySweep
	Tracker    *service.Tracker
	OptOut     *service.OptOutService
}

// New wires repositories, adapters and services. The queue is AMQP when enabled,
// otherwise in-process.
func New(cfg *config.Config, log logger.Logger, db *sqlx.DB) (*App, error) {
	var q queue.Queue
	if cfg.AMQP.Enabled {
		aq, err := queue.DialAMQP(cfg.AMQP.URL, log)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		q = aq
	} else {
		q = queue.NewInMemoryQueue(log)
	}
	return Wire(cfg, log, db, q, channel.NewRegistry(
		channel.NewEmailAdapter(channel.EmailConfig{
			Host:        cfg.Email.SMTPHost,
			Port:        cfg.Email.SMTPPort,
			Username:    cfg.Email.Username,
			Password:    cfg.Email.Password,
			DefaultFrom: cfg.Email.DefaultFrom,
		}),
		newSMSAdapter(cfg.SMS),
	)), nil
}

func newSMSAdapter(c config.SMSConfig) *channel.SMSAdapter {
	cfg := channel.SMSConfig{
		AccountSID:  c.AccountSID,
		AuthToken:   c.AuthToken,
		DefaultFrom: c.DefaultFrom,
		Footer:      c.Footer,
		PerSecond:   float64(c.PerSecond),
	}
	return channel.NewSMSAdapter(channel.NewTwilioClient(cfg), cfg)
}

// Wire builds the services over explicit transports.
func Wire(cfg *config.Config, log logger.Logger, db *sqlx.DB, q queue.Queue, adapters channel.Registry) *App {
	customers := &repository.CustomerRepository{DB: db}
	businesses := &repository.BusinessRepository{DB: db}
	templates := &repository.TemplateRepository{DB: db}
	reviews := &repository.ReviewRepository{DB: db}
	jobs := &repository.JobRepository{DB: db}
	events := &repository.TelemetryRepository{DB: db}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	telemetry := service.NewTelemetry(events, q, m, log)
	signer := clickurl.NewSigner(cfg.Server.ClickSecret)
	renderer := &service.Renderer{BaseURL: cfg.Server.BaseURL, Signer: signer}
	p := cfg.Pipeline

	return &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Queue:    q,
		Signer:   signer,
		Registry: reg,
		Metrics:  m,
		Triggers: service.NewTriggerService(
			customers, businesses, templates,
			&service.Matcher{Eligibility: p.Eligibility},
			service.NewScheduler(reviews, renderer, p.DedupWindow),
			telemetry, m, log,
		),
		Dispatcher: &service.Dispatcher{
			Jobs:       jobs,
			Reviews:    reviews,
			Customers:  customers,
			Businesses: businesses,
			Adapters:   adapters,
			Renderer:   renderer,
			Telemetry:  telemetry,
			Metrics:    m,
			Log:        log.With(logger.String("component", "dispatcher")),
			Config: service.DispatcherConfig{
				BatchSize:   p.BatchSize,
				PoolSize:    p.PoolSize,
				StaleAfter:  p.StaleAfter,
				RetryBudget: p.RetryBudget,
				SendTimeout: p.SendTimeout,
			},
			Now: time.Now,
		},
		Sweep: &service.RecoverySweep{
			Reviews:    reviews,
			Customers:  customers,
			Businesses: businesses,
			Adapters:   adapters,
			Renderer:   renderer,
			Telemetry:  telemetry,
			Metrics:    m,
			Log:        log.With(logger.String("component", "recovery")),
			Config: service.SweepConfig{
				WindowStart: p.RecoveryWindowStart,
				WindowEnd:   p.RecoveryWindowEnd,
				BatchSize:   p.BatchSize,
				SendTimeout: p.SendTimeout,
			},
			Now: time.Now,
		},
		Tracker: service.NewTracker(reviews, telemetry, m, log),
		OptOut:  &service.OptOutService{Customers: customers, Telemetry: telemetry, Log: log},
	}
}

// CompletionMessage is the body of a review_completed message.
type CompletionMessage struct {
	ReviewRequestID string `json:"review_request_id"`
}

// StartCompletionSubscriber consumes review_completed messages. Malformed bodies and
// requests that cannot complete are acknowledged and logged; store errors are retried.
func (a *App) StartCompletionSubscriber(ctx context.Context) error {
	return a.Queue.Subscribe(queue.TopicReviewCompleted, func(body []byte) error {
		var msg CompletionMessage
		if err := json.Unmarshal(body, &msg); err != nil || msg.ReviewRequestID == "" {
			a.Log.Warn("dropping malformed completion message", logger.String("body", string(body)))
			return nil
		}
		if _, err := a.Tracker.Complete(ctx, 0, msg.ReviewRequestID); err != nil {
			if isPermanent(err) {
				a.Log.Warn("completion rejected", logger.String("review_request_id", msg.ReviewRequestID), logger.Error(err))
				return nil
			}
			return err
		}
		return nil
	})
}

// isPermanent reports errors that redelivery cannot fix.
func isPermanent(err error) bool {
	var transition *appErrors.InvalidTransitionError
	return appErrors.IsNotFound(err) || errors.As(err, &transition) || errors.Is(err, appErrors.ErrForbidden)
}

// Router builds the HTTP API.
func (a *App) Router() http.Handler {
	triggers := &controller.TriggerController{Triggers: a.Triggers, Log: a.Log}
	reviews := &controller.ReviewController{Tracker: a.Tracker, Log: a.Log}
	tracking := &handler.TrackingHandler{Tracker: a.Tracker, Signer: a.Signer, FallbackURL: a.Config.Server.BaseURL, Log: a.Log}
	cron := &handler.CronHandler{Dispatcher: a.Dispatcher, Sweep: a.Sweep, Secret: a.Config.Server.CronSecret, Log: a.Log}
	sms := handler.NewSMSHandler(a.OptOut, a.Config.SMS.AuthToken, a.Config.Server.BaseURL+"/sms/inbound", a.Log)
	health := &handler.HealthHandler{DB: a.DB}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(a.Config.Auth.JWTSecret))
		r.Post("/trigger", triggers.Trigger)
		r.Post("/webhooks/crm/{provider}", triggers.CRMWebhook)
		r.Post("/webhooks/zapier", triggers.ZapierWebhook)
		r.Post("/review-requests/{id}/complete", reviews.Complete)
	})

	r.Get("/email-track/open", tracking.Open)
	r.Get("/email-track/click", tracking.Click)
	r.Post("/sms/inbound", sms.Inbound)
	r.Post("/internal/cron/dispatch", cron.Dispatch)
	r.Post("/internal/cron/recovery", cron.Recovery)
	r.Get("/health", health.Health)
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	return r
}

// Close releases the queue and the database.
func (a *App) Close() error {
	qerr := a.Queue.Close()
	if err := a.DB.Close(); err != nil {
		return err
	}
	return qerr
}
