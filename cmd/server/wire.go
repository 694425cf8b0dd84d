package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/janisto/citizen-profiles/internal/http/health"
	"github.com/janisto/citizen-profiles/internal/platform/auth"
	"github.com/janisto/citizen-profiles/internal/platform/config"
	"github.com/janisto/citizen-profiles/internal/platform/events"
	"github.com/janisto/citizen-profiles/internal/platform/firebase"
	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/metrics"
	appredis "github.com/janisto/citizen-profiles/internal/platform/redis"
	"github.com/janisto/citizen-profiles/internal/service/emailvalidation"
	"github.com/janisto/citizen-profiles/internal/service/lifecycle"
	"github.com/janisto/citizen-profiles/internal/service/preference"
	profilesvc "github.com/janisto/citizen-profiles/internal/service/profile"
	"github.com/janisto/citizen-profiles/internal/service/validatedemail"
	"github.com/janisto/citizen-profiles/internal/workflow"
)

// backends are the stores and clients that differ between production and tests.
type backends struct {
	verifier    auth.Verifier
	profiles    profilesvc.Store
	feed        profilesvc.Feed
	preferences preference.Store
	emailIndex  validatedemail.Index
	tokens      emailvalidation.TokenStore
	journal     workflow.Journal
	mailer      emailvalidation.Mailer
	publisher   events.Publisher
	checks      map[string]health.Check
	metricsReg  prometheus.Registerer
	closers     []func() error
}

// app is the wired service graph.
type app struct {
	engine  *profilesvc.Engine
	tokens  *emailvalidation.Service
	host    *workflow.Host
	watcher *validatedemail.Watcher
	metrics *metrics.Metrics
	checks  map[string]health.Check
	verify  auth.Verifier
	closers []func() error
}

// Close releases every backend client, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// connect opens the production backends described by cfg.
func connect(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{
		checks:     map[string]health.Check{},
		metricsReg: prometheus.DefaultRegisterer,
	}
	fail := func(err error) (*backends, error) {
		for i := len(b.closers) - 1; i >= 0; i-- {
			_ = b.closers[i]()
		}
		return nil, err
	}

	clients, err := firebase.InitializeClients(ctx, cfg.Firebase)
	if err != nil {
		return fail(err)
	}
	b.closers = append(b.closers, clients.Close)
	b.verifier = auth.NewFirebaseVerifier(clients.Auth)
	profileStore := profilesvc.NewFirestoreStore(clients.Firestore)
	b.profiles = profileStore
	b.feed = profileStore
	b.preferences = preference.NewFirestoreStore(clients.Firestore)

	rdb, err := appredis.New(ctx, cfg.Redis)
	if err != nil {
		return fail(err)
	}
	if rdb != nil {
		b.closers = append(b.closers, rdb.Close)
		b.checks["redis"] = rdb.Health
		b.tokens = emailvalidation.NewRedisTokenStore(rdb.Client)
		b.journal = workflow.NewRedisJournal(rdb.Client, cfg.Workflow.Retention)
	} else {
		applog.LogWarn(ctx, "REDIS_URL not set: workflows and validation tokens are kept in memory")
		b.tokens = emailvalidation.NewMemoryTokenStore()
		b.journal = workflow.NewMemoryJournal()
	}

	switch cfg.EmailIndex {
	case config.IndexRedis:
		b.emailIndex = validatedemail.NewRedisIndex(rdb.Client)
	default:
		b.emailIndex = validatedemail.NewFirestoreIndex(clients.Firestore)
	}

	smtp := emailvalidation.NewSMTPMailer(cfg.Mail)
	if smtp.IsConfigured() {
		b.mailer = smtp
	} else {
		applog.LogWarn(ctx, "SMTP_HOST not set: validation emails are logged, not sent")
		b.mailer = emailvalidation.LogMailer{}
	}

	kafka, err := events.NewKafkaPublisher(cfg.Kafka)
	if err != nil {
		return fail(err)
	}
	if kafka != nil {
		b.closers = append(b.closers, func() error { kafka.Close(); return nil })
		b.publisher = kafka
	} else {
		applog.LogWarn(ctx, "KAFKA_BROKERS not set: profile events are logged, not published")
		b.publisher = events.LogPublisher{}
	}
	return b, nil
}

// build wires services and workflows on top of b.
func build(cfg *config.Config, b *backends) *app {
	m := metrics.NewWithRegistry(b.metricsReg)

	host := workflow.NewHost(b.journal,
		workflow.WithMetrics(m),
		workflow.WithConcurrency(cfg.Workflow.Concurrency),
	)
	engine := profilesvc.NewEngine(b.profiles, host, profilesvc.WithMetrics(m))

	tokens := emailvalidation.NewService(b.tokens, b.mailer,
		emailvalidation.WithCallbackURL(cfg.EmailValidation.CallbackURL),
		emailvalidation.WithTokenTTL(cfg.EmailValidation.TokenTTL),
	)
	emailvalidation.Register(host, tokens, emailvalidation.PolicyFromConfig(cfg.EmailValidation))
	lifecycle.Register(host, b.publisher, lifecycle.DefaultPublishPolicy)
	preference.RegisterWorkflows(host, preference.NewMigrator(b.preferences,
		preference.WithRateLimit(cfg.Migration.RatePerSecond, cfg.Migration.Burst),
		preference.WithMetrics(m),
	))

	var watcher *validatedemail.Watcher
	if b.feed != nil {
		watcher = validatedemail.NewWatcher(b.feed, validatedemail.NewReconciler(b.profiles, b.emailIndex, m))
	}

	return &app{
		engine:  engine,
		tokens:  tokens,
		host:    host,
		watcher: watcher,
		metrics: m,
		checks:  b.checks,
		verify:  b.verifier,
		closers: b.closers,
	}
}

// describe summarizes the wiring for the startup log.
func describe(cfg *config.Config) string {
	return fmt.Sprintf("index=%s redis=%t kafka=%t smtp=%t",
		cfg.EmailIndex, cfg.Redis.URL != "", len(cfg.Kafka.Brokers) > 0, cfg.Mail.Host != "")
}
