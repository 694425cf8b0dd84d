package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/metrics"
	"github.com/janisto/citizen-profiles/internal/platform/retry"
	"github.com/janisto/citizen-profiles/internal/platform/timeutil"
)

// Host errors
var (
	ErrUnknownWorkflow  = errors.New("unknown workflow")
	ErrUnknownActivity  = errors.New("unknown activity")
	ErrNonDeterministic = errors.New("orchestration replay diverged from journal")
	ErrMaxRetryExceeded = errors.New("max retry exceeded")
)

// Orchestrator drives one workflow instance. Returning an error restarts
// the instance from scratch under the outer retry policy.
type Orchestrator func(ctx context.Context, oc *OrchestrationContext) (Outcome, error)

// Activity performs one side-effecting step. Returned errors are retried
// under the caller's policy; wrap with retry.Permanent to stop early.
type Activity func(ctx context.Context, input Input) (Outcome, error)

type registration struct {
	fn     Orchestrator
	policy retry.Policy
}

// Host runs orchestrations in goroutines and journals their progress.
type Host struct {
	journal Journal
	metrics *metrics.Metrics
	now     timeutil.Clock
	sem     chan struct{}

	mu            sync.RWMutex
	orchestrators map[string]registration
	activities    map[string]Activity
	running       map[string]struct{}

	lifetime context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures a Host.
type Option func(*Host)

// WithMetrics records instance outcomes and activity attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// WithConcurrency bounds how many instances execute at once.
func WithConcurrency(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.sem = make(chan struct{}, n)
		}
	}
}

// WithClock overrides the clock used for journal timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(h *Host) { h.now = c }
}

// NewHost creates a host backed by journal.
func NewHost(journal Journal, opts ...Option) *Host {
	lifetime, stop := context.WithCancel(context.Background())
	h := &Host{
		journal:       journal,
		now:           timeutil.UTC,
		sem:           make(chan struct{}, 32),
		orchestrators: make(map[string]registration),
		activities:    make(map[string]Activity),
		running:       make(map[string]struct{}),
		lifetime:      lifetime,
		stop:          stop,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterOrchestrator registers fn under name. policy bounds whole-instance
// restarts after fn returns an error.
func (h *Host) RegisterOrchestrator(name string, fn Orchestrator, policy retry.Policy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.orchestrators[name] = registration{fn: fn, policy: policy}
}

// RegisterActivity registers fn under name.
func (h *Host) RegisterActivity(name string, fn Activity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activities[name] = fn
}

func (h *Host) orchestrator(name string) (registration, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	reg, ok := h.orchestrators[name]
	return reg, ok
}

func (h *Host) activity(name string) (Activity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.activities[name]
	return fn, ok
}

// StartWorkflow journals a new instance and runs it in the background. The
// instance outlives ctx; only the host's own shutdown interrupts it.
func (h *Host) StartWorkflow(ctx context.Context, name string, input any) (string, error) {
	return h.start(ctx, uuid.NewString(), name, input)
}

func (h *Host) start(ctx context.Context, id, name string, input any) (string, error) {
	if _, ok := h.orchestrator(name); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode %s input: %w", name, err)
	}

	now := h.now()
	inst := &Instance{
		ID:        id,
		Name:      name,
		Input:     raw,
		Status:    InstanceRunning,
		Attempt:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.journal.Save(ctx, inst); err != nil {
		return "", fmt.Errorf("journal %s: %w", name, err)
	}
	h.launch(ctx, inst)
	return id, nil
}

// launch runs inst unless it is already executing in this process.
func (h *Host) launch(ctx context.Context, inst *Instance) {
	h.mu.Lock()
	if _, ok := h.running[inst.ID]; ok {
		h.mu.Unlock()
		return
	}
	h.running[inst.ID] = struct{}{}
	h.mu.Unlock()

	ictx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unlink := context.AfterFunc(h.lifetime, cancel)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			unlink()
			cancel()
			h.mu.Lock()
			delete(h.running, inst.ID)
			h.mu.Unlock()
		}()

		select {
		case h.sem <- struct{}{}:
		case <-ictx.Done():
			return
		}
		defer func() { <-h.sem }()

		h.execute(ictx, inst)
	}()
}

// execute runs attempts until the orchestrator returns, the outer policy is
// exhausted or the host shuts down. Shutdown leaves the instance RUNNING in
// the journal for the next Run.
func (h *Host) execute(ctx context.Context, inst *Instance) {
	reg, ok := h.orchestrator(inst.Name)
	if !ok {
		h.fail(ctx, inst, fmt.Errorf("%w: %s", ErrUnknownWorkflow, inst.Name))
		return
	}
	ctx = logging.WithFields(ctx,
		zap.String("workflow", inst.Name),
		zap.String("instanceId", inst.ID))

	for {
		oc := &OrchestrationContext{host: h, inst: inst}
		out, err := h.invoke(ctx, reg.fn, oc)
		if ctx.Err() != nil {
			logging.LogInfo(ctx, "workflow interrupted by shutdown", zap.Int("attempt", inst.Attempt))
			return
		}
		if err == nil {
			h.complete(ctx, inst, out)
			return
		}

		if inst.Attempt >= reg.policy.Attempts() || errors.Is(err, ErrNonDeterministic) {
			logging.LogError(ctx, "workflow attempt failed", err, zap.Int("attempt", inst.Attempt))
			h.fail(ctx, inst, ErrMaxRetryExceeded)
			return
		}

		delay := reg.policy.Delay(inst.Attempt)
		logging.LogWarn(ctx, "workflow attempt failed, restarting",
			zap.Int("attempt", inst.Attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		inst.Attempt++
		inst.Events = nil
		inst.UpdatedAt = h.now()
		if err := h.journal.Save(ctx, inst); err != nil {
			logging.LogError(ctx, "failed to journal workflow restart", err)
		}
		if err := retry.Sleep(ctx, delay); err != nil {
			return
		}
	}
}

// invoke calls fn and turns a panic into an attempt error.
func (h *Host) invoke(ctx context.Context, fn Orchestrator, oc *OrchestrationContext) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator panic: %v", r)
		}
	}()
	return fn(ctx, oc)
}

func (h *Host) complete(ctx context.Context, inst *Instance, out Outcome) {
	inst.Status = InstanceCompleted
	inst.Output = &out
	inst.UpdatedAt = h.now()
	if err := h.journal.Save(ctx, inst); err != nil {
		logging.LogError(ctx, "failed to journal workflow completion", err)
	}
	h.metrics.WorkflowFinished(inst.Name, out.Succeeded())

	if out.Succeeded() {
		logging.LogInfo(ctx, "workflow completed", zap.Int("attempt", inst.Attempt))
	} else {
		logging.LogWarn(ctx, "workflow completed with failure",
			zap.Int("attempt", inst.Attempt),
			zap.String("reason", out.Reason))
	}
}

func (h *Host) fail(ctx context.Context, inst *Instance, cause error) {
	inst.Status = InstanceFailed
	inst.CustomStatus = StatusFailed
	inst.Error = cause.Error()
	inst.UpdatedAt = h.now()
	if err := h.journal.Save(ctx, inst); err != nil {
		logging.LogError(ctx, "failed to journal workflow failure", err)
	}
	h.metrics.WorkflowFinished(inst.Name, false)
	logging.LogError(ctx, "workflow failed", cause, zap.Int("attempts", inst.Attempt))
}

// Run resumes every RUNNING instance found in the journal, then blocks until
// ctx is done and waits for in-flight instances to stop.
func (h *Host) Run(ctx context.Context) error {
	ids, err := h.journal.Pending(ctx)
	if err != nil {
		return fmt.Errorf("list pending workflows: %w", err)
	}

	resumed := 0
	for _, id := range ids {
		inst, err := h.journal.Load(ctx, id)
		if err != nil {
			logging.LogError(ctx, "failed to load pending workflow", err, zap.String("instanceId", id))
			continue
		}
		if inst.Status.Terminal() {
			continue
		}
		h.launch(ctx, inst)
		resumed++
	}
	if resumed > 0 {
		logging.LogInfo(ctx, "resumed pending workflows", zap.Int("count", resumed))
	}

	<-ctx.Done()
	h.stop()
	h.wg.Wait()
	return nil
}

// Wait blocks until every launched instance has returned.
func (h *Host) Wait() {
	h.wg.Wait()
}

// Instance returns the journaled state of an instance.
func (h *Host) Instance(ctx context.Context, id string) (*Instance, error) {
	return h.journal.Load(ctx, id)
}
