package workflow

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/retry"
)

// OrchestrationContext is handed to an orchestrator for one attempt. Steps
// must be issued in the same order on every attempt: recorded steps are
// replayed from the journal and a step whose name differs from the record
// fails with ErrNonDeterministic.
type OrchestrationContext struct {
	host   *Host
	inst   *Instance
	cursor int
}

// InstanceID returns the running instance id.
func (oc *OrchestrationContext) InstanceID() string { return oc.inst.ID }

// Attempt returns the 1-based attempt number.
func (oc *OrchestrationContext) Attempt() int { return oc.inst.Attempt }

// Input decodes the instance input into v.
func (oc *OrchestrationContext) Input(v any) error {
	return oc.inst.Input.Decode(v)
}

// RawInput returns the encoded instance input.
func (oc *OrchestrationContext) RawInput() Input { return oc.inst.Input }

// IsReplaying reports whether the next step will be served from the journal.
func (oc *OrchestrationContext) IsReplaying() bool {
	return oc.cursor < len(oc.inst.Events)
}

func (oc *OrchestrationContext) replay(kind EventKind, name string) (Event, bool, error) {
	if !oc.IsReplaying() {
		return Event{}, false, nil
	}
	ev := oc.inst.Events[oc.cursor]
	if ev.Kind != kind || ev.Name != name {
		return Event{}, false, fmt.Errorf("%w: step %d recorded %s %q, got %s %q",
			ErrNonDeterministic, ev.Seq, ev.Kind, ev.Name, kind, name)
	}
	oc.cursor++
	return ev, true, nil
}

func (oc *OrchestrationContext) record(ctx context.Context, ev Event) error {
	ev.Seq = len(oc.inst.Events)
	oc.inst.Events = append(oc.inst.Events, ev)
	oc.cursor++
	oc.inst.UpdatedAt = oc.host.now()
	if err := oc.host.journal.Save(ctx, oc.inst); err != nil {
		return fmt.Errorf("journal step %s: %w", ev.Name, err)
	}
	return nil
}

// CallActivity runs the named activity, retrying returned errors under
// policy. An exhausted budget yields a FAILURE outcome rather than an error;
// errors are reserved for journal failures, replay divergence and shutdown.
func (oc *OrchestrationContext) CallActivity(ctx context.Context, name string, policy retry.Policy, input any) (Outcome, error) {
	ev, ok, err := oc.replay(EventActivity, name)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		return ev.Outcome, nil
	}

	fn, found := oc.host.activity(name)
	if !found {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownActivity, name)
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode %s input: %w", name, err)
	}

	actx := logging.WithFields(ctx, zap.String("activity", name))
	var out Outcome
	res := retry.Do(actx, policy, func(ctx context.Context, attempt int) error {
		o, err := fn(ctx, raw)
		oc.host.metrics.ActivityAttempt(name, err)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if !res.Success {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		out = Failure(fmt.Sprintf("activity %s failed after %d attempts: %v", name, res.Attempts, res.LastError))
	}

	if err := oc.record(ctx, Event{Kind: EventActivity, Name: name, Outcome: out}); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// StartWorkflow starts a child instance once per journaled step. The child
// id is derived from the parent, so a start interrupted before it was
// recorded is not duplicated on replay.
func (oc *OrchestrationContext) StartWorkflow(ctx context.Context, name string, input any) (string, error) {
	ev, ok, err := oc.replay(EventChild, name)
	if err != nil {
		return "", err
	}
	if ok {
		return ev.ChildID, nil
	}

	childID := fmt.Sprintf("%s.%d.%d", oc.inst.ID, oc.inst.Attempt, len(oc.inst.Events))
	if _, err := oc.host.journal.Load(ctx, childID); err != nil {
		if _, err := oc.host.start(ctx, childID, name, input); err != nil {
			return "", err
		}
	}

	if err := oc.record(ctx, Event{Kind: EventChild, Name: name, ChildID: childID}); err != nil {
		return "", err
	}
	return childID, nil
}

// SetStatus records a custom status for observers.
func (oc *OrchestrationContext) SetStatus(ctx context.Context, status string) error {
	if oc.inst.CustomStatus == status {
		return nil
	}
	oc.inst.CustomStatus = status
	oc.inst.UpdatedAt = oc.host.now()
	return oc.host.journal.Save(ctx, oc.inst)
}
