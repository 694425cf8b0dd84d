// Package lifecycle runs the profile-upserted workflow started after every
// profile create or update: it kicks off email verification when a new
// unverified address was set and publishes a profile-changed event.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/janisto/citizen-profiles/internal/platform/events"
	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/retry"
	"github.com/janisto/citizen-profiles/internal/service/emailvalidation"
	"github.com/janisto/citizen-profiles/internal/service/profile"
	"github.com/janisto/citizen-profiles/internal/workflow"
)

// ActivityPublish publishes the profile-changed event.
const ActivityPublish = "publish-profile-event"

// Event types.
const (
	EventProfileCreated = "profile.created"
	EventProfileUpdated = "profile.updated"
)

// DefaultPublishPolicy retries event publishing for about a minute.
var DefaultPublishPolicy = retry.Policy{
	MaxAttempts:  5,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Multiplier:   2,
}

// ChangedEvent is the payload of a profile-changed message.
type ChangedEvent struct {
	Type             string    `json:"type"`
	FiscalCode       string    `json:"fiscalCode"`
	Version          int       `json:"version"`
	PreviousVersion  *int      `json:"previousVersion,omitempty"`
	EmailChanged     bool      `json:"emailChanged"`
	IsEmailValidated bool      `json:"isEmailValidated"`
	PreviousMode     string    `json:"previousMode,omitempty"`
	Mode             string    `json:"mode"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NeedsEmailValidation reports whether the write set an address that still
// has to be verified. A case-only change is not a new address.
func NeedsEmailValidation(old *profile.Profile, updated profile.Profile) bool {
	if updated.Email == "" || updated.IsEmailValidated {
		return false
	}
	if old == nil {
		return true
	}
	return profile.NormalizeEmail(old.Email) != profile.NormalizeEmail(updated.Email)
}

// NewChangedEvent builds the event for in.
func NewChangedEvent(in profile.UpsertedInput) ChangedEvent {
	ev := ChangedEvent{
		Type:             EventProfileCreated,
		FiscalCode:       in.NewProfile.FiscalCode,
		Version:          in.NewProfile.Version,
		EmailChanged:     in.NewProfile.Email != "",
		IsEmailValidated: in.NewProfile.IsEmailValidated,
		Mode:             string(in.NewProfile.Settings.Mode),
		UpdatedAt:        in.UpdatedAt,
	}
	if in.OldProfile != nil {
		prev := in.OldProfile.Version
		ev.Type = EventProfileUpdated
		ev.PreviousVersion = &prev
		ev.EmailChanged = profile.NormalizeEmail(in.OldProfile.Email) != profile.NormalizeEmail(in.NewProfile.Email)
		ev.PreviousMode = string(in.OldProfile.Settings.Mode)
	}
	return ev
}

// Register adds the profile-upserted orchestrator and its publish activity to h.
// The orchestrator starts the email validation saga as a child, so that
// saga must be registered on the same host.
func Register(h *workflow.Host, pub events.Publisher, policy retry.Policy) {
	h.RegisterActivity(ActivityPublish, func(ctx context.Context, raw workflow.Input) (workflow.Outcome, error) {
		var ev ChangedEvent
		if err := raw.Decode(&ev); err != nil {
			return workflow.Outcome{}, retry.Permanent(err)
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return workflow.Outcome{}, retry.Permanent(err)
		}
		if err := pub.Publish(ctx, events.Message{Key: ev.FiscalCode, Type: ev.Type, Payload: payload}); err != nil {
			return workflow.Outcome{}, err
		}
		return workflow.Success(nil)
	})

	h.RegisterOrchestrator(profile.WorkflowProfileUpserted, func(ctx context.Context, oc *workflow.OrchestrationContext) (workflow.Outcome, error) {
		var in profile.UpsertedInput
		if err := oc.Input(&in); err != nil {
			return workflow.Failure(fmt.Sprintf("decode input: %v", err)), nil
		}
		ctx = applog.WithFields(ctx, applog.Subject(in.NewProfile.FiscalCode))

		if NeedsEmailValidation(in.OldProfile, in.NewProfile) {
			childID, err := oc.StartWorkflow(ctx, emailvalidation.WorkflowName, emailvalidation.Input{
				Email:      in.NewProfile.Email,
				FiscalCode: in.NewProfile.FiscalCode,
			})
			if err != nil {
				return workflow.Outcome{}, err
			}
			applog.LogInfo(ctx, "email validation started", zap.String("childId", childID))
		}

		out, err := oc.CallActivity(ctx, ActivityPublish, policy, NewChangedEvent(in))
		if err != nil {
			return workflow.Outcome{}, err
		}
		if !out.Succeeded() {
			applog.LogWarn(ctx, "profile event not published", zap.String("reason", out.Reason))
		}
		return out, nil
	}, retry.Once)
}
