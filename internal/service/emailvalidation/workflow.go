package emailvalidation

import (
	"context"
	"fmt"

	"github.com/janisto/citizen-profiles/internal/platform/config"
	"github.com/janisto/citizen-profiles/internal/platform/retry"
	"github.com/janisto/citizen-profiles/internal/workflow"
)

// Workflow and activity names.
const (
	WorkflowName           = "email-validation"
	ActivityCreateToken    = "create-validation-token"
	ActivitySendValidation = "send-validation-email"
)

// SendInput is the input of the send-validation-email activity.
type SendInput struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// PolicyFromConfig builds the retry policy shared by both activities and
// the saga restarts.
func PolicyFromConfig(cfg config.EmailValidationConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.FirstRetry,
		MaxDelay:     cfg.MaxRetryInterval,
		Multiplier:   cfg.BackoffMultiplier,
	}
}

// Saga returns the two-step verification saga.
func Saga(policy retry.Policy) workflow.Saga {
	return workflow.Saga{
		Name:  WorkflowName,
		Retry: policy,
		Steps: []workflow.Step{
			{Activity: ActivityCreateToken, Input: createTokenInput},
			{Activity: ActivitySendValidation, Input: sendInput},
		},
	}
}

func createTokenInput(raw workflow.Input, _ []workflow.Outcome) (any, error) {
	var in Input
	if err := raw.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrInvalidInput, err)
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrInvalidInput, err)
	}
	return in, nil
}

func sendInput(raw workflow.Input, results []workflow.Outcome) (any, error) {
	var in Input
	if err := raw.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrInvalidInput, err)
	}
	var created CreatedToken
	if err := results[0].Decode(&created); err != nil {
		return nil, fmt.Errorf("decode created token: %w", err)
	}
	return SendInput{Email: in.Email, Token: created.Token()}, nil
}

// Register adds the saga and its activities to h.
func Register(h *workflow.Host, svc *Service, policy retry.Policy) {
	h.RegisterActivity(ActivityCreateToken, func(ctx context.Context, raw workflow.Input) (workflow.Outcome, error) {
		var in Input
		if err := raw.Decode(&in); err != nil {
			return workflow.Outcome{}, retry.Permanent(err)
		}
		created, err := svc.CreateToken(ctx, in)
		if err != nil {
			return workflow.Outcome{}, err
		}
		return workflow.Success(created)
	})

	h.RegisterActivity(ActivitySendValidation, func(ctx context.Context, raw workflow.Input) (workflow.Outcome, error) {
		var in SendInput
		if err := raw.Decode(&in); err != nil {
			return workflow.Outcome{}, retry.Permanent(err)
		}
		if err := svc.SendEmail(ctx, in.Email, in.Token); err != nil {
			return workflow.Outcome{}, err
		}
		return workflow.Success(nil)
	})

	Saga(policy).Register(h)
}
