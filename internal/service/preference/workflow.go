package preference

import (
	"context"

	"go.uber.org/zap"

	applog "github.com/janisto/citizen-profiles/internal/platform/logging"
	"github.com/janisto/citizen-profiles/internal/platform/retry"
	"github.com/janisto/citizen-profiles/internal/service/profile"
	"github.com/janisto/citizen-profiles/internal/workflow"
)

// ActivityMigrate is the activity that runs a Migrator.
const ActivityMigrate = "create-service-preferences"

// RegisterWorkflows registers the migrate-service-preferences orchestrator
// and its activity. Neither is retried: a failed migration is logged and
// left for the next LEGACY to AUTO observation, and reruns are idempotent.
func RegisterWorkflows(h *workflow.Host, m *Migrator) {
	h.RegisterActivity(ActivityMigrate, func(ctx context.Context, in workflow.Input) (workflow.Outcome, error) {
		var input profile.MigrationInput
		if err := in.Decode(&input); err != nil {
			return workflow.Outcome{}, retry.Permanent(err)
		}
		if err := m.Migrate(ctx, input); err != nil {
			return workflow.Outcome{}, err
		}
		return workflow.Success(nil)
	})

	h.RegisterOrchestrator(profile.WorkflowMigratePreferences, func(ctx context.Context, oc *workflow.OrchestrationContext) (workflow.Outcome, error) {
		var input profile.MigrationInput
		if err := oc.Input(&input); err != nil {
			return workflow.Failure(err.Error()), nil
		}
		out, err := oc.CallActivity(ctx, ActivityMigrate, retry.Once, input)
		if err != nil {
			return workflow.Outcome{}, err
		}
		if !out.Succeeded() {
			applog.LogError(ctx, "legacy service preferences migration failed", nil,
				applog.Subject(input.NewProfile.FiscalCode),
				zap.String("reason", out.Reason))
		}
		return out, nil
	}, retry.Once)
}
