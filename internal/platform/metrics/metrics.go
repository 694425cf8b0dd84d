// Package metrics holds the Prometheus instruments for profile changes,
// legacy preference migration, workflows and validated-email reconciliation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Migration tracking actions.
const (
	MigrationRequesting = "REQUESTING"
	MigrationDoing      = "DOING"
	MigrationDone       = "DONE"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProfileWrites       *prometheus.CounterVec
	ModeChanges         *prometheus.CounterVec
	MigrationEvents     *prometheus.CounterVec
	MigratedPreferences prometheus.Counter
	WorkflowOutcomes    *prometheus.CounterVec
	ActivityAttempts    *prometheus.CounterVec
	EmailIndexOps       *prometheus.CounterVec
}

// New registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers all metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProfileWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_writes_total",
			Help: "Profile create and update attempts by operation and result",
		}, []string{"operation", "result"}),
		ModeChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_service_preferences_mode_changes_total",
			Help: "Service preference mode transitions",
		}, []string{"previous", "next"}),
		MigrationEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_legacy_preferences_migration_events_total",
			Help: "Legacy preference migration tracking events by action",
		}, []string{"action"}),
		MigratedPreferences: f.NewCounter(prometheus.CounterOpts{
			Name: "profile_legacy_preferences_migrated_total",
			Help: "Service preference records created by legacy migration",
		}),
		WorkflowOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_instances_finished_total",
			Help: "Workflow instances finished by workflow name and result",
		}, []string{"workflow", "result"}),
		ActivityAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_activity_attempts_total",
			Help: "Activity invocations by activity name and result",
		}, []string{"activity", "result"}),
		EmailIndexOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "validated_email_index_operations_total",
			Help: "Validated-email index operations by operation and result",
		}, []string{"operation", "result"}),
	}
}

// ProfileWrite counts a profile create or update.
func (m *Metrics) ProfileWrite(operation string, err error) {
	if m == nil {
		return
	}
	m.ProfileWrites.WithLabelValues(operation, result(err)).Inc()
}

// ModeChange counts a service preference mode transition.
func (m *Metrics) ModeChange(previous, next string) {
	if m == nil {
		return
	}
	m.ModeChanges.WithLabelValues(previous, next).Inc()
}

// Migration counts a migration tracking event.
func (m *Metrics) Migration(action string) {
	if m == nil {
		return
	}
	m.MigrationEvents.WithLabelValues(action).Inc()
}

// PreferenceMigrated counts one migrated service preference.
func (m *Metrics) PreferenceMigrated() {
	if m == nil {
		return
	}
	m.MigratedPreferences.Inc()
}

// WorkflowFinished counts a terminal workflow instance.
func (m *Metrics) WorkflowFinished(workflow string, succeeded bool) {
	if m == nil {
		return
	}
	res := "failure"
	if succeeded {
		res = "success"
	}
	m.WorkflowOutcomes.WithLabelValues(workflow, res).Inc()
}

// ActivityAttempt counts one activity invocation.
func (m *Metrics) ActivityAttempt(activity string, err error) {
	if m == nil {
		return
	}
	m.ActivityAttempts.WithLabelValues(activity, result(err)).Inc()
}

// EmailIndexOp counts a validated-email index operation.
func (m *Metrics) EmailIndexOp(operation string, err error) {
	if m == nil {
		return
	}
	m.EmailIndexOps.WithLabelValues(operation, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
