package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// ErrInstanceNotFound is returned when the journal has no such instance.
var ErrInstanceNotFound = errors.New("workflow instance not found")

// InstanceStatus is the lifecycle state of an instance.
type InstanceStatus string

// Instance states. RUNNING instances are resumed by Host.Run.
const (
	InstanceRunning   InstanceStatus = "RUNNING"
	InstanceCompleted InstanceStatus = "COMPLETED"
	InstanceFailed    InstanceStatus = "FAILED"
)

// Terminal reports whether the instance will never run again.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceCompleted || s == InstanceFailed
}

// EventKind distinguishes journaled steps.
type EventKind string

// Journaled step kinds.
const (
	EventActivity EventKind = "activity"
	EventChild    EventKind = "child"
)

// Event is one completed orchestration step.
type Event struct {
	Seq     int       `json:"seq"`
	Kind    EventKind `json:"kind"`
	Name    string    `json:"name"`
	Outcome Outcome   `json:"outcome"`
	ChildID string    `json:"childId,omitempty"`
}

// Instance is the journaled state of one workflow run. Events hold the
// steps completed during the current attempt.
type Instance struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Input        Input          `json:"input,omitempty"`
	Status       InstanceStatus `json:"status"`
	CustomStatus string         `json:"customStatus,omitempty"`
	Attempt      int            `json:"attempt"`
	Events       []Event        `json:"events,omitempty"`
	Output       *Outcome       `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Journal persists instances. Save must make a RUNNING instance visible to
// Pending and drop a terminal one from it.
type Journal interface {
	Save(ctx context.Context, inst *Instance) error
	Load(ctx context.Context, id string) (*Instance, error)
	Pending(ctx context.Context) ([]string, error)
}

// MemoryJournal keeps encoded instances in memory.
type MemoryJournal struct {
	mu        sync.RWMutex
	instances map[string][]byte
	pending   map[string]struct{}
}

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		instances: make(map[string][]byte),
		pending:   make(map[string]struct{}),
	}
}

// Save stores a copy of inst.
func (j *MemoryJournal) Save(_ context.Context, inst *Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.instances[inst.ID] = data
	if inst.Status.Terminal() {
		delete(j.pending, inst.ID)
	} else {
		j.pending[inst.ID] = struct{}{}
	}
	return nil
}

// Load returns a copy of the stored instance.
func (j *MemoryJournal) Load(_ context.Context, id string) (*Instance, error) {
	j.mu.RLock()
	data, ok := j.instances[id]
	j.mu.RUnlock()
	if !ok {
		return nil, ErrInstanceNotFound
	}
	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Pending returns the ids of non-terminal instances in a stable order.
func (j *MemoryJournal) Pending(_ context.Context) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	ids := make([]string, 0, len(j.pending))
	for id := range j.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Compile-time interface check
var _ Journal = (*MemoryJournal)(nil)
