// Package workflow is an in-process orchestration host. Orchestrators call
// activities through an OrchestrationContext that journals every completed
// step, so a resumed instance replays recorded results instead of calling
// activities again.
package workflow

import (
	json "github.com/goccy/go-json"
)

// OutcomeKind tags an activity or orchestration result.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeSuccess OutcomeKind = "SUCCESS"
	OutcomeFailure OutcomeKind = "FAILURE"
)

// Outcome is the tagged result of an activity or orchestration.
// Value carries the JSON-encoded success value; Reason explains a failure.
type Outcome struct {
	Kind   OutcomeKind     `json:"kind"`
	Value  json.RawMessage `json:"value,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Success encodes v as a successful outcome.
func Success(v any) (Outcome, error) {
	if v == nil {
		return Outcome{Kind: OutcomeSuccess}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeSuccess, Value: raw}, nil
}

// Failure builds a failed outcome.
func Failure(reason string) Outcome {
	return Outcome{Kind: OutcomeFailure, Reason: reason}
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSuccess }

// Decode unmarshals the success value into v.
func (o Outcome) Decode(v any) error {
	if len(o.Value) == 0 {
		return nil
	}
	return json.Unmarshal(o.Value, v)
}

// Input is the JSON-encoded input of an instance or activity.
type Input []byte

// MarshalJSON embeds the input verbatim.
func (in Input) MarshalJSON() ([]byte, error) {
	if len(in) == 0 {
		return []byte("null"), nil
	}
	return in, nil
}

// UnmarshalJSON keeps a copy of the raw input.
func (in *Input) UnmarshalJSON(data []byte) error {
	*in = append((*in)[0:0], data...)
	return nil
}

// Decode unmarshals the input into v.
func (in Input) Decode(v any) error {
	if len(in) == 0 {
		return nil
	}
	return json.Unmarshal(in, v)
}
