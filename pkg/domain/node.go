package domain

import (
	"context"
	"time"
)

// Default bounds for per-node execution deadlines.
const (
	MinNodeTimeout     = 5 * time.Second
	MaxNodeTimeout     = 30 * time.Second
	DefaultNodeTimeout = 15 * time.Second
)

// NodeFunc is the business logic of a node: it receives an immutable
// snapshot plus the user input for this turn and returns a new snapshot.
type NodeFunc func(ctx context.Context, state *WorkflowState, input string) (*WorkflowState, error)

// NodeSpec is the static metadata a node declares up front. The
// orchestrator gates execution on it; nodes never get implicit leniency.
type NodeSpec struct {
	Name string `json:"name" yaml:"name"`

	// ExpectedPhases are the phases in which the node may run.
	ExpectedPhases []Phase `json:"expected_phases" yaml:"expected_phases"`

	// ProducedPhase is the phase the node transitions to when its phase's
	// required data is fully collected.
	ProducedPhase Phase `json:"produced_phase" yaml:"produced_phase"`

	// Timeout bounds a single execution. Zero means DefaultNodeTimeout;
	// values are clamped to [MinNodeTimeout, MaxNodeTimeout].
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Writes lists the required-data fields this node is authorized to
	// collect. Setting any other declared field is an ownership violation.
	Writes []string `json:"writes" yaml:"writes"`
}

// EffectiveTimeout applies the default and clamps to the allowed range.
func (s NodeSpec) EffectiveTimeout() time.Duration {
	t := s.Timeout
	if t <= 0 {
		return DefaultNodeTimeout
	}
	if t < MinNodeTimeout {
		return MinNodeTimeout
	}
	if t > MaxNodeTimeout {
		return MaxNodeTimeout
	}
	return t
}

// Expects reports whether the node declares the phase.
func (s NodeSpec) Expects(p Phase) bool {
	for _, q := range s.ExpectedPhases {
		if p == q {
			return true
		}
	}
	return false
}

// MayWrite reports whether the node declared the field in Writes.
func (s NodeSpec) MayWrite(field string) bool {
	for _, f := range s.Writes {
		if f == field {
			return true
		}
	}
	return false
}

// Node pairs the declared metadata with the business function.
type Node struct {
	NodeSpec
	Run NodeFunc
}
