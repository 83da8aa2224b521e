package parley

import (
	"fmt"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

// Workflow declares a conversational workflow: its nodes, the predicate
// edges between them, the node anchored to each phase, and the required
// data per phase. Declarations are collected fluently and validated when
// the engine is built.
type Workflow struct {
	cfg runtime.Config
	err error
}

// NewWorkflow starts an empty declaration.
func NewWorkflow() *Workflow {
	return &Workflow{
		cfg: runtime.Config{
			Edges:        make(map[string][]runtime.Edge),
			PhaseNodes:   make(map[domain.Phase]string),
			Requirements: make(domain.Requirements),
		},
	}
}

// Node declares a node. The spec's expected phases, produced phase,
// timeout, and writable fields are enforced by the engine at runtime.
func (w *Workflow) Node(spec domain.NodeSpec, fn domain.NodeFunc) *Workflow {
	w.cfg.Nodes = append(w.cfg.Nodes, &domain.Node{NodeSpec: spec, Run: fn})
	return w
}

// Edge declares a routing edge evaluated when from is the current node.
// A nil predicate always matches; edges are tried in declaration order.
// An empty from matches a fresh session with no current node yet.
func (w *Workflow) Edge(from, to string, when func(*domain.WorkflowState) bool) *Workflow {
	w.cfg.Edges[from] = append(w.cfg.Edges[from], runtime.Edge{To: to, When: when})
	return w
}

// PhaseNode anchors a node to a phase. It is the routing fallback when no
// edge matches, and the forced destination when the circuit breaker trips.
func (w *Workflow) PhaseNode(phase domain.Phase, node string) *Workflow {
	if prev, dup := w.cfg.PhaseNodes[phase]; dup && prev != node {
		w.fail(fmt.Errorf("phase %s anchored to both %q and %q", phase, prev, node))
		return w
	}
	w.cfg.PhaseNodes[phase] = node
	return w
}

// Require declares the data fields a phase must collect before the
// session can advance past it. Field names must be unique across phases.
func (w *Workflow) Require(phase domain.Phase, fields ...string) *Workflow {
	for _, f := range fields {
		if w.cfg.Requirements.Owns(f) {
			w.fail(fmt.Errorf("field %q declared by more than one phase", f))
			return w
		}
		w.cfg.Requirements[phase] = append(w.cfg.Requirements[phase], f)
	}
	return w
}

// AllowInPhase adds a static adjacency exception: the node may run in the
// phase even though its spec does not declare it.
func (w *Workflow) AllowInPhase(phase domain.Phase, node string) *Workflow {
	w.cfg.Exceptions = append(w.cfg.Exceptions, runtime.PhaseException{Phase: phase, Node: node})
	return w
}

func (w *Workflow) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Workflow) build() (runtime.Config, error) {
	if w.err != nil {
		return runtime.Config{}, w.err
	}
	return w.cfg, nil
}
