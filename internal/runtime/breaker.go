package runtime

import "github.com/aretw0/parley/pkg/domain"

const (
	// DefaultMaxVisits bounds consecutive visits to one node without
	// phase progression before forced progression kicks in.
	DefaultMaxVisits = 3
	// DefaultVisitWindow is the rolling window of orchestration steps the
	// breaker looks back over.
	DefaultVisitWindow = 10
)

type visit struct {
	node  string
	phase domain.Phase
}

// circuitBreaker tracks node visits across the orchestration steps of a
// turn. A node revisited more than maxVisits times while the phase stays
// put is a loop; the breaker then demands forced progression.
//
// Scope is a single turn: the orchestrator starts each user message with
// an empty window, so fresh input never inherits trip state from an
// earlier exchange, while loops within one turn still trip.
type circuitBreaker struct {
	maxVisits int
	window    int
	visits    []visit
}

func newCircuitBreaker(maxVisits, window int) *circuitBreaker {
	if maxVisits <= 0 {
		maxVisits = DefaultMaxVisits
	}
	if window <= 0 {
		window = DefaultVisitWindow
	}
	return &circuitBreaker{maxVisits: maxVisits, window: window}
}

// Observe records a routing decision for the node in the given phase.
func (b *circuitBreaker) Observe(node string, phase domain.Phase) {
	b.visits = append(b.visits, visit{node: node, phase: phase})
	if len(b.visits) > b.window {
		b.visits = b.visits[len(b.visits)-b.window:]
	}
}

// Tripped reports whether routing to the candidate again would exceed the
// visit bound: the trailing window already holds maxVisits consecutive
// visits to the same node with no phase change in between.
func (b *circuitBreaker) Tripped(candidate string, phase domain.Phase) bool {
	count := 0
	for i := len(b.visits) - 1; i >= 0; i-- {
		if b.visits[i].node != candidate || b.visits[i].phase != phase {
			break
		}
		count++
	}
	return count >= b.maxVisits
}

// ConsecutiveVisits returns the current trailing visit count for the node.
func (b *circuitBreaker) ConsecutiveVisits(node string, phase domain.Phase) int {
	count := 0
	for i := len(b.visits) - 1; i >= 0; i-- {
		if b.visits[i].node != node || b.visits[i].phase != phase {
			break
		}
		count++
	}
	return count
}
