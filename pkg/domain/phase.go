package domain

// Phase identifies a stage of the workflow lifecycle. Phases are strictly
// ordered and advancement is monotonic; only an explicit checkpoint
// rewind moves a session backward.
type Phase string

const (
	PhaseInitialization Phase = "INITIALIZATION"
	PhaseDiscovery      Phase = "DISCOVERY"
	PhaseAnalysis       Phase = "ANALYSIS"
	PhaseGeneration     Phase = "GENERATION"
	PhaseReview         Phase = "REVIEW"
	PhaseDelivery       Phase = "DELIVERY"
	PhaseCompletion     Phase = "COMPLETION"
)

var phaseOrder = []Phase{
	PhaseInitialization,
	PhaseDiscovery,
	PhaseAnalysis,
	PhaseGeneration,
	PhaseReview,
	PhaseDelivery,
	PhaseCompletion,
}

// Phases returns the lifecycle in order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Index returns the position of the phase in the lifecycle, or -1 for an
// unknown phase.
func (p Phase) Index() int {
	for i, q := range phaseOrder {
		if p == q {
			return i
		}
	}
	return -1
}

// Valid reports whether the phase is one of the declared lifecycle stages.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Terminal reports whether the phase ends the workflow.
func (p Phase) Terminal() bool {
	return p == PhaseCompletion
}

// Before reports strict ordering. Unknown phases are never ordered
// relative to anything.
func (p Phase) Before(q Phase) bool {
	pi, qi := p.Index(), q.Index()
	return pi >= 0 && qi >= 0 && pi < qi
}

// NextPhase returns the successor of the phase, if it has one.
func NextPhase(p Phase) (Phase, bool) {
	i := p.Index()
	if i < 0 || i == len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[i+1], true
}

// ParsePhase maps a raw string to a declared phase. Names are case
// sensitive; anything unrecognized is rejected.
func ParsePhase(raw string) (Phase, bool) {
	p := Phase(raw)
	if p.Valid() {
		return p, true
	}
	return "", false
}
