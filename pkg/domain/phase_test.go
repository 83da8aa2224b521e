package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseOrder(t *testing.T) {
	phases := Phases()
	assert.Equal(t, PhaseInitialization, phases[0])
	assert.Equal(t, PhaseCompletion, phases[len(phases)-1])

	for i := 1; i < len(phases); i++ {
		assert.True(t, phases[i-1].Before(phases[i]),
			"%s should come before %s", phases[i-1], phases[i])
	}
}

func TestNextPhase(t *testing.T) {
	next, ok := NextPhase(PhaseInitialization)
	assert.True(t, ok)
	assert.Equal(t, PhaseDiscovery, next)

	_, ok = NextPhase(PhaseCompletion)
	assert.False(t, ok, "terminal phase has no successor")

	_, ok = NextPhase(Phase("BOGUS"))
	assert.False(t, ok)
}

func TestPhaseValidity(t *testing.T) {
	assert.True(t, PhaseAnalysis.Valid())
	assert.False(t, Phase("ANALYSYS").Valid())

	// Unknown phases are never ordered relative to anything (fail closed).
	assert.False(t, Phase("BOGUS").Before(PhaseCompletion))
	assert.False(t, PhaseInitialization.Before(Phase("BOGUS")))
}

func TestParsePhase(t *testing.T) {
	p, ok := ParsePhase("DISCOVERY")
	assert.True(t, ok)
	assert.Equal(t, PhaseDiscovery, p)

	_, ok = ParsePhase("discovery")
	assert.False(t, ok, "phase names are case sensitive")
}
