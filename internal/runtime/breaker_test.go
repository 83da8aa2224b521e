package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/parley/pkg/domain"
)

func TestBreakerTripsAfterMaxVisits(t *testing.T) {
	b := newCircuitBreaker(3, 10)

	for i := 0; i < 3; i++ {
		assert.False(t, b.Tripped("looper", domain.PhaseDiscovery), "visit %d should pass", i+1)
		b.Observe("looper", domain.PhaseDiscovery)
	}
	assert.True(t, b.Tripped("looper", domain.PhaseDiscovery))
	assert.Equal(t, 3, b.ConsecutiveVisits("looper", domain.PhaseDiscovery))
}

func TestBreakerResetsOnPhaseProgress(t *testing.T) {
	b := newCircuitBreaker(3, 10)

	b.Observe("looper", domain.PhaseDiscovery)
	b.Observe("looper", domain.PhaseDiscovery)
	b.Observe("looper", domain.PhaseAnalysis)

	assert.False(t, b.Tripped("looper", domain.PhaseDiscovery))
	assert.Equal(t, 1, b.ConsecutiveVisits("looper", domain.PhaseAnalysis))
}

func TestBreakerResetsOnOtherNode(t *testing.T) {
	b := newCircuitBreaker(3, 10)

	b.Observe("looper", domain.PhaseDiscovery)
	b.Observe("looper", domain.PhaseDiscovery)
	b.Observe("other", domain.PhaseDiscovery)
	b.Observe("looper", domain.PhaseDiscovery)

	assert.False(t, b.Tripped("looper", domain.PhaseDiscovery))
}

func TestBreakerWindowSlides(t *testing.T) {
	b := newCircuitBreaker(3, 4)

	for i := 0; i < 8; i++ {
		b.Observe("looper", domain.PhaseDiscovery)
	}
	assert.Equal(t, 4, len(b.visits), "window keeps only the trailing steps")
	assert.True(t, b.Tripped("looper", domain.PhaseDiscovery))
}

func TestBreakerDefaults(t *testing.T) {
	b := newCircuitBreaker(0, 0)
	assert.Equal(t, DefaultMaxVisits, b.maxVisits)
	assert.Equal(t, DefaultVisitWindow, b.window)
}
