// Package runtime contains the orchestration engine: the phase validator
// that gates node entry and exit, the executor that contains node
// failures, the circuit breaker that bounds routing loops, and the
// orchestrator that ties them together into conversational turns.
package runtime
