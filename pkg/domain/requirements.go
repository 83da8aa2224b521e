package domain

// Requirements declares, per phase, which data fields must be collected
// before the phase counts as complete. Field names are expected to be
// unique across phases (they key into WorkflowState.RequiredData).
type Requirements map[Phase][]string

// Fields returns the declared field names for a phase.
func (r Requirements) Fields(p Phase) []string {
	return r[p]
}

// Completion computes the fraction [0,1] of a phase's required fields
// present in collected. A phase with no declared fields is complete.
func (r Requirements) Completion(p Phase, collected map[string]bool) float64 {
	fields := r[p]
	if len(fields) == 0 {
		return 1.0
	}
	have := 0
	for _, f := range fields {
		if collected[f] {
			have++
		}
	}
	return float64(have) / float64(len(fields))
}

// Complete reports whether every required field of the phase is collected.
func (r Requirements) Complete(p Phase, collected map[string]bool) bool {
	return r.Completion(p, collected) >= 1.0
}

// Owns reports whether the field belongs to any declared phase. Unknown
// fields are nobody's to set.
func (r Requirements) Owns(field string) bool {
	for _, fields := range r {
		for _, f := range fields {
			if f == field {
				return true
			}
		}
	}
	return false
}
