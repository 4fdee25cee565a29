// Package info projects market history into per-agent observation
// vectors. Settings control how much of the market each trader gets to
// see; absent data always encodes as zero.
package info

import "dauction/engine"

// DefaultDepth is how many offers or deals a depth-limited setting shows
// when left unset.
const DefaultDepth = 5

// Setting computes observations from a market's history. Observations are
// flat float64 slices; Shape describes their logical dimensions and the
// vector is the row-major flattening.
type Setting interface {
	Shape() []int
	// States computes the observation of every listed agent for the
	// market's current state. Every id gets an entry, whether or not it
	// appeared in the last round.
	States(ids []engine.AgentID, m *engine.Market) map[engine.AgentID][]float64
}

// State is the single-agent convenience over States.
func State(s Setting, id engine.AgentID, m *engine.Market) []float64 {
	return s.States([]engine.AgentID{id}, m)[id]
}

// lastRound returns the most recent round record, if any.
func lastRound(m *engine.Market) (engine.Round, bool) {
	history := m.OfferHistory()
	if len(history) == 0 {
		return engine.Round{}, false
	}
	return history[len(history)-1], true
}
