package info

import (
	"sort"

	"dauction/engine"
)

// BlackBox shows each agent only its own offer from the previous round.
// Shape [1]; an agent that made no offer sees zero.
type BlackBox struct{}

func (BlackBox) Shape() []int { return []int{1} }

func (BlackBox) States(ids []engine.AgentID, m *engine.Market) map[engine.AgentID][]float64 {
	out := make(map[engine.AgentID][]float64, len(ids))
	last, ok := lastRound(m)
	if !ok {
		for _, id := range ids {
			out[id] = []float64{0}
		}
		return out
	}

	prices := make(map[engine.AgentID]float64, len(last.Bids)+len(last.Asks))
	for _, o := range last.Bids {
		prices[o.Agent] = o.Price
	}
	for _, o := range last.Asks {
		prices[o.Agent] = o.Price
	}
	for _, id := range ids {
		out[id] = []float64{prices[id]}
	}
	return out
}

// BestOffers shows every agent the best N bids and asks of the previous
// round: bids descending, asks ascending, zero-padded. Shape [2, N]; the
// flattened vector is the bid row followed by the ask row. All agents see
// the same market state.
type BestOffers struct {
	N int
}

func (s BestOffers) depth() int {
	if s.N <= 0 {
		return DefaultDepth
	}
	return s.N
}

func (s BestOffers) Shape() []int { return []int{2, s.depth()} }

func (s BestOffers) States(ids []engine.AgentID, m *engine.Market) map[engine.AgentID][]float64 {
	n := s.depth()
	obs := make([]float64, 2*n)
	if last, ok := lastRound(m); ok {
		bids := append([]engine.Offer(nil), last.Bids...)
		asks := append([]engine.Offer(nil), last.Asks...)
		sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
		sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
		for i := 0; i < n && i < len(bids); i++ {
			obs[i] = bids[i].Price
		}
		for i := 0; i < n && i < len(asks); i++ {
			obs[n+i] = asks[i].Price
		}
	}

	out := make(map[engine.AgentID][]float64, len(ids))
	for _, id := range ids {
		out[id] = append([]float64(nil), obs...)
	}
	return out
}

// LastDeals shows every agent up to N deal prices from the previous
// round, in match priority order, zero-padded. Shape [N]. Deal prices
// come from the market's trade records, so each matched pair appears
// once. All agents see the same market state.
type LastDeals struct {
	N int
}

func (s LastDeals) depth() int {
	if s.N <= 0 {
		return DefaultDepth
	}
	return s.N
}

func (s LastDeals) Shape() []int { return []int{s.depth()} }

func (s LastDeals) States(ids []engine.AgentID, m *engine.Market) map[engine.AgentID][]float64 {
	n := s.depth()
	obs := make([]float64, n)
	if trades := m.TradeHistory(); len(trades) > 0 {
		last := trades[len(trades)-1]
		for i := 0; i < n && i < len(last); i++ {
			obs[i] = last[i].Price
		}
	}

	out := make(map[engine.AgentID][]float64, len(ids))
	for _, id := range ids {
		out[id] = append([]float64(nil), obs...)
	}
	return out
}
