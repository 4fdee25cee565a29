package engine

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownAgent reports an offer keyed by an id that is neither a
	// registered buyer nor a registered seller. The step that saw it
	// commits nothing.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrOverlappingRoles reports an id registered as both buyer and
	// seller.
	ErrOverlappingRoles = errors.New("agent registered as both buyer and seller")
)

// Market is the round-lifecycle orchestrator around the matcher. It owns
// the registered buyer and seller ids, the round counter, the exited set
// and the full offer/deal history for one market episode.
//
// A market is single-writer: it performs no locking and assumes exclusive
// ownership by one goroutine. Independent markets share nothing and may
// be driven concurrently.
type Market struct {
	buyers    map[AgentID]struct{}
	sellers   map[AgentID]struct{}
	maxRounds int

	round  int
	done   bool
	exited map[AgentID]struct{}
	offers []Round
	deals  []Deals
	trades [][]Trade
}

// NewMarket builds a market over fixed buyer and seller id sets.
// Duplicate ids within one role collapse; an id present in both roles is
// rejected so that role routing and side-exhaustion checks stay
// unambiguous.
func NewMarket(cfg Config) (*Market, error) {
	if cfg.MaxRounds < 0 {
		return nil, fmt.Errorf("max rounds must not be negative, got %d", cfg.MaxRounds)
	}
	m := &Market{
		buyers:    make(map[AgentID]struct{}, len(cfg.Buyers)),
		sellers:   make(map[AgentID]struct{}, len(cfg.Sellers)),
		maxRounds: cfg.MaxRounds,
	}
	if m.maxRounds == 0 {
		m.maxRounds = DefaultMaxRounds
	}
	for _, id := range cfg.Buyers {
		m.buyers[id] = struct{}{}
	}
	for _, id := range cfg.Sellers {
		if _, ok := m.buyers[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrOverlappingRoles, id)
		}
		m.sellers[id] = struct{}{}
	}
	m.Reset()
	return m, nil
}

// Reset returns the market to its initial unmatched state: round zero,
// nobody exited, empty histories. The id sets and round budget are fixed
// for the market's lifetime, so the same instance can be reused across
// episodes.
func (m *Market) Reset() {
	m.round = 0
	m.done = false
	m.exited = make(map[AgentID]struct{})
	m.offers = nil
	m.deals = nil
	m.trades = nil
}

// Step runs one market round over the given offers and returns the deals
// struck in this round only.
//
// Offers are processed in ascending id order; that order is the stored
// submission order and therefore the matcher's price-tie tie-break,
// keeping rounds reproducible. Offers from exited agents are silently
// dropped. An offer from an id in neither role set fails the whole call
// with ErrUnknownAgent before any state is mutated: no history entry, no
// round increment, no exited-set change.
//
// After matching, the round counter increments, matched agents exit, and
// the market closes entirely — everyone exits, dealt or not — once the
// round budget is spent or one full side has exited.
//
// Step stays callable after the market closes; every agent is exited by
// then, so such rounds record empty offer sets.
func (m *Market) Step(offers map[AgentID]float64) (Deals, error) {
	ids := make([]AgentID, 0, len(offers))
	for id := range offers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var bids, asks []Offer
	for _, id := range ids {
		if _, gone := m.exited[id]; gone {
			continue
		}
		switch {
		case m.isBuyer(id):
			bids = append(bids, Offer{Price: offers[id], Agent: id})
		case m.isSeller(id):
			asks = append(asks, Offer{Price: offers[id], Agent: id})
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
		}
	}

	trades := MatchTrades(bids, asks)
	deals := dealsFromTrades(trades)

	// History owns its own copy of the deals map; the returned one is the
	// caller's to keep.
	m.deals = append(m.deals, dealsFromTrades(trades))
	m.offers = append(m.offers, Round{Bids: bids, Asks: asks})
	m.trades = append(m.trades, trades)
	m.round++

	for id := range deals {
		m.exited[id] = struct{}{}
	}

	if m.round >= m.maxRounds || m.allExited(m.buyers) || m.allExited(m.sellers) {
		m.done = true
		for id := range m.buyers {
			m.exited[id] = struct{}{}
		}
		for id := range m.sellers {
			m.exited[id] = struct{}{}
		}
	}

	return deals, nil
}

// Round returns the number of completed rounds.
func (m *Market) Round() int { return m.round }

// MaxRounds returns the market's round budget.
func (m *Market) MaxRounds() int { return m.maxRounds }

// Done reports whether the market has closed, either because the round
// budget was spent or because one full side exited.
func (m *Market) Done() bool { return m.done }

// HasExited reports whether id has matched or been force-terminated.
func (m *Market) HasExited(id AgentID) bool {
	_, ok := m.exited[id]
	return ok
}

// Exited returns the ids that have exited so far, in ascending order.
func (m *Market) Exited() []AgentID {
	return sortedIDs(m.exited)
}

// Buyers returns the registered buyer ids in ascending order.
func (m *Market) Buyers() []AgentID {
	return sortedIDs(m.buyers)
}

// Sellers returns the registered seller ids in ascending order.
func (m *Market) Sellers() []AgentID {
	return sortedIDs(m.sellers)
}

// OfferHistory returns a copy of the per-round submission records,
// oldest first. Mutating the result leaves the market untouched.
func (m *Market) OfferHistory() []Round {
	out := make([]Round, len(m.offers))
	for i, r := range m.offers {
		out[i] = Round{
			Bids: append([]Offer(nil), r.Bids...),
			Asks: append([]Offer(nil), r.Asks...),
		}
	}
	return out
}

// DealHistory returns a copy of the per-round deal maps, oldest first.
// Mutating the result leaves the market untouched.
func (m *Market) DealHistory() []Deals {
	out := make([]Deals, len(m.deals))
	for i, d := range m.deals {
		clone := make(Deals, len(d))
		for id, price := range d {
			clone[id] = price
		}
		out[i] = clone
	}
	return out
}

// TradeHistory returns a copy of the per-round matched pairs in match
// priority order, oldest round first. Mutating the result leaves the
// market untouched.
func (m *Market) TradeHistory() [][]Trade {
	out := make([][]Trade, len(m.trades))
	for i, trs := range m.trades {
		out[i] = append([]Trade(nil), trs...)
	}
	return out
}

func (m *Market) isBuyer(id AgentID) bool {
	_, ok := m.buyers[id]
	return ok
}

func (m *Market) isSeller(id AgentID) bool {
	_, ok := m.sellers[id]
	return ok
}

func (m *Market) allExited(side map[AgentID]struct{}) bool {
	for id := range side {
		if _, ok := m.exited[id]; !ok {
			return false
		}
	}
	return true
}

func sortedIDs(set map[AgentID]struct{}) []AgentID {
	out := make([]AgentID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
