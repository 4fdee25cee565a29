package engine

// AgentID identifies a market participant. It is opaque to the engine;
// callers pick their own scheme (the server mints UUIDs).
type AgentID string

// Offer is a single-round price quote submitted by one agent.
type Offer struct {
	Price float64
	Agent AgentID
}

// Deals maps matched agents to their deal price. Every trade appears
// twice, once under the buyer id and once under the seller id.
type Deals map[AgentID]float64

// Trade records one matched buyer/seller pair. Trades are listed in match
// priority order: highest bid against lowest ask first.
type Trade struct {
	Buyer  AgentID
	Seller AgentID
	Price  float64
}

// Round is the submission-order record of the offers considered in one
// round, after exited agents were dropped and before the matcher sorted
// its own copies.
type Round struct {
	Bids []Offer
	Asks []Offer
}

// Config fixes a market's participants and round budget.
type Config struct {
	Buyers  []AgentID
	Sellers []AgentID
	// MaxRounds is the number of rounds before the market force-closes.
	// Zero means DefaultMaxRounds.
	MaxRounds int
}

// DefaultMaxRounds is the round budget used when Config leaves it unset.
const DefaultMaxRounds = 30
