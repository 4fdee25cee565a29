package agents

import (
	"errors"
	"fmt"
	"math/rand"

	"dauction/engine"
)

// Role is the market side a trader acts on.
type Role int

const (
	Buyer Role = iota
	Seller
)

func (r Role) String() string {
	if r == Buyer {
		return "buyer"
	}
	return "seller"
}

var (
	// ErrInvalidRole reports a role outside Buyer/Seller.
	ErrInvalidRole = errors.New("role must be Buyer or Seller")
	// ErrInvalidReservation reports a non-positive reservation price.
	ErrInvalidReservation = errors.New("reservation price must be positive")
	// ErrNoPolicy reports a policy trader quoting without a policy.
	ErrNoPolicy = errors.New("trader has no policy")
)

// Trader produces one price quote per market round. Traders are decoupled
// from the engine, which deals only in ids and numbers; an adapter (sim,
// server) owns the id assignment and the offer plumbing.
type Trader interface {
	// Role reports which side of the market the trader is on.
	Role() Role
	// Reservation returns the trader's reservation price.
	Reservation() float64
	// Name returns a human-readable label. It is not the market id.
	Name() string
	// Quote produces an offer given an observation vector from an
	// information setting.
	Quote(obs []float64) (float64, error)
}

// Surplus is the per-round reward of a trader: the spread between its
// reservation price and the deal price, seen from the trader's side.
// Unmatched traders earn zero.
func Surplus(t Trader, id engine.AgentID, deals engine.Deals) float64 {
	price, ok := deals[id]
	if !ok {
		return 0
	}
	if t.Role() == Buyer {
		return t.Reservation() - price
	}
	return price - t.Reservation()
}

type base struct {
	role        Role
	reservation float64
	name        string
}

func newBase(kind string, role Role, reservation float64) (base, error) {
	if role != Buyer && role != Seller {
		return base{}, ErrInvalidRole
	}
	if reservation <= 0 {
		return base{}, fmt.Errorf("%w, got %g", ErrInvalidReservation, reservation)
	}
	letter := "B"
	if role == Seller {
		letter = "S"
	}
	name := fmt.Sprintf("%s_%s%g_%04x", kind, letter, reservation, rand.Intn(1<<16))
	return base{role: role, reservation: reservation, name: name}, nil
}

func (b base) Role() Role           { return b.role }
func (b base) Reservation() float64 { return b.reservation }
func (b base) Name() string         { return b.name }

// quoteRange is the price interval a trader is willing to quote in:
// [(1-f)r, r] for buyers, [r, (1+f)r] for sellers.
func quoteRange(role Role, reservation, maxFactor float64) (lo, hi float64) {
	if role == Buyer {
		return (1 - maxFactor) * reservation, reservation
	}
	return reservation, (1 + maxFactor) * reservation
}

func roleSign(role Role) float64 {
	if role == Buyer {
		return -1
	}
	return 1
}
