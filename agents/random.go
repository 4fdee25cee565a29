package agents

import (
	"errors"
	"math/rand"
	"time"
)

// DefaultMaxFactor bounds quotes to within 50% of the reservation price
// when a trader does not say otherwise.
const DefaultMaxFactor = 0.5

// Random quotes uniformly random prices within a factor of its
// reservation price: [(1-f)r, r] for a buyer, [r, (1+f)r] for a seller.
// It never quotes past its reservation price.
type Random struct {
	base
	lo, hi float64
	rng    *rand.Rand
}

// NewRandom builds a random trader. A non-positive maxFactor means
// DefaultMaxFactor. Passing a nil rng seeds one from the clock; supply
// your own for reproducible episodes.
func NewRandom(role Role, reservation, maxFactor float64, rng *rand.Rand) (*Random, error) {
	if maxFactor < 0 {
		return nil, errors.New("max factor must not be negative")
	}
	if maxFactor == 0 {
		maxFactor = DefaultMaxFactor
	}
	b, err := newBase("Rand", role, reservation)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	lo, hi := quoteRange(role, reservation, maxFactor)
	return &Random{base: b, lo: lo, hi: hi, rng: rng}, nil
}

func (a *Random) Quote(obs []float64) (float64, error) {
	return a.lo + a.rng.Float64()*(a.hi-a.lo), nil
}
