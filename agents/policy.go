package agents

// DefaultDiscretization is the number of distinct quotes a policy trader
// can make when its config leaves it unset.
const DefaultDiscretization = 20

// Policy predicts a discrete action from a normalized observation.
// Trained models plug in behind this interface; the trader owns the
// translation between market prices and the model's action space.
type Policy interface {
	Predict(obs []float64) (int, error)
}

// PolicyTrader adapts a Policy to the market. Observations are normalized
// around the trader's reservation price before prediction, and actions
// map back onto a uniform discretization of the trader's quote range.
// The normalization makes one trained policy usable across roles and
// across markets with different price scales.
type PolicyTrader struct {
	base
	policy         Policy
	discretization int
	lo, hi         float64
	sign           float64
}

// NewPolicyTrader builds a policy-backed trader. A nil policy is allowed
// at construction so the action/price mapping can drive exploration on
// its own, but Quote then fails with ErrNoPolicy. Zero discretization
// and maxFactor mean their defaults.
func NewPolicyTrader(role Role, reservation float64, policy Policy, discretization int, maxFactor float64) (*PolicyTrader, error) {
	if maxFactor == 0 {
		maxFactor = DefaultMaxFactor
	}
	if discretization <= 0 {
		discretization = DefaultDiscretization
	}
	b, err := newBase("Poli", role, reservation)
	if err != nil {
		return nil, err
	}
	lo, hi := quoteRange(role, reservation, maxFactor)
	return &PolicyTrader{
		base:           b,
		policy:         policy,
		discretization: discretization,
		lo:             lo,
		hi:             hi,
		sign:           roleSign(role),
	}, nil
}

// Discretization returns the size of the trader's action space.
func (t *PolicyTrader) Discretization() int { return t.discretization }

// Normalize scales the prices in an observation relative to the
// reservation price, sign-flipped per role so that larger values always
// mean more attractive offers. Zero entries stay zero: settings encode
// "no offer" as 0 and the gate keeps that meaning, which makes the
// mapping discontinuous at zero.
func (t *PolicyTrader) Normalize(obs []float64) []float64 {
	out := make([]float64, len(obs))
	for i, v := range obs {
		if v <= 0 {
			continue
		}
		out[i] = t.sign * (v - t.reservation) / t.reservation
	}
	return out
}

// PriceFor maps a discrete action onto the trader's quote range. Action 0
// is the most conservative quote — the reservation price itself — and
// discretization-1 the most aggressive.
func (t *PolicyTrader) PriceFor(action int) float64 {
	n := float64(t.discretization)
	l := float64(action) - n/2
	m := n / 2
	return ((m-l*t.sign)*t.lo + (m+l*t.sign)*t.hi) / n
}

func (t *PolicyTrader) Quote(obs []float64) (float64, error) {
	if t.policy == nil {
		return 0, ErrNoPolicy
	}
	action, err := t.policy.Predict(t.Normalize(obs))
	if err != nil {
		return 0, err
	}
	return t.PriceFor(action), nil
}
