// Package sim drives market episodes: a step-based control loop for
// training a single policy trader, and a concurrent batch runner for
// whole populations of fixed traders.
package sim

import (
	"fmt"

	"github.com/google/uuid"

	"dauction/agents"
	"dauction/engine"
	"dauction/info"
)

// Env is a step-based control loop around one market: one policy-driven
// learner trades against a fixed population. Actions pick the learner's
// quote; fixed traders quote from their own observations each round.
type Env struct {
	market    *engine.Market
	setting   info.Setting
	learner   *agents.PolicyTrader
	learnerID engine.AgentID
	fixed     map[engine.AgentID]agents.Trader
	fixedIDs  []engine.AgentID
}

// NewEnv builds the market from the given traders, minting a fresh UUID
// agent id per trader so the same trader values can back several envs.
func NewEnv(learner *agents.PolicyTrader, fixed []agents.Trader, setting info.Setting, maxRounds int) (*Env, error) {
	if learner == nil {
		return nil, fmt.Errorf("env needs a learner")
	}
	if setting == nil {
		setting = info.BlackBox{}
	}

	e := &Env{
		setting: setting,
		learner: learner,
		fixed:   make(map[engine.AgentID]agents.Trader, len(fixed)),
	}

	var buyers, sellers []engine.AgentID
	mint := func(t agents.Trader) engine.AgentID {
		id := engine.AgentID(uuid.NewString())
		if t.Role() == agents.Buyer {
			buyers = append(buyers, id)
		} else {
			sellers = append(sellers, id)
		}
		return id
	}

	for _, t := range fixed {
		id := mint(t)
		e.fixed[id] = t
		e.fixedIDs = append(e.fixedIDs, id)
	}
	e.learnerID = mint(learner)

	m, err := engine.NewMarket(engine.Config{Buyers: buyers, Sellers: sellers, MaxRounds: maxRounds})
	if err != nil {
		return nil, err
	}
	e.market = m
	return e, nil
}

// Reset starts a fresh episode on the same market and returns the
// learner's first observation.
func (e *Env) Reset() []float64 {
	e.market.Reset()
	return info.State(e.setting, e.learnerID, e.market)
}

// Step advances the market one round. The action selects the learner's
// quote through its price mapping; fixed traders that have not exited
// quote from their own observations. The reward is the learner's surplus
// for the round, and done is set once the learner has exited — whether by
// dealing or by the market closing around it.
func (e *Env) Step(action int) (obs []float64, reward float64, done bool, err error) {
	states := e.setting.States(e.fixedIDs, e.market)

	offers := make(map[engine.AgentID]float64, len(e.fixed)+1)
	for id, t := range e.fixed {
		if e.market.HasExited(id) {
			continue
		}
		price, qerr := t.Quote(states[id])
		if qerr != nil {
			return nil, 0, false, fmt.Errorf("fixed trader %s: %w", t.Name(), qerr)
		}
		offers[id] = price
	}
	offers[e.learnerID] = e.learner.PriceFor(action)

	deals, err := e.market.Step(offers)
	if err != nil {
		return nil, 0, false, err
	}

	obs = info.State(e.setting, e.learnerID, e.market)
	reward = agents.Surplus(e.learner, e.learnerID, deals)
	done = e.market.HasExited(e.learnerID)
	return obs, reward, done, nil
}

// Market exposes the underlying market for inspection.
func (e *Env) Market() *engine.Market { return e.market }

// LearnerID returns the minted market id of the learner.
func (e *Env) LearnerID() engine.AgentID { return e.learnerID }

// ActionSpace returns the number of actions the learner can take.
func (e *Env) ActionSpace() int { return e.learner.Discretization() }

// ObservationShape returns the setting's observation dimensions.
func (e *Env) ObservationShape() []int { return e.setting.Shape() }
