package sim

import (
	"context"
	"math/rand"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dauction/agents"
	"dauction/engine"
	"dauction/info"
)

// Runner drives many independent market episodes concurrently, one market
// per worker goroutine. Markets share no state, so no coordination beyond
// the work queue is needed. Episodes are populated with random traders:
// buyers value the good above the sellers' costs on average, so markets
// usually clear before their round budget.
type Runner struct {
	Episodes  int
	Buyers    int
	Sellers   int
	MaxRounds int
	MaxFactor float64
	Workers   int // defaults to GOMAXPROCS
	Seed      int64
	Setting   info.Setting
	Log       *zap.Logger
}

// Stats aggregates the outcome of a batch run. MeanSurplus is the
// combined buyer and seller surplus per trade.
type Stats struct {
	Episodes    int
	Rounds      int
	Trades      int
	MeanPrice   float64
	MeanSurplus float64
}

// Run executes the configured batch and blocks until every episode
// finished or ctx was canceled. Episode e is seeded with Seed+e, so a
// given configuration reproduces its stats regardless of worker count.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	setting := r.Setting
	if setting == nil {
		setting = info.BlackBox{}
	}

	jobs := make(chan int)
	results := make(chan episodeStats)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ep := range jobs {
				st, err := r.runEpisode(r.Seed+int64(ep), setting)
				if err != nil {
					log.Error("episode failed", zap.Int("episode", ep), zap.Error(err))
					continue
				}
				select {
				case results <- st:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for ep := 0; ep < r.Episodes; ep++ {
			select {
			case jobs <- ep:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var stats Stats
	var sumPrice, sumSurplus float64
	for st := range results {
		stats.Episodes++
		stats.Rounds += st.rounds
		stats.Trades += st.trades
		sumPrice += st.sumPrice
		sumSurplus += st.sumSurplus
	}
	if stats.Trades > 0 {
		stats.MeanPrice = sumPrice / float64(stats.Trades)
		stats.MeanSurplus = sumSurplus / float64(stats.Trades)
	}

	log.Info("batch complete",
		zap.Int("episodes", stats.Episodes),
		zap.Int("rounds", stats.Rounds),
		zap.Int("trades", stats.Trades),
		zap.Float64("mean_price", stats.MeanPrice),
		zap.Float64("mean_surplus", stats.MeanSurplus),
	)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

type episodeStats struct {
	rounds     int
	trades     int
	sumPrice   float64
	sumSurplus float64
}

func (r *Runner) runEpisode(seed int64, setting info.Setting) (episodeStats, error) {
	rng := rand.New(rand.NewSource(seed))

	traders := make(map[engine.AgentID]agents.Trader, r.Buyers+r.Sellers)
	var buyers, sellers []engine.AgentID
	var ids []engine.AgentID

	mint := func(role agents.Role, reservation float64) error {
		t, err := agents.NewRandom(role, reservation, r.MaxFactor, rand.New(rand.NewSource(rng.Int63())))
		if err != nil {
			return err
		}
		id := engine.AgentID(uuid.NewString())
		traders[id] = t
		ids = append(ids, id)
		if role == agents.Buyer {
			buyers = append(buyers, id)
		} else {
			sellers = append(sellers, id)
		}
		return nil
	}

	for i := 0; i < r.Buyers; i++ {
		if err := mint(agents.Buyer, 100+100*rng.Float64()); err != nil {
			return episodeStats{}, err
		}
	}
	for i := 0; i < r.Sellers; i++ {
		if err := mint(agents.Seller, 50+100*rng.Float64()); err != nil {
			return episodeStats{}, err
		}
	}

	m, err := engine.NewMarket(engine.Config{Buyers: buyers, Sellers: sellers, MaxRounds: r.MaxRounds})
	if err != nil {
		return episodeStats{}, err
	}

	var st episodeStats
	for !m.Done() {
		states := setting.States(ids, m)
		offers := make(map[engine.AgentID]float64, len(traders))
		for id, t := range traders {
			if m.HasExited(id) {
				continue
			}
			price, qerr := t.Quote(states[id])
			if qerr != nil {
				return episodeStats{}, qerr
			}
			offers[id] = price
		}
		deals, err := m.Step(offers)
		if err != nil {
			return episodeStats{}, err
		}
		for id, t := range traders {
			st.sumSurplus += agents.Surplus(t, id, deals)
		}
	}

	st.rounds = m.Round()
	for _, roundTrades := range m.TradeHistory() {
		st.trades += len(roundTrades)
		for _, tr := range roundTrades {
			st.sumPrice += tr.Price
		}
	}
	return st, nil
}
