package engine

import "sort"

// MatchTrades computes the maximal price-compatible pairing between a set
// of bids and a set of asks for a single round.
//
// Bids are sorted descending and asks ascending by price. Both sorts are
// stable, so submission order breaks price ties. The i-th highest bid is
// paired with the i-th lowest ask and trades at the mid price when
// bid >= ask. The first failed comparison ends matching for the round;
// stopping there is part of the defined algorithm, not a shortcut, and a
// later pair that would have crossed is never examined. Deal prices are
// not monotone across pairs: a lower-priority bidder can walk away with a
// better price than a higher-priority one.
//
// Inputs are copied, never mutated, and need not be pre-sorted. Empty
// inputs yield an empty result.
func MatchTrades(bids, asks []Offer) []Trade {
	sortedBids := make([]Offer, len(bids))
	copy(sortedBids, bids)
	sortedAsks := make([]Offer, len(asks))
	copy(sortedAsks, asks)

	sort.SliceStable(sortedBids, func(i, j int) bool {
		return sortedBids[i].Price > sortedBids[j].Price
	})
	sort.SliceStable(sortedAsks, func(i, j int) bool {
		return sortedAsks[i].Price < sortedAsks[j].Price
	})

	n := len(sortedBids)
	if len(sortedAsks) < n {
		n = len(sortedAsks)
	}

	var trades []Trade
	for i := 0; i < n; i++ {
		bid, ask := sortedBids[i], sortedAsks[i]
		if bid.Price < ask.Price {
			break
		}
		trades = append(trades, Trade{
			Buyer:  bid.Agent,
			Seller: ask.Agent,
			Price:  (bid.Price + ask.Price) / 2,
		})
	}
	return trades
}

// Match is MatchTrades flattened into a per-agent deal map. Agents that
// did not trade have no entry; absence means no deal, not a zero price.
func Match(bids, asks []Offer) Deals {
	return dealsFromTrades(MatchTrades(bids, asks))
}

func dealsFromTrades(trades []Trade) Deals {
	deals := make(Deals, 2*len(trades))
	for _, t := range trades {
		deals[t.Buyer] = t.Price
		deals[t.Seller] = t.Price
	}
	return deals
}
