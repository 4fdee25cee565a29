// Package server exposes markets over HTTP and WebSocket: market
// creation, offer submission, history reads and a live deal stream. The
// engine itself is single-writer, so the server serializes steps with a
// per-market mutex and keeps everything else lock-free.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dauction/engine"
)

// Config carries the server's tunables.
type Config struct {
	// AuthToken enables bearer-token auth when non-empty.
	AuthToken string
	// CORSOrigin is the allowed origin; empty means "*".
	CORSOrigin string
	// DefaultMaxRounds applies to markets created without a round budget.
	DefaultMaxRounds int
}

// Server is the HTTP surface over a registry of markets.
type Server struct {
	log      *zap.Logger
	cfg      Config
	registry *registry
	dealHub  *hub[dealEvent]
	upgrader websocket.Upgrader
	metrics  *metrics
}

// New builds a server. A nil logger disables logging.
func New(cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.DefaultMaxRounds <= 0 {
		cfg.DefaultMaxRounds = engine.DefaultMaxRounds
	}
	return &Server{
		log:      log,
		cfg:      cfg,
		registry: newRegistry(),
		dealHub:  newHub[dealEvent](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		metrics:  newMetrics(),
	}
}

// Routes returns the server's handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /markets", s.withCORS(s.withAuth(http.HandlerFunc(s.handleCreateMarket))))
	mux.Handle("GET /markets/{id}", s.withCORS(s.withAuth(http.HandlerFunc(s.handleGetMarket))))
	mux.Handle("POST /markets/{id}/offers", s.withCORS(s.withAuth(http.HandlerFunc(s.handleStep))))
	mux.Handle("POST /markets/{id}/reset", s.withCORS(s.withAuth(http.HandlerFunc(s.handleReset))))
	mux.Handle("GET /markets/{id}/history", s.withCORS(s.withAuth(http.HandlerFunc(s.handleHistory))))
	mux.Handle("GET /ws/deals", s.withCORS(s.withAuth(http.HandlerFunc(s.handleDealStream))))
	mux.Handle("GET /metrics", s.metrics.handler())
	return mux
}

// Close drops every deal-stream subscriber.
func (s *Server) Close() {
	s.dealHub.Close()
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.cfg.AuthToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createMarketRequest struct {
	// Counts mint fresh UUID agent ids.
	Buyers  int `json:"buyers"`
	Sellers int `json:"sellers"`
	// Explicit ids may be supplied instead of (or alongside) counts.
	BuyerIDs  []string `json:"buyerIds"`
	SellerIDs []string `json:"sellerIds"`
	MaxRounds int      `json:"maxRounds"`
}

type marketResponse struct {
	ID        string   `json:"id"`
	Round     int      `json:"round"`
	MaxRounds int      `json:"maxRounds"`
	Done      bool     `json:"done"`
	BuyerIDs  []string `json:"buyerIds"`
	SellerIDs []string `json:"sellerIds"`
	Exited    []string `json:"exited"`
}

type stepRequest struct {
	Offers map[string]float64 `json:"offers"`
}

type stepResponse struct {
	Round int                `json:"round"`
	Deals map[string]float64 `json:"deals"`
	Done  bool               `json:"done"`
}

type dealEvent struct {
	MarketID string             `json:"marketId"`
	Round    int                `json:"round"`
	Deals    map[string]float64 `json:"deals"`
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if req.Buyers < 0 || req.Sellers < 0 || req.MaxRounds < 0 {
		writeError(w, http.StatusBadRequest, errors.New("counts and maxRounds must not be negative"))
		return
	}

	buyers := mintIDs(req.BuyerIDs, req.Buyers)
	sellers := mintIDs(req.SellerIDs, req.Sellers)
	maxRounds := req.MaxRounds
	if maxRounds == 0 {
		maxRounds = s.cfg.DefaultMaxRounds
	}

	market, err := engine.NewMarket(engine.Config{Buyers: buyers, Sellers: sellers, MaxRounds: maxRounds})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := uuid.NewString()
	s.registry.add(id, market)
	s.metrics.marketsCreated.Inc()
	s.log.Info("market created",
		zap.String("market", id),
		zap.Int("buyers", len(buyers)),
		zap.Int("sellers", len(sellers)),
		zap.Int("max_rounds", maxRounds),
	)

	writeJSON(w, http.StatusCreated, marketResponse{
		ID:        id,
		MaxRounds: maxRounds,
		BuyerIDs:  idStrings(buyers),
		SellerIDs: idStrings(sellers),
		Exited:    []string{},
	})
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	handle, ok := s.registry.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown market %s", id))
		return
	}

	handle.mu.Lock()
	resp := marketResponse{
		ID:        id,
		Round:     handle.market.Round(),
		MaxRounds: handle.market.MaxRounds(),
		Done:      handle.market.Done(),
		BuyerIDs:  idStrings(handle.market.Buyers()),
		SellerIDs: idStrings(handle.market.Sellers()),
		Exited:    idStrings(handle.market.Exited()),
	}
	handle.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	handle, ok := s.registry.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown market %s", id))
		return
	}

	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	offers := make(map[engine.AgentID]float64, len(req.Offers))
	for agent, price := range req.Offers {
		offers[engine.AgentID(agent)] = price
	}

	handle.mu.Lock()
	deals, err := handle.market.Step(offers)
	round := handle.market.Round()
	done := handle.market.Done()
	handle.mu.Unlock()
	if err != nil {
		// The engine's only failure mode is a contract violation by the
		// caller, so it maps to a client error.
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.metrics.steps.Inc()
	s.metrics.trades.Add(float64(len(deals) / 2))
	for agent, price := range deals {
		if handle.isBuyer(agent) {
			s.metrics.dealPrice.Observe(price)
		}
	}

	event := dealEvent{MarketID: id, Round: round, Deals: dealStrings(deals)}
	s.dealHub.Broadcast(event)
	s.log.Debug("market stepped",
		zap.String("market", id),
		zap.Int("round", round),
		zap.Int("deals", len(deals)),
	)

	writeJSON(w, http.StatusOK, stepResponse{Round: round, Deals: dealStrings(deals), Done: done})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	handle, ok := s.registry.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown market %s", id))
		return
	}

	handle.mu.Lock()
	handle.market.Reset()
	handle.mu.Unlock()

	s.log.Info("market reset", zap.String("market", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type offerDTO struct {
	Agent string  `json:"agent"`
	Price float64 `json:"price"`
}

type roundDTO struct {
	Bids []offerDTO `json:"bids"`
	Asks []offerDTO `json:"asks"`
}

type tradeDTO struct {
	Buyer  string  `json:"buyer"`
	Seller string  `json:"seller"`
	Price  float64 `json:"price"`
}

type historyResponse struct {
	Offers []roundDTO           `json:"offers"`
	Deals  []map[string]float64 `json:"deals"`
	Trades [][]tradeDTO         `json:"trades"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	handle, ok := s.registry.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown market %s", id))
		return
	}

	handle.mu.Lock()
	offers := handle.market.OfferHistory()
	deals := handle.market.DealHistory()
	trades := handle.market.TradeHistory()
	handle.mu.Unlock()

	resp := historyResponse{
		Offers: make([]roundDTO, len(offers)),
		Deals:  make([]map[string]float64, len(deals)),
		Trades: make([][]tradeDTO, len(trades)),
	}
	for i, round := range offers {
		resp.Offers[i] = roundDTO{Bids: offerDTOs(round.Bids), Asks: offerDTOs(round.Asks)}
	}
	for i, d := range deals {
		resp.Deals[i] = dealStrings(d)
	}
	for i, roundTrades := range trades {
		dtos := make([]tradeDTO, len(roundTrades))
		for j, tr := range roundTrades {
			dtos[j] = tradeDTO{Buyer: string(tr.Buyer), Seller: string(tr.Seller), Price: tr.Price}
		}
		resp.Trades[i] = dtos
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDealStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.dealHub.Subscribe(32)
	defer s.dealHub.Unsubscribe(sub)

	for event := range sub.ch {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}

func mintIDs(explicit []string, count int) []engine.AgentID {
	ids := make([]engine.AgentID, 0, len(explicit)+count)
	for _, id := range explicit {
		ids = append(ids, engine.AgentID(id))
	}
	for i := 0; i < count; i++ {
		ids = append(ids, engine.AgentID(uuid.NewString()))
	}
	return ids
}

func idStrings(ids []engine.AgentID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func dealStrings(deals engine.Deals) map[string]float64 {
	out := make(map[string]float64, len(deals))
	for id, price := range deals {
		out[string(id)] = price
	}
	return out
}

func offerDTOs(offers []engine.Offer) []offerDTO {
	out := make([]offerDTO, len(offers))
	for i, o := range offers {
		out[i] = offerDTO{Agent: string(o.Agent), Price: o.Price}
	}
	return out
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
