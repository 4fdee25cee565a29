package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg, nil)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createMarket(t *testing.T, base string, req createMarketRequest) marketResponse {
	t.Helper()
	resp := postJSON(t, base+"/markets", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[marketResponse](t, resp)
}

func TestCreateMarketMintsAgentIDs(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	market := createMarket(t, ts.URL, createMarketRequest{Buyers: 2, Sellers: 3, MaxRounds: 10})
	assert.NotEmpty(t, market.ID)
	assert.Len(t, market.BuyerIDs, 2)
	assert.Len(t, market.SellerIDs, 3)
	assert.Equal(t, 10, market.MaxRounds)
	assert.Empty(t, market.Exited)
}

func TestCreateMarketAcceptsExplicitIDs(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	market := createMarket(t, ts.URL, createMarketRequest{
		BuyerIDs:  []string{"alice"},
		SellerIDs: []string{"bob"},
	})
	assert.Equal(t, []string{"alice"}, market.BuyerIDs)
	assert.Equal(t, []string{"bob"}, market.SellerIDs)
	// The server's default budget applies when none is given.
	assert.Equal(t, 30, market.MaxRounds)
}

func TestCreateMarketRejectsOverlappingRoles(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	resp := postJSON(t, ts.URL+"/markets", createMarketRequest{
		BuyerIDs:  []string{"dual"},
		SellerIDs: []string{"dual"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStepMatchesAndReportsDeals(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	market := createMarket(t, ts.URL, createMarketRequest{
		BuyerIDs:  []string{"b"},
		SellerIDs: []string{"s"},
		MaxRounds: 5,
	})

	resp := postJSON(t, fmt.Sprintf("%s/markets/%s/offers", ts.URL, market.ID), stepRequest{
		Offers: map[string]float64{"b": 100, "s": 80},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	step := decode[stepResponse](t, resp)

	assert.Equal(t, 1, step.Round)
	assert.Equal(t, map[string]float64{"b": 90, "s": 90}, step.Deals)
	// The only buyer dealt, so the market closed.
	assert.True(t, step.Done)
}

func TestStepUnknownAgentIsBadRequest(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	market := createMarket(t, ts.URL, createMarketRequest{
		BuyerIDs:  []string{"b"},
		SellerIDs: []string{"s"},
	})

	resp := postJSON(t, fmt.Sprintf("%s/markets/%s/offers", ts.URL, market.ID), stepRequest{
		Offers: map[string]float64{"b": 100, "ghost": 50},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The failed step committed nothing.
	state, err := http.Get(fmt.Sprintf("%s/markets/%s", ts.URL, market.ID))
	require.NoError(t, err)
	got := decode[marketResponse](t, state)
	assert.Equal(t, 0, got.Round)
	assert.Empty(t, got.Exited)
}

func TestUnknownMarketIsNotFound(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/markets/nosuch")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/markets/nosuch/offers", stepRequest{})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResetRestoresMarket(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	market := createMarket(t, ts.URL, createMarketRequest{
		BuyerIDs:  []string{"b"},
		SellerIDs: []string{"s"},
	})

	postJSON(t, fmt.Sprintf("%s/markets/%s/offers", ts.URL, market.ID), stepRequest{
		Offers: map[string]float64{"b": 100, "s": 80},
	}).Body.Close()

	resp := postJSON(t, fmt.Sprintf("%s/markets/%s/reset", ts.URL, market.ID), struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	state, err := http.Get(fmt.Sprintf("%s/markets/%s", ts.URL, market.ID))
	require.NoError(t, err)
	got := decode[marketResponse](t, state)
	assert.Equal(t, 0, got.Round)
	assert.False(t, got.Done)
	assert.Empty(t, got.Exited)
}

func TestHistoryReportsRounds(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	market := createMarket(t, ts.URL, createMarketRequest{
		BuyerIDs:  []string{"b1", "b2"},
		SellerIDs: []string{"s1", "s2"},
		MaxRounds: 10,
	})

	postJSON(t, fmt.Sprintf("%s/markets/%s/offers", ts.URL, market.ID), stepRequest{
		Offers: map[string]float64{"b1": 100, "b2": 90, "s1": 80, "s2": 120},
	}).Body.Close()

	resp, err := http.Get(fmt.Sprintf("%s/markets/%s/history", ts.URL, market.ID))
	require.NoError(t, err)
	history := decode[historyResponse](t, resp)

	require.Len(t, history.Offers, 1)
	require.Len(t, history.Deals, 1)
	require.Len(t, history.Trades, 1)
	assert.Len(t, history.Offers[0].Bids, 2)
	assert.Len(t, history.Offers[0].Asks, 2)
	assert.Equal(t, map[string]float64{"b1": 90, "s1": 90}, history.Deals[0])
	require.Len(t, history.Trades[0], 1)
	assert.Equal(t, tradeDTO{Buyer: "b1", Seller: "s1", Price: 90}, history.Trades[0][0])
}

func TestAuthTokenRequired(t *testing.T) {
	_, ts := newTestServer(t, Config{AuthToken: "sekret"})

	resp := postJSON(t, ts.URL+"/markets", createMarketRequest{Buyers: 1, Sellers: 1})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/markets", bytes.NewReader([]byte(`{"buyers":1,"sellers":1}`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sekret")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	authed.Body.Close()
	assert.Equal(t, http.StatusCreated, authed.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	createMarket(t, ts.URL, createMarketRequest{Buyers: 1, Sellers: 1})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "dauction_markets_created_total 1")
}

func TestDealStreamBroadcastsSteps(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	market := createMarket(t, ts.URL, createMarketRequest{
		BuyerIDs:  []string{"b"},
		SellerIDs: []string{"s"},
	})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/deals"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The handler subscribes after the handshake; wait for it before
	// stepping so the broadcast cannot slip past the stream.
	require.Eventually(t, func() bool { return srv.dealHub.Len() == 1 }, time.Second, 5*time.Millisecond)

	postJSON(t, fmt.Sprintf("%s/markets/%s/offers", ts.URL, market.ID), stepRequest{
		Offers: map[string]float64{"b": 100, "s": 80},
	}).Body.Close()

	var event dealEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, market.ID, event.MarketID)
	assert.Equal(t, 1, event.Round)
	assert.Equal(t, map[string]float64{"b": 90, "s": 90}, event.Deals)
}
