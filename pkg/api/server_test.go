package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avrellon/coincentral/pkg/exchange/engine"
	"github.com/avrellon/coincentral/pkg/exchange/ledger"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(ledger.New(), engine.Config{
		Asset:      "BTC",
		Currencies: []string{"USD"},
		Logger:     zap.NewNop().Sugar(),
	})
	return NewServer(eng, History{}, zap.NewNop().Sugar(), nil), eng
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func deposit(t *testing.T, eng *engine.Engine, owner, currency, amount string) {
	t.Helper()
	if _, err := eng.Deposit(owner, currency, decimal.RequireFromString(amount)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	s, eng := newTestServer(t)
	deposit(t, eng, "alice", "USD", "25")

	w := doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Owner:    "alice",
		Category: "buy",
		Currency: "USD",
		Amount:   "100",
		Ppc:      "0.25",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body)
	}
	var info OrderInfo
	decodeInto(t, w, &info)
	if info.ID == "" || !info.Active || info.Amount != "100" || info.Category != "buy" {
		t.Errorf("unexpected order payload: %+v", info)
	}

	// The order is readable back.
	w = doJSON(t, s, "GET", "/api/v1/orders/"+info.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", w.Code)
	}
}

func TestCreateOrderEndpointRejections(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		req  CreateOrderRequest
		want int
	}{
		{"bad category", CreateOrderRequest{Owner: "a", Category: "hold", Currency: "USD", Amount: "1", Ppc: "1"}, http.StatusBadRequest},
		{"bad amount", CreateOrderRequest{Owner: "a", Category: "buy", Currency: "USD", Amount: "one", Ppc: "1"}, http.StatusBadRequest},
		{"bad ppc", CreateOrderRequest{Owner: "a", Category: "buy", Currency: "USD", Amount: "1", Ppc: ""}, http.StatusBadRequest},
		{"ppc below floor", CreateOrderRequest{Owner: "a", Category: "buy", Currency: "USD", Amount: "1", Ppc: "0.00005"}, http.StatusUnprocessableEntity},
		{"unsupported currency", CreateOrderRequest{Owner: "a", Category: "buy", Currency: "KRW", Amount: "1", Ppc: "1"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s, "POST", "/api/v1/orders", tt.req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d; body %s", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestOrderNotFoundEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	paths := []struct {
		method, path string
	}{
		{"GET", "/api/v1/orders/nope"},
		{"DELETE", "/api/v1/orders/nope"},
		{"POST", "/api/v1/orders/nope/execute"},
		{"POST", "/api/v1/orders/nope/activate"},
		{"GET", "/api/v1/orders/nope/matches"},
	}
	for _, p := range paths {
		w := doJSON(t, s, p.method, p.path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", p.method, p.path, w.Code)
		}
	}
}

func TestActivateConflict(t *testing.T) {
	s, eng := newTestServer(t)
	deposit(t, eng, "alice", "USD", "25")

	w := doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Owner: "alice", Category: "buy", Currency: "USD", Amount: "1", Ppc: "25",
	})
	var info OrderInfo
	decodeInto(t, w, &info)

	// Already active.
	w = doJSON(t, s, "POST", "/api/v1/orders/"+info.ID+"/activate", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("activate active order: status = %d, want 409", w.Code)
	}
}

func TestDepositWithdrawAndBalance(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, "POST", "/api/v1/accounts/alice/deposits", TransferRequest{
		Currency: "USD", Amount: "100",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("deposit status = %d, want 201; body %s", w.Code, w.Body)
	}
	var tr TransferInfo
	decodeInto(t, w, &tr)
	if tr.Amount != "100" || tr.Owner != "alice" {
		t.Errorf("unexpected transfer payload: %+v", tr)
	}

	w = doJSON(t, s, "POST", "/api/v1/accounts/alice/withdrawals", TransferRequest{
		Currency: "USD", Amount: "30",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("withdraw status = %d, want 201; body %s", w.Code, w.Body)
	}

	// Overdraw is rejected.
	w = doJSON(t, s, "POST", "/api/v1/accounts/alice/withdrawals", TransferRequest{
		Currency: "USD", Amount: "1000",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("overdraw status = %d, want 422", w.Code)
	}

	w = doJSON(t, s, "GET", "/api/v1/accounts/alice/balance?currency=USD", nil)
	var bal BalanceInfo
	decodeInto(t, w, &bal)
	if bal.Balance != "70" {
		t.Errorf("balance = %s, want 70", bal.Balance)
	}

	// Default currency is the traded asset.
	w = doJSON(t, s, "GET", "/api/v1/accounts/alice/balance", nil)
	decodeInto(t, w, &bal)
	if bal.Currency != "BTC" || bal.Balance != "0" {
		t.Errorf("default balance = %s %s, want 0 BTC", bal.Balance, bal.Currency)
	}
}

func TestExecuteEndToEnd(t *testing.T) {
	s, eng := newTestServer(t)
	deposit(t, eng, "alice", "USD", "25")
	deposit(t, eng, "bob", "BTC", "100")

	w := doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Owner: "bob", Category: "sell", Currency: "USD", Amount: "100", Ppc: "0.25",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create sell: %d %s", w.Code, w.Body)
	}

	w = doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Owner: "alice", Category: "buy", Currency: "USD", Amount: "100", Ppc: "0.25",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create buy: %d %s", w.Code, w.Body)
	}
	var buy OrderInfo
	decodeInto(t, w, &buy)

	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/orders/%s/execute", buy.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("execute: %d %s", w.Code, w.Body)
	}
	var resp ExecuteResponse
	decodeInto(t, w, &resp)
	if len(resp.Trades) != 1 {
		t.Fatalf("want 1 trade, got %d", len(resp.Trades))
	}
	if resp.Trades[0].Amount != "100" || resp.Trades[0].Ppc != "0.25" {
		t.Errorf("trade = %s @ %s, want 100 @ 0.25", resp.Trades[0].Amount, resp.Trades[0].Ppc)
	}

	w = doJSON(t, s, "GET", "/api/v1/trades", nil)
	var trades []TradeInfo
	decodeInto(t, w, &trades)
	if len(trades) != 1 {
		t.Errorf("trade tape has %d entries, want 1", len(trades))
	}

	// Both sides fully filled; the book is empty for both owners.
	w = doJSON(t, s, "GET", "/api/v1/accounts/alice/orders", nil)
	var orders []OrderInfo
	decodeInto(t, w, &orders)
	if len(orders) != 0 {
		t.Errorf("alice still has %d orders, want 0", len(orders))
	}
}

func TestActivateFullFillResponse(t *testing.T) {
	s, eng := newTestServer(t)
	deposit(t, eng, "alice", "USD", "25")
	deposit(t, eng, "bob", "BTC", "1")

	w := doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Owner: "alice", Category: "buy", Currency: "USD", Amount: "1", Ppc: "25",
	})
	var buy OrderInfo
	decodeInto(t, w, &buy)

	// Park the buy, let a crossing sell rest, then reactivate: the
	// activation fills the order completely.
	if _, err := eng.Withdraw("alice", "USD", decimal.RequireFromString("20")); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	w = doJSON(t, s, "POST", "/api/v1/orders", CreateOrderRequest{
		Owner: "bob", Category: "sell", Currency: "USD", Amount: "1", Ppc: "20",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create sell: %d %s", w.Code, w.Body)
	}
	deposit(t, eng, "alice", "USD", "20")

	w = doJSON(t, s, "POST", "/api/v1/orders/"+buy.ID+"/activate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("activate: %d %s", w.Code, w.Body)
	}
	var resp map[string]string
	decodeInto(t, w, &resp)
	if resp["status"] != "filled" {
		t.Errorf("a fully filled activation should report filled, got %v", resp)
	}
	// The order must really be gone, never served as a zero-amount record.
	w = doJSON(t, s, "GET", "/api/v1/orders/"+buy.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("filled order still readable: %d %s", w.Code, w.Body)
	}
}

type memTradeHistory struct {
	trades []engine.Trade
}

func (h *memTradeHistory) RecentTrades(currency string, limit int) ([]engine.Trade, error) {
	var out []engine.Trade
	for _, t := range h.trades {
		if t.Currency == currency && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

type memTransferHistory struct {
	transfers []ledger.Transfer
}

func (h *memTransferHistory) Transfers(limit int) ([]ledger.Transfer, error) {
	if limit > 0 && limit < len(h.transfers) {
		return h.transfers[len(h.transfers)-limit:], nil
	}
	return h.transfers, nil
}

func TestTradesEndpointReadsJournal(t *testing.T) {
	eng := engine.New(ledger.New(), engine.Config{
		Asset:  "BTC",
		Logger: zap.NewNop().Sugar(),
	})
	hist := History{Trades: &memTradeHistory{trades: []engine.Trade{
		{ID: "j1", Currency: "USD", Buyer: "alice", Seller: "bob",
			Amount: decimal.RequireFromString("1"), Ppc: decimal.RequireFromString("25")},
		{ID: "j2", Currency: "EUR", Buyer: "carol", Seller: "dave",
			Amount: decimal.RequireFromString("2"), Ppc: decimal.RequireFromString("30")},
	}}}
	s := NewServer(eng, hist, zap.NewNop().Sugar(), nil)

	// With a currency filter the response comes from the journal even
	// though this process has executed nothing.
	w := doJSON(t, s, "GET", "/api/v1/trades?currency=USD", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var trades []TradeInfo
	decodeInto(t, w, &trades)
	if len(trades) != 1 || trades[0].ID != "j1" {
		t.Errorf("journal read wrong: %v", trades)
	}

	// Without a filter the in-memory tape answers (empty here).
	w = doJSON(t, s, "GET", "/api/v1/trades", nil)
	decodeInto(t, w, &trades)
	if len(trades) != 0 {
		t.Errorf("in-memory tape should be empty, got %d", len(trades))
	}
}

func TestTransfersEndpoint(t *testing.T) {
	eng := engine.New(ledger.New(), engine.Config{
		Asset:  "BTC",
		Logger: zap.NewNop().Sugar(),
	})
	hist := History{Transfers: &memTransferHistory{transfers: []ledger.Transfer{
		{ID: "t1", Owner: "alice", Currency: "USD", Amount: decimal.RequireFromString("25")},
		{ID: "t2", Owner: "alice", Currency: "USD", Amount: decimal.RequireFromString("-5")},
	}}}
	s := NewServer(eng, hist, zap.NewNop().Sugar(), nil)

	w := doJSON(t, s, "GET", "/api/v1/transfers?limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var transfers []TransferInfo
	decodeInto(t, w, &transfers)
	if len(transfers) != 1 || transfers[0].ID != "t2" {
		t.Errorf("journal read wrong: %v", transfers)
	}

	// Without a journal the endpoint says so instead of serving nothing.
	bare := NewServer(engine.New(ledger.New(), engine.Config{Logger: zap.NewNop().Sugar()}),
		History{}, zap.NewNop().Sugar(), nil)
	w = doJSON(t, bare, "GET", "/api/v1/transfers", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a journal", w.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health = %d, want 200", w.Code)
	}
}
