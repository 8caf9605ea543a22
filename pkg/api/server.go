// Package api is the thin HTTP shell around the exchange engine: REST for
// order and account operations, websocket for the live trade feed. The
// engine stays a library; nothing in here touches ledger or book state
// except through engine methods.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avrellon/coincentral/pkg/exchange/engine"
	"github.com/avrellon/coincentral/pkg/exchange/ledger"
	"github.com/avrellon/coincentral/pkg/exchange/order"
)

// TradeHistory reads the durable trade journal, newest first.
type TradeHistory interface {
	RecentTrades(currency string, limit int) ([]engine.Trade, error)
}

// TransferHistory reads the durable transfer journal, newest last.
type TransferHistory interface {
	Transfers(limit int) ([]ledger.Transfer, error)
}

// History exposes the journals behind the read endpoints. Either field may
// be nil when the exchange runs without persistence.
type History struct {
	Trades    TradeHistory
	Transfers TransferHistory
}

type Server struct {
	eng    *engine.Engine
	hist   History
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger

	allowedOrigins []string
}

func NewServer(eng *engine.Engine, hist History, log *zap.SugaredLogger, allowedOrigins []string) *Server {
	s := &Server{
		eng:            eng,
		hist:           hist,
		router:         mux.NewRouter(),
		hub:            NewHub(log),
		log:            log,
		allowedOrigins: allowedOrigins,
	}

	s.setupRoutes()
	eng.SubscribeTrades(s.broadcastTrade)
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Orders
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleUpdateOrder).Methods("PATCH")
	api.HandleFunc("/orders/{id}", s.handleCancelOrder).Methods("DELETE")
	api.HandleFunc("/orders/{id}/execute", s.handleExecuteOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/activate", s.handleActivateOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/matches", s.handleGetMatches).Methods("GET")

	// Accounts
	api.HandleFunc("/accounts/{owner}/orders", s.handleGetAccountOrders).Methods("GET")
	api.HandleFunc("/accounts/{owner}/balance", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/accounts/{owner}/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/{owner}/withdrawals", s.handleWithdraw).Methods("POST")

	// Trades and journaled history
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/transfers", s.handleGetTransfers).Methods("GET")

	// WebSocket trade feed
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the websocket hub and serves HTTP on addr. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	category, err := order.ParseCategory(req.Category)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid category", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	ppc, err := decimal.NewFromString(req.Ppc)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ppc", err.Error())
		return
	}

	o, err := s.eng.CreateOrder(req.Owner, category, req.Currency, amount, ppc)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSONStatus(w, http.StatusCreated, orderInfo(o))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.eng.Order(mux.Vars(r)["id"])
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	ppc, err := decimal.NewFromString(req.Ppc)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ppc", err.Error())
		return
	}

	o, err := s.eng.UpdatePrice(mux.Vars(r)["id"], ppc)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Cancel(mux.Vars(r)["id"]); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	trades, err := s.eng.Execute(mux.Vars(r)["id"])
	if err != nil {
		respondEngineError(w, err)
		return
	}

	infos := make([]TradeInfo, len(trades))
	for i, t := range trades {
		infos[i] = tradeInfo(t)
	}
	respondJSON(w, ExecuteResponse{Trades: infos})
}

func (s *Server) handleActivateOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.eng.Activate(mux.Vars(r)["id"])
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if o == nil {
		// Activation executed the order to completion and deleted it.
		respondJSON(w, map[string]string{"status": "filled"})
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleGetMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.eng.MatchingOrders(mux.Vars(r)["id"])
	if err != nil {
		respondEngineError(w, err)
		return
	}

	infos := make([]OrderInfo, len(matches))
	for i, m := range matches {
		infos[i] = orderInfo(m)
	}
	respondJSON(w, infos)
}

func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.eng.OrdersByOwner(mux.Vars(r)["owner"])
	infos := make([]OrderInfo, len(orders))
	for i, o := range orders {
		infos[i] = orderInfo(o)
	}
	respondJSON(w, infos)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = s.eng.Asset()
	}

	respondJSON(w, BalanceInfo{
		Owner:    owner,
		Currency: currency,
		Balance:  s.eng.Balance(owner, currency).String(),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.eng.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.eng.Withdraw)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, apply func(owner, currency string, amount decimal.Decimal) (*ledger.Transfer, error)) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	t, err := apply(mux.Vars(r)["owner"], req.Currency, amount)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "transfer rejected", err.Error())
		return
	}

	respondJSONStatus(w, http.StatusCreated, TransferInfo{
		ID:        t.ID,
		Owner:     t.Owner,
		Currency:  t.Currency,
		Amount:    t.Amount.String(),
		CreatedAt: t.CreatedAt,
	})
}

// handleGetTrades serves the trade tape. With a currency filter and a
// durable journal configured it reads the journal, which survives restarts;
// otherwise it falls back to the in-memory tape of this process.
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var trades []engine.Trade
	if currency := r.URL.Query().Get("currency"); currency != "" && s.hist.Trades != nil {
		var err error
		trades, err = s.hist.Trades.RecentTrades(currency, limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "trade journal read failed", err.Error())
			return
		}
	} else {
		trades = s.eng.Trades(limit)
	}

	infos := make([]TradeInfo, len(trades))
	for i, t := range trades {
		infos[i] = tradeInfo(t)
	}
	respondJSON(w, infos)
}

// handleGetTransfers serves the journaled ledger transfers.
func (s *Server) handleGetTransfers(w http.ResponseWriter, r *http.Request) {
	if s.hist.Transfers == nil {
		respondError(w, http.StatusNotFound, "no transfer journal", "the exchange is running without persistence")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	transfers, err := s.hist.Transfers.Transfers(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transfer journal read failed", err.Error())
		return
	}

	infos := make([]TransferInfo, len(transfers))
	for i, t := range transfers {
		infos[i] = TransferInfo{
			ID:        t.ID,
			Owner:     t.Owner,
			Currency:  t.Currency,
			Amount:    t.Amount.String(),
			CreatedAt: t.CreatedAt,
		}
	}
	respondJSON(w, infos)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// broadcastTrade pushes an executed trade to every websocket client.
func (s *Server) broadcastTrade(t engine.Trade) {
	s.hub.Broadcast(TradeEvent{Type: "trade", Trade: tradeInfo(t)})
}

// ==============================
// Helpers
// ==============================

func orderInfo(o *order.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Owner:     o.Owner,
		Category:  o.Category.String(),
		Currency:  o.Currency,
		Amount:    o.Amount.String(),
		Ppc:       o.Ppc.String(),
		Active:    o.Active,
		CreatedAt: o.CreatedAt,
	}
}

func tradeInfo(t engine.Trade) TradeInfo {
	return TradeInfo{
		ID:          t.ID,
		Currency:    t.Currency,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Buyer:       t.Buyer,
		Seller:      t.Seller,
		Amount:      t.Amount.String(),
		Ppc:         t.Ppc.String(),
		CreatedAt:   t.CreatedAt,
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: detail})
}

// respondEngineError maps engine error taxonomy onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	var verr *order.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusUnprocessableEntity, "validation failed", verr.Error())
	case errors.Is(err, engine.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order not found", "")
	case errors.Is(err, engine.ErrNotEligible):
		respondError(w, http.StatusConflict, "not eligible", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
