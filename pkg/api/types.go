package api

import "time"

// Request/response shapes for the REST boundary. Decimals travel as strings.

type CreateOrderRequest struct {
	Owner    string `json:"owner"`
	Category string `json:"category"` // "buy" or "sell"
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
	Ppc      string `json:"ppc"`
}

type UpdateOrderRequest struct {
	Ppc string `json:"ppc"`
}

type OrderInfo struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Category  string    `json:"category"`
	Currency  string    `json:"currency"`
	Amount    string    `json:"amount"`
	Ppc       string    `json:"ppc"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type TradeInfo struct {
	ID          string    `json:"id"`
	Currency    string    `json:"currency"`
	BuyOrderID  string    `json:"buy_order_id"`
	SellOrderID string    `json:"sell_order_id"`
	Buyer       string    `json:"buyer"`
	Seller      string    `json:"seller"`
	Amount      string    `json:"amount"`
	Ppc         string    `json:"ppc"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExecuteResponse struct {
	Trades []TradeInfo `json:"trades"`
}

type BalanceInfo struct {
	Owner    string `json:"owner"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

type TransferRequest struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type TransferInfo struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Currency  string    `json:"currency"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// TradeEvent is the websocket frame broadcast for every executed trade.
type TradeEvent struct {
	Type  string    `json:"type"` // always "trade"
	Trade TradeInfo `json:"trade"`
}
