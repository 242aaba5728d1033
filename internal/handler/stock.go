package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/apm287/stockledger/internal/domain"
	"github.com/apm287/stockledger/internal/ledger"
)

// StockHandler handles the balance, overview and trade endpoints.
type StockHandler struct {
	ledger ledger.Ledger
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(l ledger.Ledger) *StockHandler {
	return &StockHandler{ledger: l}
}

// balanceResponse is the JSON response for GET /balance. Timestamp is
// epoch milliseconds.
type balanceResponse struct {
	Balance   float64 `json:"balance"`
	Exposure  float64 `json:"exposure"`
	Timestamp int64   `json:"timestamp"`
}

// stockResponse is a single stock in overview and trade responses.
type stockResponse struct {
	Code          string  `json:"code"`
	StartingPrice float64 `json:"startingPrice"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	Holding       int64   `json:"holding"`
}

// overviewResponse is the JSON response for GET /stocks.
type overviewResponse struct {
	Stocks []stockResponse `json:"stocks"`
}

// tradeResponse is the JSON response for GET /buy and GET /sell. Stock is
// present only on success, reason only on failure.
type tradeResponse struct {
	Success bool           `json:"success"`
	Stock   *stockResponse `json:"stock,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// GetBalance handles GET /balance.
func (h *StockHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	info := h.ledger.Balance()
	WriteJSON(w, http.StatusOK, balanceResponse{
		Balance:   domain.CentsToDollars(info.Balance),
		Exposure:  domain.CentsToDollars(info.Exposure),
		Timestamp: info.Timestamp.UnixMilli(),
	})
}

// GetOverview handles GET /stocks.
func (h *StockHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	snapshots := h.ledger.Overview()
	stocks := make([]stockResponse, len(snapshots))
	for i, s := range snapshots {
		stocks[i] = toStockResponse(s)
	}
	WriteJSON(w, http.StatusOK, overviewResponse{Stocks: stocks})
}

// Buy handles GET /buy?c=CODE&s=SIZE. Size defaults to 1 when omitted.
func (h *StockHandler) Buy(w http.ResponseWriter, r *http.Request) {
	code, size, ok := tradeParams(w, r)
	if !ok {
		return
	}
	res, err := h.ledger.Buy(r.Context(), code, size)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "Trade could not be recorded.")
		return
	}
	writeTradeResult(w, res, "buy")
}

// Sell handles GET /sell?c=CODE&s=SIZE. Size defaults to 1 when omitted.
func (h *StockHandler) Sell(w http.ResponseWriter, r *http.Request) {
	code, size, ok := tradeParams(w, r)
	if !ok {
		return
	}
	res, err := h.ledger.Sell(r.Context(), code, size)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "Trade could not be recorded.")
		return
	}
	writeTradeResult(w, res, "sell")
}

// tradeParams extracts the c (required) and s (optional, default 1) query
// parameters. On a malformed request it writes a 400 and returns ok=false.
func tradeParams(w http.ResponseWriter, r *http.Request) (code string, size int64, ok bool) {
	code = r.URL.Query().Get("c")
	if code == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "query parameter 'c' is required")
		return "", 0, false
	}
	size = 1
	if s := r.URL.Query().Get("s"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "query parameter 's' must be an integer")
			return "", 0, false
		}
		size = v
	}
	return code, size, true
}

func writeTradeResult(w http.ResponseWriter, res ledger.TradeResult, op string) {
	if !res.Success {
		WriteJSON(w, http.StatusOK, tradeResponse{Reason: reasonText(res.Reason, op)})
		return
	}
	stock := toStockResponse(res.Stock)
	WriteJSON(w, http.StatusOK, tradeResponse{Success: true, Stock: &stock})
}

func toStockResponse(s domain.Snapshot) stockResponse {
	return stockResponse{
		Code:          s.Code,
		StartingPrice: domain.CentsToDollars(s.StartingPrice),
		Price:         domain.CentsToDollars(s.Price),
		Change:        s.Change,
		Holding:       s.Holding,
	}
}

// reasonText maps ledger rejection errors to the human-readable reason
// strings of the trade response.
func reasonText(err error, op string) string {
	var approvalErr *domain.ApprovalError
	switch {
	case errors.Is(err, domain.ErrUnknownSymbol):
		return "Wrong stock code."
	case errors.Is(err, domain.ErrInvalidSize):
		return "Wrong " + op + " size."
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "Insufficient balance."
	case errors.Is(err, domain.ErrInsufficientHolding):
		return "Insufficient stock holding."
	case errors.Is(err, domain.ErrNotApproved):
		return "Transaction not approved."
	case errors.Is(err, domain.ErrApprovalTimeout):
		return "Approval resulted in timeout."
	case errors.Is(err, domain.ErrCircuitOpen):
		return "Approval service unavailable."
	case errors.As(err, &approvalErr):
		return "Error during approval. " + approvalErr.Detail
	default:
		return err.Error()
	}
}
