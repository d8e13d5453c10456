package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-auction/internal/auction"
	"ms-auction/internal/auction/ledger"
	"ms-auction/internal/auction/state"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/utils"
)

// Handler exposes the bidding engine over HTTP. Identity arrives on
// X-User-ID / X-User-Role headers; authenticating them is the gateway's job.
type Handler struct {
	Engine *auction.Engine
	State  *state.Store
	Ledger *ledger.Store
	Logger *logger.Logger
}

// Routes mounts the auction endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/v1/auctions/{auctionID}/bids", h.PlaceBid)
	r.Post("/api/v1/auctions/{auctionID}/buy-now", h.BuyNow)
	r.Post("/api/v1/auctions/status", h.BatchStatus)
	r.Get("/api/v1/auctions/{auctionID}/bids", h.BidHistory)
	r.Get("/api/v1/auctions/{auctionID}", h.GetAuction)
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid auction id")
		return
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusForbidden, "unauthorized", "missing X-User-ID header")
		return
	}

	var req models.PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}

	receipt, err := h.Engine.PlaceBid(r.Context(), auction.PlaceBidCommand{
		AuctionID: auctionID,
		UserID:    userID,
		Role:      r.Header.Get("X-User-Role"),
		Amount:    req.Amount,
		MaxProxy:  req.ProxyMax,
	})
	if err != nil {
		writeBidError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, utils.SuccessResponse("bid accepted", receipt))
}

func (h *Handler) BuyNow(w http.ResponseWriter, r *http.Request) {
	auctionID, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid auction id")
		return
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusForbidden, "unauthorized", "missing X-User-ID header")
		return
	}

	result, err := h.Engine.BuyNow(r.Context(), auction.BuyNowCommand{
		AuctionID: auctionID,
		UserID:    userID,
		Role:      r.Header.Get("X-User-Role"),
	})
	if err != nil {
		writeBidError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("auction purchased", result))
}

func (h *Handler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	var req models.BatchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if len(req.AuctionIDs) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "auction_ids must not be empty")
		return
	}

	statuses, err := h.Engine.BatchStatus(r.Context(), req.AuctionIDs)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("batch status failed: %v", err))
		writeError(w, http.StatusInternalServerError, "storage_error", "could not load auction status")
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("auction status", statuses))
}

func (h *Handler) BidHistory(w http.ResponseWriter, r *http.Request) {
	auctionID, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid auction id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	bids, err := h.Ledger.History(r.Context(), auctionID, limit, offset)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("bid history failed for auction %d: %v", auctionID, err))
		writeError(w, http.StatusInternalServerError, "storage_error", "could not load bid history")
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("bid history", bids))
}

func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := parseAuctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid auction id")
		return
	}

	a, err := h.State.Get(r.Context(), h.State.DB(), auctionID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invalid_auction", "auction not found")
			return
		}
		h.Logger.Error("API", fmt.Sprintf("get auction %d failed: %v", auctionID, err))
		writeError(w, http.StatusInternalServerError, "storage_error", "could not load auction")
		return
	}

	// The reserve amount stays private; callers only learn whether it is met.
	detail := struct {
		*models.Auction
		ReserveMet bool `json:"reserve_met"`
	}{Auction: a, ReserveMet: a.ReserveMet()}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("auction", detail))
}

// RequestLogger logs each request through the engine logger.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.LogAPI(r.Method, r.URL.Path, "done", time.Since(start).String())
		})
	}
}

func parseAuctionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "auctionID"), 10, 64)
}

// writeBidError maps the engine's error taxonomy to HTTP statuses. Validation
// results are deterministic; only storage errors invite a retry.
func writeBidError(w http.ResponseWriter, err error) {
	code := auction.ErrorCode(err)

	status := http.StatusInternalServerError
	switch code {
	case "invalid_auction":
		status = http.StatusNotFound
	case "auction_not_live", "already_highest_bidder", "buy_now_unavailable":
		status = http.StatusConflict
	case "auction_ended":
		status = http.StatusGone
	case "unauthorized", "seller_cannot_bid":
		status = http.StatusForbidden
	case "bid_too_low", "bid_exceeds_limit":
		status = http.StatusUnprocessableEntity
	}

	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, utils.ErrorResponse(code, message))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
