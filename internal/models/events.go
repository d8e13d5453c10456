package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidEvent is published on bid_placed and bid_outbid. For outbid events
// UserID names the displaced leader, not the incoming bidder.
type BidEvent struct {
	AuctionID int64           `json:"auction_id"`
	BidID     string          `json:"bid_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Leader    string          `json:"leader"`
	IsProxy   bool            `json:"is_proxy"`
	At        time.Time       `json:"at"`
}

// AuctionEvent is published on auction_ended and auction_sold.
type AuctionEvent struct {
	AuctionID   int64           `json:"auction_id"`
	WinnerID    string          `json:"winner_id,omitempty"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Currency    string          `json:"currency"`
	ReserveMet  bool            `json:"reserve_met"`
	BuyNow      bool            `json:"buy_now"`
	At          time.Time       `json:"at"`
}
