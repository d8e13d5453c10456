package models

import "github.com/shopspring/decimal"

// PlaceBidRequest is the inbound bid submission payload.
type PlaceBidRequest struct {
	Amount   decimal.Decimal     `json:"amount"`
	ProxyMax decimal.NullDecimal `json:"proxy_max,omitempty"`
}

// BidReceipt is returned to the caller on an accepted bid. Amount is the
// effective current price after proxy resolution, which may exceed the
// submitted amount.
type BidReceipt struct {
	AuctionID int64           `json:"auction_id"`
	BidID     string          `json:"bid_id"`
	Amount    decimal.Decimal `json:"amount"`
	Leader    string          `json:"current_highest_bidder"`
	// ReserveMet is false while a configured reserve price is still unmet.
	ReserveMet bool `json:"reserve_met"`
}

// BuyNowResult is returned when the instant-purchase path succeeds.
type BuyNowResult struct {
	AuctionID  int64           `json:"auction_id"`
	Amount     decimal.Decimal `json:"amount"`
	PaymentURL string          `json:"payment_url,omitempty"`
}

// BatchStatusRequest asks for the live snapshot of several auctions at once.
type BatchStatusRequest struct {
	AuctionIDs []int64 `json:"auction_ids"`
}

// Bidder identifies the current leader in status responses.
type Bidder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AuctionStatus is the per-auction entry of the batch status response,
// consumed by the polling UI. Read path only; values may be slightly stale.
type AuctionStatus struct {
	AuctionID     int64           `json:"auction_id"`
	CurrentBid    decimal.Decimal `json:"current_bid"`
	CurrentBidder *Bidder         `json:"current_bidder,omitempty"`
	BidCount      int             `json:"bid_count"`
	UniqueBidders int             `json:"unique_bidders"`
	SecondsLeft   int64           `json:"seconds_left"`
	HasEnded      bool            `json:"has_ended"`
	FormattedBid  string          `json:"formatted_bid"`
}
