package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Auction statuses. Terminal states are StatusEnded and StatusSold.
const (
	StatusDraft    = "draft"
	StatusUpcoming = "upcoming"
	StatusLive     = "live"
	StatusEnded    = "ended"
	StatusSold     = "sold"
)

// Visibility values for an auction listing.
const (
	VisibilityPublic    = "public"
	VisibilityGroupOnly = "group_only"
)

type Auction struct {
	bun.BaseModel `bun:"table:auctions"`

	ID           int64               `bun:"id,pk,autoincrement" json:"id"`
	SellerID     string              `bun:"seller_id,notnull" json:"seller_id"`
	Title        string              `bun:"title,notnull" json:"title"`
	Currency     string              `bun:"currency,notnull" json:"currency"`
	StartPrice   decimal.Decimal     `bun:"start_price,notnull" json:"start_price"`
	MinIncrement decimal.Decimal     `bun:"min_increment,notnull" json:"min_increment"`
	ReservePrice decimal.NullDecimal `bun:"reserve_price" json:"-"`
	BuyNowPrice  decimal.NullDecimal `bun:"buy_now_price" json:"buy_now_price,omitempty"`

	Status          string          `bun:"status,notnull" json:"status"`
	Visibility      string          `bun:"visibility,notnull,default:'public'" json:"visibility"`
	CurrentPrice    decimal.Decimal `bun:"current_price,notnull" json:"current_price"`
	CurrentLeader   string          `bun:"current_leader,nullzero" json:"current_leader,omitempty"`
	BidCount        int             `bun:"bid_count,notnull,default:0" json:"bid_count"`
	ProxyEnabled    bool            `bun:"proxy_enabled,notnull,default:true" json:"proxy_enabled"`
	BoughtViaBuyNow bool            `bun:"bought_via_buy_now,notnull,default:false" json:"bought_via_buy_now"`
	// SettlementPending is set when the settlement collaborator failed and the
	// sale needs manual reconciliation.
	SettlementPending bool `bun:"settlement_pending,notnull,default:false" json:"settlement_pending"`

	StartAt   time.Time `bun:"start_at,notnull" json:"start_at"`
	EndAt     time.Time `bun:"end_at,notnull" json:"end_at"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// IsLive reports whether the auction accepts bids at the given instant.
func (a *Auction) IsLive(now time.Time) bool {
	return a.Status == StatusLive && !now.Before(a.StartAt) && now.Before(a.EndAt)
}

// HasEnded reports whether the auction is in a terminal state.
func (a *Auction) HasEnded() bool {
	return a.Status == StatusEnded || a.Status == StatusSold
}

// ReserveMet reports whether the current price satisfies the reserve.
// An absent reserve is always met.
func (a *Auction) ReserveMet() bool {
	if !a.ReservePrice.Valid {
		return true
	}
	return a.CurrentPrice.GreaterThanOrEqual(a.ReservePrice.Decimal)
}

// HasBids reports whether any bid has been accepted yet. Before the first bid
// current_price equals start_price and the first-bid increment exception
// applies.
func (a *Auction) HasBids() bool {
	return a.BidCount > 0
}

// BuyNowAvailable reports whether the instant-purchase path is open.
func (a *Auction) BuyNowAvailable(now time.Time) bool {
	if !a.BuyNowPrice.Valid || a.BoughtViaBuyNow {
		return false
	}
	if !a.IsLive(now) {
		return false
	}
	return a.CurrentPrice.LessThan(a.BuyNowPrice.Decimal)
}
