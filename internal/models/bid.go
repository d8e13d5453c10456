package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Bid is one immutable row in the append-only bid ledger. Rows are never
// updated or deleted; corrections become new rows.
type Bid struct {
	bun.BaseModel `bun:"table:bids"`

	ID        string          `bun:"id,pk" json:"id"`
	AuctionID int64           `bun:"auction_id,notnull" json:"auction_id"`
	UserID    string          `bun:"user_id,notnull" json:"user_id"`
	Amount    decimal.Decimal `bun:"amount,notnull" json:"amount"`
	// MaxProxyAmount is the bidder's private ceiling. Never serialized to
	// other bidders.
	MaxProxyAmount decimal.NullDecimal `bun:"max_proxy_amount" json:"-"`
	IsProxy        bool                `bun:"is_proxy,notnull,default:false" json:"is_proxy"`
	CreatedAt      time.Time           `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// OutstandingProxy is one user's live automatic-bidding ceiling, drawn from
// that user's highest bid row.
type OutstandingProxy struct {
	UserID         string
	MaxProxyAmount decimal.Decimal
	// RegisteredAt orders proxies for the equal-ceiling tie-break.
	RegisteredAt time.Time
}
