package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-auction/internal/models"
)

// Store is the append-only bid ledger. It exposes no update or delete
// operations: corrections are modeled as new rows.
type Store struct {
	db *bun.DB
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Append inserts one immutable bid row. It runs against idb so the engine can
// append inside the same transaction that updates auction state; pass the
// store's own handle via s.DB() outside a transaction.
func (s *Store) Append(ctx context.Context, idb bun.IDB, bid *models.Bid) error {
	if bid.MaxProxyAmount.Valid && bid.Amount.GreaterThan(bid.MaxProxyAmount.Decimal) {
		return fmt.Errorf("append bid: amount %s exceeds proxy ceiling %s", bid.Amount, bid.MaxProxyAmount.Decimal)
	}
	if bid.ID == "" {
		bid.ID = uuid.New().String()
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now().UTC()
	}

	if _, err := idb.NewInsert().Model(bid).Exec(ctx); err != nil {
		return fmt.Errorf("append bid for auction %d: %w", bid.AuctionID, err)
	}
	return nil
}

// DB returns the ledger's handle for callers appending outside a transaction.
func (s *Store) DB() bun.IDB {
	return s.db
}

// Highest returns the current highest bid: greatest amount, ties broken by
// earliest created_at (first bid to reach that amount wins). Returns nil when
// the auction has no bids.
func (s *Store) Highest(ctx context.Context, auctionID int64) (*models.Bid, error) {
	var bid models.Bid
	err := s.db.NewSelect().
		Model(&bid).
		Where("auction_id = ?", auctionID).
		OrderExpr("amount DESC").
		OrderExpr("created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("highest bid for auction %d: %w", auctionID, err)
	}
	return &bid, nil
}

// Count returns the number of ledger rows for the auction, proxy counter-bids
// included.
func (s *Store) Count(ctx context.Context, auctionID int64) (int, error) {
	count, err := s.db.NewSelect().
		Model((*models.Bid)(nil)).
		Where("auction_id = ?", auctionID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count bids for auction %d: %w", auctionID, err)
	}
	return count, nil
}

// UniqueBidders returns how many distinct users have bid on the auction.
func (s *Store) UniqueBidders(ctx context.Context, auctionID int64) (int, error) {
	var count int
	err := s.db.NewSelect().
		ColumnExpr("COUNT(DISTINCT user_id)").
		Table("bids").
		Where("auction_id = ?", auctionID).
		Scan(ctx, &count)
	if err != nil {
		return 0, fmt.Errorf("unique bidders for auction %d: %w", auctionID, err)
	}
	return count, nil
}

// OutstandingProxies returns one entry per user drawn from that user's highest
// bid row, keeping only ceilings strictly above currentPrice and skipping
// excludeUser. Entries come back strongest-first; equal ceilings are ordered
// by earliest registration.
//
// A user's rows are scanned oldest-first: amounts are non-decreasing over
// time, so the last row seen per user carries their current ceiling. The
// registration time sticks to the earliest row that set that ceiling.
func (s *Store) OutstandingProxies(ctx context.Context, idb bun.IDB, auctionID int64, currentPrice decimal.Decimal, excludeUser string) ([]models.OutstandingProxy, error) {
	var rows []models.Bid
	err := idb.NewSelect().
		Model(&rows).
		Where("auction_id = ?", auctionID).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("outstanding proxies for auction %d: %w", auctionID, err)
	}

	latest := make(map[string]*models.OutstandingProxy)
	for i := range rows {
		row := &rows[i]
		if row.UserID == excludeUser {
			continue
		}
		if !row.MaxProxyAmount.Valid {
			// The user's newest row carries no ceiling: no outstanding proxy.
			delete(latest, row.UserID)
			continue
		}
		entry, ok := latest[row.UserID]
		if ok && entry.MaxProxyAmount.Equal(row.MaxProxyAmount.Decimal) {
			// Same ceiling restated later keeps its original registration time.
			continue
		}
		latest[row.UserID] = &models.OutstandingProxy{
			UserID:         row.UserID,
			MaxProxyAmount: row.MaxProxyAmount.Decimal,
			RegisteredAt:   row.CreatedAt,
		}
	}

	proxies := make([]models.OutstandingProxy, 0, len(latest))
	for _, entry := range latest {
		if entry.MaxProxyAmount.GreaterThan(currentPrice) {
			proxies = append(proxies, *entry)
		}
	}

	sort.Slice(proxies, func(i, j int) bool {
		if !proxies[i].MaxProxyAmount.Equal(proxies[j].MaxProxyAmount) {
			return proxies[i].MaxProxyAmount.GreaterThan(proxies[j].MaxProxyAmount)
		}
		return proxies[i].RegisteredAt.Before(proxies[j].RegisteredAt)
	})

	return proxies, nil
}

// History returns ledger rows newest-first for display paging.
func (s *Store) History(ctx context.Context, auctionID int64, limit, offset int) ([]models.Bid, error) {
	if limit <= 0 {
		limit = 20
	}
	var bids []models.Bid
	err := s.db.NewSelect().
		Model(&bids).
		Where("auction_id = ?", auctionID).
		OrderExpr("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("bid history for auction %d: %w", auctionID, err)
	}
	return bids, nil
}
