package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-auction/internal/models"
)

// ErrNotFound is returned when an auction id does not exist.
var ErrNotFound = errors.New("auction not found")

// Store holds the per-auction mutable snapshot. current_price, current_leader
// and status are written only through the engine and the lifecycle scheduler;
// listing fields belong to the seller's CRUD layer and are not touched here.
type Store struct {
	db *bun.DB
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the store's handle, used by the engine to open transactions.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Create inserts a new listing. Exposed for seeding and tests; the listing UI
// owns this path in production.
func (s *Store) Create(ctx context.Context, a *models.Auction) error {
	if a.CurrentPrice.IsZero() {
		a.CurrentPrice = a.StartPrice
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(a).Exec(ctx); err != nil {
		return fmt.Errorf("create auction: %w", err)
	}
	return nil
}

// Get fetches one auction through idb, so the engine reads fresh state inside
// its serialized section.
func (s *Store) Get(ctx context.Context, idb bun.IDB, id int64) (*models.Auction, error) {
	var a models.Auction
	err := idb.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction %d: %w", id, err)
	}
	return &a, nil
}

// ApplyBidResult persists the engine-owned columns after an accepted bid.
// Column-limited so seller-owned listing fields are never clobbered.
func (s *Store) ApplyBidResult(ctx context.Context, idb bun.IDB, a *models.Auction) error {
	a.UpdatedAt = time.Now().UTC()
	_, err := idb.NewUpdate().
		Model(a).
		Column("current_price", "current_leader", "bid_count", "end_at", "updated_at").
		Where("id = ?", a.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("apply bid result for auction %d: %w", a.ID, err)
	}
	return nil
}

// Transition moves an auction from one status to another. Returns false when
// the auction was not in the expected status, which makes sweeps idempotent:
// a second run finds the guard already failed and does nothing.
func (s *Store) Transition(ctx context.Context, idb bun.IDB, id int64, from, to string) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("transition auction %d %s->%s: %w", id, from, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition auction %d %s->%s: %w", id, from, to, err)
	}
	return affected > 0, nil
}

// FinalizeBuyNow atomically records the instant purchase: price jumps to the
// buy-now amount, the buyer leads, and the auction leaves the live state.
func (s *Store) FinalizeBuyNow(ctx context.Context, idb bun.IDB, a *models.Auction) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := idb.NewUpdate().
		Model(a).
		Column("current_price", "current_leader", "bid_count", "status", "bought_via_buy_now", "updated_at").
		Where("id = ?", a.ID).
		Where("status = ?", models.StatusLive).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finalize buy-now for auction %d: %w", a.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize buy-now for auction %d: %w", a.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("finalize buy-now for auction %d: %w", a.ID, ErrNotFound)
	}
	return nil
}

// SetSettlementPending flags a sold auction whose settlement call failed, for
// manual reconciliation.
func (s *Store) SetSettlementPending(ctx context.Context, id int64, pending bool) error {
	_, err := s.db.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("settlement_pending = ?", pending).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set settlement pending for auction %d: %w", id, err)
	}
	return nil
}

// DueToStart lists upcoming auctions whose start time has passed.
func (s *Store) DueToStart(ctx context.Context, now time.Time) ([]models.Auction, error) {
	var auctions []models.Auction
	err := s.db.NewSelect().
		Model(&auctions).
		Where("status = ?", models.StatusUpcoming).
		Where("start_at <= ?", now).
		OrderExpr("start_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("auctions due to start: %w", err)
	}
	return auctions, nil
}

// DueToEnd lists live auctions whose (possibly extended) end time has passed.
func (s *Store) DueToEnd(ctx context.Context, now time.Time) ([]models.Auction, error) {
	var auctions []models.Auction
	err := s.db.NewSelect().
		Model(&auctions).
		Where("status = ?", models.StatusLive).
		Where("end_at <= ?", now).
		OrderExpr("end_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("auctions due to end: %w", err)
	}
	return auctions, nil
}

// ListByIDs fetches auctions for the batch status query.
func (s *Store) ListByIDs(ctx context.Context, ids []int64) ([]models.Auction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var auctions []models.Auction
	err := s.db.NewSelect().
		Model(&auctions).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return auctions, nil
}
