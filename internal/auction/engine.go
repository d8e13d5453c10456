package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-auction/internal/auction/ledger"
	"ms-auction/internal/auction/proxy"
	"ms-auction/internal/auction/state"
	"ms-auction/internal/clock"
	"ms-auction/internal/config"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/utils"
)

// EventPublisher is the outbound integration point for the external
// notification collaborator. Publishing is best-effort: failures are logged
// and never roll back an accepted bid.
type EventPublisher interface {
	PublishBidPlaced(event models.BidEvent) error
	PublishBidOutbid(event models.BidEvent) error
	PublishAuctionSold(event models.AuctionEvent) error
}

// StatusCache invalidates the cached batch-status snapshot after a write.
type StatusCache interface {
	Invalidate(ctx context.Context, auctionID int64)
	GetStatus(ctx context.Context, auctionID int64) (*models.AuctionStatus, bool)
	SetStatus(ctx context.Context, status *models.AuctionStatus)
}

// Settler is the external settlement/payment collaborator. The engine never
// retries a failed settlement; it flags the auction for reconciliation.
type Settler interface {
	Settle(ctx context.Context, auctionID int64, winnerID string, amount decimal.Decimal, currency string) (string, error)
}

// Engine orchestrates bid submission: validation, per-auction serialization,
// ledger append, state update and event emission.
type Engine struct {
	db     *bun.DB
	ledger *ledger.Store
	state  *state.Store
	events EventPublisher
	cache  StatusCache
	settle Settler
	locks  *LockTable
	clock  clock.Clock
	cfg    config.EngineConfig
	log    *logger.Logger
}

func NewEngine(db *bun.DB, ledgerStore *ledger.Store, stateStore *state.Store, events EventPublisher, cache StatusCache, settler Settler, locks *LockTable, clk clock.Clock, cfg config.EngineConfig, log *logger.Logger) *Engine {
	return &Engine{
		db:     db,
		ledger: ledgerStore,
		state:  stateStore,
		events: events,
		cache:  cache,
		settle: settler,
		locks:  locks,
		clock:  clk,
		cfg:    cfg,
		log:    log,
	}
}

// Locks exposes the per-auction lock table so the lifecycle scheduler
// serializes its transitions against bid placement.
func (e *Engine) Locks() *LockTable {
	return e.locks
}

type PlaceBidCommand struct {
	AuctionID int64
	UserID    string
	Role      string
	Amount    decimal.Decimal
	MaxProxy  decimal.NullDecimal
}

type BuyNowCommand struct {
	AuctionID int64
	UserID    string
	Role      string
}

// PlaceBid validates and applies one bid. The whole
// validate-resolve-append-update sequence runs inside the per-auction lock
// and a single transaction; events go out only after the lock is released.
func (e *Engine) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*models.BidReceipt, error) {
	release := e.locks.Acquire(cmd.AuctionID)
	receipt, events, err := e.placeBidLocked(ctx, cmd)
	release()
	if err != nil {
		return nil, err
	}

	e.dispatchBidEvents(events)
	if e.cache != nil {
		e.cache.Invalidate(ctx, cmd.AuctionID)
	}

	return receipt, nil
}

// bidEvents collects what to publish once the lock is gone.
type bidEvents struct {
	placed *models.BidEvent
	outbid *models.BidEvent
}

func (e *Engine) placeBidLocked(ctx context.Context, cmd PlaceBidCommand) (*models.BidReceipt, *bidEvents, error) {
	var receipt *models.BidReceipt
	var events *bidEvents

	err := e.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		a, err := e.state.Get(ctx, tx, cmd.AuctionID)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("%w: auction %d", ErrInvalidAuction, cmd.AuctionID)
			}
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}

		now := e.clock.Now()
		if err := e.validateBid(a, cmd, now); err != nil {
			return err
		}

		incoming := proxy.Incoming{
			UserID:   cmd.UserID,
			Amount:   cmd.Amount,
			MaxProxy: cmd.MaxProxy,
		}
		if !a.ProxyEnabled {
			incoming.MaxProxy = decimal.NullDecimal{}
		}

		var outstanding []models.OutstandingProxy
		if a.ProxyEnabled {
			outstanding, err = e.ledger.OutstandingProxies(ctx, tx, a.ID, a.CurrentPrice, cmd.UserID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}
		}

		view := proxy.AuctionView{
			StartPrice:   a.StartPrice,
			CurrentPrice: a.CurrentPrice,
			MinIncrement: a.MinIncrement,
			ReservePrice: a.ReservePrice,
			FirstBid:     !a.HasBids(),
		}

		outcome, err := proxy.Resolve(view, incoming, outstanding, e.cfg.ProxyTieBreak)
		if err != nil {
			if errors.Is(err, proxy.ErrBidTooLow) {
				return fmt.Errorf("%w: %v", ErrBidTooLow, err)
			}
			return err
		}

		// Ledger rows keep the resolution order; timestamps are staggered so
		// created_at ordering matches step ordering.
		var firstBidID string
		for i, step := range outcome.Steps {
			bid := &models.Bid{
				AuctionID:      a.ID,
				UserID:         step.UserID,
				Amount:         step.Amount,
				MaxProxyAmount: step.MaxProxy,
				IsProxy:        step.IsProxy,
				CreatedAt:      now.Add(time.Duration(i) * time.Microsecond),
			}
			if err := e.ledger.Append(ctx, tx, bid); err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}
			if i == 0 {
				firstBidID = bid.ID
			}
		}

		displaced := a.CurrentLeader

		a.CurrentPrice = outcome.FinalPrice
		a.CurrentLeader = outcome.Leader
		a.BidCount += len(outcome.Steps)
		e.applyAntiSniping(a, now)

		if err := e.state.ApplyBidResult(ctx, tx, a); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}

		receipt = &models.BidReceipt{
			AuctionID:  a.ID,
			BidID:      firstBidID,
			Amount:     outcome.FinalPrice,
			Leader:     outcome.Leader,
			ReserveMet: outcome.ReserveMet,
		}

		events = &bidEvents{
			placed: &models.BidEvent{
				AuctionID: a.ID,
				BidID:     firstBidID,
				UserID:    cmd.UserID,
				Amount:    outcome.FinalPrice,
				Leader:    outcome.Leader,
				At:        now,
			},
		}
		if displaced != "" && displaced != outcome.Leader {
			events.outbid = &models.BidEvent{
				AuctionID: a.ID,
				BidID:     firstBidID,
				UserID:    displaced,
				Amount:    outcome.FinalPrice,
				Leader:    outcome.Leader,
				At:        now,
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.log.LogBid("PLACED", cmd.AuctionID, fmt.Sprintf("user %s at %s, leader %s", cmd.UserID, receipt.Amount.StringFixed(2), receipt.Leader))
	return receipt, events, nil
}

// validateBid runs the fail-fast validation chain. Each failure
// is a distinct error kind the API maps to a wire code.
func (e *Engine) validateBid(a *models.Auction, cmd PlaceBidCommand, now time.Time) error {
	if a.HasEnded() || !now.Before(a.EndAt) {
		return fmt.Errorf("%w: auction %d", ErrAuctionEnded, a.ID)
	}
	if a.Status != models.StatusLive || now.Before(a.StartAt) {
		return fmt.Errorf("%w: auction %d is %s", ErrAuctionNotLive, a.ID, a.Status)
	}
	if !e.roleMayBid(cmd.Role) {
		return fmt.Errorf("%w: role %q", ErrUnauthorized, cmd.Role)
	}
	if cmd.UserID == a.SellerID {
		return fmt.Errorf("%w: auction %d", ErrSellerCannotBid, a.ID)
	}
	if e.cfg.PreventDuplicateHighest && a.CurrentLeader == cmd.UserID {
		return fmt.Errorf("%w: auction %d", ErrAlreadyHighestBidder, a.ID)
	}
	if e.cfg.MaxBidLimit.IsPositive() && cmd.Amount.GreaterThan(e.cfg.MaxBidLimit) {
		return fmt.Errorf("%w: limit is %s", ErrBidExceedsLimit, e.cfg.MaxBidLimit.StringFixed(2))
	}
	if cmd.MaxProxy.Valid && cmd.MaxProxy.Decimal.LessThan(cmd.Amount) {
		return fmt.Errorf("%w: proxy ceiling %s below bid amount %s", ErrBidTooLow, cmd.MaxProxy.Decimal.StringFixed(2), cmd.Amount.StringFixed(2))
	}
	return nil
}

func (e *Engine) roleMayBid(role string) bool {
	if len(e.cfg.AllowedBidderRoles) == 0 {
		return true
	}
	for _, allowed := range e.cfg.AllowedBidderRoles {
		if role == allowed {
			return true
		}
	}
	return false
}

// applyAntiSniping extends end_at when the bid lands inside the trailing
// window. The deadline only ever moves forward; repeated late bids extend
// again from the already-extended end_at.
func (e *Engine) applyAntiSniping(a *models.Auction, now time.Time) {
	if e.cfg.AntiSnipingWindow <= 0 || e.cfg.AntiSnipingExtension <= 0 {
		return
	}
	if a.EndAt.Sub(now) > e.cfg.AntiSnipingWindow {
		return
	}
	extended := a.EndAt.Add(e.cfg.AntiSnipingExtension)
	if extended.After(a.EndAt) {
		a.EndAt = extended
		e.log.LogAuction("EXTENDED", a.ID, fmt.Sprintf("end time moved to %s", extended.Format(time.RFC3339)))
	}
}

func (e *Engine) dispatchBidEvents(events *bidEvents) {
	if e.events == nil || events == nil {
		return
	}
	if events.placed != nil {
		if err := e.events.PublishBidPlaced(*events.placed); err != nil {
			e.log.Error("KAFKA", fmt.Sprintf("bid_placed publish failed for auction %d: %v", events.placed.AuctionID, err))
		}
	}
	if events.outbid != nil {
		if err := e.events.PublishBidOutbid(*events.outbid); err != nil {
			e.log.Error("KAFKA", fmt.Sprintf("bid_outbid publish failed for auction %d: %v", events.outbid.AuctionID, err))
		}
	}
}

// BuyNow exercises the instant-purchase path: the auction ends immediately at
// the buy-now price, mutually exclusive with concurrent bids via the same
// per-auction lock.
func (e *Engine) BuyNow(ctx context.Context, cmd BuyNowCommand) (*models.BuyNowResult, error) {
	if !e.cfg.BuyNowEnabled {
		return nil, fmt.Errorf("%w: disabled", ErrBuyNowUnavailable)
	}

	release := e.locks.Acquire(cmd.AuctionID)
	result, event, err := e.buyNowLocked(ctx, cmd)
	release()
	if err != nil {
		return nil, err
	}

	if e.events != nil {
		if pubErr := e.events.PublishAuctionSold(*event); pubErr != nil {
			e.log.Error("KAFKA", fmt.Sprintf("auction_sold publish failed for auction %d: %v", cmd.AuctionID, pubErr))
		}
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, cmd.AuctionID)
	}

	// Settlement happens outside the lock, best-effort. A failure leaves the
	// auction sold with settlement pending for manual reconciliation.
	if e.settle != nil {
		url, settleErr := e.settle.Settle(ctx, result.AuctionID, cmd.UserID, result.Amount, event.Currency)
		if settleErr != nil {
			e.log.Error("SETTLEMENT", fmt.Sprintf("settlement failed for auction %d: %v", result.AuctionID, settleErr))
			if markErr := e.state.SetSettlementPending(ctx, result.AuctionID, true); markErr != nil {
				e.log.Error("DATABASE", fmt.Sprintf("failed to flag settlement pending for auction %d: %v", result.AuctionID, markErr))
			}
		} else {
			result.PaymentURL = url
		}
	}

	return result, nil
}

func (e *Engine) buyNowLocked(ctx context.Context, cmd BuyNowCommand) (*models.BuyNowResult, *models.AuctionEvent, error) {
	var result *models.BuyNowResult
	var event *models.AuctionEvent

	err := e.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		a, err := e.state.Get(ctx, tx, cmd.AuctionID)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("%w: auction %d", ErrInvalidAuction, cmd.AuctionID)
			}
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}

		now := e.clock.Now()
		if a.HasEnded() || !now.Before(a.EndAt) {
			return fmt.Errorf("%w: auction %d", ErrAuctionEnded, a.ID)
		}
		if a.Status != models.StatusLive || now.Before(a.StartAt) {
			return fmt.Errorf("%w: auction %d is %s", ErrAuctionNotLive, a.ID, a.Status)
		}
		if !e.roleMayBid(cmd.Role) {
			return fmt.Errorf("%w: role %q", ErrUnauthorized, cmd.Role)
		}
		if cmd.UserID == a.SellerID {
			return fmt.Errorf("%w: auction %d", ErrSellerCannotBid, a.ID)
		}
		if !a.BuyNowAvailable(now) {
			return fmt.Errorf("%w: auction %d", ErrBuyNowUnavailable, a.ID)
		}

		price := a.BuyNowPrice.Decimal

		bid := &models.Bid{
			AuctionID: a.ID,
			UserID:    cmd.UserID,
			Amount:    price,
			CreatedAt: now,
		}
		if err := e.ledger.Append(ctx, tx, bid); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}

		a.CurrentPrice = price
		a.CurrentLeader = cmd.UserID
		a.BidCount++
		a.Status = models.StatusSold
		a.BoughtViaBuyNow = true

		if err := e.state.FinalizeBuyNow(ctx, tx, a); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}

		result = &models.BuyNowResult{
			AuctionID: a.ID,
			Amount:    price,
		}
		event = &models.AuctionEvent{
			AuctionID:   a.ID,
			WinnerID:    cmd.UserID,
			FinalAmount: price,
			Currency:    a.Currency,
			ReserveMet:  true,
			BuyNow:      true,
			At:          now,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.log.LogAuction("BUY_NOW", cmd.AuctionID, fmt.Sprintf("sold to %s at %s", cmd.UserID, result.Amount.StringFixed(2)))
	return result, event, nil
}

// BatchStatus serves the polling UI. Cached snapshots may be a little stale;
// the write path never waits on this.
func (e *Engine) BatchStatus(ctx context.Context, auctionIDs []int64) ([]models.AuctionStatus, error) {
	statuses := make([]models.AuctionStatus, 0, len(auctionIDs))
	var missing []int64

	for _, id := range auctionIDs {
		if e.cache != nil {
			if cached, ok := e.cache.GetStatus(ctx, id); ok {
				statuses = append(statuses, *cached)
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return statuses, nil
	}

	auctions, err := e.state.ListByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	now := e.clock.Now()
	for i := range auctions {
		a := &auctions[i]
		status, err := e.buildStatus(ctx, a, now)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.SetStatus(ctx, status)
		}
		statuses = append(statuses, *status)
	}

	return statuses, nil
}

func (e *Engine) buildStatus(ctx context.Context, a *models.Auction, now time.Time) (*models.AuctionStatus, error) {
	unique, err := e.ledger.UniqueBidders(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	secondsLeft := int64(0)
	hasEnded := a.HasEnded() || !now.Before(a.EndAt)
	if !hasEnded {
		secondsLeft = int64(a.EndAt.Sub(now).Seconds())
	}

	status := &models.AuctionStatus{
		AuctionID:     a.ID,
		CurrentBid:    a.CurrentPrice,
		BidCount:      a.BidCount,
		UniqueBidders: unique,
		SecondsLeft:   secondsLeft,
		HasEnded:      hasEnded,
		FormattedBid:  utils.FormatAmount(a.CurrentPrice, a.Currency),
	}
	if a.CurrentLeader != "" {
		// Display names resolve in the UI layer; the engine only knows ids.
		status.CurrentBidder = &models.Bidder{ID: a.CurrentLeader, Name: a.CurrentLeader}
	}
	return status, nil
}
