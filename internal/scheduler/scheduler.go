package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ms-auction/internal/auction"
	"ms-auction/internal/auction/state"
	"ms-auction/internal/clock"
	"ms-auction/internal/config"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
)

// EventPublisher is the scheduler's slice of the notification collaborator.
type EventPublisher interface {
	PublishAuctionEnded(event models.AuctionEvent) error
	PublishAuctionSold(event models.AuctionEvent) error
}

// SweepGuard leases the sweep so replicas don't double-settle. Nil-able:
// single-instance deployments run unguarded.
type SweepGuard interface {
	TryAcquire(ctx context.Context, holder string) (bool, error)
	Release(ctx context.Context, holder string) error
}

// StatusInvalidator drops cached status snapshots after a transition.
type StatusInvalidator interface {
	Invalidate(ctx context.Context, auctionID int64)
}

// Scheduler is the periodic lifecycle sweep: upcoming auctions go live,
// overdue live auctions end and settle. Each per-auction transition takes the
// same lock as bid placement so "last bid accepted" and "auction just ended"
// cannot race.
type Scheduler struct {
	state   *state.Store
	locks   *auction.LockTable
	events  EventPublisher
	settler auction.Settler
	guard   SweepGuard
	cache   StatusInvalidator
	clock   clock.Clock
	cfg     config.SchedulerConfig
	log     *logger.Logger
}

func New(stateStore *state.Store, locks *auction.LockTable, events EventPublisher, settler auction.Settler, guard SweepGuard, cache StatusInvalidator, clk clock.Clock, cfg config.SchedulerConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		state:   stateStore,
		locks:   locks,
		events:  events,
		settler: settler,
		guard:   guard,
		cache:   cache,
		clock:   clk,
		cfg:     cfg,
		log:     log,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.log.LogSweep(fmt.Sprintf("lifecycle scheduler running, interval %s", s.cfg.SweepInterval))

	for {
		select {
		case <-ctx.Done():
			s.log.LogSweep("lifecycle scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Error("SWEEP", fmt.Sprintf("sweep failed: %v", err))
			}
		}
	}
}

// Sweep runs one idempotent batch pass. Failures for one auction are logged
// and never block the rest of the batch; re-running against already-ended
// auctions is a no-op.
func (s *Scheduler) Sweep(ctx context.Context) error {
	if s.guard != nil {
		holder := uuid.New().String()
		ok, err := s.guard.TryAcquire(ctx, holder)
		if err != nil {
			return fmt.Errorf("acquire sweep lease: %w", err)
		}
		if !ok {
			s.log.Debug("SWEEP", "another replica holds the sweep lease, skipping")
			return nil
		}
		defer func() {
			if err := s.guard.Release(ctx, holder); err != nil {
				s.log.Warn("SWEEP", fmt.Sprintf("failed to release sweep lease: %v", err))
			}
		}()
	}

	now := s.clock.Now()
	s.startDue(ctx, now)
	s.endDue(ctx, now)
	return nil
}

func (s *Scheduler) startDue(ctx context.Context, now time.Time) {
	due, err := s.state.DueToStart(ctx, now)
	if err != nil {
		s.log.Error("SWEEP", fmt.Sprintf("query auctions due to start: %v", err))
		return
	}

	for i := range due {
		a := &due[i]
		release := s.locks.Acquire(a.ID)
		moved, err := s.state.Transition(ctx, s.state.DB(), a.ID, models.StatusUpcoming, models.StatusLive)
		release()

		if err != nil {
			s.log.Error("SWEEP", fmt.Sprintf("failed to open auction %d: %v", a.ID, err))
			continue
		}
		if moved {
			s.log.LogAuction("OPENED", a.ID, "auction is now live")
			if s.cache != nil {
				s.cache.Invalidate(ctx, a.ID)
			}
		}
	}
}

func (s *Scheduler) endDue(ctx context.Context, now time.Time) {
	due, err := s.state.DueToEnd(ctx, now)
	if err != nil {
		s.log.Error("SWEEP", fmt.Sprintf("query auctions due to end: %v", err))
		return
	}

	for i := range due {
		if err := s.endOne(ctx, due[i].ID, now); err != nil {
			s.log.Error("SWEEP", fmt.Sprintf("failed to end auction %d: %v", due[i].ID, err))
		}
	}
}

// endOne closes a single auction. State is re-read under the lock: a late bid
// accepted after the due query may have extended end_at, in which case the
// auction stays live.
func (s *Scheduler) endOne(ctx context.Context, auctionID int64, now time.Time) error {
	release := s.locks.Acquire(auctionID)

	a, err := s.state.Get(ctx, s.state.DB(), auctionID)
	if err != nil {
		release()
		return err
	}
	if a.Status != models.StatusLive || now.Before(a.EndAt) {
		release()
		return nil
	}

	sold := a.CurrentLeader != "" && a.ReserveMet()
	target := models.StatusEnded
	if sold {
		target = models.StatusSold
	}

	moved, err := s.state.Transition(ctx, s.state.DB(), a.ID, models.StatusLive, target)
	release()
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	s.log.LogAuction("CLOSED", a.ID, fmt.Sprintf("final price %s, status %s", a.CurrentPrice.StringFixed(2), target))
	if s.cache != nil {
		s.cache.Invalidate(ctx, a.ID)
	}

	event := models.AuctionEvent{
		AuctionID:   a.ID,
		WinnerID:    a.CurrentLeader,
		FinalAmount: a.CurrentPrice,
		Currency:    a.Currency,
		ReserveMet:  a.ReserveMet(),
		At:          now,
	}
	if !sold {
		event.WinnerID = ""
	}

	if s.events != nil {
		if err := s.events.PublishAuctionEnded(event); err != nil {
			s.log.Error("KAFKA", fmt.Sprintf("auction_ended publish failed for auction %d: %v", a.ID, err))
		}
		if sold {
			if err := s.events.PublishAuctionSold(event); err != nil {
				s.log.Error("KAFKA", fmt.Sprintf("auction_sold publish failed for auction %d: %v", a.ID, err))
			}
		}
	}

	if sold && s.settler != nil {
		s.settleOne(ctx, a, a.CurrentLeader, a.CurrentPrice)
	}

	return nil
}

// settleOne invokes the settlement collaborator once, no retries. On failure
// the auction stays sold with settlement pending for manual reconciliation.
func (s *Scheduler) settleOne(ctx context.Context, a *models.Auction, winnerID string, amount decimal.Decimal) {
	if _, err := s.settler.Settle(ctx, a.ID, winnerID, amount, a.Currency); err != nil {
		s.log.Error("SETTLEMENT", fmt.Sprintf("settlement failed for auction %d: %v", a.ID, err))
		if markErr := s.state.SetSettlementPending(ctx, a.ID, true); markErr != nil {
			s.log.Error("DATABASE", fmt.Sprintf("failed to flag settlement pending for auction %d: %v", a.ID, markErr))
		}
	}
}
