package proxy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ms-auction/internal/config"
	"ms-auction/internal/models"
)

// ErrBidTooLow is returned when the incoming amount does not clear the
// minimum acceptable bid.
var ErrBidTooLow = errors.New("bid amount below minimum acceptable bid")

// AuctionView is the slice of auction state the resolver needs. All amounts
// are exact decimals; the resolver performs no float arithmetic.
type AuctionView struct {
	StartPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	MinIncrement decimal.Decimal
	ReservePrice decimal.NullDecimal
	// FirstBid relaxes the increment rule: the opening bid only needs to
	// reach the start price.
	FirstBid bool
}

// Incoming is the bid under resolution.
type Incoming struct {
	UserID   string
	Amount   decimal.Decimal
	MaxProxy decimal.NullDecimal
}

// Step is one ledger row the engine must append, in order. The first step is
// always the incoming bid itself; every later step is an automatic
// counter-bid and carries IsProxy.
type Step struct {
	UserID   string
	Amount   decimal.Decimal
	MaxProxy decimal.NullDecimal
	IsProxy  bool
}

// Outcome is the result of resolving one submission against the outstanding
// proxy set.
type Outcome struct {
	Steps      []Step
	FinalPrice decimal.Decimal
	Leader     string
	ReserveMet bool
}

// contender is one side of a proxy duel. A manual bid is a contender whose
// ceiling equals its visible amount.
type contender struct {
	userID     string
	max        decimal.Decimal
	registered time.Time
	hasCeiling bool
	isIncoming bool
}

// Resolve applies English-auction proxy semantics: the incoming bid either
// wins outright or triggers automatic counter-bidding from the outstanding
// proxies, strongest ceiling first, until no remaining proxy can beat the
// standing price.
//
// On equal amounts the auction state's current_leader is authoritative; the
// ledger's created_at tie-break only orders display. A standing proxy beats a
// manual bid that exactly matches its ceiling; two proxies with identical
// ceilings resolve per the configured tie-break policy.
func Resolve(view AuctionView, in Incoming, outstanding []models.OutstandingProxy, tie config.ProxyTieBreak) (*Outcome, error) {
	minAccept := view.CurrentPrice.Add(view.MinIncrement)
	if view.FirstBid {
		minAccept = view.StartPrice
	}
	if in.Amount.LessThan(minAccept) {
		return nil, fmt.Errorf("%w: minimum acceptable bid is %s", ErrBidTooLow, minAccept.StringFixed(2))
	}

	steps := []Step{{
		UserID:   in.UserID,
		Amount:   in.Amount,
		MaxProxy: in.MaxProxy,
		IsProxy:  false,
	}}

	price := in.Amount
	champion := contender{
		userID:     in.UserID,
		max:        in.Amount,
		hasCeiling: false,
		isIncoming: true,
	}
	if in.MaxProxy.Valid {
		champion.max = in.MaxProxy.Decimal
		champion.hasCeiling = true
	}

	for _, c := range sortByStrength(outstanding, tie) {
		if c.MaxProxyAmount.LessThan(price) {
			continue
		}
		chal := contender{
			userID:     c.UserID,
			max:        c.MaxProxyAmount,
			registered: c.RegisteredAt,
			hasCeiling: true,
		}

		switch {
		case chal.max.GreaterThan(champion.max):
			// Challenger overtakes. The champion defends up to its own
			// ceiling first, then the challenger clears it by one increment,
			// capped at the challenger's ceiling.
			if champion.hasCeiling && champion.max.GreaterThan(price) {
				price = champion.max
				steps = append(steps, proxyStep(champion, price))
			}
			price = minDecimal(chal.max, price.Add(view.MinIncrement))
			steps = append(steps, proxyStep(chal, price))
			champion = chal

		case chal.max.LessThan(champion.max):
			// Champion holds. The challenger is pushed to its ceiling, the
			// champion counters one increment above it, capped at its own.
			if chal.max.GreaterThan(price) {
				price = chal.max
				steps = append(steps, proxyStep(chal, price))
			}
			counter := minDecimal(champion.max, chal.max.Add(view.MinIncrement))
			if counter.GreaterThan(price) {
				price = counter
				steps = append(steps, proxyStep(champion, price))
			}

		default:
			// Equal ceilings.
			if tieFavorsChallenger(tie, champion, chal) {
				price = chal.max
				steps = append(steps, proxyStep(chal, price))
				champion = chal
			} else if champion.hasCeiling && champion.max.GreaterThan(price) {
				price = champion.max
				steps = append(steps, proxyStep(champion, price))
			}
		}
	}

	reserveMet := true
	if view.ReservePrice.Valid {
		reserveMet = price.GreaterThanOrEqual(view.ReservePrice.Decimal)
	}

	return &Outcome{
		Steps:      steps,
		FinalPrice: price,
		Leader:     champion.userID,
		ReserveMet: reserveMet,
	}, nil
}

// proxyStep builds an automatic counter-bid row. The row carries the
// contender's ceiling so the outstanding proxy set stays derivable from each
// user's newest ledger row.
func proxyStep(c contender, amount decimal.Decimal) Step {
	step := Step{
		UserID:  c.userID,
		Amount:  amount,
		IsProxy: true,
	}
	if c.hasCeiling {
		step.MaxProxy = decimal.NewNullDecimal(c.max)
	}
	return step
}

// sortByStrength orders the outstanding proxies strongest ceiling first.
// Equal ceilings order per the tie-break policy so the favored proxy is
// processed, and therefore counter-bids, first.
func sortByStrength(outstanding []models.OutstandingProxy, tie config.ProxyTieBreak) []models.OutstandingProxy {
	sorted := append([]models.OutstandingProxy(nil), outstanding...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].MaxProxyAmount.Equal(sorted[j].MaxProxyAmount) {
			return sorted[i].MaxProxyAmount.GreaterThan(sorted[j].MaxProxyAmount)
		}
		if tie == config.ProxyTieLatest {
			return sorted[i].RegisteredAt.After(sorted[j].RegisteredAt)
		}
		return sorted[i].RegisteredAt.Before(sorted[j].RegisteredAt)
	})
	return sorted
}

// tieFavorsChallenger decides an equal-ceiling standoff. A standing proxy
// always beats a matched manual bid; proxy-versus-proxy follows the policy,
// with the incoming bid counting as the latest registration.
func tieFavorsChallenger(tie config.ProxyTieBreak, champion, chal contender) bool {
	if !champion.hasCeiling {
		return true
	}
	if champion.isIncoming {
		return tie != config.ProxyTieLatest
	}
	if tie == config.ProxyTieLatest {
		return chal.registered.After(champion.registered)
	}
	return chal.registered.Before(champion.registered)
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
