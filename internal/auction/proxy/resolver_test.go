package proxy_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-auction/internal/auction/proxy"
	"ms-auction/internal/config"
	"ms-auction/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestResolveRejectsBidBelowMinimum(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("20.00"),
		MinIncrement: dec("1.00"),
	}

	_, err := proxy.Resolve(view, proxy.Incoming{UserID: "u1", Amount: dec("20.50")}, nil, config.ProxyTieEarliest)
	assert.ErrorIs(t, err, proxy.ErrBidTooLow)

	// Exactly current price is also too low.
	_, err = proxy.Resolve(view, proxy.Incoming{UserID: "u1", Amount: dec("20.00")}, nil, config.ProxyTieEarliest)
	assert.ErrorIs(t, err, proxy.ErrBidTooLow)
}

func TestResolveFirstBidOnlyNeedsStartPrice(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("10.00"),
		MinIncrement: dec("1.00"),
		FirstBid:     true,
	}

	outcome, err := proxy.Resolve(view, proxy.Incoming{UserID: "u1", Amount: dec("10.00")}, nil, config.ProxyTieEarliest)
	require.NoError(t, err)
	assert.True(t, outcome.FinalPrice.Equal(dec("10.00")))
	assert.Equal(t, "u1", outcome.Leader)
	assert.Len(t, outcome.Steps, 1)

	_, err = proxy.Resolve(view, proxy.Incoming{UserID: "u1", Amount: dec("9.99")}, nil, config.ProxyTieEarliest)
	assert.ErrorIs(t, err, proxy.ErrBidTooLow)
}

func TestResolveOutrightWin(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("11.00"),
		MinIncrement: dec("1.00"),
	}

	outcome, err := proxy.Resolve(view, proxy.Incoming{UserID: "u2", Amount: dec("15.00")}, nil, config.ProxyTieEarliest)
	require.NoError(t, err)
	assert.True(t, outcome.FinalPrice.Equal(dec("15.00")))
	assert.Equal(t, "u2", outcome.Leader)
	require.Len(t, outcome.Steps, 1)
	assert.False(t, outcome.Steps[0].IsProxy)
}

func TestResolveCeilingStaysPrivateOnOutrightWin(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("11.00"),
		MinIncrement: dec("1.00"),
	}

	incoming := proxy.Incoming{UserID: "u2", Amount: dec("15.00"), MaxProxy: nullDec("80.00")}
	outcome, err := proxy.Resolve(view, incoming, nil, config.ProxyTieEarliest)
	require.NoError(t, err)

	// The visible price is the bid amount, never the private ceiling.
	assert.True(t, outcome.FinalPrice.Equal(dec("15.00")))
	assert.Equal(t, "u2", outcome.Leader)
}

func TestResolveLeadingProxyCountersManualBid(t *testing.T) {
	// User A leads at 20 with a standing ceiling of 100; B bids 30 manually.
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("20.00"),
		MinIncrement: dec("5.00"),
	}
	outstanding := []models.OutstandingProxy{
		{UserID: "A", MaxProxyAmount: dec("100.00"), RegisteredAt: baseTime},
	}

	outcome, err := proxy.Resolve(view, proxy.Incoming{UserID: "B", Amount: dec("30.00")}, outstanding, config.ProxyTieEarliest)
	require.NoError(t, err)

	assert.Equal(t, "A", outcome.Leader, "leader must never become B")
	assert.True(t, outcome.FinalPrice.Equal(dec("35.00")), "counter-bid is amount + increment")
	require.Len(t, outcome.Steps, 2)
	assert.False(t, outcome.Steps[0].IsProxy)
	assert.True(t, outcome.Steps[1].IsProxy)
	assert.Equal(t, "A", outcome.Steps[1].UserID)
	// A's counter row keeps the ceiling so the proxy stays outstanding.
	require.True(t, outcome.Steps[1].MaxProxy.Valid)
	assert.True(t, outcome.Steps[1].MaxProxy.Decimal.Equal(dec("100.00")))
}

func TestResolveCounterIsCappedAtCeiling(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("20.00"),
		MinIncrement: dec("5.00"),
	}
	outstanding := []models.OutstandingProxy{
		{UserID: "A", MaxProxyAmount: dec("32.00"), RegisteredAt: baseTime},
	}

	outcome, err := proxy.Resolve(view, proxy.Incoming{UserID: "B", Amount: dec("30.00")}, outstanding, config.ProxyTieEarliest)
	require.NoError(t, err)

	assert.Equal(t, "A", outcome.Leader)
	assert.True(t, outcome.FinalPrice.Equal(dec("32.00")), "counter never exceeds the ceiling")
}

func TestResolveStandingProxyWinsExactMatch(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("20.00"),
		MinIncrement: dec("5.00"),
	}
	outstanding := []models.OutstandingProxy{
		{UserID: "A", MaxProxyAmount: dec("30.00"), RegisteredAt: baseTime},
	}

	outcome, err := proxy.Resolve(view, proxy.Incoming{UserID: "B", Amount: dec("30.00")}, outstanding, config.ProxyTieEarliest)
	require.NoError(t, err)

	assert.Equal(t, "A", outcome.Leader, "a standing proxy beats a matched manual bid")
	assert.True(t, outcome.FinalPrice.Equal(dec("30.00")))
}

func TestResolveProxyDuelWithIncomingCeiling(t *testing.T) {
	// A leads with ceiling 40; B arrives at 25 with ceiling 60.
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("20.00"),
		MinIncrement: dec("5.00"),
	}
	outstanding := []models.OutstandingProxy{
		{UserID: "A", MaxProxyAmount: dec("40.00"), RegisteredAt: baseTime},
	}

	incoming := proxy.Incoming{UserID: "B", Amount: dec("25.00"), MaxProxy: nullDec("60.00")}
	outcome, err := proxy.Resolve(view, incoming, outstanding, config.ProxyTieEarliest)
	require.NoError(t, err)

	assert.Equal(t, "B", outcome.Leader)
	assert.True(t, outcome.FinalPrice.Equal(dec("45.00")), "B clears A's exhausted ceiling by one increment")
	require.Len(t, outcome.Steps, 3)
	assert.Equal(t, "B", outcome.Steps[0].UserID)
	assert.Equal(t, "A", outcome.Steps[1].UserID)
	assert.True(t, outcome.Steps[1].Amount.Equal(dec("40.00")))
	assert.Equal(t, "B", outcome.Steps[2].UserID)
	assert.True(t, outcome.Steps[2].Amount.Equal(dec("45.00")))
}

func TestResolveEqualCeilingTieBreak(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("20.00"),
		MinIncrement: dec("5.00"),
	}
	outstanding := []models.OutstandingProxy{
		{UserID: "early", MaxProxyAmount: dec("50.00"), RegisteredAt: baseTime},
		{UserID: "late", MaxProxyAmount: dec("50.00"), RegisteredAt: baseTime.Add(time.Minute)},
	}
	incoming := proxy.Incoming{UserID: "B", Amount: dec("25.00")}

	earliest, err := proxy.Resolve(view, incoming, outstanding, config.ProxyTieEarliest)
	require.NoError(t, err)
	assert.Equal(t, "early", earliest.Leader)
	assert.True(t, earliest.FinalPrice.Equal(dec("50.00")), "tied ceilings drive the price to the ceiling")

	latest, err := proxy.Resolve(view, incoming, outstanding, config.ProxyTieLatest)
	require.NoError(t, err)
	assert.Equal(t, "late", latest.Leader)
	assert.True(t, latest.FinalPrice.Equal(dec("50.00")))
}

func TestResolveMultipleOutstandingProxies(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("20.00"),
		MinIncrement: dec("5.00"),
	}
	outstanding := []models.OutstandingProxy{
		{UserID: "weak", MaxProxyAmount: dec("28.00"), RegisteredAt: baseTime},
		{UserID: "strong", MaxProxyAmount: dec("90.00"), RegisteredAt: baseTime.Add(time.Minute)},
	}

	outcome, err := proxy.Resolve(view, proxy.Incoming{UserID: "B", Amount: dec("25.00")}, outstanding, config.ProxyTieEarliest)
	require.NoError(t, err)

	assert.Equal(t, "strong", outcome.Leader)
	// strong beats B at 30, then sees off weak's 28 without moving further.
	assert.True(t, outcome.FinalPrice.Equal(dec("30.00")), "got %s", outcome.FinalPrice)
}

func TestResolveReserveFlag(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("11.00"),
		MinIncrement: dec("1.00"),
		ReservePrice: nullDec("100.00"),
	}

	below, err := proxy.Resolve(view, proxy.Incoming{UserID: "u1", Amount: dec("20.00")}, nil, config.ProxyTieEarliest)
	require.NoError(t, err)
	assert.False(t, below.ReserveMet, "bidding continues but the reserve is flagged unmet")

	met, err := proxy.Resolve(view, proxy.Incoming{UserID: "u1", Amount: dec("100.00")}, nil, config.ProxyTieEarliest)
	require.NoError(t, err)
	assert.True(t, met.ReserveMet)
}

func TestResolvePriceNeverDecreasesAcrossSteps(t *testing.T) {
	view := proxy.AuctionView{
		StartPrice:   dec("10.00"),
		CurrentPrice: dec("20.00"),
		MinIncrement: dec("2.00"),
	}
	outstanding := []models.OutstandingProxy{
		{UserID: "p1", MaxProxyAmount: dec("26.00"), RegisteredAt: baseTime},
		{UserID: "p2", MaxProxyAmount: dec("33.00"), RegisteredAt: baseTime.Add(time.Second)},
		{UserID: "p3", MaxProxyAmount: dec("41.00"), RegisteredAt: baseTime.Add(2 * time.Second)},
	}

	incoming := proxy.Incoming{UserID: "B", Amount: dec("22.00"), MaxProxy: nullDec("37.00")}
	outcome, err := proxy.Resolve(view, incoming, outstanding, config.ProxyTieEarliest)
	require.NoError(t, err)

	prev := decimal.Zero
	for _, step := range outcome.Steps {
		assert.True(t, step.Amount.GreaterThanOrEqual(prev), "step amounts must not decrease")
		prev = step.Amount
	}
	assert.Equal(t, "p3", outcome.Leader, "the strongest ceiling wins")
	assert.True(t, outcome.FinalPrice.Equal(dec("39.00")), "p3 clears B's ceiling by one increment, got %s", outcome.FinalPrice)
}
