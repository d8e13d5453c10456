package settlement

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ms-auction/internal/logger"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
)

// StripeSettler is the external settlement collaborator. The engine and
// scheduler call it once per sold auction and never retry: a failure is
// logged and the auction stays flagged settlement-pending for manual
// reconciliation.
type StripeSettler struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeSettler(log *logger.Logger) (*StripeSettler, error) {
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(stripeKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeSettler{client: sc, log: log}, nil
}

// Settle creates a payment intent for the winning amount and returns a
// reference the checkout UI can use. Amount conversion to the smallest
// currency unit stays in exact decimal arithmetic.
func (s *StripeSettler) Settle(ctx context.Context, auctionID int64, winnerID string, amount decimal.Decimal, currency string) (string, error) {
	s.log.Info("SETTLEMENT", fmt.Sprintf("Settling auction %d for %s, amount %s %s", auctionID, winnerID, amount.StringFixed(2), currency))

	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: invalid settlement amount %s", ErrStripeAPIError, amount)
	}

	amountInCents := amount.Shift(2).IntPart()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"auction_id": strconv.FormatInt(auctionID, 10),
			"winner_id":  winnerID,
		},
	}
	params.Context = ctx

	intent, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Payment intent creation failed for auction %d: %v", auctionID, err))
		return "", fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	s.log.Info("SETTLEMENT", fmt.Sprintf("Payment intent %s created for auction %d", intent.ID, auctionID))
	return intent.ClientSecret, nil
}
