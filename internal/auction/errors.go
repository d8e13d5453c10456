package auction

import "errors"

// Bid validation and persistence errors. All are returned as values so the
// HTTP layer can map them to user-facing codes; none are deterministic
// candidates for retry except ErrStorage.
var (
	ErrInvalidAuction       = errors.New("auction does not exist or is not an auction listing")
	ErrAuctionNotLive       = errors.New("auction is not live")
	ErrAuctionEnded         = errors.New("auction has ended")
	ErrUnauthorized         = errors.New("user is not allowed to bid")
	ErrSellerCannotBid      = errors.New("seller cannot bid on own auction")
	ErrAlreadyHighestBidder = errors.New("user is already the highest bidder")
	ErrBidTooLow            = errors.New("bid amount too low")
	ErrBidExceedsLimit      = errors.New("bid amount exceeds the configured limit")
	ErrBuyNowUnavailable    = errors.New("buy-now is not available for this auction")
	ErrStorage              = errors.New("storage failure")
)

// ErrorCode maps a bid error to its wire code. Unknown errors map to
// "internal_error".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAuction):
		return "invalid_auction"
	case errors.Is(err, ErrAuctionNotLive):
		return "auction_not_live"
	case errors.Is(err, ErrAuctionEnded):
		return "auction_ended"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrSellerCannotBid):
		return "seller_cannot_bid"
	case errors.Is(err, ErrAlreadyHighestBidder):
		return "already_highest_bidder"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrBidExceedsLimit):
		return "bid_exceeds_limit"
	case errors.Is(err, ErrBuyNowUnavailable):
		return "buy_now_unavailable"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "internal_error"
	}
}
