package policies

import (
	"context"
	"errors"

	"pricewatch/internal/domain/pricing"
)

// ErrFetchFailed wraps every way a single price lookup can fail: transport,
// timeout, non-2xx status or an undecodable payload.
var ErrFetchFailed = errors.New("oracle: price fetch failed")

// PriceOracle returns the lowest stay total listed for a fully dated search URL.
// An Unknown price with a nil error means the oracle answered but found nothing.
type PriceOracle interface {
	LowestPrice(ctx context.Context, listingURL string) (pricing.Price, error)
}
