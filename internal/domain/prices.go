package domain

import "context"

// Quote is the latest known market data for one security, as supplied by the
// external price feed.
type Quote struct {
	SecurityID int64
	Symbol     string
	Price      float64
}

// PriceProvider resolves current quotes for a set of securities.
// Securities without a known price are absent from the returned map; the
// caller decides whether that is fatal.
type PriceProvider interface {
	GetQuotes(ctx context.Context, securityIDs []int64) (map[int64]Quote, error)
}
