// Package rates abstracts currency conversion for payouts. The marketplace's
// real rate lookup is an external collaborator; this package only defines the
// contract and a static table used as the default.
package rates

import (
	"context"
	"fmt"
)

// Converter converts an amount in minor units between currencies.
type Converter interface {
	Convert(ctx context.Context, amountCents int64, from, to string) (int64, error)
}

// Static converts using a fixed table of rates in parts-per-million, keyed by
// "FROM/TO". Same-currency conversions are always identity.
type Static struct {
	// RatePPM maps "USD/EUR" style pairs to the rate multiplied by 1e6.
	RatePPM map[string]int64
}

func NewStatic(ratePPM map[string]int64) *Static {
	return &Static{RatePPM: ratePPM}
}

func (s *Static) Convert(_ context.Context, amountCents int64, from, to string) (int64, error) {
	if from == to {
		return amountCents, nil
	}
	ppm, ok := s.RatePPM[from+"/"+to]
	if !ok {
		return 0, fmt.Errorf("rates: no rate for %s/%s", from, to)
	}
	return amountCents * ppm / 1_000_000, nil
}
