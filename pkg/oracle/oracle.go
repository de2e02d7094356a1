// Package oracle defines the price reading consumed by the vault and the
// validation applied to every reading before it is used for a conversion.
package oracle

import (
	"errors"
	"math/big"
	"time"
)

// MaxPriceAge is the oldest a reading may be before it is rejected.
const MaxPriceAge = time.Hour

var (
	ErrInvalidPrice = errors.New("invalid price")
	ErrStalePrice   = errors.New("stale price")
)

// Reading is a single quote from a price source. Readings are consumed
// once per conversion and never cached across calls.
type Reading struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Source supplies the current price of one asset. ReadPrice may fail,
// the caller aborts the enclosing operation when it does.
type Source interface {
	ReadPrice() (Reading, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (Reading, error)

func (f SourceFunc) ReadPrice() (Reading, error) { return f() }

// Validate rejects non-positive and stale readings. There is no retry,
// staleness surfaces synchronously to the caller.
func Validate(r Reading, now time.Time) error {
	if r.Price == nil || r.Price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if now.Sub(r.UpdatedAt) > MaxPriceAge {
		return ErrStalePrice
	}
	return nil
}

// Static is a fixed-price source, used for tests and for pinned quotes.
type Static struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
	Err       error
}

func (s *Static) ReadPrice() (Reading, error) {
	if s.Err != nil {
		return Reading{}, s.Err
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return Reading{Price: s.Price, Decimals: s.Decimals, UpdatedAt: updated}, nil
}
