package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

var ErrNegativePrice = errors.New("pricing: price must be non-negative")

// Price is a stay total that may not have been observed yet.
// The zero value is Unknown.
type Price struct {
	amount float64
	known  bool
}

func Unknown() Price { return Price{} }

// Known wraps an observed amount. Use NewPrice for untrusted input.
func Known(amount float64) Price { return Price{amount: amount, known: true} }

func NewPrice(amount float64) (Price, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Price{}, ErrNegativePrice
	}
	return Known(amount), nil
}

func (p Price) Value() (float64, bool) { return p.amount, p.known }
func (p Price) IsKnown() bool          { return p.known }

// Float returns the amount or nil when unknown; used by storage mappers.
func (p Price) Float() *float64 {
	if !p.known {
		return nil
	}
	v := p.amount
	return &v
}

// FromFloat is the inverse of Float.
func FromFloat(v *float64) Price {
	if v == nil {
		return Unknown()
	}
	return Known(*v)
}

func (p Price) String() string {
	if !p.known {
		return "unknown"
	}
	return strconv.FormatFloat(p.amount, 'f', -1, 64)
}

func (p Price) MarshalJSON() ([]byte, error) {
	if !p.known {
		return []byte("null"), nil
	}
	return json.Marshal(p.amount)
}

func (p *Price) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = Unknown()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewPrice(v)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PerNight spreads a stay total over its nights after taking the cleaning fee out,
// rounded to cents.
func PerNight(total Price, cleaningFee float64, nights int) Price {
	amount, ok := total.Value()
	if !ok || nights < 1 {
		return Unknown()
	}
	return Known(round2((amount - cleaningFee) / float64(nights)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
