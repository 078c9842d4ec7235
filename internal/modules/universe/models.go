// Package universe holds the securities the engine can allocate to, together
// with the latest price written by the external price feed.
package universe

import (
	"encoding/json"
	"time"
)

// Security represents a tradable security and its latest known price.
// CurrentPrice is nil until the feed has delivered a quote.
// UpdatedAt is a Unix timestamp, converted to RFC3339 only at the JSON boundary.
type Security struct {
	ID           int64    `json:"id"`
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	Sector       string   `json:"sector,omitempty"`
	CurrentPrice *float64 `json:"current_price"`
	UpdatedAt    *int64   `json:"-"`
}

// HasPrice reports whether the feed has delivered a price.
func (s Security) HasPrice() bool {
	return s.CurrentPrice != nil
}

// MarshalJSON customizes JSON serialization to convert the Unix timestamp to string
func (s Security) MarshalJSON() ([]byte, error) {
	type Alias Security
	aux := &struct {
		UpdatedAt string `json:"updated_at,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(&s),
	}

	if s.UpdatedAt != nil {
		aux.UpdatedAt = time.Unix(*s.UpdatedAt, 0).UTC().Format(time.RFC3339)
	}

	return json.Marshal(aux)
}
