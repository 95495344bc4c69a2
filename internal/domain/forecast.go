package domain

import (
	"encoding/json"
	"time"
)

// DateLayout is the wire format for dates in forecast responses.
const DateLayout = "2006-01-02"

// HistoricalPoint is one entry of the trailing history in a forecast response.
// It serializes as {"price_date": "...", "<product_code>": price}.
type HistoricalPoint struct {
	ProductCode string
	Date        time.Time
	Price       float64
}

// MarshalJSON keys the price by product code.
func (h HistoricalPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"price_date":  h.Date.Format(DateLayout),
		h.ProductCode: h.Price,
	})
}

// Forecast is the serving response for a product.
type Forecast struct {
	Product            string            `json:"product"`
	DisplayName        string            `json:"display_name"`
	Historical         []HistoricalPoint `json:"historical"`
	PredictedNextMonth float64           `json:"predicted_next_month"`
	NextMonth          string            `json:"next_month"` // YYYY-MM-01
	Observations       int               `json:"observations"`
	ReducedConfidence  bool              `json:"reduced_confidence"`
}
