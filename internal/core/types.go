package core

import "time"

// Quote represents the latest known price of an item
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
}

// IsValid checks if the quote has required fields
func (q Quote) IsValid() bool {
	return q.Symbol != "" && q.Price > 0
}

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol string    `json:"symbol,omitempty"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"` // on-market item counts are fractional after aggregation
}

// Closes extracts the closing prices of a bar sequence.
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Action represents a trading signal action
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Trend labels the medium-term regime of a bar relative to its MA60.
type Trend string

const (
	TrendStrongUp  Trend = "strong_uptrend"
	TrendChoppyUp  Trend = "choppy_uptrend"
	TrendHighRange Trend = "high_range"
	TrendDown      Trend = "downtrend"
)

// Bullish reports whether buy signals are eligible under the trend.
func (t Trend) Bullish() bool {
	return t == TrendStrongUp || t == TrendChoppyUp
}

// Signal represents a trading signal from a strategy
type Signal struct {
	ID          string         `json:"id,omitempty"`
	Symbol      string         `json:"symbol"`
	Action      Action         `json:"action"`
	Confidence  float64        `json:"confidence"`
	Price       float64        `json:"price"` // Price at signal generation
	Reason      string         `json:"reason"`
	Strategy    string         `json:"strategy"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}
