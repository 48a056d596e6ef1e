package models

import "time"

// Candle represents an OHLCV record for one kline interval.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// ChangePct is the open-to-close move of the candle in percent.
func (c Candle) ChangePct() float64 {
	if c.Open == 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open * 100
}

// Ticker24h holds rolling 24h statistics.
type Ticker24h struct {
	PriceChangePct   float64 `json:"price_change_pct"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Volume           float64 `json:"volume"`
	QuoteVolume      float64 `json:"quote_volume"`
	WeightedAvgPrice float64 `json:"weighted_avg_price"`
}

type Trend string

const (
	TrendStrongUp   Trend = "STRONG_UPTREND"
	TrendUp         Trend = "UPTREND"
	TrendStrongDown Trend = "STRONG_DOWNTREND"
	TrendDown       Trend = "DOWNTREND"
	TrendRanging    Trend = "RANGING"
)

// Snapshot is the derived market structure. The zero value is the sentinel
// returned when there is not enough history.
type Snapshot struct {
	Trend           Trend   `json:"trend"`
	CurrentPrice    float64 `json:"current_price"`
	MAShort         float64 `json:"ma_short"`
	MAMedium        float64 `json:"ma_medium"`
	MAFull          float64 `json:"ma_full"`
	VolatilityPct   float64 `json:"volatility_pct"`
	Momentum1hPct   float64 `json:"momentum_1h_pct"`
	Momentum4hPct   float64 `json:"momentum_4h_pct"`
	RecentHigh      float64 `json:"recent_high"`
	RecentLow       float64 `json:"recent_low"`
	DayHigh         float64 `json:"day_high"`
	DayLow          float64 `json:"day_low"`
	VolumeRatio     float64 `json:"volume_ratio"`
	PositionInRange float64 `json:"position_in_range_pct"`
}

func (s Snapshot) Empty() bool { return s.Trend == "" }

// MarketData is one fetch of everything the prediction prompt needs.
type MarketData struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Candles   []Candle  `json:"candles"`
	Stats     Ticker24h `json:"stats"`
	Snapshot  Snapshot  `json:"snapshot"`
	FetchedAt time.Time `json:"fetched_at"`
}
