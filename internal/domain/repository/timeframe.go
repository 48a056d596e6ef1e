package repository

import "time"

// Timeframe is a prediction horizon in minutes.
type Timeframe string

const (
	TF5  Timeframe = "5"
	TF15 Timeframe = "15"
	TF60 Timeframe = "60"
)

// AllTimeframes in ascending order.
var AllTimeframes = []Timeframe{TF5, TF15, TF60}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF5, TF15, TF60:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF5 }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Interval is the wait between a prediction and its resolution.
func (tf Timeframe) Interval() time.Duration {
	switch tf {
	case TF15:
		return 15 * time.Minute
	case TF60:
		return time.Hour
	default:
		return 5 * time.Minute
	}
}

// DBFile is the per-timeframe database filename.
func (tf Timeframe) DBFile() string {
	switch tf {
	case TF15:
		return "predictions_15min.db"
	case TF60:
		return "predictions_1h.db"
	default:
		return "predictions_5min.db"
	}
}

// Name is the short display name.
func (tf Timeframe) Name() string {
	switch tf {
	case TF15:
		return "15M"
	case TF60:
		return "1H"
	default:
		return "5M"
	}
}

func (tf Timeframe) Label() string {
	switch tf {
	case TF15:
		return "15-min cycles"
	case TF60:
		return "1-hour cycles"
	default:
		return "5-min cycles"
	}
}
