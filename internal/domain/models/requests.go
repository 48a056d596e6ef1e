package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Requests for the ingestion and read endpoints.

type IngestPredictionRequest struct {
	CurrentPrice *float64       `json:"current_price" validate:"required,gt=0"`
	Direction    string         `json:"direction" validate:"required"`
	Target       *float64       `json:"target" validate:"required,gt=0"`
	Confidence   *int           `json:"confidence" validate:"required,gte=0,lte=100"`
	Reasoning    string         `json:"reasoning"`
	Timestamp    string         `json:"timestamp"`
	Source       string         `json:"source" default:"local_llm"`
	Timeframe    TimeframeParam `json:"timeframe" default:"5"`
}

type ResolveRequest struct {
	PredictionID *int64         `json:"prediction_id" validate:"required,gt=0"`
	ActualPrice  *float64       `json:"actual_price" validate:"required,gt=0"`
	Timeframe    TimeframeParam `json:"timeframe" default:"5"`
}

type StatsRequest struct {
	TF string `query:"tf" json:"tf" default:"5"`
}

// TimeframeParam accepts a timeframe sent either as a JSON string or number.
type TimeframeParam string

func (t *TimeframeParam) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = TimeframeParam(v)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*t = TimeframeParam(strconv.Itoa(int(f)))
	return nil
}
