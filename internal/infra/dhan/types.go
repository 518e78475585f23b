package dhan

import "encoding/json"

// ltpRequest is the market-quote LTP request body. The instrument
// reference is passed through verbatim: one security id under its
// exchange segment key.
type ltpRequest map[string][]json.Number

// ltpResponse represents the Dhan market-quote LTP response
type ltpResponse struct {
	Status string                        `json:"status"`
	Data   map[string]map[string]ltpTick `json:"data"`
}

type ltpTick struct {
	LastPrice *float64 `json:"last_price"`
}

// subscribeRequest is the live feed subscription message.
type subscribeRequest struct {
	RequestCode     int              `json:"RequestCode"`
	InstrumentCount int              `json:"InstrumentCount"`
	InstrumentList  []feedInstrument `json:"InstrumentList"`
}

type feedInstrument struct {
	ExchangeSegment string `json:"ExchangeSegment"`
	SecurityID      string `json:"SecurityId"`
}

// feedTick represents a live feed ticker message
type feedTick struct {
	Type       string   `json:"type"`
	SecurityID string   `json:"security_id"`
	LastPrice  *float64 `json:"last_price"`
	Timestamp  int64    `json:"timestamp"`
}
