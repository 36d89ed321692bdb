package types

import (
	"time"
)

// PriceTickEvent is one last-trade price observation for an instrument
type PriceTickEvent struct {
	Event        string
	Time         time.Time
	Symbol       string
	Price        float64
	ReceivedTime time.Time
}
