package trailing

import (
	"context"
	"fmt"
	"math"
	"supervisor/pkg/order"
	"supervisor/pkg/stream"
	"supervisor/pkg/types"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Source delivers last-trade price ticks for a symbol from its own connection.
type Source interface {
	Subscribe(ctx context.Context, symbol string, onEvent func(stream.Stream, types.PriceTickEvent)) (stream.Stream, error)
}

// Tracker keeps a running extremum of the market price and drags the attached
// order's stop price behind it by offset percent.
// Sell orders follow the maximum, buy orders follow the minimum, and nothing moves
// until the extremum has gone past the anchor price.
type Tracker struct {
	order    *order.Order
	offset   float64 // percent
	tickSize float64

	mu        sync.Mutex
	initial   float64
	minPrice  float64
	maxPrice  float64
	lastPrice float64
	tracking  bool
	exited    bool
	feed      stream.Stream

	logger *log.Entry
}

func New(o *order.Order, offset float64, tickSize float64, logger *log.Entry) (*Tracker, error) {
	if o == nil {
		return nil, fmt.Errorf("trailing order is nil")
	}
	if offset <= 0 || offset >= 100 {
		return nil, fmt.Errorf("trailing offset must be within (0, 100): %v", offset)
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Tracker{
		order:    o,
		offset:   offset,
		tickSize: tickSize,
		initial:  math.NaN(),
		minPrice: math.Inf(1),
		maxPrice: -1,
		logger: logger.WithFields(log.Fields{
			"component": "trailing",
			"side":      o.Side,
		}),
	}, nil
}

// StartTracking resets the extremums and starts following the price once it passes anchor.
func (t *Tracker) StartTracking(anchor float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxPrice = -1
	t.minPrice = math.Inf(1)
	t.initial = anchor
	t.tracking = true
	t.logger.Debugf("start trailing from %v with %v%% offset", anchor, t.offset)
}

// StopTracking pauses the tracker; the extremum history is kept.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracking = false
}

// OnPriceTick feeds one market price into the tracker. Ticks are ignored while not tracking.
func (t *Tracker) OnPriceTick(price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastPrice = price
	if !t.tracking {
		return
	}
	switch t.order.Side {
	case types.OrderSideSell:
		if price > t.maxPrice {
			t.setMax(price)
		}
	case types.OrderSideBuy:
		if price < t.minPrice {
			t.setMin(price)
		}
	}
}

// @dev: callers must hold t.mu
func (t *Tracker) setMax(price float64) {
	if price > t.initial {
		t.reposition(price)
	}
	t.maxPrice = price
}

// @dev: callers must hold t.mu
func (t *Tracker) setMin(price float64) {
	if price < t.initial {
		t.reposition(price)
	}
	t.minPrice = price
}

func (t *Tracker) reposition(extremum float64) {
	stopPx := t.NewStopPrice(extremum)
	if err := t.order.Move(stopPx); err != nil {
		t.logger.Errorf("fail to move trailing order to %v: %v", stopPx, err)
		return
	}
	t.logger.Debugf("extremum %v, trailing order moved to %v", extremum, stopPx)
}

// NewStopPrice is the stop price offset percent behind extremum, rounded to the tick size.
func (t *Tracker) NewStopPrice(extremum float64) float64 {
	var needed float64
	if t.order.Side == types.OrderSideSell {
		needed = extremum * (1 - t.offset/100)
	} else {
		needed = extremum * (1 + t.offset/100)
	}
	return ToNearest(needed, t.tickSize)
}

// Attach subscribes the tracker to a price source; the subscription lives until Exit.
// Cancelling ctx after Attach returns does not end it.
func (t *Tracker) Attach(ctx context.Context, src Source) error {
	feed, err := src.Subscribe(context.WithoutCancel(ctx), t.order.Symbol, func(_ stream.Stream, evt types.PriceTickEvent) {
		t.OnPriceTick(evt.Price)
	})
	if err != nil {
		return fmt.Errorf("fail to subscribe price feed for %s: %w", t.order.Symbol, err)
	}
	t.mu.Lock()
	if t.exited {
		t.mu.Unlock()
		feed.Close()
		return nil
	}
	t.feed = feed
	t.mu.Unlock()
	return nil
}

// Exit stops tracking for good and closes the attached price feed, if any.
func (t *Tracker) Exit() {
	t.mu.Lock()
	if t.exited {
		t.mu.Unlock()
		return
	}
	t.tracking = false
	t.exited = true
	feed := t.feed
	t.feed = nil
	t.mu.Unlock()

	// @dev: close outside the lock, the feed goroutine may be waiting on it inside OnPriceTick
	if feed != nil {
		feed.Close()
	}
	t.logger.Debug("trailing exited")
}

func (t *Tracker) Exited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited
}

func (t *Tracker) Tracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

func (t *Tracker) Min() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minPrice
}

func (t *Tracker) Max() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxPrice
}

func (t *Tracker) LastPrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastPrice
}
