package order

import (
	"errors"
	"fmt"
	"supervisor/pkg/types"
	"sync"
)

var (
	ErrNoPriceField    = errors.New("order has neither price nor stop price")
	ErrClOrdIDAssigned = errors.New("client order id already assigned")
	ErrOrderIDMissing  = errors.New("neither order id nor client order id is set")
)

// Callback is invoked by the supervisor's dispatcher when the venue reports a terminal status.
// @dev: callbacks must not block for long; they run one at a time on the dispatch goroutine.
type Callback func(o *Order)

// Order is a desired (or live, when built from a venue snapshot) order.
// Symbol, type, side, quantity and flags are set at construction and treated as immutable;
// the movable fields (price, stop price, order ids) are guarded by mu.
type Order struct {
	Symbol     string
	Type       types.OrderType
	Side       types.OrderSide
	Qty        int64 // 0 means "no quantity" (close orders only)
	Hidden     bool
	Close      bool
	ReduceOnly bool
	Passive    bool

	mu      sync.RWMutex
	price   float64 // 0 means unset
	stopPx  float64 // 0 means unset
	orderId string
	clOrdId string

	onFill   Callback
	onReject Callback
	onCancel Callback

	trailing Trailer
}

// Trailer is the part of a trailing tracker the order and its owner need to see.
type Trailer interface {
	OnPriceTick(price float64)
	Exit()
}

type Option func(*Order)

func WithPrice(price float64) Option   { return func(o *Order) { o.price = price } }
func WithStopPx(stopPx float64) Option { return func(o *Order) { o.stopPx = stopPx } }
func WithHidden() Option               { return func(o *Order) { o.Hidden = true } }
func WithClose() Option                { return func(o *Order) { o.Close = true } }
func WithReduceOnly() Option           { return func(o *Order) { o.ReduceOnly = true } }
func WithPassive() Option              { return func(o *Order) { o.Passive = true } }
func WithClOrdID(id string) Option     { return func(o *Order) { o.clOrdId = id } }
func WithOrderID(id string) Option     { return func(o *Order) { o.orderId = id } }
func OnFill(cb Callback) Option        { return func(o *Order) { o.onFill = cb } }
func OnReject(cb Callback) Option      { return func(o *Order) { o.onReject = cb } }
func OnCancel(cb Callback) Option      { return func(o *Order) { o.onCancel = cb } }

func New(symbol string, orderType types.OrderType, side types.OrderSide, qty int64, opts ...Option) *Order {
	o := &Order{
		Symbol: symbol,
		Type:   orderType,
		Side:   side,
		Qty:    qty,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewLimit is a shorthand for a limit order at price.
func NewLimit(symbol string, side types.OrderSide, qty int64, price float64, opts ...Option) *Order {
	return New(symbol, types.OrderLimit, side, qty, append([]Option{WithPrice(price)}, opts...)...)
}

// NewStop is a shorthand for a stop order triggered at stopPx.
func NewStop(symbol string, side types.OrderSide, qty int64, stopPx float64, opts ...Option) *Order {
	return New(symbol, types.OrderStop, side, qty, append([]Option{WithStopPx(stopPx)}, opts...)...)
}

// IsValid validates the order parameters for common errors, to keep 4xx responses off the API.
func (o *Order) IsValid() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.Symbol == "" {
		return false
	}
	if o.Side != types.OrderSideBuy && o.Side != types.OrderSideSell {
		return false
	}
	// only close orders may go without quantity
	if o.Qty < 0 || (o.Qty == 0 && !o.Close) {
		return false
	}
	switch o.Type {
	case types.OrderLimit:
		return o.price > 0 && o.stopPx == 0
	case types.OrderStop:
		return o.stopPx > 0 && o.price == 0
	default:
		return false
	}
}

func (o *Order) Price() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price
}

func (o *Order) StopPx() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stopPx
}

// Px returns whichever of price and stop price is set.
func (o *Order) Px() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.price != 0 {
		return o.price
	}
	return o.stopPx
}

// Move reassigns the populated price field (price first, then stop price).
func (o *Order) Move(to float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.price != 0:
		o.price = to
	case o.stopPx != 0:
		o.stopPx = to
	default:
		return ErrNoPriceField
	}
	return nil
}

func (o *Order) OrderID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.orderId
}

func (o *Order) SetOrderID(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orderId = id
}

func (o *Order) ClOrdID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.clOrdId
}

// SetClOrdID assigns the client order id; it can be set only once.
func (o *Order) SetClOrdID(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.clOrdId != "" && o.clOrdId != id {
		return fmt.Errorf("%w: %s", ErrClOrdIDAssigned, o.clOrdId)
	}
	o.clOrdId = id
	return nil
}

func (o *Order) IsTrailing() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.trailing != nil
}

func (o *Order) Trailing() Trailer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.trailing
}

func (o *Order) SetTrailing(t Trailer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trailing = t
}

func (o *Order) FillCallback() Callback   { return o.onFill }
func (o *Order) RejectCallback() Callback { return o.onReject }
func (o *Order) CancelCallback() Callback { return o.onCancel }

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s %d by %v", o.Symbol, o.Type, o.Side, o.Qty, o.Px())
}
