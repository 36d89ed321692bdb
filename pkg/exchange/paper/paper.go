// Package paper is an in-memory derivatives venue for dry runs and tests.
//
// It keeps resting limit and stop orders per instrument and fills them when the last price
// crosses them. Market orders move the position at once. The order book is synthetic: the
// Nth bid/ask level sits N ticks away from the last price.
//
//   - limit buy fills when last <= price, limit sell when last >= price
//   - stop buy triggers when last >= stopPx, stop sell when last <= stopPx
//   - a passive limit that would cross the book on arrival is canceled
//   - a stop already past the last price is rejected
//   - with a liquidation price set on a short position, buys above it are rejected
package paper

import (
	"context"
	"fmt"
	"net/http"
	"supervisor/pkg/exchange"
	"supervisor/pkg/order"
	"supervisor/pkg/types"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Instrument seeds one tradable symbol of the venue.
type Instrument struct {
	Symbol    string  `yaml:"symbol"`
	TickSize  float64 `yaml:"tickSize"`
	LastPrice float64 `yaml:"lastPrice"`
}

type book struct {
	tickSize     float64
	lastPrice    float64
	position     int64
	liquidation  float64
	orderIds     []string // placement order, for stable snapshots
	clOrdIndex   map[string]string
	restingCount int
}

type resting struct {
	order  *order.Order
	status types.OrderStatus
}

type Venue struct {
	mu     sync.Mutex
	books  map[string]*book
	orders map[string]*resting

	logger *log.Entry
}

var _ exchange.Gateway = (*Venue)(nil)

func New(logger *log.Entry, instruments ...Instrument) *Venue {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	v := &Venue{
		books:  make(map[string]*book),
		orders: make(map[string]*resting),
		logger: logger.WithField("exchange", types.ExchangePaper),
	}
	for _, inst := range instruments {
		v.books[inst.Symbol] = &book{
			tickSize:   inst.TickSize,
			lastPrice:  inst.LastPrice,
			clOrdIndex: make(map[string]string),
		}
	}
	return v
}

func (v *Venue) Name() types.ExchangeName { return types.ExchangePaper }

// ╔══════════════════╗
//      Simulation
// ╚══════════════════╝

// SetLastPrice records a trade at price and fills every resting order it crosses.
func (v *Venue) SetLastPrice(symbol string, price float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := v.bookLocked("trade", symbol)
	if err != nil {
		return err
	}
	b.lastPrice = price
	for _, id := range b.orderIds {
		r := v.orders[id]
		if r.status != types.OrderStatusNew {
			continue
		}
		if status, ok := crossed(r.order, price); ok {
			v.fillLocked(b, r, status)
		}
	}
	return nil
}

// SetLiquidationPrice makes the venue refuse buys above px while the position is short. Zero clears it.
func (v *Venue) SetLiquidationPrice(symbol string, px float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := v.bookLocked("liquidation", symbol)
	if err != nil {
		return err
	}
	b.liquidation = px
	return nil
}

// SetOrderStatus overrides the status of a known order, e.g. to simulate a venue-side cancel.
func (v *Venue) SetOrderStatus(orderId string, status types.OrderStatus) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, ok := v.orders[orderId]
	if !ok {
		return notFound("status", orderId)
	}
	r.status = status
	return nil
}

// crossed reports whether a trade at last fills o, and with which terminal status.
func crossed(o *order.Order, last float64) (types.OrderStatus, bool) {
	switch o.Type {
	case types.OrderLimit:
		if (o.Side == types.OrderSideBuy && last <= o.Price()) || (o.Side == types.OrderSideSell && last >= o.Price()) {
			return types.OrderStatusFilled, true
		}
	case types.OrderStop:
		if (o.Side == types.OrderSideBuy && last >= o.StopPx()) || (o.Side == types.OrderSideSell && last <= o.StopPx()) {
			return types.OrderStatusTriggered, true
		}
	}
	return "", false
}

// @dev: callers must hold v.mu
func (v *Venue) fillLocked(b *book, r *resting, status types.OrderStatus) {
	r.status = status
	b.restingCount--
	if r.order.Close && r.order.Qty == 0 {
		b.position = 0
	} else {
		b.position += r.order.Side.Sign() * r.order.Qty
	}
	v.logger.WithField("orderId", r.order.OrderID()).Debugf("%s %v at %v, position %d", status, r.order, b.lastPrice, b.position)
}

// ╔═════════════╗
//      Orders
// ╚═════════════╝

func (v *Venue) GetOpenOrders(ctx context.Context, symbol string) ([]*order.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := v.bookLocked("open orders", symbol)
	if err != nil {
		return nil, err
	}
	open := make([]*order.Order, 0, b.restingCount)
	for _, id := range b.orderIds {
		r := v.orders[id]
		if r.status == types.OrderStatusNew || r.status == types.OrderStatusPartialFilled {
			open = append(open, order.FromWire(r.order.ToWire()))
		}
	}
	return open, nil
}

func (v *Venue) GetOrderStatus(ctx context.Context, o *order.Order) (types.OrderStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, err := v.lookupLocked("status", o)
	if err != nil {
		return types.OrderStatusUnknown, nil
	}
	return r.status, nil
}

func (v *Venue) PlaceOrder(ctx context.Context, o *order.Order) error {
	return v.BulkPlaceOrders(ctx, []*order.Order{o})
}

// BulkPlaceOrders is all or nothing: the first refused order fails the whole batch.
func (v *Venue) BulkPlaceOrders(ctx context.Context, orders []*order.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, o := range orders {
		b, err := v.bookLocked("place", o.Symbol)
		if err != nil {
			return err
		}
		if err := v.checkLocked(b, o); err != nil {
			return err
		}
	}

	for _, o := range orders {
		b := v.books[o.Symbol]
		id := uuid.New().String()
		o.SetOrderID(id)
		r := &resting{order: order.FromWire(o.ToWire()), status: types.OrderStatusNew}
		v.orders[id] = r
		b.orderIds = append(b.orderIds, id)
		b.restingCount++
		if cl := o.ClOrdID(); cl != "" {
			b.clOrdIndex[cl] = id
		}

		if o.Passive && o.Type == types.OrderLimit && v.crossesBookLocked(b, o) {
			r.status = types.OrderStatusCanceled
			b.restingCount--
			v.logger.WithField("orderId", id).Debugf("passive order would take liquidity, canceled: %v", o)
			continue
		}
		// a taker limit crossing the last price fills on arrival, a maker waits for the next trade
		if status, ok := crossed(r.order, b.lastPrice); ok && o.Type == types.OrderLimit && !o.Passive {
			v.fillLocked(b, r, status)
		}
	}
	return nil
}

// checkLocked mirrors the venue's pre-trade checks.
// @dev: callers must hold v.mu
func (v *Venue) checkLocked(b *book, o *order.Order) error {
	if !o.IsValid() {
		return &exchange.GatewayError{Op: "place", StatusCode: http.StatusBadRequest, Message: "Invalid order", Order: o}
	}
	if o.Type == types.OrderStop {
		if (o.Side == types.OrderSideBuy && o.StopPx() <= b.lastPrice) || (o.Side == types.OrderSideSell && o.StopPx() >= b.lastPrice) {
			return &exchange.GatewayError{
				Op:         "place",
				StatusCode: http.StatusBadRequest,
				Message:    "Invalid stopPx for ordType",
				Order:      o,
			}
		}
	}
	if b.liquidation > 0 && b.position < 0 && o.Side == types.OrderSideBuy && o.Px() > b.liquidation {
		return &exchange.GatewayError{
			Op:         "place",
			StatusCode: http.StatusBadRequest,
			Message:    fmt.Sprintf("%s short position", exchange.LiquidationRejectMsg),
			Order:      o,
		}
	}
	return nil
}

// @dev: callers must hold v.mu
func (v *Venue) crossesBookLocked(b *book, o *order.Order) bool {
	if o.Side == types.OrderSideBuy {
		return o.Price() >= b.lastPrice+b.tickSize
	}
	return o.Price() <= b.lastPrice-b.tickSize
}

func (v *Venue) AmendOrder(ctx context.Context, live *order.Order, desired *order.Order) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, err := v.lookupLocked("amend", live)
	if err != nil {
		return err
	}
	if r.status != types.OrderStatusNew {
		return &exchange.GatewayError{Op: "amend", StatusCode: http.StatusBadRequest, Message: "Invalid ordStatus", Order: live}
	}
	b := v.books[r.order.Symbol]
	if price := desired.Price(); price != 0 && r.order.Price() != 0 {
		_ = r.order.Move(price)
	} else if stopPx := desired.StopPx(); stopPx != 0 && r.order.StopPx() != 0 {
		_ = r.order.Move(stopPx)
	}
	if status, ok := crossed(r.order, b.lastPrice); ok && r.order.Type == types.OrderLimit {
		v.fillLocked(b, r, status)
	}
	return nil
}

func (v *Venue) CancelOrder(ctx context.Context, o *order.Order) error {
	return v.BulkCancelOrders(ctx, []*order.Order{o})
}

func (v *Venue) BulkCancelOrders(ctx context.Context, orders []*order.Order) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	targets := make([]*resting, 0, len(orders))
	for _, o := range orders {
		r, err := v.lookupLocked("cancel", o)
		if err != nil {
			return err
		}
		targets = append(targets, r)
	}
	for _, r := range targets {
		if r.status != types.OrderStatusNew && r.status != types.OrderStatusPartialFilled {
			continue
		}
		r.status = types.OrderStatusCanceled
		v.books[r.order.Symbol].restingCount--
	}
	return nil
}

// PlaceMarketOrder fills at the last price at once.
func (v *Venue) PlaceMarketOrder(ctx context.Context, symbol string, qty int64) error {
	if qty == 0 {
		return &exchange.GatewayError{Op: "market", StatusCode: http.StatusBadRequest, Message: "Invalid orderQty"}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := v.bookLocked("market", symbol)
	if err != nil {
		return err
	}
	b.position += qty
	v.logger.Debugf("market order %d at %v, position %d", qty, b.lastPrice, b.position)
	return nil
}

// lookupLocked resolves o by client order id when it has one, else by order id.
// @dev: callers must hold v.mu
func (v *Venue) lookupLocked(op string, o *order.Order) (*resting, error) {
	id := o.OrderID()
	if cl := o.ClOrdID(); cl != "" {
		if b, ok := v.books[o.Symbol]; ok {
			if byCl, ok := b.clOrdIndex[cl]; ok {
				id = byCl
			}
		}
	}
	if id == "" {
		return nil, &exchange.GatewayError{Op: op, StatusCode: http.StatusBadRequest, Err: order.ErrOrderIDMissing, Order: o}
	}
	r, ok := v.orders[id]
	if !ok {
		return nil, notFound(op, id)
	}
	return r, nil
}

// ╔═════════════╗
//     Position
// ╚═════════════╝

func (v *Venue) GetPositionSize(ctx context.Context, symbol string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := v.bookLocked("position", symbol)
	if err != nil {
		return 0, err
	}
	return b.position, nil
}

// ╔══════════════════╗
//      Market data
// ╚══════════════════╝

func (v *Venue) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := v.bookLocked("last price", symbol)
	if err != nil {
		return 0, err
	}
	return b.lastPrice, nil
}

func (v *Venue) GetFirstOrderbookPrice(ctx context.Context, symbol string, bid bool) (float64, error) {
	return v.level(symbol, bid, 1)
}

func (v *Venue) GetThirdOrderbookPrice(ctx context.Context, symbol string, bid bool) (float64, error) {
	return v.level(symbol, bid, 3)
}

func (v *Venue) level(symbol string, bid bool, n int) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := v.bookLocked("orderbook", symbol)
	if err != nil {
		return 0, err
	}
	if bid {
		return b.lastPrice - float64(n)*b.tickSize, nil
	}
	return b.lastPrice + float64(n)*b.tickSize, nil
}

func (v *Venue) GetTickSize(ctx context.Context, symbol string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, err := v.bookLocked("instrument", symbol)
	if err != nil {
		return 0, err
	}
	return b.tickSize, nil
}

// @dev: callers must hold v.mu
func (v *Venue) bookLocked(op string, symbol string) (*book, error) {
	b, ok := v.books[symbol]
	if !ok {
		return nil, &exchange.GatewayError{Op: op, StatusCode: http.StatusNotFound, Message: fmt.Sprintf("Unknown symbol %s", symbol)}
	}
	return b, nil
}

func notFound(op string, id string) error {
	return &exchange.GatewayError{Op: op, StatusCode: http.StatusNotFound, Message: fmt.Sprintf("Not Found: order %s", id)}
}
