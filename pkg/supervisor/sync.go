package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"supervisor/pkg/exchange"
	"supervisor/pkg/metrics"
	"supervisor/pkg/order"
	"supervisor/pkg/types"
)

// RunOnce runs one duty cycle: connection check, orders, then position.
func (s *Supervisor) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("duty cycle panicked: %v", r)
		}
	}()

	// keep the venue's stream alive; a cycle on stale snapshots would fight the venue
	if r, ok := s.exchange.(exchange.Reconnector); ok && !r.IsOpen() {
		s.logger.Warn("exchange connection unexpectedly closed, reconnecting...")
		if err := r.Reconnect(ctx); err != nil {
			return fmt.Errorf("fail to reconnect exchange: %w", err)
		}
		return nil
	}

	var errs []error
	if s.manageOrders {
		if err := s.SyncOrders(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.managePosition {
		if err := s.SyncPosition(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SyncOrders cancels (or moves) needless live orders first, then places the missing
// desired ones. Cancelling first keeps the number of open orders bounded.
func (s *Supervisor) SyncOrders(ctx context.Context) error {
	if err := s.cancelNeedlessOrders(ctx); err != nil {
		return err
	}
	return s.checkNeededOrders(ctx)
}

func (s *Supervisor) snapshot() []*order.Order {
	return s.Orders()
}

// cancelNeedlessOrders diffs the live orders against the desired set by comparison key
// (a multiset difference, duplicates count). Needless live orders that only differ from a
// still unmatched desired order by price are amended; the rest are cancelled.
func (s *Supervisor) cancelNeedlessOrders(ctx context.Context) error {
	live, err := s.exchange.GetOpenOrders(ctx, s.symbol)
	if err != nil {
		return fmt.Errorf("fail to get open orders: %w", err)
	}
	unmatched := s.snapshot()

	var needless []*order.Order
	for _, l := range live {
		if s.isEntryOrder(l) {
			continue
		}
		i := order.IndexOf(unmatched, l)
		if i < 0 {
			needless = append(needless, l)
			continue
		}
		// a desired order may be live before we learnt its id (e.g. after a restart)
		if d := unmatched[i]; d.OrderID() == "" && l.OrderID() != "" {
			d.SetOrderID(l.OrderID())
		}
		unmatched = append(unmatched[:i:i], unmatched[i+1:]...)
	}

	moves, toCancel := pairMoves(unmatched, needless)
	for _, m := range moves {
		l, d := m[0], m[1]
		if err := s.exchange.AmendOrder(ctx, l, d); err != nil {
			return fmt.Errorf("fail to move order %v: %w", d, err)
		}
		if d.OrderID() == "" {
			d.SetOrderID(l.OrderID())
		}
		metrics.OrderAction(s.symbol, metrics.ActionAmended, 1)
		s.logger.Infof("moved %s order with %d quantity to %v", d.Type, d.Qty, d.Px())
	}

	switch len(toCancel) {
	case 0:
		return nil
	case 1:
		err = s.exchange.CancelOrder(ctx, toCancel[0])
	default:
		err = s.exchange.BulkCancelOrders(ctx, toCancel)
	}
	if err != nil {
		return fmt.Errorf("fail to cancel %d needless orders: %w", len(toCancel), err)
	}
	metrics.OrderAction(s.symbol, metrics.ActionCanceled, len(toCancel))
	s.logger.Infof("cancel %d needless orders", len(toCancel))
	return nil
}

// pairMoves pairs needless live orders with the unmatched desired orders they should be
// amended into, as (live, desired) pairs. A live order carrying a desired order's venue id is
// paired first, whatever the listing order; the rest take the first almost equal desired order.
// Unpaired live orders are returned for cancellation.
func pairMoves(unmatched, needless []*order.Order) (moves [][2]*order.Order, toCancel []*order.Order) {
	unmatched = append([]*order.Order(nil), unmatched...)
	paired := make([]bool, len(needless))

	for j, l := range needless {
		id := l.OrderID()
		if id == "" {
			continue
		}
		for i, d := range unmatched {
			if d.OrderID() == id && d.AlmostEqual(l) {
				moves = append(moves, [2]*order.Order{l, d})
				unmatched = append(unmatched[:i:i], unmatched[i+1:]...)
				paired[j] = true
				break
			}
		}
	}

	for j, l := range needless {
		if paired[j] {
			continue
		}
		i := slices.IndexFunc(unmatched, func(d *order.Order) bool { return d.AlmostEqual(l) })
		if i < 0 {
			toCancel = append(toCancel, l)
			continue
		}
		moves = append(moves, [2]*order.Order{l, unmatched[i]})
		unmatched = append(unmatched[:i:i], unmatched[i+1:]...)
	}
	return moves, toCancel
}

// checkNeededOrders walks the desired set:
//   - no order id yet: the order has never been placed, place it
//   - Filled / Triggered: book the position, forget the order, fire on-fill
//   - Canceled: still wanted, place it anew and fire on-cancel
//   - Rejected: a rejection is not transient, forget the order and fire on-reject
//
// Anything else (New, PartiallyFilled, unknown) is left alone.
func (s *Supervisor) checkNeededOrders(ctx context.Context) error {
	var toPlace []*order.Order
	for _, o := range s.snapshot() {
		if o.OrderID() == "" {
			toPlace = append(toPlace, o)
			continue
		}
		status, err := s.exchange.GetOrderStatus(ctx, o)
		if err != nil {
			return fmt.Errorf("fail to get status of order %s: %w", o.OrderID(), err)
		}
		switch status {
		case types.OrderStatusFilled, types.OrderStatusTriggered:
			s.onFilled(o)
		case types.OrderStatusCanceled:
			toPlace = append(toPlace, o)
			s.logger.Infof("order cancelled, trying to place it: %v", o)
			s.fire(o, o.CancelCallback())
		case types.OrderStatusRejected:
			s.onRejected(o)
		}
	}
	return s.placeNeededOrders(ctx, toPlace)
}

func (s *Supervisor) onFilled(o *order.Order) {
	if t := o.Trailing(); t != nil {
		t.Exit()
	}

	s.mu.Lock()
	s.removeLocked(o)
	if o.Close && o.Qty == 0 {
		// a quantity-less close order flattens whatever was open
		s.positionSize = 0
	} else {
		s.positionSize += o.Side.Sign() * o.Qty
	}
	s.updateGaugesLocked()
	s.mu.Unlock()

	metrics.OrderAction(s.symbol, metrics.ActionFilled, 1)
	s.logger.WithField("orderId", o.OrderID()).Infof("order filled: %v", o)
	s.fire(o, o.FillCallback())
}

func (s *Supervisor) onRejected(o *order.Order) {
	if t := o.Trailing(); t != nil {
		t.Exit()
	}

	s.mu.Lock()
	s.removeLocked(o)
	s.mu.Unlock()

	metrics.OrderAction(s.symbol, metrics.ActionRejected, 1)
	s.logger.WithField("orderId", o.OrderID()).Warnf("order rejected: %v", o)
	s.fire(o, o.RejectCallback())
}

func (s *Supervisor) fire(o *order.Order, cb order.Callback) {
	if cb == nil {
		return
	}
	s.dispatch.dispatch(func() { cb(o) })
}

// placeNeededOrders places one order with a single call and several with one bulk call.
// A liquidation-price rejection drops the offending order instead of failing the cycle.
func (s *Supervisor) placeNeededOrders(ctx context.Context, toPlace []*order.Order) error {
	toPlace = s.stillDesired(toPlace)

	var err error
	switch len(toPlace) {
	case 0:
		return nil
	case 1:
		err = s.exchange.PlaceOrder(ctx, toPlace[0])
	default:
		err = s.exchange.BulkPlaceOrders(ctx, toPlace)
	}
	if err != nil {
		if gwErr, ok := exchange.AsLiquidationReject(err); ok {
			offending := toPlace[0]
			if gwErr.Order != nil && order.IndexOf(toPlace, gwErr.Order) >= 0 {
				offending = toPlace[order.IndexOf(toPlace, gwErr.Order)]
			}
			s.mu.Lock()
			s.removeLocked(offending)
			s.mu.Unlock()
			if t := offending.Trailing(); t != nil {
				t.Exit()
			}
			metrics.OrderAction(s.symbol, metrics.ActionDropped, 1)
			s.logger.Warnf("order price is above the liquidation price of current position, dropped: %v (%s)", offending, gwErr.Message)
			return nil
		}
		return fmt.Errorf("fail to place %d orders: %w", len(toPlace), err)
	}

	metrics.OrderAction(s.symbol, metrics.ActionPlaced, len(toPlace))
	for _, o := range toPlace {
		s.logger.WithField("orderId", o.OrderID()).Infof("place %s order: %s %d by %v", o.Type, o.Side, o.Qty, o.Px())
	}
	return nil
}

// stillDesired drops the orders the caller removed while the cycle was talking to the venue.
func (s *Supervisor) stillDesired(orders []*order.Order) []*order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := orders[:0:0]
	for _, o := range orders {
		for _, existing := range s.orders {
			if existing == o {
				kept = append(kept, o)
				break
			}
		}
	}
	return kept
}

// SyncPosition sends a market order for the difference between the target and the live position.
// Corrections are fire-and-forget, they never enter the desired set.
func (s *Supervisor) SyncPosition(ctx context.Context) error {
	if s.isEntering() {
		// a scheduled entry books its own fill, correcting now would undo it
		return nil
	}
	live, err := s.exchange.GetPositionSize(ctx, s.symbol)
	if err != nil {
		return fmt.Errorf("fail to get position size: %w", err)
	}
	target := s.PositionSize()
	if live == target {
		return nil
	}
	diff := target - live
	if err := s.exchange.PlaceMarketOrder(ctx, s.symbol, diff); err != nil {
		return fmt.Errorf("fail to correct position size on %d: %w", diff, err)
	}
	metrics.PositionCorrections.WithLabelValues(s.symbol).Inc()
	s.logger.Infof("correct position size on %d", diff)
	return nil
}
