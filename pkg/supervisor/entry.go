package supervisor

import (
	"context"
	"fmt"
	"supervisor/pkg/order"
	"supervisor/pkg/trailing"
	"supervisor/pkg/types"
	"time"

	"github.com/google/uuid"
)

// EntryParams configures a scheduled limit entry.
type EntryParams struct {
	Qty        int64 // positive buys, negative sells
	PriceType  types.PriceType
	Timeout    time.Duration // how long each attempt waits for the fill
	MaxRetries int
	Deviation  float64 // percent from the last price, PriceDeviant only
}

func (p EntryParams) validate() error {
	if p.Qty == 0 {
		return fmt.Errorf("%w: zero quantity", ErrInvalidEntry)
	}
	if p.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries %d", ErrInvalidEntry, p.MaxRetries)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", ErrInvalidEntry, p.Timeout)
	}
	switch p.PriceType {
	case types.PriceLast, types.PriceFirstOrderbook, types.PriceThirdOrderbook, types.PriceDeviant:
	default:
		return fmt.Errorf("%w: price type %q", ErrInvalidEntry, p.PriceType)
	}
	return nil
}

// EnterByScheduledLimit enters Qty contracts with a passive limit order at the reference price.
// Each attempt waits up to Timeout for the fill, then the order is cancelled and placed again at
// a fresh reference price. After MaxRetries unfilled attempts the entry falls back to a market order.
// The call blocks for up to Timeout*MaxRetries and must not run on the duty-cycle loop.
func (s *Supervisor) EnterByScheduledLimit(ctx context.Context, p EntryParams) error {
	if s.isLoopCtx(ctx) {
		return ErrLoopContext
	}
	if err := p.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.entering++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.entering--
		s.mu.Unlock()
	}()

	tickSize, err := s.exchange.GetTickSize(ctx, s.symbol)
	if err != nil {
		return fmt.Errorf("fail to get tick size: %w", err)
	}

	side := types.OrderSideBuy
	qty := p.Qty
	if qty < 0 {
		side = types.OrderSideSell
		qty = -qty
	}

	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		price, err := s.referencePrice(ctx, p, side == types.OrderSideBuy)
		if err != nil {
			return err
		}
		price = trailing.ToNearest(price, tickSize)

		entry := order.NewLimit(s.symbol, side, qty, price, order.WithPassive(), order.WithClOrdID(uuid.New().String()))
		s.exempt(entry)
		filled, err := s.attemptEntry(ctx, entry, p.Timeout)
		s.unexempt(entry)
		if err != nil {
			return err
		}
		if filled {
			s.addPosition(p.Qty)
			s.logger.Infof("entered position by limit order on %d contracts at %v, attempt %d", p.Qty, price, attempt)
			return nil
		}
		s.logger.Infof("entry order not filled in %v, attempt %d of %d", p.Timeout, attempt, p.MaxRetries)
	}
	return s.EnterByMarketOrder(ctx, p.Qty)
}

// attemptEntry places the entry order and polls its status until it fills or the timeout
// runs out, in which case the order is cancelled.
func (s *Supervisor) attemptEntry(ctx context.Context, entry *order.Order, timeout time.Duration) (bool, error) {
	if err := s.exchange.PlaceOrder(ctx, entry); err != nil {
		return false, fmt.Errorf("fail to place entry order: %w", err)
	}

	polls := int(timeout / s.entryPollInterval)
	if polls < 1 {
		polls = 1
	}
	ticker := time.NewTicker(s.entryPollInterval)
	defer ticker.Stop()

	for i := 0; i < polls; i++ {
		status, err := s.exchange.GetOrderStatus(ctx, entry)
		if err != nil {
			s.logger.Warnf("fail to get entry order status: %v", err)
		} else if status == types.OrderStatusFilled {
			return true, nil
		}

		select {
		case <-ctx.Done():
			s.cancelEntry(context.WithoutCancel(ctx), entry)
			return false, ctx.Err()
		case <-ticker.C:
		}
	}

	s.cancelEntry(ctx, entry)
	return false, nil
}

func (s *Supervisor) cancelEntry(ctx context.Context, entry *order.Order) {
	if err := s.exchange.CancelOrder(ctx, entry); err != nil {
		s.logger.Errorf("fail to cancel entry order %v: %v", entry, err)
	}
}

// referencePrice is the limit price of the next entry attempt, before tick rounding.
func (s *Supervisor) referencePrice(ctx context.Context, p EntryParams, bid bool) (float64, error) {
	var (
		price float64
		err   error
	)
	switch p.PriceType {
	case types.PriceFirstOrderbook:
		price, err = s.exchange.GetFirstOrderbookPrice(ctx, s.symbol, bid)
	case types.PriceThirdOrderbook:
		price, err = s.exchange.GetThirdOrderbookPrice(ctx, s.symbol, bid)
	case types.PriceDeviant:
		price, err = s.exchange.GetLastPrice(ctx, s.symbol)
		if bid {
			price = price * (100 + p.Deviation) / 100
		} else {
			price = price * (100 - p.Deviation) / 100
		}
	default:
		price, err = s.exchange.GetLastPrice(ctx, s.symbol)
	}
	if err != nil {
		return 0, fmt.Errorf("fail to get %s reference price: %w", p.PriceType, err)
	}
	return price, nil
}

// ╔═════ Entry bookkeeping ═════╗
// A live entry order is not in the desired set; the loop must not cancel it as needless,
// and must not correct the position the entry is about to change.
// ╚═════════════════════════════╝

func (s *Supervisor) exempt(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryOrders[o] = struct{}{}
}

func (s *Supervisor) unexempt(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entryOrders, o)
}

// isEntryOrder reports whether a live order (from a venue snapshot) belongs to a running entry.
func (s *Supervisor) isEntryOrder(live *order.Order) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for o := range s.entryOrders {
		if id := o.ClOrdID(); id != "" && id == live.ClOrdID() {
			return true
		}
		if id := o.OrderID(); id != "" && id == live.OrderID() {
			return true
		}
	}
	return false
}

func (s *Supervisor) isEntering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entering > 0
}
