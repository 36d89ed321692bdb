package supervisor

import (
	"context"
	"fmt"
	"supervisor/pkg/exchange"
	"supervisor/pkg/metrics"
	"supervisor/pkg/order"
	"supervisor/pkg/trailing"
	"supervisor/pkg/types"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultInterval          = 100 * time.Millisecond
	DefaultEntryPollInterval = time.Second
)

// Supervisor keeps a venue's live orders and position in line with a desired set of
// orders and a target position size, from a background duty-cycle loop.
//
// ╔═════ Callback contract ═════╗
// Fill/reject/cancel callbacks run on a dispatch goroutine, never on the loop, one at a time.
// They should return quickly. Calling StopCycle from a callback is allowed.
// ╚═════════════════════════════╝
type Supervisor struct {
	exchange exchange.Gateway
	symbol   string
	priceSrc trailing.Source

	interval          time.Duration
	entryPollInterval time.Duration
	manageOrders      bool
	managePosition    bool

	// mu guards the desired set, the target position and the entry bookkeeping
	mu           sync.Mutex
	orders       []*order.Order
	positionSize int64
	entryOrders  map[*order.Order]struct{} // live orders owned by a running scheduled entry
	entering     int

	// ctlMu serializes the control calls; stateMu only guards state
	ctlMu    sync.Mutex
	stateMu  sync.RWMutex
	state    types.CycleState
	started  bool
	resumeC  chan struct{}
	stopC    chan chan struct{}
	exitC    chan struct{}
	doneC    chan struct{}
	loopCtx  context.Context
	dispatch *dispatcher

	logger *log.Entry
}

type Option func(*Supervisor)

// WithInterval sets the pause between duty cycles.
func WithInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithEntryPollInterval sets how often a scheduled entry polls its order status.
func WithEntryPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.entryPollInterval = d
		}
	}
}

func WithManageOrders(enabled bool) Option {
	return func(s *Supervisor) { s.manageOrders = enabled }
}

func WithManagePosition(enabled bool) Option {
	return func(s *Supervisor) { s.managePosition = enabled }
}

// WithPriceSource attaches every trailing order to src for its price ticks.
func WithPriceSource(src trailing.Source) Option {
	return func(s *Supervisor) { s.priceSrc = src }
}

type loopCtxKey struct{}

// New builds a stopped supervisor. It owns no goroutine until RunCycle starts the loop or a
// first order callback is fired; call ExitCycle to release them.
func New(gw exchange.Gateway, symbol string, logger *log.Entry, opts ...Option) (*Supervisor, error) {
	if gw == nil {
		return nil, fmt.Errorf("exchange gateway is required")
	}
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithFields(log.Fields{
		"component": "supervisor",
		"exchange":  gw.Name(),
		"symbol":    symbol,
	})

	s := &Supervisor{
		exchange:          gw,
		symbol:            symbol,
		interval:          DefaultInterval,
		entryPollInterval: DefaultEntryPollInterval,
		manageOrders:      true,
		managePosition:    true,
		entryOrders:       make(map[*order.Order]struct{}),
		state:             types.CycleStopped,
		resumeC:           make(chan struct{}),
		stopC:             make(chan chan struct{}),
		exitC:             make(chan struct{}),
		doneC:             make(chan struct{}),
		logger:            logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loopCtx = context.WithValue(context.Background(), loopCtxKey{}, s)
	s.dispatch = newDispatcher(logger.WithField("component", "dispatcher"))
	return s, nil
}

func (s *Supervisor) Symbol() string { return s.symbol }

// isLoopCtx reports whether ctx is the context the duty-cycle loop hands to the gateway.
func (s *Supervisor) isLoopCtx(ctx context.Context) bool {
	return ctx != nil && ctx.Value(loopCtxKey{}) == s
}

// ╔═════════════╗
//      Orders
// ╚═════════════╝

// AddOrder admits a valid order into the desired set; the loop places it on the next cycle.
func (s *Supervisor) AddOrder(o *order.Order) error {
	if err := s.admit(o); err != nil {
		return err
	}
	s.logger.Infof("new order: %v", o)
	return nil
}

// AddTrailingOrder admits o with a tracker that drags its stop price offset percent behind
// the best price seen since now.
func (s *Supervisor) AddTrailingOrder(ctx context.Context, o *order.Order, offset float64) error {
	if err := s.validate(o); err != nil {
		return err
	}
	tickSize, err := s.exchange.GetTickSize(ctx, s.symbol)
	if err != nil {
		return fmt.Errorf("fail to get tick size: %w", err)
	}
	lastPrice, err := s.exchange.GetLastPrice(ctx, s.symbol)
	if err != nil {
		return fmt.Errorf("fail to get last price: %w", err)
	}
	tracker, err := trailing.New(o, offset, tickSize, s.logger)
	if err != nil {
		return err
	}
	tracker.StartTracking(lastPrice)
	if s.priceSrc != nil {
		if err := tracker.Attach(ctx, s.priceSrc); err != nil {
			return err
		}
	}
	o.SetTrailing(tracker)

	if err := s.admit(o); err != nil {
		tracker.Exit()
		o.SetTrailing(nil)
		return err
	}
	s.logger.Infof("new trailing order: %v, offset %v%% from %v", o, offset, lastPrice)
	return nil
}

// RemoveOrder forgets a desired order; the loop cancels it on the next cycle if it is live.
func (s *Supervisor) RemoveOrder(o *order.Order) error {
	s.mu.Lock()
	i := s.indexLocked(o)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrOrderNotFound, o)
	}
	removed := s.orders[i]
	s.orders = append(s.orders[:i], s.orders[i+1:]...)
	s.updateGaugesLocked()
	s.mu.Unlock()

	if t := removed.Trailing(); t != nil {
		t.Exit()
	}
	s.logger.Infof("forget the order: %v", removed)
	return nil
}

// MoveOrder moves a desired order to a new price; the loop amends the live order on the next cycle.
func (s *Supervisor) MoveOrder(o *order.Order, to float64) error {
	s.mu.Lock()
	i := s.indexLocked(o)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrOrderNotFound, o)
	}
	target := s.orders[i]
	s.mu.Unlock()

	if err := target.Move(to); err != nil {
		return err
	}
	s.logger.Infof("move order to %v: %v", to, target)
	return nil
}

// Orders returns a snapshot of the desired set in insertion order.
func (s *Supervisor) Orders() []*order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*order.Order(nil), s.orders...)
}

// OnPriceTick feeds a market price to every trailing order of the desired set,
// for hosts that run their own market-data stream instead of a price source.
func (s *Supervisor) OnPriceTick(price float64) {
	for _, o := range s.Orders() {
		if t := o.Trailing(); t != nil {
			t.OnPriceTick(price)
		}
	}
}

func (s *Supervisor) validate(o *order.Order) error {
	if o == nil || !o.IsValid() {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, o)
	}
	if o.Symbol != s.symbol {
		return fmt.Errorf("%w: symbol %s, supervisor trades %s", ErrInvalidOrder, o.Symbol, s.symbol)
	}
	return nil
}

func (s *Supervisor) admit(o *order.Order) error {
	if err := s.validate(o); err != nil {
		return err
	}
	if o.ClOrdID() == "" {
		if err := o.SetClOrdID(uuid.New().String()); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing == o {
			return fmt.Errorf("%w: %v", ErrOrderAlreadyAdded, o)
		}
	}
	s.orders = append(s.orders, o)
	s.updateGaugesLocked()
	return nil
}

// indexLocked finds o in the desired set: the very same order first, then the first one
// with the same comparison key.
// @dev: callers must hold s.mu
func (s *Supervisor) indexLocked(o *order.Order) int {
	if o == nil {
		return -1
	}
	for i, existing := range s.orders {
		if existing == o {
			return i
		}
	}
	return order.IndexOf(s.orders, o)
}

// removeLocked drops exactly o (by identity) and reports whether it was there.
// @dev: callers must hold s.mu
func (s *Supervisor) removeLocked(o *order.Order) bool {
	for i, existing := range s.orders {
		if existing == o {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			s.updateGaugesLocked()
			return true
		}
	}
	return false
}

// ╔═════════════╗
//     Position
// ╚═════════════╝

// PositionSize is the target position the loop keeps the venue at.
func (s *Supervisor) PositionSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionSize
}

func (s *Supervisor) SetPositionSize(size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionSize = size
	s.updateGaugesLocked()
}

func (s *Supervisor) addPosition(qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionSize += qty
	s.updateGaugesLocked()
}

// EnterByMarketOrder enters qty contracts at market (negative qty sells) and tracks them.
func (s *Supervisor) EnterByMarketOrder(ctx context.Context, qty int64) error {
	if err := s.exchange.PlaceMarketOrder(ctx, s.symbol, qty); err != nil {
		return fmt.Errorf("fail to enter by market order: %w", err)
	}
	s.addPosition(qty)
	s.logger.Infof("enter position by market order on %d contracts", qty)
	return nil
}

// @dev: callers must hold s.mu
func (s *Supervisor) updateGaugesLocked() {
	metrics.DesiredOrders.WithLabelValues(s.symbol).Set(float64(len(s.orders)))
	metrics.PositionSize.WithLabelValues(s.symbol).Set(float64(s.positionSize))
}
