package supervisor

import (
	"context"
	"errors"
	"supervisor/pkg/exchange"
	"supervisor/pkg/order"
	"supervisor/pkg/types"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limit(side types.OrderSide, qty int64, price float64, opts ...order.Option) *order.Order {
	return order.NewLimit(testSymbol, side, qty, price, opts...)
}

func TestAddOrderValidation(t *testing.T) {
	s := newTestSupervisor(t, newFakeGateway())

	err := s.AddOrder(order.New(testSymbol, types.OrderLimit, types.OrderSideBuy, 100))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	err = s.AddOrder(order.NewLimit("ETHUSD", types.OrderSideBuy, 100, 1000))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	o := limit(types.OrderSideBuy, 100, 900)
	require.NoError(t, s.AddOrder(o))
	assert.NotEmpty(t, o.ClOrdID())
	assert.ErrorIs(t, s.AddOrder(o), ErrOrderAlreadyAdded)

	// an equal but distinct order is a second desired order
	require.NoError(t, s.AddOrder(limit(types.OrderSideBuy, 100, 900)))
	assert.Len(t, s.Orders(), 2)

	assert.ErrorIs(t, s.RemoveOrder(limit(types.OrderSideSell, 1, 1)), ErrOrderNotFound)
	assert.ErrorIs(t, s.MoveOrder(limit(types.OrderSideSell, 1, 1), 2), ErrOrderNotFound)
}

func TestSyncBatching(t *testing.T) {
	tests := []struct {
		name    string
		desired int
		foreign int
		want    []string
	}{
		{"nothing to do", 0, 0, nil},
		{"single place", 1, 0, []string{"place"}},
		{"bulk place", 3, 0, []string{"bulkPlace"}},
		{"single cancel", 0, 1, []string{"cancel"}},
		{"bulk cancel", 0, 2, []string{"bulkCancel"}},
		{"cancel before place", 2, 2, []string{"bulkCancel", "bulkPlace"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			s := newTestSupervisor(t, gw)
			for i := 0; i < tt.desired; i++ {
				require.NoError(t, s.AddOrder(limit(types.OrderSideBuy, int64(10+i), 900)))
			}
			for i := 0; i < tt.foreign; i++ {
				gw.addOpen(limit(types.OrderSideSell, int64(50+i), 1100, order.WithOrderID("foreign")))
			}
			require.NoError(t, s.SyncOrders(context.Background()))
			assert.Equal(t, tt.want, gw.Calls())
		})
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)
	require.NoError(t, s.AddOrder(limit(types.OrderSideBuy, 100, 900)))
	require.NoError(t, s.AddOrder(order.NewStop(testSymbol, types.OrderSideSell, 100, 800)))

	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Equal(t, []string{"bulkPlace"}, gw.Calls())

	gw.resetCalls()
	require.NoError(t, s.SyncOrders(context.Background()))
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Empty(t, gw.Calls())
}

func TestSyncAdoptsLiveOrder(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)
	gw.addOpen(limit(types.OrderSideBuy, 100, 900, order.WithOrderID("live-1")))

	o := limit(types.OrderSideBuy, 100, 900)
	require.NoError(t, s.AddOrder(o))
	clOrdID := o.ClOrdID()
	require.NoError(t, s.SyncOrders(context.Background()))

	assert.Empty(t, gw.Calls())
	assert.Equal(t, "live-1", o.OrderID())
	// the client id assigned on admission is kept
	assert.NotEmpty(t, o.ClOrdID())
	assert.Equal(t, clOrdID, o.ClOrdID())
}

func TestSyncConvergesOnDuplicates(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)
	a := limit(types.OrderSideBuy, 100, 900)
	b := limit(types.OrderSideBuy, 100, 900)
	require.NoError(t, s.AddOrder(a))
	require.NoError(t, s.AddOrder(b))

	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Equal(t, []string{"bulkPlace"}, gw.Calls())
	open, _ := gw.GetOpenOrders(context.Background(), testSymbol)
	assert.Len(t, open, 2)

	// removing one of two equal orders cancels exactly one live copy
	gw.resetCalls()
	require.NoError(t, s.RemoveOrder(b))
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Equal(t, []string{"cancel"}, gw.Calls())
	open, _ = gw.GetOpenOrders(context.Background(), testSymbol)
	assert.Len(t, open, 1)

	gw.resetCalls()
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Empty(t, gw.Calls())
}

func TestSyncMovesInsteadOfCancel(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)
	o := limit(types.OrderSideBuy, 100, 900)
	require.NoError(t, s.AddOrder(o))
	require.NoError(t, s.SyncOrders(context.Background()))
	id := o.OrderID()

	gw.resetCalls()
	require.NoError(t, s.MoveOrder(o, 950))
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Equal(t, []string{"amend"}, gw.Calls())
	assert.Equal(t, id, o.OrderID())

	open, _ := gw.GetOpenOrders(context.Background(), testSymbol)
	require.Len(t, open, 1)
	assert.Equal(t, 950.0, open[0].Price())

	gw.resetCalls()
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Empty(t, gw.Calls())
}

func TestSyncMovePrefersOwnLiveOrder(t *testing.T) {
	gw := newFakeGateway()
	gw.newestFirst = true
	s := newTestSupervisor(t, gw)

	var cancels atomic.Int32
	o := limit(types.OrderSideBuy, 100, 900, order.OnCancel(func(*order.Order) { cancels.Add(1) }))
	require.NoError(t, s.AddOrder(o))
	require.NoError(t, s.SyncOrders(context.Background()))
	id := o.OrderID()

	// a foreign order almost equal to ours shows up ahead of it in the listing
	gw.addOpen(limit(types.OrderSideBuy, 100, 800, order.WithOrderID("stray")))
	gw.resetCalls()
	require.NoError(t, s.MoveOrder(o, 950))
	require.NoError(t, s.SyncOrders(context.Background()))

	assert.Equal(t, []string{"amend", "cancel"}, gw.Calls())
	assert.Equal(t, id, o.OrderID())
	open, _ := gw.GetOpenOrders(context.Background(), testSymbol)
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].OrderID())
	assert.Equal(t, 950.0, open[0].Price())

	gw.resetCalls()
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Empty(t, gw.Calls())
	assert.Never(t, func() bool { return cancels.Load() > 0 }, 30*time.Millisecond, time.Millisecond)
}

func TestSyncFillBookkeeping(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)

	var fills atomic.Int32
	buy := limit(types.OrderSideBuy, 100, 900, order.OnFill(func(*order.Order) { fills.Add(1) }))
	stop := order.NewStop(testSymbol, types.OrderSideSell, 30, 800, order.OnFill(func(*order.Order) { fills.Add(1) }))
	require.NoError(t, s.AddOrder(buy))
	require.NoError(t, s.AddOrder(stop))
	require.NoError(t, s.SyncOrders(context.Background()))

	gw.setStatus(buy, types.OrderStatusFilled)
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Equal(t, int64(100), s.PositionSize())
	assert.Equal(t, []*order.Order{stop}, s.Orders())

	gw.setStatus(stop, types.OrderStatusTriggered)
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Equal(t, int64(70), s.PositionSize())
	assert.Empty(t, s.Orders())

	assert.Eventually(t, func() bool { return fills.Load() == 2 }, time.Second, 5*time.Millisecond)

	// filled orders are not placed again
	gw.resetCalls()
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Empty(t, gw.Calls())
}

func TestSyncCloseOrderFlattensPosition(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)
	s.SetPositionSize(250)

	closeOrder := order.NewStop(testSymbol, types.OrderSideSell, 0, 800, order.WithClose())
	require.NoError(t, s.AddOrder(closeOrder))
	require.NoError(t, s.SyncOrders(context.Background()))

	gw.setStatus(closeOrder, types.OrderStatusTriggered)
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Zero(t, s.PositionSize())
}

func TestSyncRejectionIsTerminal(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)

	var rejected atomic.Pointer[order.Order]
	o := limit(types.OrderSideBuy, 100, 900, order.OnReject(func(o *order.Order) { rejected.Store(o) }))
	require.NoError(t, s.AddOrder(o))
	require.NoError(t, s.SyncOrders(context.Background()))

	gw.setStatus(o, types.OrderStatusRejected)
	gw.resetCalls()
	require.NoError(t, s.SyncOrders(context.Background()))
	require.NoError(t, s.SyncOrders(context.Background()))

	assert.Empty(t, gw.Calls())
	assert.Empty(t, s.Orders())
	assert.Zero(t, s.PositionSize())
	assert.Eventually(t, func() bool { return rejected.Load() == o }, time.Second, 5*time.Millisecond)
}

func TestSyncReplacesCanceled(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)

	var canceled atomic.Int32
	o := limit(types.OrderSideBuy, 100, 900, order.OnCancel(func(*order.Order) { canceled.Add(1) }))
	require.NoError(t, s.AddOrder(o))
	require.NoError(t, s.SyncOrders(context.Background()))
	first := o.OrderID()

	gw.setStatus(o, types.OrderStatusCanceled)
	gw.resetCalls()
	require.NoError(t, s.SyncOrders(context.Background()))

	assert.Equal(t, []string{"place"}, gw.Calls())
	assert.NotEqual(t, first, o.OrderID())
	assert.Equal(t, []*order.Order{o}, s.Orders())
	assert.Eventually(t, func() bool { return canceled.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSyncDropsLiquidationRejected(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)
	keep := limit(types.OrderSideBuy, 100, 900)
	drop := limit(types.OrderSideBuy, 50, 1500)
	require.NoError(t, s.AddOrder(keep))
	require.NoError(t, s.AddOrder(drop))

	gw.setPlaceErr(&exchange.GatewayError{
		Op:         "place",
		StatusCode: 400,
		Message:    exchange.LiquidationRejectMsg + " short position",
		Order:      order.FromWire(drop.ToWire()),
	})
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Equal(t, []*order.Order{keep}, s.Orders())

	gw.setPlaceErr(nil)
	gw.resetCalls()
	require.NoError(t, s.SyncOrders(context.Background()))
	assert.Equal(t, []string{"place"}, gw.Calls())
}

func TestSyncPlacementErrorFailsCycle(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)
	require.NoError(t, s.AddOrder(limit(types.OrderSideBuy, 100, 900)))

	boom := &exchange.GatewayError{Op: "place", StatusCode: 503, Message: "The system is currently overloaded"}
	gw.setPlaceErr(boom)
	err := s.SyncOrders(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.Orders(), 1)
}

func TestSyncPosition(t *testing.T) {
	tests := []struct {
		name   string
		target int64
		live   int64
		market []int64
	}{
		{"in line", 100, 100, nil},
		{"short of target", 100, 40, []int64{60}},
		{"over target", 0, 25, []int64{-25}},
		{"flip", -10, 10, []int64{-20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			gw.position = tt.live
			s := newTestSupervisor(t, gw)
			s.SetPositionSize(tt.target)

			require.NoError(t, s.SyncPosition(context.Background()))
			assert.Equal(t, tt.market, gw.Market())
			// corrections never enter the desired set
			assert.Empty(t, s.Orders())
		})
	}
}

func TestRunOnceManageFlags(t *testing.T) {
	gw := newFakeGateway()
	gw.position = 10
	s := newTestSupervisor(t, gw, WithManageOrders(false), WithManagePosition(false))
	require.NoError(t, s.AddOrder(limit(types.OrderSideBuy, 100, 900)))

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, gw.Calls())
	assert.Zero(t, gw.Snapshots())
}

type reconnectingGateway struct {
	*fakeGateway
	isOpen     bool
	reconnects int
}

func (g *reconnectingGateway) IsOpen() bool { return g.isOpen }

func (g *reconnectingGateway) Reconnect(ctx context.Context) error {
	g.reconnects++
	g.isOpen = true
	return nil
}

func TestRunOnceReconnects(t *testing.T) {
	gw := &reconnectingGateway{fakeGateway: newFakeGateway()}
	s, err := New(gw, testSymbol, nil)
	require.NoError(t, err)
	t.Cleanup(s.ExitCycle)
	require.NoError(t, s.AddOrder(limit(types.OrderSideBuy, 100, 900)))

	// the reconnecting cycle does nothing else
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, gw.reconnects)
	assert.Zero(t, gw.Snapshots())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, gw.reconnects)
	assert.Equal(t, []string{"place"}, gw.Calls())
}

func TestRemoveOrderExitsTracker(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)

	o := order.NewStop(testSymbol, types.OrderSideSell, 100, 900)
	require.NoError(t, s.AddTrailingOrder(context.Background(), o, 10))
	require.True(t, o.IsTrailing())

	// last price 1000 is the anchor
	s.OnPriceTick(1234)
	assert.Equal(t, 1110.5, o.StopPx())

	require.NoError(t, s.RemoveOrder(o))
	s.OnPriceTick(2000)
	assert.Equal(t, 1110.5, o.StopPx())
}

func TestResetClearsDesiredState(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)
	require.NoError(t, s.AddOrder(limit(types.OrderSideBuy, 100, 900)))
	s.SetPositionSize(42)

	require.NoError(t, s.Reset(context.Background()))
	assert.Empty(t, s.Orders())
	assert.Zero(t, s.PositionSize())
	assert.Equal(t, types.CycleStopped, s.State())
}

func TestRunOnceRecoversPanic(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSupervisor(t, gw)
	require.NoError(t, s.AddOrder(limit(types.OrderSideBuy, 100, 900)))
	s.exchange = nil

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrExited))
}
