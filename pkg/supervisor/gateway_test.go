package supervisor

import (
	"context"
	"fmt"
	"slices"
	"supervisor/pkg/order"
	"supervisor/pkg/types"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testSymbol = "XBTUSD"

// fakeGateway is an in-memory venue recording every mutating call.
// Placed orders show up in the open orders snapshot until filled or canceled.
type fakeGateway struct {
	mu sync.Mutex

	open          []*order.Order
	statuses      map[string]types.OrderStatus
	defaultStatus types.OrderStatus
	position      int64
	lastPrice     float64
	firstOb       float64
	thirdOb       float64
	tickSize      float64
	placeErr      error
	nextId        int
	newestFirst   bool // list open orders newest first

	calls    []string
	placed   []*order.Order
	amended  []*order.Order
	canceled []*order.Order
	market   []int64
	snaps    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses:      make(map[string]types.OrderStatus),
		defaultStatus: types.OrderStatusNew,
		lastPrice:     1000,
		firstOb:       999.5,
		thirdOb:       998.5,
		tickSize:      0.5,
	}
}

func (g *fakeGateway) Name() types.ExchangeName { return "fake" }

func (g *fakeGateway) GetOpenOrders(ctx context.Context, symbol string) ([]*order.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snaps++
	open := append([]*order.Order(nil), g.open...)
	if g.newestFirst {
		slices.Reverse(open)
	}
	return open, nil
}

func (g *fakeGateway) GetPositionSize(ctx context.Context, symbol string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position, nil
}

func (g *fakeGateway) GetOrderStatus(ctx context.Context, o *order.Order) (types.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if status, ok := g.statuses[o.OrderID()]; ok {
		return status, nil
	}
	return g.defaultStatus, nil
}

func (g *fakeGateway) PlaceOrder(ctx context.Context, o *order.Order) error {
	return g.place("place", []*order.Order{o})
}

func (g *fakeGateway) BulkPlaceOrders(ctx context.Context, orders []*order.Order) error {
	return g.place("bulkPlace", orders)
}

func (g *fakeGateway) place(call string, orders []*order.Order) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	if g.placeErr != nil {
		return g.placeErr
	}
	for _, o := range orders {
		g.nextId++
		o.SetOrderID(fmt.Sprintf("id-%d", g.nextId))
		g.placed = append(g.placed, o)
		g.open = append(g.open, order.FromWire(o.ToWire()))
	}
	return nil
}

func (g *fakeGateway) AmendOrder(ctx context.Context, live *order.Order, desired *order.Order) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "amend")
	g.amended = append(g.amended, desired)
	for _, o := range g.open {
		if o.OrderID() == live.OrderID() {
			_ = o.Move(desired.Px())
		}
	}
	return nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, o *order.Order) error {
	return g.cancel("cancel", []*order.Order{o})
}

func (g *fakeGateway) BulkCancelOrders(ctx context.Context, orders []*order.Order) error {
	return g.cancel("bulkCancel", orders)
}

func (g *fakeGateway) cancel(call string, orders []*order.Order) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	for _, o := range orders {
		g.canceled = append(g.canceled, o)
		g.removeOpenLocked(o.OrderID())
	}
	return nil
}

func (g *fakeGateway) PlaceMarketOrder(ctx context.Context, symbol string, qty int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "market")
	g.market = append(g.market, qty)
	g.position += qty
	return nil
}

func (g *fakeGateway) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPrice, nil
}

func (g *fakeGateway) GetFirstOrderbookPrice(ctx context.Context, symbol string, bid bool) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firstOb, nil
}

func (g *fakeGateway) GetThirdOrderbookPrice(ctx context.Context, symbol string, bid bool) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.thirdOb, nil
}

func (g *fakeGateway) GetTickSize(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tickSize, nil
}

// ╔═════ test helpers ═════╗

// setStatus reports a terminal status for a placed order and drops it from the open orders.
func (g *fakeGateway) setStatus(o *order.Order, status types.OrderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[o.OrderID()] = status
	g.removeOpenLocked(o.OrderID())
}

func (g *fakeGateway) addOpen(o *order.Order) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = append(g.open, o)
}

func (g *fakeGateway) removeOpenLocked(orderId string) {
	for i, o := range g.open {
		if o.OrderID() == orderId {
			g.open = append(g.open[:i], g.open[i+1:]...)
			return
		}
	}
}

func (g *fakeGateway) setPlaceErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placeErr = err
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) resetCalls() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}

func (g *fakeGateway) count(call string) int {
	n := 0
	for _, c := range g.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) Snapshots() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snaps
}

func (g *fakeGateway) Market() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.market...)
}

func (g *fakeGateway) Placed() []*order.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*order.Order(nil), g.placed...)
}

func newTestSupervisor(t *testing.T, gw *fakeGateway, opts ...Option) *Supervisor {
	t.Helper()
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	s, err := New(gw, testSymbol, log.NewEntry(logger), opts...)
	require.NoError(t, err)
	t.Cleanup(s.ExitCycle)
	return s
}
