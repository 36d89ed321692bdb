package exchange

import (
	"context"
	"supervisor/pkg/order"
	"supervisor/pkg/types"
)

// Gateway is everything the supervisor needs from a derivatives venue.
// Placement calls assign the venue order id into the passed orders on success.
// Every method may fail with a *GatewayError carrying the venue's message.
type Gateway interface {
	Name() types.ExchangeName

	GetOpenOrders(ctx context.Context, symbol string) ([]*order.Order, error)
	GetPositionSize(ctx context.Context, symbol string) (int64, error)
	GetOrderStatus(ctx context.Context, o *order.Order) (types.OrderStatus, error)

	PlaceOrder(ctx context.Context, o *order.Order) error
	BulkPlaceOrders(ctx context.Context, orders []*order.Order) error
	// AmendOrder moves the live order to the desired order's price and stop price.
	AmendOrder(ctx context.Context, live *order.Order, desired *order.Order) error
	CancelOrder(ctx context.Context, o *order.Order) error
	BulkCancelOrders(ctx context.Context, orders []*order.Order) error
	// PlaceMarketOrder buys qty contracts when positive, sells -qty when negative.
	PlaceMarketOrder(ctx context.Context, symbol string, qty int64) error

	GetLastPrice(ctx context.Context, symbol string) (float64, error)
	GetFirstOrderbookPrice(ctx context.Context, symbol string, bid bool) (float64, error)
	GetThirdOrderbookPrice(ctx context.Context, symbol string, bid bool) (float64, error)
	GetTickSize(ctx context.Context, symbol string) (float64, error)
}

// Reconnector is implemented by gateways that keep a streaming connection for their snapshots.
// The supervisor checks it at the top of each duty cycle.
type Reconnector interface {
	IsOpen() bool
	Reconnect(ctx context.Context) error
}
