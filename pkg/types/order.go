package types

type OrderSide string

const (
	OrderSideBuy  = OrderSide("Buy")
	OrderSideSell = OrderSide("Sell")
)

// Sign returns +1 for buys and -1 for sells (0 when unknown).
func (s OrderSide) Sign() int64 {
	switch s {
	case OrderSideBuy:
		return 1
	case OrderSideSell:
		return -1
	default:
		return 0
	}
}

type OrderType string

const (
	OrderLimit  = OrderType("Limit")
	OrderStop   = OrderType("Stop")
	OrderMarket = OrderType("Market") // only used for fire-and-forget position corrections
)

type OrderStatus string

// statuses as reported by the venue; an empty status means the order is unknown
const (
	OrderStatusUnknown       = OrderStatus("")
	OrderStatusNew           = OrderStatus("New")
	OrderStatusPartialFilled = OrderStatus("PartiallyFilled")
	OrderStatusFilled        = OrderStatus("Filled")
	OrderStatusTriggered     = OrderStatus("Triggered")
	OrderStatusCanceled      = OrderStatus("Canceled")
	OrderStatusRejected      = OrderStatus("Rejected")
)

type ExecInst string

const (
	ExecInstClose      = ExecInst("Close")
	ExecInstReduceOnly = ExecInst("ReduceOnly")
	ExecInstPassive    = ExecInst("ParticipateDoNotInitiate")
	ExecInstLastPrice  = ExecInst("LastPrice") // stop trigger on last trade price
)

// PriceType selects the reference price of a scheduled limit entry
type PriceType string

const (
	PriceLast           = PriceType("last")
	PriceFirstOrderbook = PriceType("first_ob")
	PriceThirdOrderbook = PriceType("third_ob")
	PriceDeviant        = PriceType("deviant")
)
