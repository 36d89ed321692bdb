package exchange

import (
	"errors"
	"fmt"
	"strings"
	"supervisor/pkg/order"
)

// LiquidationRejectMsg is the venue message for an order priced past the position's liquidation price.
const LiquidationRejectMsg = "Order price is above the liquidation price of current"

// GatewayError is any failure at the venue boundary: auth, rate limit, transport or rejection.
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string       // human readable venue message
	Order      *order.Order // offending order, when the venue pointed at one
	Err        error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsLiquidationReject reports whether the venue refused the order for crossing the liquidation price.
func (e *GatewayError) IsLiquidationReject() bool {
	return strings.Contains(e.Message, LiquidationRejectMsg)
}

// AsLiquidationReject unwraps err into a liquidation rejection, if it is one.
func AsLiquidationReject(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.IsLiquidationReject() {
		return gwErr, true
	}
	return nil, false
}
