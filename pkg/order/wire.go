package order

import (
	"strings"
	"supervisor/pkg/types"
)

// Wire is the venue's order object (BitMEX shape). Optional fields are nil when unset.
type Wire struct {
	Symbol     string           `json:"symbol"`
	OrderID    *string          `json:"orderID,omitempty"`
	OrdType    *types.OrderType `json:"ordType,omitempty"`
	ClOrdID    *string          `json:"clOrdID,omitempty"`
	OrderQty   *int64           `json:"orderQty,omitempty"`
	Side       *types.OrderSide `json:"side,omitempty"`
	Price      *float64         `json:"price,omitempty"`
	StopPx     *float64         `json:"stopPx,omitempty"`
	DisplayQty *int64           `json:"displayQty,omitempty"`
	ExecInst   *string          `json:"execInst,omitempty"`
	OrdStatus  *string          `json:"ordStatus,omitempty"`
}

func (o *Order) ToWire() Wire {
	o.mu.RLock()
	defer o.mu.RUnlock()

	w := Wire{Symbol: o.Symbol}
	if o.orderId != "" {
		w.OrderID = ptr(o.orderId)
	}
	if o.Type != "" {
		w.OrdType = ptr(o.Type)
	}
	if o.clOrdId != "" {
		w.ClOrdID = ptr(o.clOrdId)
	}
	if o.Qty != 0 {
		w.OrderQty = ptr(o.Qty)
	}
	if o.Side != "" {
		w.Side = ptr(o.Side)
	}
	if o.price != 0 {
		w.Price = ptr(o.price)
	}
	if o.stopPx != 0 {
		w.StopPx = ptr(o.stopPx)
	}
	if o.Hidden {
		w.DisplayQty = ptr(int64(0))
	}

	var execInst []string
	if o.Close {
		execInst = append(execInst, string(types.ExecInstClose))
	}
	if o.ReduceOnly {
		execInst = append(execInst, string(types.ExecInstReduceOnly))
	}
	if o.Passive {
		execInst = append(execInst, string(types.ExecInstPassive))
	}
	if o.Type == types.OrderStop {
		execInst = append(execInst, string(types.ExecInstLastPrice))
	}
	if len(execInst) > 0 {
		w.ExecInst = ptr(strings.Join(execInst, ","))
	}
	return w
}

// FromWire builds an order from a venue order object.
func FromWire(w Wire) *Order {
	o := &Order{Symbol: w.Symbol}
	if w.OrderID != nil {
		o.orderId = *w.OrderID
	}
	if w.OrdType != nil {
		o.Type = *w.OrdType
	}
	if w.ClOrdID != nil {
		o.clOrdId = *w.ClOrdID
	}
	if w.OrderQty != nil {
		o.Qty = *w.OrderQty
	}
	if w.Side != nil {
		o.Side = *w.Side
	}
	if w.Price != nil {
		o.price = *w.Price
	}
	if w.StopPx != nil {
		o.stopPx = *w.StopPx
	}
	o.Hidden = w.DisplayQty != nil && *w.DisplayQty == 0
	if w.ExecInst != nil {
		for _, inst := range strings.Split(*w.ExecInst, ",") {
			switch types.ExecInst(strings.TrimSpace(inst)) {
			case types.ExecInstClose:
				o.Close = true
			case types.ExecInstReduceOnly:
				o.ReduceOnly = true
			case types.ExecInstPassive:
				o.Passive = true
			}
		}
	}
	return o
}

// Map renders the wire object as a loose mapping for diagnostic dumps.
// With includeEmpty, unset optional keys are present with nil/empty values.
func (w Wire) Map(includeEmpty bool) map[string]any {
	m := map[string]any{"symbol": w.Symbol}
	put := func(key string, set bool, v any) {
		if set {
			m[key] = v
		} else if includeEmpty {
			m[key] = nil
		}
	}
	put("orderID", w.OrderID != nil, deref(w.OrderID))
	put("ordType", w.OrdType != nil, deref(w.OrdType))
	put("clOrdID", w.ClOrdID != nil, deref(w.ClOrdID))
	put("orderQty", w.OrderQty != nil, deref(w.OrderQty))
	put("side", w.Side != nil, deref(w.Side))
	put("price", w.Price != nil, deref(w.Price))
	put("stopPx", w.StopPx != nil, deref(w.StopPx))
	put("displayQty", w.DisplayQty != nil, deref(w.DisplayQty))
	switch {
	case w.ExecInst != nil:
		m["execInst"] = *w.ExecInst
	case includeEmpty:
		m["execInst"] = ""
	}
	return m
}

func ptr[T any](v T) *T { return &v }

func deref[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
