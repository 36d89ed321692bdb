package order

import "supervisor/pkg/types"

// Key is the comparison key used to match a desired order against a live one.
// Order ids are deliberately not part of it: a desired order has none until placed.
type Key struct {
	Symbol string
	Type   types.OrderType
	Qty    int64
	Side   types.OrderSide
	Price  float64
	StopPx float64
}

// AlmostKey is Key without prices; a live order sharing it with a desired one is moved, not replaced.
type AlmostKey struct {
	Symbol string
	Type   types.OrderType
	Qty    int64
	Side   types.OrderSide
}

func (o *Order) Key() Key {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Key{
		Symbol: o.Symbol,
		Type:   o.Type,
		Qty:    o.Qty,
		Side:   o.Side,
		Price:  o.price,
		StopPx: o.stopPx,
	}
}

func (o *Order) AlmostKey() AlmostKey {
	return AlmostKey{
		Symbol: o.Symbol,
		Type:   o.Type,
		Qty:    o.Qty,
		Side:   o.Side,
	}
}

func (o *Order) Equal(other *Order) bool {
	return other != nil && o.Key() == other.Key()
}

func (o *Order) AlmostEqual(other *Order) bool {
	return other != nil && o.AlmostKey() == other.AlmostKey()
}

// IndexOf returns the index of the first order in orders equal to o, or -1.
func IndexOf(orders []*Order, o *Order) int {
	key := o.Key()
	for i, candidate := range orders {
		if candidate.Key() == key {
			return i
		}
	}
	return -1
}
