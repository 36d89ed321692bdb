package types

type ExchangeName string

const (
	ExchangePaper  = ExchangeName("paper") // in-memory simulated venue
	ExchangeBitmex = ExchangeName("bitmex")
)
