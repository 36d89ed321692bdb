package types

type Stream string

const (
	StreamInstrument = Stream("Instrument")
)
