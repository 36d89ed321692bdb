package feed

import (
	"context"
	"supervisor/pkg/stream"
	"supervisor/pkg/types"
	"time"

	log "github.com/sirupsen/logrus"
)

// Source opens one instrument stream per subscription and turns the instrument
// table's lastPrice into price ticks.
type Source struct {
	wsUrl  string
	logger *log.Entry
}

func NewSource(wsUrl string, logger *log.Entry) *Source {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Source{
		wsUrl:  wsUrl,
		logger: logger.WithField("component", "feed"),
	}
}

// Subscribe streams the last price of symbol to onEvent until ctx is done or the stream is closed.
// onEvent runs on the stream's read goroutine.
func (s *Source) Subscribe(ctx context.Context, symbol string, onEvent func(stream.Stream, types.PriceTickEvent)) (stream.Stream, error) {
	tbl := newTables()
	sm, err := NewInstrumentStream(s.wsUrl, symbol, s.logger, func(stream.Stream) { tbl.reset() }, nil)
	if err != nil {
		return nil, err
	}

	doneC, _, err := sm.ConnectAndSubscribe(nil, func(e []byte) {
		receivedTime := time.Now()
		msg, err := parseTableMessage(e)
		if err != nil {
			sm.logger.Warn(err)
			return
		}
		if msg.Table != "instrument" || msg.Action == "" {
			// welcome and subscription messages
			return
		}
		if err := tbl.apply(msg); err != nil {
			sm.logger.Warn(err)
			return
		}
		price, ok := tbl.lastPrice(symbol)
		if !ok {
			return
		}
		onEvent(sm, types.PriceTickEvent{
			Event:        msg.Table,
			Time:         tbl.timestamp(symbol, receivedTime),
			Symbol:       symbol,
			Price:        price,
			ReceivedTime: receivedTime,
		})
	})
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			sm.Close()
		case <-doneC:
		}
	}()
	return sm, nil
}
