package feed

import (
	"fmt"
	"net/url"
	"supervisor/pkg/stream"
	"supervisor/pkg/types"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const HS_TIMEOUT_S = 10 // handshake timeout in seconds

const CONN_AUTORESET_S = 3600 // auto reset ws connection every 1hr

// InstrumentStream is a realtime connection subscribed to the instrument table of one symbol.
// The subscription is part of the url, so a reconnect resubscribes by itself.
type InstrumentStream struct {
	wsUrl  string
	dialer websocket.Dialer
	conn   *websocket.Conn

	autoResetInterval time.Duration

	// channels
	doneC          chan struct{}
	stopC          chan struct{}
	isDisconnected bool // temporary disconnection; the stream may auto-reconnect
	isClosed       bool // permanent closure; the stream will not reconnect

	// callbacks
	onConn  func(stream.Stream) // also called after every reconnect, table images start over
	onClose func(stream.Stream)

	mu     sync.Mutex
	logger *log.Entry
}

var _ stream.Stream = (*InstrumentStream)(nil)

func NewInstrumentStream(wsUrl string, symbol string, logger *log.Entry, onConn func(stream.Stream), onClose func(stream.Stream)) (*InstrumentStream, error) {
	u, err := url.Parse(wsUrl)
	if err != nil {
		return nil, fmt.Errorf("fail to parse stream url: %w", err)
	}
	q := u.Query()
	q.Set("subscribe", fmt.Sprintf("instrument:%s", symbol))
	u.RawQuery = q.Encode()

	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &InstrumentStream{
		wsUrl: u.String(),
		dialer: websocket.Dialer{
			HandshakeTimeout: time.Duration(HS_TIMEOUT_S) * time.Second,
		},
		autoResetInterval: time.Duration(CONN_AUTORESET_S) * time.Second,
		logger: logger.WithFields(log.Fields{
			"stream": u.Host,
			"name":   types.StreamInstrument,
			"symbol": symbol,
		}),
		onConn:  onConn,
		onClose: onClose,
	}, nil
}

func (sm *InstrumentStream) ConnectAndSubscribe(_ map[string]string, onEvent func(e []byte)) (doneC chan struct{}, stopC chan struct{}, err error) {
	// connect
	if err = sm.connect(); err != nil {
		return nil, nil, err
	}
	if sm.onConn != nil {
		sm.onConn(sm)
	}

	// subscribe
	sm.doneC = make(chan struct{})
	sm.stopC = make(chan struct{})
	go sm.subscribe(onEvent)
	go sm.autoReset()

	return sm.doneC, sm.stopC, nil
}

func (sm *InstrumentStream) connect() error {
	c, _, err := sm.dialer.Dial(sm.wsUrl, nil)
	if err != nil {
		sm.logger.Errorf("fail to connect stream: %v", err)
		return err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.isClosed {
		c.Close()
		return fmt.Errorf("stream closed while connecting")
	}
	sm.conn = c
	sm.isDisconnected = false
	return nil
}

func (sm *InstrumentStream) handleReconnect() {
	if !sm.IsDisconnected() {
		sm.forceDisconnect()
	}

	for {
		if sm.IsClosed() {
			return
		}
		select {
		case <-sm.stopC:
			sm.Close()
			return
		case <-time.After(time.Second):
			if err := sm.connect(); err != nil {
				sm.logger.Errorf("fail to reconnect stream (retrying...): %v", err)
				continue
			}
			if sm.onConn != nil {
				sm.onConn(sm)
			}
			sm.logger.Info("reconnect and resubscribe stream success")
			return
		}
	}
}

func (sm *InstrumentStream) subscribe(onEvent func(e []byte)) {
	for {
		select {
		case <-sm.stopC:
			sm.Close()
			return
		default:
			if sm.IsClosed() {
				return
			}
			_, msg, err := sm.getConn().ReadMessage()
			if err != nil {
				switch {
				case sm.IsClosed():
					return
				case sm.IsDisconnected():
					sm.logger.Info("stream reset, reconnecting...")
				default:
					sm.logger.Errorf("fail to read stream message (trying to reconnect): %v", err)
				}
				sm.handleReconnect()
				continue
			}
			onEvent(msg)
		}
	}
}

// the venue drops long-lived connections; we self-reset every `autoResetInterval` to reconnect smoothly before that
func (sm *InstrumentStream) autoReset() {
	timer := time.NewTicker(sm.autoResetInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			// @dev: must check the state inside the ticker loop to handle reconnections
			if sm.IsClosed() {
				return
			}
			if sm.IsDisconnected() {
				continue
			}
			sm.logger.Infof("auto-reset triggered after %v", sm.autoResetInterval)
			// the pending read fails and the read loop reconnects
			sm.forceDisconnect()
		case <-sm.doneC:
			return
		}
	}
}

// Close() is the final function to be called; the stream cannot be reopened afterward
func (sm *InstrumentStream) Close() {
	sm.mu.Lock()
	// @dev: must directly read sm.isClosed here to prevent mutex deadlock
	if sm.isClosed {
		sm.mu.Unlock()
		return
	}
	if sm.conn != nil {
		if err := sm.conn.Close(); err != nil {
			sm.logger.Warnf("fail to close stream: %v", err)
		}
	}
	sm.isDisconnected = true
	sm.isClosed = true
	if sm.doneC != nil {
		close(sm.doneC)
	}
	sm.mu.Unlock()

	if sm.onClose != nil {
		sm.onClose(sm)
	}
	sm.logger.Info("🔌 stream closed")
}

func (sm *InstrumentStream) forceDisconnect() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.isDisconnected || sm.conn == nil {
		return
	}
	sm.conn.Close()
	sm.isDisconnected = true
}

func (sm *InstrumentStream) getConn() *websocket.Conn {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.conn
}

func (sm *InstrumentStream) IsDisconnected() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.isDisconnected
}

func (sm *InstrumentStream) IsClosed() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.isClosed
}
