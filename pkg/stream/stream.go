package stream

type Stream interface {
	// ConnectAndSubscribe dials the stream and feeds every raw message to cb until Close is called.
	// doneC is closed once the stream is closed for good; closing stopC asks the stream to close.
	ConnectAndSubscribe(params map[string]string, cb func(e []byte)) (doneC chan struct{}, stopC chan struct{}, err error)
	Close()
	IsClosed() bool
}
