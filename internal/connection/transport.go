package connection

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
)

const (
	CloseNormalClosure   = websocket.CloseNormalClosure
	CloseAbnormalClosure = websocket.CloseAbnormalClosure
)

var ErrNotConnected = errors.New("not connected")

// Events receives the lifecycle of one transport. Calls for a single
// transport are made in the order the transport observes them.
type Events interface {
	OnOpen()
	OnMessage(payload []byte)
	OnClose(code int, reason string)
	OnError(err error)
}

// Transport is a duplex, message oriented channel. Open must not block; the
// outcome is reported through Events, ending with exactly one OnClose.
type Transport interface {
	Open(ctx context.Context, endpoint string, events Events)
	Send(payload []byte) error
	Close(code int, reason string) error
}

type TransportFactory func() Transport
