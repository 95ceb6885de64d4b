// Package connectiontest provides an in-memory Transport whose events are
// driven by the test.
package connectiontest

import (
	"context"
	"sync"

	"github.com/goevery/realtimesync/internal/connection"
)

type Transport struct {
	mu          sync.Mutex
	endpoint    string
	events      connection.Events
	sent        [][]byte
	closed      bool
	closeCode   int
	closeReason string
	sendErr     error
}

func (t *Transport) Open(ctx context.Context, endpoint string, events connection.Events) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.endpoint = endpoint
	t.events = events
}

func (t *Transport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sendErr != nil {
		return t.sendErr
	}

	t.sent = append(t.sent, append([]byte(nil), payload...))

	return nil
}

func (t *Transport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.closeCode = code
	t.closeReason = reason

	return nil
}

func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sendErr = err
}

func (t *Transport) Endpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.endpoint
}

// Opened reports whether Open was called.
func (t *Transport) Opened() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.events != nil
}

func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([][]byte(nil), t.sent...)
}

// Closed reports whether Close was called, with its arguments.
func (t *Transport) Closed() (bool, int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed, t.closeCode, t.closeReason
}

func (t *Transport) EmitOpen() {
	t.eventsOrPanic().OnOpen()
}

func (t *Transport) EmitMessage(payload string) {
	t.eventsOrPanic().OnMessage([]byte(payload))
}

func (t *Transport) EmitClose(code int, reason string) {
	t.eventsOrPanic().OnClose(code, reason)
}

func (t *Transport) EmitError(err error) {
	t.eventsOrPanic().OnError(err)
}

func (t *Transport) eventsOrPanic() connection.Events {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.events == nil {
		panic("connectiontest: transport was never opened")
	}

	return t.events
}

// Dialer records every transport it creates.
type Dialer struct {
	mu         sync.Mutex
	transports []*Transport
}

func NewDialer() *Dialer {
	return &Dialer{}
}

func (d *Dialer) Factory() connection.TransportFactory {
	return func() connection.Transport {
		d.mu.Lock()
		defer d.mu.Unlock()

		transport := &Transport{}
		d.transports = append(d.transports, transport)

		return transport
	}
}

func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.transports)
}

// Last returns the most recently created transport, or nil.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.transports) == 0 {
		return nil
	}

	return d.transports[len(d.transports)-1]
}

// Opened reports whether exactly n transports were created and the last one
// was opened. Reconnects fired by a mock clock dial on their own goroutine.
func (d *Dialer) Opened(n int) bool {
	if d.Count() != n {
		return false
	}

	return d.Last().Opened()
}

func (d *Dialer) At(i int) *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.transports[i]
}
