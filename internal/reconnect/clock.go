package reconnect

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Clock arms one-shot timers. clock.New() and clock.NewMock() satisfy it.
type Clock interface {
	AfterFunc(d time.Duration, f func()) *clock.Timer
}
