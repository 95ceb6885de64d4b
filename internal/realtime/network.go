package realtime

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// DialPinger reports the network reachable when a TCP connection to Address
// can be opened within Timeout.
type DialPinger struct {
	Address string
	Timeout time.Duration
}

func (p DialPinger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return err
	}

	return conn.Close()
}

type NetworkObserver interface {
	NetworkOnline()
	NetworkOffline()
}

// NetworkWatcher polls a Pinger and reports reachability transitions. The
// network is assumed online until the first failed ping.
type NetworkWatcher struct {
	logger   *zap.Logger
	pinger   Pinger
	observer NetworkObserver
	interval time.Duration

	online bool
}

func NewNetworkWatcher(logger *zap.Logger, pinger Pinger, observer NetworkObserver, interval time.Duration) *NetworkWatcher {
	return &NetworkWatcher{
		logger:   logger,
		pinger:   pinger,
		observer: observer,
		interval: interval,
		online:   true,
	}
}

func (w *NetworkWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check pings once and notifies the observer if reachability changed. It
// must not be called concurrently with Run.
func (w *NetworkWatcher) Check(ctx context.Context) {
	err := w.pinger.Ping(ctx)
	online := err == nil

	if online == w.online {
		return
	}
	w.online = online

	if online {
		w.logger.Info("network reachable again")
		w.observer.NetworkOnline()

		return
	}

	w.logger.Warn("network unreachable", zap.Error(err))
	w.observer.NetworkOffline()
}
