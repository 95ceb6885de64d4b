package realtime_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/goevery/realtimesync/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockNetworkObserver struct {
	mock.Mock
}

func (m *MockNetworkObserver) NetworkOnline() {
	m.Called()
}

func (m *MockNetworkObserver) NetworkOffline() {
	m.Called()
}

func TestNetworkWatcher_Check(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	reachable := true
	pinger := realtime.PingFunc(func(ctx context.Context) error {
		if reachable {
			return nil
		}

		return errors.New("no route to host")
	})

	observer := &MockNetworkObserver{}
	observer.On("NetworkOffline").Once()
	observer.On("NetworkOnline").Once()

	watcher := realtime.NewNetworkWatcher(logger, pinger, observer, time.Second)
	ctx := context.Background()

	watcher.Check(ctx)

	reachable = false
	watcher.Check(ctx)
	watcher.Check(ctx)

	reachable = true
	watcher.Check(ctx)
	watcher.Check(ctx)

	observer.AssertExpectations(t)
}

func TestNetworkWatcher_Run(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	offline := make(chan struct{})
	observer := &MockNetworkObserver{}
	observer.On("NetworkOffline").Run(func(mock.Arguments) { close(offline) }).Once()

	pinger := realtime.PingFunc(func(ctx context.Context) error {
		return errors.New("unreachable")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := realtime.NewNetworkWatcher(logger, pinger, observer, 10*time.Millisecond)
	done := make(chan struct{})
	go func() {
		watcher.Run(ctx)
		close(done)
	}()

	select {
	case <-offline:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report offline")
	}

	cancel()
	<-done
}

func TestDialPinger(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	pinger := realtime.DialPinger{Address: listener.Addr().String(), Timeout: time.Second}
	assert.NoError(t, pinger.Ping(context.Background()))

	listener.Close()
	assert.Error(t, pinger.Ping(context.Background()))
}
