package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goevery/realtimesync/internal/connection"
	"github.com/goevery/realtimesync/internal/invalidation"
	"github.com/goevery/realtimesync/internal/realtime"
	"github.com/goevery/realtimesync/internal/reconnect"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchFlags struct {
	baseURL       string
	resourceType  string
	subjectId     string
	pingAddress  string
	pingInterval time.Duration
	maxAttempts   int
}

func init() {
	watchCmd.Flags().StringVar(&watchFlags.baseURL, "base-url", "", "relay base URL, e.g. https://api.example.com/realtime")
	watchCmd.Flags().StringVar(&watchFlags.resourceType, "resource", realtime.DefaultResourceType, "resource type to follow")
	watchCmd.Flags().StringVar(&watchFlags.subjectId, "subject", "", "subject to follow (default: the whole resource feed)")
	watchCmd.Flags().StringVar(&watchFlags.pingAddress, "ping-address", "", "host:port dialed to detect network changes")
	watchCmd.Flags().DurationVar(&watchFlags.pingInterval, "ping-interval", 10*time.Second, "network ping interval")
	watchCmd.Flags().IntVar(&watchFlags.maxAttempts, "max-attempts", reconnect.DefaultMaxAttempts, "reconnect attempts before giving up")
	_ = watchCmd.MarkFlagRequired("base-url")

	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow an update feed until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := tokenStore()
		if err != nil {
			return err
		}

		cfg := realtime.DefaultConfig(watchFlags.baseURL)
		cfg.ResourceType = watchFlags.resourceType
		cfg.Policy.MaxAttempts = watchFlags.maxAttempts

		sink := invalidation.NewMeteredSink(invalidation.NewLoggingSink(logger))

		manager := realtime.NewManager(
			cmd.Context(),
			logger,
			cfg,
			connection.NewWebSocketTransportFactory(logger, connection.DefaultWebSocketConfig()),
			clock.New(),
			tokens,
			sink,
		)
		manager.OnStatusChange(logStatus)

		return watch(cmd.Context(), manager, watchFlags.subjectId)
	},
}

func watch(ctx context.Context, manager *realtime.Manager, subjectId string) error {
	notifyCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := manager.Activate(subjectId)
	if err != nil {
		return err
	}
	defer manager.Deactivate()

	logger.Info("watching update feed", zap.String("endpoint", manager.Endpoint()))

	if watchFlags.pingAddress != "" {
		pinger := realtime.DialPinger{Address: watchFlags.pingAddress, Timeout: 3 * time.Second}
		watcher := realtime.NewNetworkWatcher(logger, pinger, manager, watchFlags.pingInterval)

		go watcher.Run(notifyCtx)
	}

	<-notifyCtx.Done()

	logger.Info("interrupted, closing")

	return nil
}

func logStatus(status connection.Status) {
	fields := []zap.Field{
		zap.Stringer("state", status.State),
		zap.Bool("reconnectPending", status.ReconnectPending),
		zap.Int("attempt", status.Attempt),
	}

	if status.GaveUp {
		logger.Warn("gave up reconnecting", fields...)
		return
	}

	logger.Info("connection status changed", fields...)
}
