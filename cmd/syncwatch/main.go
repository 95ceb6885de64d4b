package main

import (
	"errors"
	"net/http"
	"os"

	"github.com/goevery/realtimesync/internal/auth"
	"github.com/goevery/realtimesync/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger *zap.Logger

	rootFlags struct {
		logEncoding string
		logLevel    string
		metricsAddr string
		tokenFile   string
	}
)

var rootCmd = &cobra.Command{
	Use:   "syncwatch",
	Short: "Realtime cache sync client",
	Long:  "Follows a realtime update feed and reports the cache tags each update invalidates.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		logger, err = logging.New(rootFlags.logEncoding, rootFlags.logLevel)
		if err != nil {
			return err
		}

		if rootFlags.metricsAddr != "" {
			go serveMetrics(rootFlags.metricsAddr)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.logEncoding, "log-encoding", logging.EncodingConsole, "log encoding (console or json)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "info", "minimum log level")
	rootCmd.PersistentFlags().StringVar(&rootFlags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&rootFlags.tokenFile, "token-file", "", "token storage file (default: user config dir)")
}

func serveMetrics(address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("serving metrics", zap.String("address", address))

	err := http.ListenAndServe(address, mux)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}

func tokenStore() (*auth.FileTokenStore, error) {
	if rootFlags.tokenFile != "" {
		return auth.NewFileTokenStore(rootFlags.tokenFile), nil
	}

	path, err := auth.DefaultTokenStorePath()
	if err != nil {
		return nil, err
	}

	return auth.NewFileTokenStore(path), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
