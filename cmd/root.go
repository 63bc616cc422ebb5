////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd contains the command line interface used to inspect and replay
// events into a conversation store.
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/elixxir/xxdk-eventstore/eventModel"
	"gitlab.com/elixxir/xxdk-eventstore/identity"
	"gitlab.com/elixxir/xxdk-eventstore/logging"
	"gitlab.com/elixxir/xxdk-eventstore/storage"
	"gitlab.com/elixxir/xxdk-eventstore/worker"
)

// envPrefix is the prefix of environment variables that set config keys
// (e.g., XXCHAT_DB sets db).
const envPrefix = "XXCHAT"

// Config keys.
const (
	configFlag          = "config"
	dbFlag              = "db"
	logLevelFlag        = "logLevel"
	logFlag             = "log"
	logBufferSizeFlag   = "logBufferSize"
	identityCacheFlag   = "identityCache"
	strictReactionsFlag = "strictReactions"
	queueSizeFlag       = "queueSize"
	messageLoggingFlag  = "messageLogging"
	metricsAddrFlag     = "metricsAddr"
	kvFlag              = "kv"
)

const defaultLogBufferSize = 1 << 20

var (
	// fileLogger keeps recent logs so that they can be printed when a
	// command fails.
	fileLogger *FileLogDumper

	logCloser io.Closer
)

// FileLogDumper prints the in-memory log on failure.
type FileLogDumper struct {
	*logging.FileLogger
}

// Dump writes the log to w.
func (d *FileLogDumper) Dump(w io.Writer) {
	if d == nil || d.FileLogger == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "---- Recent log ----\n%s\n", d.GetFile())
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "xxchat",
	Short: "Stores and inspects xx network chat events",
	Long: "xxchat folds direct message and channel events into a local " +
		"conversation store and inspects its contents.",
	SilenceUsage:      true,
	PersistentPreRunE: initLog,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fileLogger.Dump(os.Stderr)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.String(configFlag, "", "YAML config file.")
	pf.String(dbFlag, "",
		"Path to the sqlite conversation store. Empty uses an in-memory store.")
	pf.StringP(logLevelFlag, "v", "info",
		"Log level: trace, debug, info, warn, error, critical or fatal "+
			"(or 0 to 6).")
	pf.StringP(logFlag, "l", "-",
		"Log output path. By default, logs are printed to stdout.")
	pf.Int(logBufferSizeFlag, defaultLogBufferSize,
		"Size in bytes of the in-memory log printed when a command fails.")
	pf.Bool(identityCacheFlag, true, "Cache constructed identities.")
	pf.Bool(strictReactionsFlag, false,
		"Reject reactions that are not supported emojis.")
	pf.Int(queueSizeFlag, worker.DefaultParams().QueueSize,
		"Number of events that may wait for the store writer.")
	pf.Bool(messageLoggingFlag, false, "Log every job run by the writer.")
	pf.String(metricsAddrFlag, "",
		"Address to serve Prometheus metrics on (e.g., :9090).")
	pf.String(kvFlag, "kv.db", "Path to the local key-value store.")

	for _, key := range []string{dbFlag, logLevelFlag, logFlag,
		logBufferSizeFlag, identityCacheFlag, strictReactionsFlag,
		queueSizeFlag, messageLoggingFlag, metricsAddrFlag, kvFlag} {
		if err := viper.BindPFlag(key, pf.Lookup(key)); err != nil {
			jww.FATAL.Panicf("Failed to bind flag %q: %+v", key, err)
		}
	}
}

// initConfig reads the config file, if set, and the environment.
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPath, _ := rootCmd.PersistentFlags().GetString(configFlag)
	if configPath == "" {
		return
	}
	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		jww.FATAL.Panicf("Failed to read config file %q: %+v", configPath, err)
	}
}

// initLog sets up the log level, output and in-memory log.
func initLog(*cobra.Command, []string) error {
	threshold, err := logging.ParseLevel(viper.GetString(logLevelFlag))
	if err != nil {
		return err
	}

	if logCloser, err = logging.SetLogOutput(viper.GetString(logFlag)); err != nil {
		return err
	}
	if err = logging.LogLevel(threshold); err != nil {
		return err
	}

	fl, err := logging.NewFileLogger(jww.LevelDebug,
		viper.GetInt(logBufferSizeFlag))
	if err != nil {
		return err
	}
	fileLogger = &FileLogDumper{fl}
	return nil
}

// eventModelParams builds the event model parameters from the config.
func eventModelParams() eventModel.Params {
	p := eventModel.DefaultParams()
	p.StrictReactions = viper.GetBool(strictReactionsFlag)
	p.Writer.QueueSize = viper.GetInt(queueSizeFlag)
	p.Writer.MessageLogging = viper.GetBool(messageLoggingFlag)
	return p
}

// openEventModel opens the configured store and starts an event model over
// it. If a metrics address is set, the metrics are served on it. The returned
// function stops everything.
func openEventModel() (*eventModel.EventModel, func(), error) {
	store, err := storage.Open(viper.GetString(dbFlag))
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	resolver := identity.NewResolver(nil, viper.GetBool(identityCacheFlag))
	em := eventModel.New(store, resolver, eventModelParams(), reg)

	stopMetrics, err := serveMetrics(viper.GetString(metricsAddrFlag), reg)
	if err != nil {
		em.Close()
		_ = store.Close()
		return nil, nil, err
	}

	return em, func() {
		stopMetrics()
		em.Close()
		if err := store.Close(); err != nil {
			jww.ERROR.Printf("Failed to close store: %+v", err)
		}
	}, nil
}

// serveMetrics serves the registry on addr until the returned function is
// called. It does nothing if addr is empty.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux,
		ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return nil, errors.Wrapf(err, "failed to serve metrics on %s", addr)
	case <-time.After(100 * time.Millisecond):
	}
	jww.INFO.Printf("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
