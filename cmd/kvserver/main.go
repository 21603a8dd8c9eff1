// Command kvserver runs the dedup key-value store as an HTTP service,
// wiring config → store → codec → engine → batch executor → HTTP adapter
// the way the teacher's own long-running commands build up a Repository
// before handing it to a subcommand.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fenilsonani/kvstore/internal/batch"
	"github.com/fenilsonani/kvstore/internal/config"
	"github.com/fenilsonani/kvstore/internal/encode"
	"github.com/fenilsonani/kvstore/internal/engine"
	"github.com/fenilsonani/kvstore/internal/httpapi"
	"github.com/fenilsonani/kvstore/internal/store"
)

func main() {
	cfg, err := config.Load()
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	s, err := store.Open(store.Options{
		Path:          cfg.DBPath,
		CacheBytes:    cfg.CacheBytes,
		FlushInterval: time.Duration(cfg.FlushIntervalMS) * time.Millisecond,
	})
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer s.Close()

	codec, err := encode.NewCodec(cfg.CompressionLevel)
	if err != nil {
		logger.Fatal("build codec", zap.Error(err))
	}
	defer codec.Close()

	eng := engine.New(s, codec)
	executor := batch.NewExecutor(s, codec, cfg.MaxBatchOps)
	metrics := httpapi.NewMetrics()
	s.SetUpdateObserver(func(d time.Duration) {
		metrics.TxDuration.Observe(d.Seconds())
	})

	handler := httpapi.NewServer(httpapi.Config{
		Engine:   eng,
		Executor: executor,
		Store:    s,
		Metrics:  metrics,
		Logger:   logger,
		Token:    cfg.Token,
	})

	listeners := httpapi.NewListeners(httpapi.ListenConfig{
		Host:    cfg.Host,
		Port:    cfg.Port,
		SSLPort: cfg.SSLPort,
		SSLCert: cfg.SSLCert,
		SSLKey:  cfg.SSLKey,
	}, handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("kvserver starting",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.Bool("tls", cfg.TLSEnabled()),
	)

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutMS) * time.Millisecond
	if err := listeners.Serve(ctx, cfg.SSLCert, cfg.SSLKey, shutdownTimeout); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}

	logger.Info("kvserver stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
