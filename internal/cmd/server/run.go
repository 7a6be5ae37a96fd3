package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/pulse/internal/config"
	"github.com/rzbill/pulse/internal/runtime"
	grpcserver "github.com/rzbill/pulse/internal/server/grpc"
	httpserver "github.com/rzbill/pulse/internal/server/http"
	pebblestore "github.com/rzbill/pulse/internal/storage/pebble"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

// Options configures Run. Empty address and directory fields fall back to
// Config.
type Options struct {
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// StoreDir is the Pebble directory under a data directory.
func StoreDir(dataDir string) string {
	return filepath.Join(dataDir, "store")
}

// resolve fills empty fields from the config and platform defaults.
func (o Options) resolve() Options {
	if o.DataDir == "" {
		o.DataDir = o.Config.DataDir
	}
	if o.DataDir == "" {
		o.DataDir = cfgpkg.DefaultDataDir()
	}
	if o.HTTPAddr == "" {
		o.HTTPAddr = o.Config.HTTPAddr
	}
	if o.GRPCAddr == "" {
		o.GRPCAddr = o.Config.GRPCAddr
	}
	return o
}

// newLogger builds the process logger from the config, falling back to
// text at info level when the config is unusable.
func newLogger(c cfgpkg.LogConfig) logpkg.Logger {
	cfg := &logpkg.Config{Level: c.Level, Format: c.Format}
	l, err := logpkg.ApplyConfig(cfg)
	if err == nil {
		return l
	}
	lvl := logpkg.InfoLevel
	if parsed, e := logpkg.ParseLevel(c.Level); e == nil {
		lvl = parsed
	}
	l = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	l.Warn("invalid log config; using text output", logpkg.Err(err))
	return l
}

// Run starts the HTTP gateway and, when an address is set, the gRPC health
// server. It blocks until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	opts = opts.resolve()

	procLogger := newLogger(opts.Config.Log)
	// Pebble and go-redis log through the standard library.
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(sctx, runtime.Options{
		DataDir:       StoreDir(opts.DataDir),
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting Pulse server",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", opts.Config.Log.Level),
		logpkg.Str("format", opts.Config.Log.Format),
	)

	hsrv := httpserver.New(rt, procLogger)
	var gsrv *grpcserver.Server
	if opts.GRPCAddr != "" {
		gsrv = grpcserver.New(rt)
	}

	// Each server drains itself once sctx is done. The first one to fail
	// stops the other and becomes Run's error.
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	serve := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				procLogger.Error(name+" server failed", logpkg.Err(err))
				errCh <- fmt.Errorf("%s server: %w", name, err)
				stop()
			}
		}()
	}
	serve("http", func() error { return hsrv.ListenAndServe(sctx, opts.HTTPAddr) })
	if gsrv != nil {
		serve("grpc", func() error { return gsrv.ListenAndServe(sctx, opts.GRPCAddr) })
	}

	<-sctx.Done()
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return err
	}
	procLogger.Info("Pulse server stopped")
	return nil
}
