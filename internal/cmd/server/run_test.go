package serverrun

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/pulse/internal/config"
	pebblestore "github.com/rzbill/pulse/internal/storage/pebble"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

func TestOptionsResolve(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantDir  string
		wantHTTP string
		wantGRPC string
	}{
		{
			name:     "flags win",
			opts:     Options{DataDir: "/custom", HTTPAddr: ":9000", GRPCAddr: ":9001", Config: cfgpkg.Default()},
			wantDir:  "/custom",
			wantHTTP: ":9000",
			wantGRPC: ":9001",
		},
		{
			name: "config fills gaps",
			opts: Options{Config: func() cfgpkg.Config {
				c := cfgpkg.Default()
				c.DataDir = "/from-config"
				return c
			}()},
			wantDir:  "/from-config",
			wantHTTP: ":8080",
			wantGRPC: ":50051",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opts.resolve()
			if got.DataDir != tt.wantDir || got.HTTPAddr != tt.wantHTTP || got.GRPCAddr != tt.wantGRPC {
				t.Fatalf("resolve() = %+v", got)
			}
		})
	}
}

func TestResolveUsesPlatformDataDir(t *testing.T) {
	got := Options{Config: cfgpkg.Default()}.resolve()
	if got.DataDir == "" {
		t.Fatal("expected a data dir")
	}
	if !filepath.IsAbs(got.DataDir) && got.DataDir != "./data" {
		t.Fatalf("unexpected data dir %q", got.DataDir)
	}
}

func TestStoreDir(t *testing.T) {
	if got := StoreDir("/tmp/pulse"); got != filepath.Join("/tmp/pulse", "store") {
		t.Fatalf("got %q", got)
	}
}

func TestNewLoggerFallsBack(t *testing.T) {
	l := newLogger(cfgpkg.LogConfig{Level: "warn", Format: "xml"})
	if l.GetLevel() != logpkg.WarnLevel {
		t.Fatalf("want warn level, got %v", l.GetLevel())
	}
}

// TestRunIntegration starts both servers on ephemeral ports and stops them
// through context cancellation.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	cfg := cfgpkg.Default()
	cfg.Log.Level = "error"
	opts := Options{
		DataDir:  t.TempDir(),
		GRPCAddr: "127.0.0.1:0",
		HTTPAddr: "127.0.0.1:0",
		Fsync:    pebblestore.FsyncModeNever,
		Config:   cfg,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := Run(ctx, opts); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunReturnsListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	cfg := cfgpkg.Default()
	cfg.Log.Level = "error"
	opts := Options{
		DataDir:  t.TempDir(),
		GRPCAddr: "127.0.0.1:0",
		HTTPAddr: busy.Addr().String(),
		Fsync:    pebblestore.FsyncModeNever,
		Config:   cfg,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = Run(ctx, opts)
	if err == nil {
		t.Fatalf("expected listen error for busy address")
	}
	if ctx.Err() != nil {
		t.Fatalf("run should fail fast, not wait for the deadline")
	}
}
