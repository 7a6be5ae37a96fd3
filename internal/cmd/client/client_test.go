package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func run(t *testing.T, cmd interface {
	SetOut(io.Writer)
	SetErr(io.Writer)
	SetArgs([]string)
	Execute() error
}, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestPublishPostsInvalidation(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/invalidate", r.URL.Path)
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	t.Setenv("PULSE_TOKEN", "pls_env")

	out, err := run(t, NewPublishCommand(func() string { return srv.URL }),
		"--topic", "clients", "--org", "org_1", "--entity", "c_1")
	require.NoError(t, err)
	assert.Contains(t, out, "status: accepted")
	assert.Equal(t, "Bearer pls_env", auth)
	assert.Equal(t, map[string]string{"topic": "clients", "organizationId": "org_1", "entityId": "c_1"}, got)
}

func TestPublishSurfacesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := run(t, NewPublishCommand(func() string { return srv.URL }), "--topic", "files", "--token", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "42")
}

func TestPublishRequiresTopic(t *testing.T) {
	_, err := run(t, NewPublishCommand(func() string { return "http://127.0.0.1:1" }))
	require.Error(t, err)
}

func TestSubscribePrintsFramesUntilLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `topic == "files"`, r.URL.Query().Get("filter"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: ready\ndata:{\"ok\":true}\n\n")
		fmt.Fprint(w, "event: ping\ndata:1700000000000\n\n")
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "event: files\ndata:{\"topic\":\"files\",\"organizationId\":\"org_1\",\"action\":\"invalidate\",\"entityId\":\"f_%d\"}\n\n", i)
		}
	}))
	defer srv.Close()

	out, err := run(t, NewSubscribeCommand(func() string { return srv.URL }),
		"--filter", `topic == "files"`, "--limit", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, out)
	assert.Contains(t, lines[0], `"event":"ready"`)
	assert.Contains(t, lines[1], `"entityId":"f_0"`)
	assert.Contains(t, lines[2], `"entityId":"f_1"`)
	assert.NotContains(t, out, "ping")
}

func TestSubscribeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := run(t, NewSubscribeCommand(func() string { return srv.URL }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"kind":"redis","ready":true,"sessions":3,"cached":1}`))
	}))
	defer srv.Close()

	out, err := run(t, NewStatusCommand(func() string { return srv.URL }))
	require.NoError(t, err)
	assert.Contains(t, out, `"kind": "redis"`)
	assert.Contains(t, out, `"sessions": 3`)
}

func startHealthStub(t *testing.T, status healthpb.HealthCheckResponse_ServingStatus) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("pulse.realtime", status)
	healthpb.RegisterHealthServer(gs, hs)
	done := make(chan struct{})
	go func() {
		_ = gs.Serve(l)
		close(done)
	}()
	t.Cleanup(func() {
		gs.GracefulStop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return l.Addr().String()
}

func TestHealthCommand(t *testing.T) {
	t.Setenv("PULSE_GRPC", startHealthStub(t, healthpb.HealthCheckResponse_SERVING))
	out, err := run(t, NewHealthCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "status: SERVING")
}

func TestMemberCommandsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	storeDir := func(d string) string { return filepath.Join(d, "store") }
	t.Setenv("PULSE_DATABASE_URL", "")

	_, err := run(t, NewMemberCommand(storeDir), "grant", "--data-dir", dir, "--user", "u1", "--org", "org_1", "--role", "admin")
	require.NoError(t, err)

	out, err := run(t, NewMemberCommand(storeDir), "list", "--data-dir", dir, "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, `"ADMIN"`)
	assert.Contains(t, out, "org_1")

	tok, err := run(t, NewMemberCommand(storeDir), "token", "--data-dir", dir, "--user", "u1", "--org", "org_1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(tok), "pls_"))

	_, err = run(t, NewMemberCommand(storeDir), "token", "--data-dir", dir, "--user", "u1", "--org", "org_2")
	require.Error(t, err, "tokens require membership")

	_, err = run(t, NewMemberCommand(storeDir), "revoke", "--data-dir", dir, "--user", "u1", "--org", "org_1")
	require.NoError(t, err)
	out, err = run(t, NewMemberCommand(storeDir), "list", "--data-dir", dir, "--user", "u1")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestConfigEnvListsVariables(t *testing.T) {
	out, err := run(t, NewConfigCommand(), "env")
	require.NoError(t, err)
	assert.Contains(t, out, "PULSE_REDIS_URL")
	assert.Contains(t, out, "PULSE_CONN_LIMIT_MAX")
}
