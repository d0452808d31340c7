package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/solar-portal/internal/server"
	"github.com/txn2/solar-portal/pkg/auth"
	"github.com/txn2/solar-portal/pkg/platform"
)

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-version"}, &out))
	assert.Contains(t, out.String(), server.Version)
}

func TestRun_RequiresConfig(t *testing.T) {
	assert.ErrorContains(t, run(nil, &bytes.Buffer{}), "-config is required")
}

func TestRun_BadFlag(t *testing.T) {
	assert.Error(t, run([]string{"-nope"}, &bytes.Buffer{}))
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: redis\n"), 0o600))
	assert.ErrorContains(t, run([]string{"-config", path}, &bytes.Buffer{}), "storage must be")
}

func TestServe_GracefulShutdown(t *testing.T) {
	hash, err := auth.HashAPIKey("k")
	require.NoError(t, err)
	cfg, err := platform.ParseConfig([]byte(fmt.Sprintf(`
storage: memory
server:
  shutdown_grace: 2s
auth:
  api_keys:
    - name: ops
      hash: %q
      user_id: admin-1
      role: admin
`, hash)))
	require.NoError(t, err)

	p, err := platform.New(platform.WithConfig(cfg))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, p, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/readyz") //nolint:noctx // test probe
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
	assert.Equal(t, "draining", p.Health().State())
}
