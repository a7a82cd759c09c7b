// File: cmd/hioload-echo/main_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Flag parsing and process exit codes.

package main

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/momentics/hioload-echo/api"
)

func TestParseFlagsDefaults(t *testing.T) {
	o, err := parseFlags(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "localhost:8765", o.cfg.Addr())
	assert.EqualValues(t, 1<<20, o.cfg.ReadLimit)
	assert.Equal(t, 20*time.Second, o.cfg.PingInterval)
	assert.Equal(t, slog.LevelInfo, o.logLevel)
}

func TestParseFlagsOverrides(t *testing.T) {
	o, err := parseFlags([]string{
		"-host", "0.0.0.0", "-port", "9001", "-pipeline", "4",
		"-ping-interval", "0", "-log-level", "debug", "-log-json",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9001", o.cfg.Addr())
	assert.Equal(t, 4, o.cfg.PipelineDepth)
	assert.Zero(t, o.cfg.PingInterval)
	assert.Equal(t, slog.LevelDebug, o.logLevel)
	assert.True(t, o.logJSON)
}

func TestParseFlagsRejectsBadValues(t *testing.T) {
	_, err := parseFlags([]string{"-log-level", "loud"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, api.ErrInvalidConfig)

	_, err = parseFlags([]string{"-port", "-3"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 0, run(context.Background(), []string{"-version"}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "hioload-echo")
}

func TestRunBindFailureExitsNonZero(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	var errOut bytes.Buffer
	code := run(context.Background(), []string{"-host", "127.0.0.1", "-port", port}, &bytes.Buffer{}, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "server stopped")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"-host", "127.0.0.1", "-port", "0"}, &bytes.Buffer{}, &bytes.Buffer{})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}
