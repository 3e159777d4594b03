package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dkprun/internal/transfer"
	"dkprun/internal/wire"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// startServer runs a transfer server on loopback and returns its port and
// directory.
func startServer(t *testing.T) (string, string) {
	t.Helper()
	srv, err := transfer.New(t.TempDir(), transfer.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Wait()
	})
	return strconv.Itoa(ln.Addr().(*net.TCPAddr).Port), srv.Dir()
}

func TestRun_usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no arguments", nil, exitUsage},
		{"help", []string{"help"}, exitOK},
		{"unknown command", []string{"fly"}, exitUsage},
		{"command help", []string{"send", "-h"}, exitOK},
		{"bad flag", []string{"take", "-nope"}, exitUsage},
		{"send without files", []string{"send", "127.0.0.1"}, exitUsage},
		{"take without name", []string{"take", "127.0.0.1"}, exitUsage},
		{"serve with arguments", []string{"serve", "extra"}, exitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.want, run(context.Background(), tt.args, &stdout, &stderr))
		})
	}
}

func TestRun_version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run(context.Background(), []string{"version"}, &stdout, &stderr))
	assert.Equal(t, version+"\n", stdout.String())
}

func TestCommand_Name(t *testing.T) {
	for _, c := range commands(io.Discard, io.Discard) {
		assert.NotEmpty(t, c.Name())
		assert.NotContains(t, c.Name(), " ")
	}
	assert.Equal(t, "send", (&command{UsageLine: "dkp send [flags] <ip> <file>"}).Name())
}

func TestRun_sendAndTake(t *testing.T) {
	port, dir := startServer(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	var stdout, stderr bytes.Buffer
	require.Equal(t, exitOK, run(ctx, []string{"send", "-quiet", "-port", port, "127.0.0.1", src}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "Sent 1 of 1 file(s)")
	got, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	out := filepath.Join(t.TempDir(), "copy.txt")
	stdout.Reset()
	require.Equal(t, exitOK, run(ctx, []string{"take", "-quiet", "-port", port, "-o", out, "127.0.0.1", "notes.txt"}, &stdout, &stderr), stderr.String())
	got, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	stdout.Reset()
	missing := filepath.Join(t.TempDir(), "missing.txt")
	require.Equal(t, exitOK, run(ctx, []string{"take", "-quiet", "-port", port, "-o", missing, "127.0.0.1", "missing.txt"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "received 0 bytes")
}

func TestRun_sendParallel(t *testing.T) {
	port, dir := startServer(t)
	src := t.TempDir()
	var files []string
	for i := range 5 {
		p := filepath.Join(src, "f"+strconv.Itoa(i))
		require.NoError(t, os.WriteFile(p, bytes.Repeat([]byte{byte('a' + i)}, 10_000), 0o644))
		files = append(files, p)
	}

	var stdout, stderr bytes.Buffer
	args := append([]string{"send", "-workers", "3", "-port", port, "127.0.0.1"}, files...)
	require.Equal(t, exitOK, run(context.Background(), args, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "Sent 5 of 5 file(s)")
	for i := range 5 {
		got, err := os.ReadFile(filepath.Join(dir, "f"+strconv.Itoa(i)))
		require.NoError(t, err)
		assert.Equal(t, bytes.Repeat([]byte{byte('a' + i)}, 10_000), got)
	}
}

func TestRun_sendFailures(t *testing.T) {
	port, _ := startServer(t)
	ok := filepath.Join(t.TempDir(), "ok.txt")
	require.NoError(t, os.WriteFile(ok, []byte("ok"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"send", "-port", port, "127.0.0.1", ok, filepath.Join(t.TempDir(), "missing")}, &stdout, &stderr)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stdout.String(), "Sent 1 of 2 file(s)")

	stdout.Reset()
	code = run(context.Background(), []string{"send", "-port", strconv.Itoa(freePort(t)), "127.0.0.1", ok}, &stdout, &stderr)
	assert.Equal(t, exitError, code, "connection refused is a failure")
}

func TestRun_serve(t *testing.T) {
	dir := t.TempDir()
	port := strconv.Itoa(freePort(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"serve", "-bind", "127.0.0.1", "-port", port, "-dir", dir, "-grace", "1s"}, &stdout, &stderr)
	}()

	addr := net.JoinHostPort("127.0.0.1", port)
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	src := filepath.Join(t.TempDir(), "up.txt")
	require.NoError(t, os.WriteFile(src, []byte("uploaded"), 0o644))
	var out, errOut bytes.Buffer
	require.Equal(t, exitOK, run(context.Background(), []string{"send", "-quiet", "-port", port, "127.0.0.1", src}, &out, &errOut))

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, exitOK, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Contains(t, stdout.String(), "saving to "+dir)
	assert.Contains(t, stdout.String(), "up.txt saved to")
	got, err := os.ReadFile(filepath.Join(dir, "up.txt"))
	require.NoError(t, err)
	assert.Equal(t, "uploaded", string(got))
}

func TestRun_serveInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"serve", "-port", "70000", "-dir", t.TempDir()}, &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "Detected problems")
}

func TestResolveConfig(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "dkp.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("port = 6001\ndir = \"/from/file\"\nmax_conns = 3\n"), 0o644))

	cmd := newServeCmd()
	cmd.Flag.SetOutput(io.Discard)
	require.NoError(t, cmd.Flag.Parse([]string{"-config", cfgFile, "-port", "6002", "-v"}))

	// parsed values live in the command closure; only the set flags matter here.
	f := serveFlags{config: cfgFile, port: 6002, verbose: true}
	cfg, err := resolveConfig(cmd.Flag, f)
	require.NoError(t, err)
	assert.Equal(t, 6002, cfg.Port, "flag overrides file")
	assert.Equal(t, "/from/file", cfg.Dir, "file overrides default")
	assert.Equal(t, 3, cfg.MaxConns)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = resolveConfig(flag.NewFlagSet("x", flag.ContinueOnError), serveFlags{config: filepath.Join(t.TempDir(), "nope.toml")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type countingReporter struct {
	mu     sync.Mutex
	events []string
}

func (c *countingReporter) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, s)
}

func (c *countingReporter) Received(context.Context, string, string, int64) { c.add("received") }
func (c *countingReporter) Served(context.Context, string, string, int64)   { c.add("served") }
func (c *countingReporter) NotFound(context.Context, string)                { c.add("notfound") }
func (c *countingReporter) Rejected(context.Context, error)                 { c.add("rejected") }
func (c *countingReporter) Failed(context.Context, wire.Header, error)      { c.add("failed") }

func TestServerStatus(t *testing.T) {
	var buf bytes.Buffer
	next := new(countingReporter)
	st := &serverStatus{status: newStatus(&buf), next: next}
	ctx := context.Background()

	st.Received(ctx, "a.txt", "/d/a.txt", 2048)
	st.Served(ctx, "a.txt", "/d/a.txt", 2048)
	st.NotFound(ctx, "b.txt")
	st.Rejected(ctx, wire.ErrProtocol)
	st.Failed(ctx, wire.Header{Kind: wire.Send, Name: "c.txt"}, errors.New("disk full"))

	out := buf.String()
	assert.Contains(t, out, "a.txt saved to /d/a.txt  (2.0 kB)")
	assert.Contains(t, out, "a.txt sent from /d/a.txt")
	assert.Contains(t, out, "b.txt not found")
	assert.Contains(t, out, "dropped connection: protocol error")
	assert.Contains(t, out, "SEND c.txt failed: disk full")
	assert.Equal(t, []string{"received", "served", "notfound", "rejected", "failed"}, next.events)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger("debug", "json", &buf)
	lg.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
	assert.Contains(t, buf.String(), `"k":"v"`)

	buf.Reset()
	lg = newLogger("warn", "text", &buf)
	lg.Info("hidden")
	lg.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}
