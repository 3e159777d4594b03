// Package transfer implements the dkp file server: an accept loop that hands
// every connection to its own goroutine, and the handler that answers one
// SEND or TAKE command per connection.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"dkprun/internal/wire"
)

// ErrNotADir is returned by New when the destination is not a directory.
var ErrNotADir = errors.New("not a directory")

const maxAcceptDelay = time.Second

// Server serves files from, and stores files into, a single destination
// directory.
type Server struct {
	dir string

	lg            *slog.Logger
	rep           Reporter
	maxConns      int
	headerTimeout time.Duration
	chunkSize     int

	inflight sync.WaitGroup
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.  Connection loggers are derived from it.
func WithLogger(lg *slog.Logger) Option {
	return func(s *Server) {
		if lg != nil {
			s.lg = lg
		}
	}
}

// WithReporter sets the sink that receives transfer outcomes.  The default
// is LogReporter.
func WithReporter(r Reporter) Option {
	return func(s *Server) {
		if r != nil {
			s.rep = r
		}
	}
}

// WithMaxConns limits the number of simultaneously open connections.  When
// the limit is reached, Accept waits for a slot.  n <= 0 means no limit.
func WithMaxConns(n int) Option {
	return func(s *Server) {
		s.maxConns = n
	}
}

// WithHeaderTimeout sets a deadline for receiving the command header.  The
// deadline is lifted once the header is read.  Zero, the default, waits
// forever.
func WithHeaderTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.headerTimeout = d
	}
}

// WithChunkSize sets the payload copy unit.  n <= 0 means wire.ChunkSize.
func WithChunkSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// New returns a server for the destination directory dir.  The directory is
// resolved to an absolute path once and must exist.
func New(dir string, opts ...Option) (*Server, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotADir)
	}
	s := &Server{
		dir:       abs,
		lg:        slog.Default(),
		rep:       LogReporter{},
		chunkSize: wire.ChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the resolved destination directory.
func (s *Server) Dir() string {
	return s.dir
}

// Serve is a convenience function that serves dir on all interfaces on the
// given port until ctx is cancelled.
func Serve(ctx context.Context, port int, dir string, opts ...Option) error {
	srv, err := New(dir, opts...)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, net.JoinHostPort("", strconv.Itoa(port)))
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and handles each in a new goroutine.  The
// loop never waits for a handler.  When ctx is cancelled the listener is
// closed and Serve returns nil; handlers that are already running are not
// interrupted.  Use Wait to block until they finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	s.lg.InfoContext(ctx, "listening", "addr", ln.Addr().String(), "dir", s.dir)

	hctx := context.WithoutCancel(ctx)
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.lg.InfoContext(ctx, "server stopped", "addr", ln.Addr().String())
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			delay = backoff(delay)
			s.lg.WarnContext(ctx, "accept error, retrying", "error", err, "delay", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.inflight.Add(1)
		go s.dispatch(hctx, conn)
	}
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > maxAcceptDelay {
		return maxAcceptDelay
	}
	return d
}

// dispatch runs the handler for conn and contains any panic it raises.
func (s *Server) dispatch(ctx context.Context, conn net.Conn) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			conn.Close()
			s.lg.ErrorContext(ctx, "handler panic", "remote", conn.RemoteAddr().String(), "panic", r)
		}
	}()
	s.Handle(ctx, conn)
}

// Wait blocks until every accepted connection has been handled.  Call it only
// after Serve has returned: a connection accepted while Wait is already
// blocked on an idle server is not guaranteed to be waited for.
func (s *Server) Wait() {
	s.inflight.Wait()
}
