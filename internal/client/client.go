// Package client implements the two dkp client operations: uploading a local
// file with SEND and downloading a remote one with TAKE.  Each call uses its
// own connection and carries exactly one file.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dkprun/internal/wire"
)

const defDialTimeout = 15 * time.Second

// ErrNotRegular is returned by SendFile when the path is not a regular file.
var ErrNotRegular = errors.New("not a regular file")

// NetworkError is a failure to connect to, or talk to, the server.
type NetworkError struct {
	Op   string // "dial", "write" or "read"
	Addr string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProgressFunc returns a writer that is fed every payload byte as it is
// transferred.  total is the payload size, or -1 when unknown.  The returned
// writer is closed, if it is an io.Closer, when the transfer ends.
type ProgressFunc func(name string, total int64) io.Writer

// Client issues SEND and TAKE commands.  The zero value is not usable, call
// New.
type Client struct {
	dialTimeout time.Duration
	chunkSize   int
	progress    ProgressFunc
	lg          *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithDialTimeout sets the connect timeout.  Zero means no timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// WithChunkSize sets the payload copy unit.  n <= 0 means wire.ChunkSize.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithProgress installs a progress sink.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(c *Client) {
		if lg != nil {
			c.lg = lg
		}
	}
}

// New returns a configured Client.
func New(opts ...Option) *Client {
	c := &Client{
		dialTimeout: defDialTimeout,
		chunkSize:   wire.ChunkSize,
		lg:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendFile uploads path with the default client.
func SendFile(ctx context.Context, path, ip string, port int) (int64, error) {
	return New().SendFile(ctx, path, ip, port)
}

// TakeFile downloads name with the default client.
func TakeFile(ctx context.Context, name, ip string, port int, saveAs string) (int64, error) {
	return New().TakeFile(ctx, name, ip, port, saveAs)
}

func (c *Client) dial(ctx context.Context, ip string, port int) (*stoppableConn, error) {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &NetworkError{Op: "dial", Addr: addr, Err: err}
	}
	tc := conn.(*net.TCPConn)
	if err := tc.SetNoDelay(true); err != nil {
		tc.Close()
		return nil, &NetworkError{Op: "dial", Addr: addr, Err: err}
	}
	// unblock reads and writes if the caller gives up.
	stop := context.AfterFunc(ctx, func() { tc.SetDeadline(time.Unix(1, 0)) })
	return &stoppableConn{TCPConn: tc, stop: stop}, nil
}

func (c *Client) tracker(name string, total int64) (io.Writer, func()) {
	if c.progress == nil {
		return io.Discard, func() {}
	}
	w := c.progress(name, total)
	if w == nil {
		return io.Discard, func() {}
	}
	return w, func() {
		if cl, ok := w.(io.Closer); ok {
			cl.Close()
		}
	}
}

// SendFile uploads the local file at path to the server at ip:port under its
// base name, and returns the number of payload bytes sent.  The file is
// checked before connecting.  SendFile returns once the server has closed
// the connection, that is, after it finished writing the file.
func (c *Client) SendFile(ctx context.Context, path, ip string, port int) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	name := filepath.Base(path)

	conn, err := c.dial(ctx, ip, port)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	addr := conn.RemoteAddr().String()
	lg := c.lg.With("addr", addr, "name", name)

	if err := c.writeHeader(ctx, conn, wire.Header{Kind: wire.Send, Name: name}); err != nil {
		return 0, err
	}

	pw, done := c.tracker(name, fi.Size())
	n, err := wire.CopyStream(conn, io.TeeReader(f, pw), c.chunkSize)
	done()
	if err != nil {
		var pe *os.PathError
		if errors.As(err, &pe) {
			return n, err
		}
		return n, c.netErr(ctx, "write", addr, err)
	}
	if err := conn.CloseWrite(); err != nil {
		return n, c.netErr(ctx, "write", addr, err)
	}
	// the server sends nothing back and closes once the file is stored.
	if _, err := io.Copy(io.Discard, conn); err != nil {
		return n, c.netErr(ctx, "read", addr, err)
	}
	lg.DebugContext(ctx, "file sent", "bytes", n)
	return n, nil
}

// TakeFile downloads name from the server at ip:port into saveAs, which
// defaults to the base name of name, and returns the number of bytes
// received.
//
// The server signals a missing file by sending nothing, so n == 0 with a nil
// error may mean the file does not exist, is empty, or that the server
// failed before sending the first byte.  A zero-byte local file is created
// in every one of these cases.
func (c *Client) TakeFile(ctx context.Context, name, ip string, port int, saveAs string) (int64, error) {
	if saveAs == "" {
		base, err := wire.Basename(name)
		if err != nil {
			return 0, err
		}
		saveAs = base
	}

	conn, err := c.dial(ctx, ip, port)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	addr := conn.RemoteAddr().String()
	lg := c.lg.With("addr", addr, "name", name)

	if err := c.writeHeader(ctx, conn, wire.Header{Kind: wire.Take, Name: name}); err != nil {
		return 0, err
	}

	f, err := os.Create(saveAs)
	if err != nil {
		return 0, err
	}
	pw, done := c.tracker(name, -1)
	n, err := wire.CopyStream(io.MultiWriter(f, pw), conn, c.chunkSize)
	done()
	if cerr := f.Close(); err == nil && cerr != nil {
		return n, cerr
	}
	if err != nil {
		os.Remove(saveAs)
		var pe *os.PathError
		if errors.As(err, &pe) {
			return n, err
		}
		return n, c.netErr(ctx, "read", addr, err)
	}
	if n == 0 {
		lg.WarnContext(ctx, "empty response: file is missing or empty", "save_as", saveAs)
	} else {
		lg.DebugContext(ctx, "file received", "bytes", n, "save_as", saveAs)
	}
	return n, nil
}

func (c *Client) writeHeader(ctx context.Context, conn net.Conn, h wire.Header) error {
	err := wire.WriteHeader(conn, h)
	if err == nil || errors.Is(err, wire.ErrProtocol) {
		return err
	}
	return c.netErr(ctx, "write", conn.RemoteAddr().String(), err)
}

// netErr wraps err as a NetworkError, preferring the context error if the
// caller cancelled.
func (c *Client) netErr(ctx context.Context, op, addr string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		err = cerr
	}
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// stoppableConn releases the context watcher on Close.
type stoppableConn struct {
	*net.TCPConn
	stop func() bool
}

func (c *stoppableConn) Close() error {
	c.stop()
	return c.TCPConn.Close()
}
