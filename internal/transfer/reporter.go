package transfer

import (
	"context"

	"github.com/dustin/go-humanize"

	"dkprun/internal/ctxlog"
	"dkprun/internal/wire"
)

//go:generate mockgen -destination=mock_reporter_test.go -package=transfer -source=reporter.go Reporter

// Reporter receives the outcome of every connection the server handles.
// Implementations must be safe for concurrent use, as each connection runs in
// its own goroutine.
type Reporter interface {
	// Received is called after a SEND payload was written to path.
	Received(ctx context.Context, name, path string, n int64)
	// Served is called after a TAKE payload was streamed from path.
	Served(ctx context.Context, name, path string, n int64)
	// NotFound is called when a TAKE target does not exist.  The client gets
	// an empty response.
	NotFound(ctx context.Context, name string)
	// Rejected is called when the header could not be parsed.
	Rejected(ctx context.Context, err error)
	// Failed is called when a transfer fails after the header was read.
	Failed(ctx context.Context, h wire.Header, err error)
}

// LogReporter reports through the logger carried in the context.
type LogReporter struct{}

func (LogReporter) Received(ctx context.Context, name, path string, n int64) {
	ctxlog.FromContext(ctx).InfoContext(ctx, "file received", "name", name, "path", path, "size", humanize.Bytes(uint64(n)))
}

func (LogReporter) Served(ctx context.Context, name, path string, n int64) {
	ctxlog.FromContext(ctx).InfoContext(ctx, "file sent", "name", name, "path", path, "size", humanize.Bytes(uint64(n)))
}

func (LogReporter) NotFound(ctx context.Context, name string) {
	ctxlog.FromContext(ctx).WarnContext(ctx, "file not found", "name", name)
}

func (LogReporter) Rejected(ctx context.Context, err error) {
	ctxlog.FromContext(ctx).WarnContext(ctx, "connection dropped", "error", err)
}

func (LogReporter) Failed(ctx context.Context, h wire.Header, err error) {
	ctxlog.FromContext(ctx).ErrorContext(ctx, "transfer failed", "command", h.Kind, "name", h.Name, "error", err)
}
