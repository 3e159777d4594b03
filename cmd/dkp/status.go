package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"dkprun/internal/transfer"
	"dkprun/internal/wire"
)

var (
	okMark   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnMark = color.New(color.FgYellow, color.Bold).SprintFunc()
	errMark  = color.New(color.FgRed, color.Bold).SprintFunc()
	faint    = color.New(color.Faint).SprintFunc()
)

func size(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// status prints human readable transfer outcomes.  It is safe for
// concurrent use.
type status struct {
	mu sync.Mutex
	w  io.Writer
}

func newStatus(w io.Writer) *status {
	return &status{w: w}
}

func (s *status) printf(format string, a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, a...)
}

func (s *status) ok(format string, a ...any) {
	s.printf("  %s %s\n", okMark("OK"), fmt.Sprintf(format, a...))
}

func (s *status) warn(format string, a ...any) {
	s.printf("  %s %s\n", warnMark("!!"), fmt.Sprintf(format, a...))
}

func (s *status) fail(format string, a ...any) {
	s.printf("  %s %s\n", errMark("XX"), fmt.Sprintf(format, a...))
}

// serverStatus adapts status to transfer.Reporter and optionally forwards
// every event to another reporter.
type serverStatus struct {
	*status
	next transfer.Reporter
}

var _ transfer.Reporter = (*serverStatus)(nil)

func (s *serverStatus) Received(ctx context.Context, name, path string, n int64) {
	s.ok("<- %s saved to %s  (%s)", name, path, size(n))
	if s.next != nil {
		s.next.Received(ctx, name, path, n)
	}
}

func (s *serverStatus) Served(ctx context.Context, name, path string, n int64) {
	s.ok("-> %s sent from %s  (%s)", name, path, size(n))
	if s.next != nil {
		s.next.Served(ctx, name, path, n)
	}
}

func (s *serverStatus) NotFound(ctx context.Context, name string) {
	s.warn("-> %s not found, sent empty response", name)
	if s.next != nil {
		s.next.NotFound(ctx, name)
	}
}

func (s *serverStatus) Rejected(ctx context.Context, err error) {
	s.warn("dropped connection: %v", err)
	if s.next != nil {
		s.next.Rejected(ctx, err)
	}
}

func (s *serverStatus) Failed(ctx context.Context, h wire.Header, err error) {
	s.fail("%s %s failed: %v", h.Kind, h.Name, err)
	if s.next != nil {
		s.next.Failed(ctx, h, err)
	}
}

// progressBar returns a client progress sink drawing to w.  A negative total
// draws a spinner.
func progressBar(w io.Writer) func(name string, total int64) io.Writer {
	return func(name string, total int64) io.Writer {
		return progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(faint(name)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(28),
			progressbar.OptionThrottle(150*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
	}
}
