package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"dkprun/internal/ctxlog"
	"dkprun/internal/wire"
)

// Handle answers a single command on conn and closes it.  Errors are
// reported to the Reporter and never returned.
//
//	ACCEPTED -> HEADER_READ -> RECEIVING | SENDING | NOT_FOUND -> CLOSED
func (s *Server) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	lg := s.lg.With("conn", uuid.NewString()[:8], "remote", conn.RemoteAddr().String())
	ctx = ctxlog.WithLogger(ctx, lg)

	if s.headerTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.headerTimeout)); err != nil {
			s.rep.Rejected(ctx, fmt.Errorf("setting header deadline: %w", err))
			return
		}
	}
	h, err := wire.ReadHeader(conn)
	if err != nil {
		s.rep.Rejected(ctx, err)
		return
	}
	if s.headerTimeout > 0 {
		// the payload must not inherit the header deadline.
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			s.rep.Failed(ctx, h, fmt.Errorf("clearing header deadline: %w", err))
			return
		}
	}
	lg.DebugContext(ctx, "header", "command", h.Kind, "name", h.Name)

	switch h.Kind {
	case wire.Send:
		err = s.receive(ctx, conn, h.Name)
	case wire.Take:
		err = s.send(ctx, conn, h.Name)
	}
	if err != nil {
		s.rep.Failed(ctx, h, err)
	}
}

// resolve confines name to the destination directory.
func (s *Server) resolve(name string) (string, error) {
	base, err := wire.Basename(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, base), nil
}

// receive stores the rest of the stream under name.  The file is created or
// truncated; concurrent uploads of the same name race and the last writer
// wins.  A partially written file is left in place if the stream fails.
func (s *Server) receive(ctx context.Context, conn net.Conn, name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := wire.CopyStream(f, conn, s.chunkSize)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("receiving %s after %d bytes: %w", path, n, err)
	}
	s.rep.Received(ctx, name, path, n)
	return nil
}

// send streams the named file to conn.  A missing file, an unsafe name, or a
// path that is not a regular file all produce an empty response.
func (s *Server) send(ctx context.Context, conn net.Conn, name string) error {
	path, err := s.resolve(name)
	if err != nil {
		s.rep.NotFound(ctx, name)
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.rep.NotFound(ctx, name)
			return nil
		}
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		s.rep.NotFound(ctx, name)
		return nil
	}
	n, err := wire.CopyStream(conn, f, s.chunkSize)
	if err != nil {
		return fmt.Errorf("sending %s after %d bytes: %w", path, n, err)
	}
	s.rep.Served(ctx, name, path, n)
	return nil
}
