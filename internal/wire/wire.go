// Package wire implements the dkp transfer protocol framing: a single
// newline-terminated command header followed by a raw byte stream that runs
// until the sending side closes.
//
//	SEND:<name>\n<file bytes...>   client uploads a file
//	TAKE:<name>\n                  client requests a file, server answers
//	                               with the raw bytes or with nothing at all
//
// There is no length prefix and no checksum, so a receiver cannot tell a
// truncated stream from a complete one.
package wire

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	// ChunkSize is the payload copy unit used by both peers.
	ChunkSize = 4096
	// MaxHeaderLen is the longest header line accepted, newline included.
	MaxHeaderLen = 4096
	// DefaultPort is the TCP port servers listen on unless told otherwise.
	DefaultPort = 5001
)

// Kind is the header verb.
type Kind string

const (
	Send Kind = "SEND"
	Take Kind = "TAKE"
)

var (
	// ErrProtocol is returned for a malformed or missing header.
	ErrProtocol = errors.New("protocol error")
	// ErrUnsafeName is returned when a name has no usable final path
	// component.
	ErrUnsafeName = errors.New("unsafe file name")
)

// Header is the parsed command line that opens every connection.
type Header struct {
	Kind Kind
	Name string
}

func (h Header) String() string {
	return string(h.Kind) + ":" + h.Name
}

// ─────────────────────────────────────────────────────────────────────────────
// HEADER I/O
// ─────────────────────────────────────────────────────────────────────────────

// ReadHeader reads a header line from r.  It reads one byte at a time, so no
// byte past the newline is consumed and r can be used for the payload
// afterwards.  All failures wrap ErrProtocol.
func ReadHeader(r io.Reader) (Header, error) {
	line, err := readLine(r)
	if err != nil {
		return Header{}, err
	}
	if !utf8.Valid(line) {
		return Header{}, fmt.Errorf("%w: header is not valid UTF-8", ErrProtocol)
	}
	verb, name, ok := strings.Cut(string(line), ":")
	if !ok {
		return Header{}, fmt.Errorf("%w: missing ':' in header %q", ErrProtocol, line)
	}
	switch k := Kind(verb); k {
	case Send, Take:
		return Header{Kind: k, Name: name}, nil
	default:
		return Header{}, fmt.Errorf("%w: unknown command %q", ErrProtocol, verb)
	}
}

func readLine(r io.Reader) ([]byte, error) {
	var (
		line = make([]byte, 0, 64)
		b    [1]byte
	)
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			if b[0] == '\n' {
				return line, nil
			}
			if len(line)+1 >= MaxHeaderLen {
				return nil, fmt.Errorf("%w: header exceeds %d bytes", ErrProtocol, MaxHeaderLen)
			}
			line = append(line, b[0])
			continue
		}
		if err == io.EOF {
			return nil, fmt.Errorf("%w: connection closed before end of header", ErrProtocol)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading header: %w", ErrProtocol, err)
		}
	}
}

// WriteHeader writes h to w as a single "KIND:name\n" write.
func WriteHeader(w io.Writer, h Header) error {
	if h.Kind != Send && h.Kind != Take {
		return fmt.Errorf("%w: unknown command %q", ErrProtocol, h.Kind)
	}
	if strings.ContainsRune(h.Name, '\n') {
		return fmt.Errorf("%w: name contains a newline", ErrProtocol)
	}
	_, err := io.WriteString(w, h.String()+"\n")
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// PAYLOAD
// ─────────────────────────────────────────────────────────────────────────────

// CopyStream copies src to dst in chunks of at most chunkSize bytes until src
// reports io.EOF.  It never holds more than one chunk.  A chunkSize <= 0 means
// ChunkSize.
func CopyStream(dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			if wn != n {
				return written, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// Basename reduces a client-supplied name to its final path component.  Both
// '/' and '\' are separators regardless of the host OS.  Names that reduce to
// nothing, "." or ".." are rejected with ErrUnsafeName.
func Basename(name string) (string, error) {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	switch base {
	case "", ".", "..":
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	if strings.ContainsRune(base, 0) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return base, nil
}
