package link

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
)

// ErrShortLine is returned by GetLine when a logical line exceeds the
// bounded internal buffer (spec.md §4.1).
var ErrShortLine = errors.New("link: short line buffer exceeded")

const maxLineLen = 4096

// Link owns one accepted or connected socket: a buffered line/token
// reader and a serialized, retrying writer. A Link is safe for
// concurrent Send calls (the per-link lock); GetLine/GetToken are not
// meant to be called concurrently with each other since they share
// read-side cursor state, matching the teacher's single-reader,
// single-owning-thread convention for a connection.
type Link struct {
	conn   net.Conn
	reader *bufio.Reader

	sendMu sync.Mutex

	tokLine string
	tokRest string

	closeOnce sync.Once
	closed    bool

	pool *Pool
}

// New wraps conn in a Link. pool may be nil.
func New(conn net.Conn, pool *Pool) *Link {
	return &Link{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, maxLineLen),
		pool:   pool,
	}
}

// Addr returns the remote address of the underlying socket, or "" if
// the Link has been closed and recycled.
func (l *Link) Addr() string {
	if l.conn == nil {
		return ""
	}
	return l.conn.RemoteAddr().String()
}

// GetLine returns one logical, newline-terminated ASCII line with the
// trailing newline stripped. Every error closes the Link: io.EOF is
// returned verbatim on a clean disconnect (a zero-byte read), a line
// that overruns the internal buffer yields ErrShortLine, and any other
// read error is returned as is.
func (l *Link) GetLine() (string, error) {
	raw, err := l.reader.ReadSlice('\n')
	line := string(raw)
	if err != nil {
		if err == io.EOF && line == "" {
			l.Close(false)
			return "", io.EOF
		}
		if isBufferFull(err) {
			l.Close(false)
			return "", ErrShortLine
		}
		l.Close(false)
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func isBufferFull(err error) bool {
	return errors.Is(err, bufio.ErrBufferFull)
}

// ReadFull reads exactly len(buf) bytes, for the client protocol's
// fixed binary headers and payloads (spec.md §6). Any error closes the
// Link, mirroring GetLine.
func (l *Link) ReadFull(buf []byte) error {
	_, err := io.ReadFull(l.reader, buf)
	if err != nil {
		l.Close(false)
		return err
	}
	return nil
}

// SetLine makes line (typically one already fetched with GetLine) the
// current line that GetToken and GetTokenRest split into whitespace
// delimited tokens, one per call, returning "" once exhausted.
func (l *Link) SetLine(line string) {
	l.tokLine = line
	l.tokRest = line
}

// GetToken returns the next whitespace-delimited token from the
// current line.
func (l *Link) GetToken() string {
	tok, rest := splitToken(l.tokRest)
	l.tokRest = rest
	return tok
}

// GetTokenRest returns the next token and the unconsumed remainder of
// the line (mirroring the teacher idiom getToken(&rest) for commands
// whose final argument may itself contain spaces, e.g. an admin
// message body).
func (l *Link) GetTokenRest() (string, string) {
	tok, rest := splitToken(l.tokRest)
	l.tokRest = rest
	return tok, rest
}

func splitToken(s string) (tok string, rest string) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return "", ""
	}
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t")
}

// Send atomically writes bytes to the socket. Concurrent senders are
// serialized by the Link's own lock; on a partial write Send retries
// until complete or the socket fails.
func (l *Link) Send(b []byte) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	for len(b) > 0 {
		n, err := l.conn.Write(b)
		if err != nil {
			l.Close(false)
			return err
		}
		b = b[n:]
	}
	return nil
}

// SendVector writes a net.Buffers (scatter/gather write) atomically,
// used by the readv fast path to coalesce several response segments
// into one reply batch (spec.md §4.8).
func (l *Link) SendVector(iov net.Buffers) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	_, err := iov.WriteTo(l.conn)
	if err != nil {
		l.Close(false)
		return err
	}
	return nil
}

// Close closes the underlying socket. If defer_ is true the Link
// retains its framing buffers so it can later be handed to Recycle;
// otherwise the Link is fully torn down.
func (l *Link) Close(defer_ bool) error {
	var err error
	l.closeOnce.Do(func() {
		l.closed = true
		err = l.conn.Close()
	})
	if !defer_ {
		l.reader = nil
	}
	return err
}

// Closed reports whether the Link has been closed.
func (l *Link) Closed() bool { return l.closed }

// Recycle returns the Link to its Pool, if any, for reuse by a future
// connection. Excess Links beyond the pool's bound are left for the
// garbage collector.
func (l *Link) Recycle() {
	if l.pool == nil {
		return
	}
	l.pool.put(l)
}

// Pool bounds the number of retained, recyclable Links.
type Pool struct {
	mu      sync.Mutex
	maxLink int
	free    []*Link
}

// NewPool builds a Pool bounded to maxLink retained Links.
func NewPool(maxLink int) *Pool {
	return &Pool{maxLink: maxLink}
}

func (p *Pool) put(l *Link) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.maxLink {
		return
	}
	p.free = append(p.free, l)
}

// Rebind pulls a recycled Link out of the pool (if any) and rebinds
// it to a new socket, reusing its framing buffers. Returns nil if the
// pool is empty.
func (p *Pool) Rebind(conn net.Conn) *Link {
	p.mu.Lock()
	var l *Link
	if n := len(p.free); n > 0 {
		l = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()
	if l == nil {
		return nil
	}
	l.conn = conn
	l.reader.Reset(conn)
	l.closed = false
	l.closeOnce = sync.Once{}
	return l
}
