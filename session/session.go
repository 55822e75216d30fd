package session

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rfsd/rfsd/internal/xerr"
	"github.com/rfsd/rfsd/internal/xlog"
	"github.com/rfsd/rfsd/link"
	"github.com/rfsd/rfsd/prepare"
	"github.com/rfsd/rfsd/wire"
)

// State is one step of the per-client state machine of spec.md §4.8.
type State int

const (
	StateHello State = iota
	StateLogin
	StateAuthContinue
	StateActive
	StateClosed
)

// AuthProtocol is the opaque auth delegate named in spec.md §4.8
// ("the protocol is opaque to the session — it is delegated to an
// auth protocol object").
type AuthProtocol interface {
	// Required reports whether this login needs an AuthContinue
	// round trip at all.
	Required(login wire.LoginLine) bool
	// Start returns the first challenge params to send the client.
	Start(login wire.LoginLine) (params []byte, err error)
	// Continue processes one client credential blob, returning
	// either more params (done=false) or a final verdict (done=true,
	// ok reports success).
	Continue(creds []byte) (params []byte, done bool, ok bool, err error)
}

// protocolVersion is sent verbatim in the Hello line.
const protocolVersion = 1

// Notifier is how a Session reports connect/disconnect to whatever
// owns the cluster-side bookkeeping (cluster.Manager in the data
// server's wiring), kept as an interface here to avoid an import
// cycle back into cluster.
type Notifier interface {
	SessionClosed(sessionID string, username string)
}

// Session is one client's state machine and request dispatcher
// (spec.md §4.8).
type Session struct {
	log *logrus.Entry
	id  string

	link    *link.Link
	backend Backend
	rewrite Rewriter
	bufpool *link.BufferPool
	handles *handleTable
	async   *AsyncQueue
	auth    AuthProtocol
	locator *Locator
	prep    *prepare.Queue
	notify  Notifier
	limiter *rate.Limiter

	state    State
	username string
	noStage  bool
	suspend  bool
}

// Config groups the construction-time collaborators a Session needs.
// The async queue itself is passed separately to New since it is
// normally shared across every session a listener accepts.
type Config struct {
	Backend    Backend
	Rewrite    Rewriter
	BufferPool *link.BufferPool
	Auth       AuthProtocol // nil means no auth required
	Locator    *Locator     // nil if this server never redirects
	Prepare    *prepare.Queue
	Notify     Notifier
	// Limiter throttles this session's request rate; nil means
	// unthrottled. Shared limiters across sessions are fine since
	// rate.Limiter is safe for concurrent use.
	Limiter *rate.Limiter
}

// New builds a Session bound to l, ready to run its state machine.
func New(l *link.Link, q *AsyncQueue, cfg Config) *Session {
	return &Session{
		log:     xlog.For("session").WithField("remote", l.Addr()),
		id:      uuid.NewString(),
		link:    l,
		backend: cfg.Backend,
		rewrite: cfg.Rewrite,
		bufpool: cfg.BufferPool,
		handles: newHandleTable(),
		async:   q,
		auth:    cfg.Auth,
		locator: cfg.Locator,
		prep:    cfg.Prepare,
		notify:  cfg.Notify,
		limiter: cfg.Limiter,
		state:   StateHello,
	}
}

// Run drives the session end to end: Hello, Login, optional
// AuthContinue, then the Active dispatch loop until the link closes
// or a protocol violation tears the session down (spec.md §4.8).
func (s *Session) Run() {
	defer s.teardown()

	login, err := s.runHello()
	if err != nil {
		s.log.WithError(err).Debug("session ended during hello/login")
		return
	}
	s.username = login.Username
	s.noStage = login.NoStage
	s.suspend = login.Suspend

	if s.auth != nil && s.auth.Required(login) {
		if err := s.runAuthContinue(login); err != nil {
			s.log.WithError(err).Debug("session ended during auth")
			return
		}
	}

	s.state = StateActive
	s.runActive()
}

func (s *Session) teardown() {
	s.state = StateClosed
	s.handles.ReleaseAll()
	_ = s.link.Close(true)
	s.link.Recycle()
	if s.notify != nil {
		s.notify.SessionClosed(s.id, s.username)
	}
}

func (s *Session) runHello() (wire.LoginLine, error) {
	s.state = StateHello
	if err := s.link.Send([]byte(fmt.Sprintf("hello %d\n", protocolVersion))); err != nil {
		return wire.LoginLine{}, errors.Wrap(err, "session: sending hello")
	}

	s.state = StateLogin
	line, err := s.link.GetLine()
	if err != nil {
		return wire.LoginLine{}, err
	}
	s.link.SetLine(line)
	if tok := s.link.GetToken(); tok != "login" {
		s.sendProtoError("expected login")
		return wire.LoginLine{}, fmt.Errorf("session: expected login, got %q", tok)
	}
	var tokens []string
	for {
		tok, rest := s.link.GetTokenRest()
		if tok == "" {
			break
		}
		tokens = append(tokens, tok)
		s.link.SetLine(rest)
	}
	login, err := wire.ParseLoginLine(tokens)
	if err != nil {
		s.sendProtoError("malformed login")
		return wire.LoginLine{}, err
	}
	return login, nil
}

func (s *Session) runAuthContinue(login wire.LoginLine) error {
	s.state = StateAuthContinue
	params, err := s.auth.Start(login)
	if err != nil {
		return err
	}
	for {
		if err := s.link.Send(append([]byte("continue "), params...)); err != nil {
			return err
		}
		line, err := s.link.GetLine()
		if err != nil {
			return err
		}
		next, done, ok, err := s.auth.Continue([]byte(line))
		if err != nil {
			return err
		}
		if done {
			if !ok {
				_ = s.link.Send([]byte("error auth denied\n"))
				return errors.New("session: authentication denied")
			}
			return s.link.Send([]byte("ok\n"))
		}
		params = next
	}
}

func (s *Session) sendProtoError(msg string) {
	_ = s.link.Send([]byte("error " + msg + "\n"))
}

// runActive is the binary request-dispatch loop of spec.md §4.8
// Active: fixed header, then dlen payload bytes, then a dispatched
// reply.
func (s *Session) runActive() {
	header := make([]byte, wire.ReqHeaderLen)
	for {
		if err := s.link.ReadFull(header); err != nil {
			return
		}
		req, err := wire.DecodeReqHeader(header)
		if err != nil {
			s.sendProtoError("bad header")
			return
		}

		payload := s.bufpool.Obtain(int(req.Dlen))
		if err := s.link.ReadFull(payload); err != nil {
			s.bufpool.Release(payload)
			return
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(context.Background()); err != nil {
				s.bufpool.Release(payload)
				return
			}
		}
		s.dispatch(req, payload)
		s.bufpool.Release(payload)
	}
}

func (s *Session) dispatch(req wire.ReqHeader, payload []byte) {
	var outcome xerr.Outcome
	switch req.Opcode {
	case wire.OpOpen:
		outcome = s.handleOpen(req, payload)
	case wire.OpClose:
		outcome = s.handleClose(req)
	case wire.OpRead:
		s.handleRead(req)
		return
	case wire.OpReadV:
		s.handleReadV(req, payload)
		return
	case wire.OpWrite:
		s.handleWrite(req, payload)
		return
	case wire.OpPreread:
		s.handlePreread(req)
		return
	case wire.OpSync:
		outcome = s.handleSync(req)
	case wire.OpStat:
		outcome = s.handleStat(req, payload)
	case wire.OpMkdir:
		outcome = s.handleMkdir(req, payload)
	case wire.OpMv:
		outcome = s.handleMv(req, payload)
	case wire.OpRm:
		outcome = s.handleRm(req, payload)
	case wire.OpRmdir:
		outcome = s.handleRmdir(req, payload)
	case wire.OpChmod:
		outcome = s.handleChmod(req, payload)
	case wire.OpLocate:
		outcome = s.handleLocate(req, payload)
	case wire.OpPrepare:
		outcome = s.handlePrepare(req, payload)
	case wire.OpAdminQuery:
		outcome = s.handleAdminQuery(req, payload)
	default:
		outcome = xerr.Failure(xerr.CodeInvalidRequest, "unrecognized opcode")
	}
	s.reply(req.StreamID, outcome)
}

// reply frames outcome as a RespHeader plus optional payload and
// sends it (spec.md §7 translated onto the wire).
func (s *Session) reply(streamID uint16, outcome xerr.Outcome) {
	var status wire.Status
	var body []byte
	switch outcome.Kind {
	case xerr.KindReady:
		status = wire.StatusOK
		if b, ok := outcome.Payload.([]byte); ok {
			body = b
		}
	case xerr.KindRetry:
		status = wire.StatusWait
		body = []byte(fmt.Sprintf("%d", outcome.Seconds))
	case xerr.KindRedirect:
		status = wire.StatusRedirect
		body = []byte(fmt.Sprintf("%s:%d", outcome.Host, outcome.Port))
	default:
		status = wire.StatusError
		body = []byte(fmt.Sprintf("%d %s", outcome.Code, outcome.Text))
	}
	hdr := wire.RespHeader{StreamID: streamID, Status: status, Dlen: uint32(len(body))}
	_ = s.link.Send(hdr.Encode())
	if len(body) > 0 {
		_ = s.link.Send(body)
	}
}

func (s *Session) sendAsync(code wire.AsyncCode, body []byte) {
	hdr := wire.AsyncHeader{Code: code, Dlen: uint32(len(body))}
	_ = s.link.Send(hdr.Encode())
	if len(body) > 0 {
		_ = s.link.Send(body)
	}
}

func (s *Session) toLocal(clientPath string) (string, xerr.Outcome) {
	local, err := s.rewrite.ToLocal(clientPath)
	if err != nil {
		return "", xerr.FromFSError(clientPath, err)
	}
	return local, xerr.Ready(nil)
}

// OpenFlags mirrors the create/truncate/update bits a client's open
// request may carry (spec.md §4.8 "Open").
type OpenFlags struct {
	Create   bool
	Truncate bool
	Update   bool
}

func flagsToOS(f OpenFlags) int {
	flags := os.O_RDONLY
	if f.Update {
		flags = os.O_RDWR
	}
	if f.Create {
		flags |= os.O_CREATE
	}
	if f.Truncate {
		flags |= os.O_TRUNC
	}
	return flags
}

func (s *Session) handleOpen(req wire.ReqHeader, payload []byte) xerr.Outcome {
	clientPath := string(payload)
	local, outcome := s.toLocal(clientPath)
	if !outcome.IsReady() {
		return outcome
	}
	flags := OpenFlags{
		Create:   req.Params[0] != 0,
		Truncate: req.Params[1] != 0,
		Update:   req.Params[2] != 0,
	}
	f, err := s.backend.Open(local, flagsToOS(flags), 0644)
	if err != nil {
		return xerr.FromFSError(clientPath, err)
	}
	handle := s.handles.Insert(local, f)
	buf := make([]byte, 4)
	buf[0] = byte(handle >> 24)
	buf[1] = byte(handle >> 16)
	buf[2] = byte(handle >> 8)
	buf[3] = byte(handle)
	return xerr.Ready(buf)
}

func handleFromParams(params [16]byte) uint32 {
	return uint32(params[0])<<24 | uint32(params[1])<<16 | uint32(params[2])<<8 | uint32(params[3])
}

func (s *Session) handleClose(req wire.ReqHeader) xerr.Outcome {
	handle := handleFromParams(req.Params)
	if err := s.handles.Release(handle); err != nil {
		return xerr.Failure(xerr.CodeInvalidRequest, err.Error())
	}
	return xerr.Ready(nil)
}

// readOffsetLen decodes the offset/length pair that follows the
// 4-byte handle in every read/write/readv segment's params
// (bytes[0:4]=handle, [4:8]=offset-hi, [8:12]=offset-lo,
// [12:16]=length; spec.md §6 "64-bit offsets ... paired 32-bit
// halves").
func readOffsetLen(params [16]byte) (offset int64, length int) {
	hi := uint32(params[4])<<24 | uint32(params[5])<<16 | uint32(params[6])<<8 | uint32(params[7])
	lo := uint32(params[8])<<24 | uint32(params[9])<<16 | uint32(params[10])<<8 | uint32(params[11])
	offset = int64(wire.JoinPair64(hi, lo))
	length = int(uint32(params[12])<<24 | uint32(params[13])<<16 | uint32(params[14])<<8 | uint32(params[15]))
	return
}

// handleRead implements spec.md §4.8's synchronous/async read path:
// if the async queue has room the read runs on the Scheduler and
// replies later; otherwise it performs a bounded blocking read and
// replies inline. Either way the handle is fenced with Begin/End so a
// Close racing the deferred read still lets the read complete against
// the real fd, but discards its reply instead of sending it (spec.md
// §4.8's weak-handle discard-on-close invariant).
func (s *Session) handleRead(req wire.ReqHeader) {
	handle := handleFromParams(req.Params)
	offset, length := readOffsetLen(req.Params)

	f, path, err := s.handles.Begin(handle)
	if err != nil {
		s.reply(req.StreamID, xerr.Failure(xerr.CodeInvalidRequest, err.Error()))
		return
	}

	doRead := func() xerr.Outcome {
		buf := s.bufpool.Obtain(length)
		n, err := f.ReadAt(buf, offset)
		if err != nil && n == 0 {
			s.bufpool.Release(buf)
			return xerr.FromFSError(path, err)
		}
		out := append([]byte(nil), buf[:n]...)
		s.bufpool.Release(buf)
		return xerr.Ready(out)
	}

	complete := func() {
		outcome := doRead()
		if s.handles.End(handle) {
			return
		}
		s.reply(req.StreamID, outcome)
	}

	if s.async != nil && s.async.TryEnqueue(complete) {
		return
	}
	complete()
}

// handleReadV implements the vector read of spec.md §4.8: each
// segment is framed as its own response sharing the request's stream
// id, then coalesced into one scatter/gather write via
// Link.SendVector.
func (s *Session) handleReadV(req wire.ReqHeader, payload []byte) {
	const segLen = 16
	var headers [][]byte
	var bodies [][]byte
	for off := 0; off+segLen <= len(payload); off += segLen {
		var params [16]byte
		copy(params[:], payload[off:off+segLen])
		handle := handleFromParams(params)
		offset, length := readOffsetLen(params)

		f, path, err := s.handles.Get(handle)
		if err != nil {
			resp := wire.RespHeader{StreamID: req.StreamID, Status: wire.StatusError, Dlen: 0}
			headers = append(headers, resp.Encode())
			continue
		}
		buf := s.bufpool.Obtain(length)
		n, readErr := f.ReadAt(buf, offset)
		if readErr != nil && n == 0 {
			s.bufpool.Release(buf)
			_ = xerr.FromFSError(path, readErr)
			resp := wire.RespHeader{StreamID: req.StreamID, Status: wire.StatusError, Dlen: 0}
			headers = append(headers, resp.Encode())
			continue
		}
		body := append([]byte(nil), buf[:n]...)
		s.bufpool.Release(buf)
		resp := wire.RespHeader{StreamID: req.StreamID, Status: wire.StatusOK, Dlen: uint32(len(body))}
		headers = append(headers, resp.Encode())
		bodies = append(bodies, body)
	}

	var iov net.Buffers
	bi := 0
	for _, h := range headers {
		iov = append(iov, h)
		if bi < len(bodies) {
			iov = append(iov, bodies[bi])
			bi++
		}
	}
	_ = s.link.SendVector(iov)
}

// handlePreread implements spec.md §4.8's "Pre-reads are advisory
// hints with no reply": a best-effort readahead that never sends a
// response frame, on success or failure. It runs on the async queue
// when that has room, and inline otherwise.
func (s *Session) handlePreread(req wire.ReqHeader) {
	handle := handleFromParams(req.Params)
	offset, length := readOffsetLen(req.Params)

	f, _, err := s.handles.Begin(handle)
	if err != nil {
		return
	}
	hint := func() {
		buf := s.bufpool.Obtain(length)
		_, _ = f.ReadAt(buf, offset)
		s.bufpool.Release(buf)
		s.handles.End(handle)
	}
	if s.async != nil && s.async.TryEnqueue(hint) {
		return
	}
	hint()
}

// handleWrite mirrors handleRead's synchronous/async split: writes are
// part of spec.md's general async completion model (§4.8), not scoped
// to reads only. An async write owns a private copy of payload since
// runActive releases the Link's buffer back to the pool as soon as
// dispatch returns, well before a deferred write would run.
func (s *Session) handleWrite(req wire.ReqHeader, payload []byte) {
	handle := handleFromParams(req.Params)
	offset, _ := readOffsetLen(req.Params)

	f, path, err := s.handles.Begin(handle)
	if err != nil {
		s.reply(req.StreamID, xerr.Failure(xerr.CodeInvalidRequest, err.Error()))
		return
	}

	doWrite := func(buf []byte) xerr.Outcome {
		at := offset
		for len(buf) > 0 {
			n, werr := f.WriteAt(buf, at)
			if werr != nil {
				return xerr.FromFSError(path, werr)
			}
			buf = buf[n:]
			at += int64(n)
		}
		return xerr.Ready(nil)
	}

	complete := func(buf []byte) {
		outcome := doWrite(buf)
		if s.handles.End(handle) {
			return
		}
		s.reply(req.StreamID, outcome)
	}

	if s.async != nil {
		owned := append([]byte(nil), payload...)
		if s.async.TryEnqueue(func() { complete(owned) }) {
			return
		}
	}
	complete(payload)
}

func (s *Session) handleSync(req wire.ReqHeader) xerr.Outcome {
	handle := handleFromParams(req.Params)
	f, path, err := s.handles.Get(handle)
	if err != nil {
		return xerr.Failure(xerr.CodeInvalidRequest, err.Error())
	}
	if err := f.Sync(); err != nil {
		return xerr.FromFSError(path, err)
	}
	return xerr.Ready(nil)
}

func (s *Session) handleStat(req wire.ReqHeader, payload []byte) xerr.Outcome {
	clientPath := string(payload)
	local, outcome := s.toLocal(clientPath)
	if !outcome.IsReady() {
		return outcome
	}
	info, err := s.backend.Stat(local)
	if err != nil {
		return xerr.FromFSError(clientPath, err)
	}
	return xerr.Ready(encodeStat(info))
}

func encodeStat(info FileInfo) []byte {
	return []byte(fmt.Sprintf("%d %d %v", info.Size, info.ModTime, info.IsDir))
}

func (s *Session) handleMkdir(req wire.ReqHeader, payload []byte) xerr.Outcome {
	clientPath := string(payload)
	local, outcome := s.toLocal(clientPath)
	if !outcome.IsReady() {
		return outcome
	}
	if err := s.backend.Mkdir(local, 0755); err != nil {
		return xerr.FromFSError(clientPath, err)
	}
	return xerr.Ready(nil)
}

func splitTwoPaths(payload []byte) (string, string) {
	for i, b := range payload {
		if b == 0 {
			return string(payload[:i]), string(payload[i+1:])
		}
	}
	return string(payload), ""
}

func (s *Session) handleMv(req wire.ReqHeader, payload []byte) xerr.Outcome {
	oldClient, newClient := splitTwoPaths(payload)
	oldLocal, outcome := s.toLocal(oldClient)
	if !outcome.IsReady() {
		return outcome
	}
	newLocal, outcome := s.toLocal(newClient)
	if !outcome.IsReady() {
		return outcome
	}
	if err := s.backend.Rename(oldLocal, newLocal); err != nil {
		return xerr.FromFSError(oldClient, err)
	}
	return xerr.Ready(nil)
}

func (s *Session) handleRm(req wire.ReqHeader, payload []byte) xerr.Outcome {
	clientPath := string(payload)
	local, outcome := s.toLocal(clientPath)
	if !outcome.IsReady() {
		return outcome
	}
	if err := s.backend.Remove(local); err != nil {
		return xerr.FromFSError(clientPath, err)
	}
	return xerr.Ready(nil)
}

func (s *Session) handleRmdir(req wire.ReqHeader, payload []byte) xerr.Outcome {
	clientPath := string(payload)
	local, outcome := s.toLocal(clientPath)
	if !outcome.IsReady() {
		return outcome
	}
	if err := s.backend.RemoveDir(local); err != nil {
		return xerr.FromFSError(clientPath, err)
	}
	return xerr.Ready(nil)
}

func (s *Session) handleChmod(req wire.ReqHeader, payload []byte) xerr.Outcome {
	clientPath := string(payload)
	local, outcome := s.toLocal(clientPath)
	if !outcome.IsReady() {
		return outcome
	}
	mode := os.FileMode(req.Params[0])<<8 | os.FileMode(req.Params[1])
	if err := s.backend.Chmod(local, mode); err != nil {
		return xerr.FromFSError(clientPath, err)
	}
	return xerr.Ready(nil)
}

func (s *Session) handleLocate(req wire.ReqHeader, payload []byte) xerr.Outcome {
	if s.locator == nil {
		return xerr.Failure(xerr.CodeInternal, "this server does not redirect")
	}
	clientPath := string(payload)
	mode := byte('r')
	if req.Params[0] != 0 {
		mode = 'w'
	}
	reply, err := s.locator.Locate(clientPath, mode, !s.noStage, 15*time.Second)
	if err != nil {
		return xerr.Retry(5)
	}
	switch {
	case reply.Try != "":
		host, port := splitHostPort(reply.Try)
		return xerr.Redirect(host, port)
	case reply.Wait > 0:
		return xerr.Retry(reply.Wait)
	default:
		return xerr.Failure(xerr.CodeNotFound, reply.Err)
	}
}

func splitHostPort(hostport string) (string, int) {
	for i := len(hostport) - 1; i >= 0; i-- {
		if hostport[i] == ':' {
			var port int
			fmt.Sscanf(hostport[i+1:], "%d", &port)
			return hostport[:i], port
		}
	}
	return hostport, 0
}

// prepareModeFlags are the bits a client sets in Params[1] of an
// OpPrepare request (spec.md §9 "prepare mode flags mix w|r|n|q with
// priority").
const (
	prepFlagWrite byte = 1 << iota
	prepFlagRead
	prepFlagNone
	prepFlagQuiet
)

// decodePrepareMode turns a client's raw mode-flags byte into the
// recorded mode string and the quiet bit (spec.md §9), defaulting to
// "n" (none) when no flag is set.
func decodePrepareMode(flags byte) (mode string, quiet bool) {
	var b []byte
	if flags&prepFlagWrite != 0 {
		b = append(b, 'w')
	}
	if flags&prepFlagRead != 0 {
		b = append(b, 'r')
	}
	if flags&prepFlagNone != 0 || len(b) == 0 {
		b = append(b, 'n')
	}
	if flags&prepFlagQuiet != 0 {
		b = append(b, 'q')
		quiet = true
	}
	return string(b), quiet
}

// splitPathInfo separates a prepare request's payload into the
// client path and its trailing opaque info blob, delimited by a
// single NUL byte. info is carried through uninterpreted end to end
// (DESIGN.md's Open Question decision for `prepare.Request.Info`).
func splitPathInfo(payload []byte) (path string, info []byte) {
	for i, b := range payload {
		if b == 0 {
			return string(payload[:i]), append([]byte(nil), payload[i+1:]...)
		}
	}
	return string(payload), nil
}

func (s *Session) handlePrepare(req wire.ReqHeader, payload []byte) xerr.Outcome {
	if s.prep == nil {
		return xerr.Failure(xerr.CodeInternal, "prepare queue not available")
	}
	clientPath, info := splitPathInfo(payload)
	reqid := uuid.NewString()
	prty := int(req.Params[0])
	mode, quiet := decodePrepareMode(req.Params[1])
	if err := s.prep.Add(reqid, s.username, prty, mode, clientPath, info, quiet); err != nil {
		return xerr.Retry(30)
	}
	return xerr.Ready([]byte(reqid))
}

func (s *Session) handleAdminQuery(req wire.ReqHeader, payload []byte) xerr.Outcome {
	return xerr.Ready([]byte(fmt.Sprintf("open=%d async=%d", s.handles.Len(), s.async.InFlight())))
}

// ID is the session's identity for admin target resolution and
// notification (spec.md §4.9).
func (s *Session) ID() string { return s.id }

// Host returns the remote address string admin verbs match targets
// against (spec.md §4.9 "targets are resolved ... by host-name or
// IP").
func (s *Session) Host() string { return s.link.Addr() }

// Username is the login name the client authenticated with.
func (s *Session) Username() string { return s.username }

// SendAsync lets the admin channel push an unsolicited async frame to
// this session's client: a wire.AsyncHeader followed by body. Replies
// to the session's own async reads and writes use the ordinary
// response header instead.
func (s *Session) SendAsync(code wire.AsyncCode, body []byte) error {
	hdr := wire.AsyncHeader{Code: code, Dlen: uint32(len(body))}
	if err := s.link.Send(hdr.Encode()); err != nil {
		return err
	}
	if len(body) > 0 {
		return s.link.Send(body)
	}
	return nil
}

// Disconnect forcibly closes the underlying link, for the admin
// "disc" verb.
func (s *Session) Disconnect() {
	_ = s.link.Close(true)
}

// ServedPaths lists the local paths currently open under this
// session's handle table, for the admin "lsd" verb (SPEC_FULL.md §4).
func (s *Session) ServedPaths() []string {
	return s.handles.Paths()
}
