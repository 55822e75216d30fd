package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rfsd/rfsd/admin"
	"github.com/rfsd/rfsd/cluster"
	"github.com/rfsd/rfsd/config"
	"github.com/rfsd/rfsd/internal/xlog"
	"github.com/rfsd/rfsd/link"
	"github.com/rfsd/rfsd/stats"
	"github.com/rfsd/rfsd/wire"
)

// serverLinks is the manager's registry of bound servers' control
// Links, grounded on the same "copy the fields, work after unlocking"
// convention cluster.Server itself uses (spec.md §5). Each entry also
// carries the channel its ping round trip waits on, since the actual
// `alive` reply arrives asynchronously on the per-server read loop.
type serverLinks struct {
	mu   sync.Mutex
	byID map[int]*serverLink
}

type serverLink struct {
	l       *link.Link
	pending chan struct{}
}

func newServerLinks() *serverLinks {
	return &serverLinks{byID: make(map[int]*serverLink)}
}

func (sl *serverLinks) put(slot int, l *link.Link) {
	sl.mu.Lock()
	sl.byID[slot] = &serverLink{l: l}
	sl.mu.Unlock()
}

func (sl *serverLinks) remove(slot int) {
	sl.mu.Lock()
	delete(sl.byID, slot)
	sl.mu.Unlock()
}

func (sl *serverLinks) get(slot int) (*serverLink, bool) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	e, ok := sl.byID[slot]
	return e, ok
}

// notePingReply wakes up a pending Ping call for slot, if one is
// outstanding.
func (sl *serverLinks) notePingReply(slot int) {
	sl.mu.Lock()
	e, ok := sl.byID[slot]
	sl.mu.Unlock()
	if !ok {
		return
	}
	select {
	case e.pending <- struct{}{}:
	default:
	}
}

// Ping sends a ping and blocks until the alive reply arrives, ctx is
// done, or the link has none outstanding to wait on.
func (sl *serverLinks) Ping(ctx context.Context, srv *cluster.Server) error {
	sl.mu.Lock()
	e, ok := sl.byID[srv.Slot]
	if ok && e.pending == nil {
		e.pending = make(chan struct{}, 1)
	}
	sl.mu.Unlock()
	if !ok {
		return fmt.Errorf("manager: no live link for slot %d", srv.Slot)
	}
	if err := e.l.Send([]byte(wire.PingLine())); err != nil {
		return err
	}
	select {
	case <-e.pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyState implements cluster.StateNotifier by sending the ASCII
// `state <path>` poll down the bound server's control Link (spec.md
// §4.6).
func (sl *serverLinks) NotifyState(srv *cluster.Server, path string) error {
	e, ok := sl.get(srv.Slot)
	if !ok {
		return fmt.Errorf("manager: no live link for slot %d", srv.Slot)
	}
	return e.l.Send([]byte(wire.StateLine(path)))
}

// runManager implements the `-m` mode of spec.md §6's `serverd` CLI:
// accept server logins and maintain the Server Table, Path Registry,
// and Location Cache.
func runManager(cfg config.Settings) error {
	log := xlog.For("cmd.manager")
	links := newServerLinks()
	m := cluster.NewManager(cfg, links)
	ch := admin.New()
	counters := stats.NewCounters(time.Now())

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return err
	}
	log.WithField("port", cfg.Port).Info("manager listening for server logins")

	m.StartMonitoring(links.Ping)

	if cfg.AdminPath != "" {
		go serveAdmin(cfg.AdminPath, ch, log)
	}

	go logStatsPeriodically(m, counters, log)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.WithError(err).Warn("accept failed")
			continue
		}
		counters.LinkOpened()
		go handleServerLogin(m, links, conn, log)
	}
}

func handleServerLogin(m *cluster.Manager, links *serverLinks, conn net.Conn, log *logrus.Entry) {
	l := link.New(conn, nil)
	defer l.Close(false)

	line, err := l.GetLine()
	if err != nil {
		return
	}
	l.SetLine(line)
	if tok := l.GetToken(); tok != "login" {
		return
	}
	var tokens []string
	for {
		tok, rest := l.GetTokenRest()
		if tok == "" {
			break
		}
		tokens = append(tokens, tok)
		l.SetLine(rest)
	}
	login, err := wire.ParseLoginLine(tokens)
	if err != nil || login.Role != "server" {
		log.WithError(err).Debug("rejected non-server login on manager port")
		return
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	srv, err := m.BindServer(host, login.Port)
	if err != nil {
		log.WithError(err).WithField("host", host).Warn("server bind rejected")
		return
	}
	links.put(srv.Slot, l)
	defer links.remove(srv.Slot)
	defer m.Disconnect(srv)

	loginInstance := srv.InstanceID()
	for {
		line, err := l.GetLine()
		if err != nil {
			return
		}
		if !handleServerLine(m, links, srv, loginInstance, line, log) {
			log.WithField("host", host).Warn("stale server instance, dropping connection")
			return
		}
	}
}

// handleServerLine applies one control line from srv's bound link.
// loginInstance is the Server.Instance captured at login time; every
// frame is fenced against it so a stale connection that outlives a
// same-host:port rebind (spec.md's instance-generation fencing
// supplement) is rejected rather than silently accepted.
func handleServerLine(m *cluster.Manager, links *serverLinks, srv *cluster.Server, loginInstance uint64, line string, log *logrus.Entry) bool {
	if srv.InstanceID() != loginInstance {
		return false
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "addpath":
		if len(fields) < 3 {
			return true
		}
		readable, writable, stageable := wire.ParseAddPath(fields[1])
		m.AddPath(srv, fields[2], readable, writable, stageable)
	case "start":
		maxKB, numFS, totKB, err := wire.ParseStartLine(fields[1:])
		if err != nil {
			log.WithError(err).Debug("malformed start line")
			return true
		}
		m.StartServer(srv, maxKB, numFS, totKB)
	case "alive":
		load, freeKB, totalKB, numFS, err := wire.ParseAliveLine(fields[1:])
		if err != nil {
			log.WithError(err).Debug("malformed alive line")
			return true
		}
		srv.ReportUsage(load, freeKB, totalKB, numFS)
		srv.RecordAlive()
		links.notePingReply(srv.Slot)
	case "have", "bounce", "gone":
		reply, err := wire.ParseStateReply(line)
		if err != nil {
			return true
		}
		switch reply.Kind {
		case 'h':
			m.Cache.AddFile(reply.Path, srv.Mask, reply.Mode == 'w', 0)
		case 'b':
			m.Cache.Bounce(reply.Path, srv.Mask)
		case 'g':
			m.Cache.DelFile(reply.Path, srv.Mask, 0)
		}
	}
	return true
}

func serveAdmin(path string, ch *admin.Channel, log *logrus.Entry) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		log.WithError(err).Warn("admin socket listen failed")
		return
	}
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			r := bufio.NewScanner(conn)
			for r.Scan() {
				ack := ch.Dispatch(r.Text())
				_, _ = conn.Write([]byte(ack))
			}
		}()
	}
}

func logStatsPeriodically(m *cluster.Manager, c *stats.Counters, log *logrus.Entry) {
	doc := stats.Document{Version: "1", Source: "manager"}
	for range time.Tick(time.Minute) {
		out := doc.Render(c, stats.Sources{
			Poll: func() int { return m.Cache.Len() },
		})
		log.Debug(out)
	}
}
