package main

import (
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rfsd/rfsd/config"
	"github.com/rfsd/rfsd/internal/xlog"
	"github.com/rfsd/rfsd/link"
	"github.com/rfsd/rfsd/prepare"
	"github.com/rfsd/rfsd/sched"
	"github.com/rfsd/rfsd/session"
	"github.com/rfsd/rfsd/wire"
)

// runServer implements the `-s` mode of spec.md §6's `serverd` CLI: a
// data server that subscribes to a manager, serves addpath/ping, and
// accepts client connections for the Session Protocol.
func runServer(cfg config.Settings) error {
	log := xlog.For("cmd.server")

	pool := link.NewPool(256)
	bufpool := link.NewBufferPool(nil, 0)
	schedSvc := sched.New("session", cfg.Threads.Server.Min, cfg.Threads.Server.Max)
	asyncQ := session.NewAsyncQueue(schedSvc, cfg.Threads.Server.Max)

	var prepQueue *prepare.Queue
	if cfg.Prep.IFProgram != "" {
		var err error
		prepQueue, err = prepare.New("prepare.db", newExecForwarder(cfg.Prep.IFProgram))
		if err != nil {
			log.WithError(err).Warn("prepare queue unavailable")
		} else {
			prepQueue.SetNotifier(func(req prepare.Request) {
				log.WithFields(logrus.Fields{"reqid": req.ReqID, "path": req.Path, "user": req.User}).
					Info("prepare request completed")
			})
			go scrubPrepareQueue(prepQueue, cfg, log)
		}
	}

	var managerLink *link.Link
	var locator *session.Locator
	if len(cfg.Subscribe) > 0 {
		var err error
		managerLink, err = dialManager(cfg, log)
		if err != nil {
			log.WithError(err).Warn("manager subscription failed, running unmanaged")
		} else {
			locator = session.NewLocator(managerLink)
			go serverControlLoop(managerLink, locator, cfg, log)
		}
	}

	sessCfg := session.Config{
		Backend: session.LocalFS{},
		Rewrite: session.Rewriter{LocalRoot: cfg.LocalRoot, RemoteRoot: cfg.RemoteRoot},
		Locator: locator,
		Prepare: prepQueue,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return err
	}
	log.WithField("port", cfg.Port).Info("data server listening for clients")

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.WithError(err).Warn("accept failed")
			continue
		}
		l := pool.Rebind(conn)
		if l == nil {
			l = link.New(conn, pool)
		}
		c := sessCfg
		c.BufferPool = bufpool
		c.Limiter = rate.NewLimiter(rate.Inf, 1)
		sess := session.New(l, asyncQ, c)
		go sess.Run()
	}
}

// dialManager performs the `server` login handshake of spec.md §4.6:
// login, one addpath line per configured path rule, then start.
//
// cfg.Subscribe is tried in configured order (the `mandlist`
// preferred-manager ordering supplement of SPEC_FULL.md §4): the
// first manager that accepts a TCP connection wins, and later
// entries are only a fallback — this repo does not implement
// multi-manager federation, so there is no tie-break once a
// connection is established.
func dialManager(cfg config.Settings, log *logrus.Entry) (*link.Link, error) {
	var conn net.Conn
	var addr string
	var dialErr error
	for _, addr = range cfg.Subscribe {
		conn, dialErr = net.Dial("tcp", addr)
		if dialErr == nil {
			break
		}
		log.WithError(dialErr).WithField("manager", addr).Debug("manager unreachable, trying next in mandlist")
	}
	if conn == nil {
		return nil, dialErr
	}
	l := link.New(conn, nil)

	login := wire.LoginLine{Username: "server", Role: "server", Port: cfg.Port}
	if err := l.Send([]byte(login.Encode() + "\n")); err != nil {
		return nil, err
	}

	for _, p := range cfg.Paths {
		perm := permString(p.Readable, p.Writable, p.Stageable)
		if err := l.Send([]byte(wire.AddPathLine(perm, p.Prefix))); err != nil {
			return nil, err
		}
	}

	maxKB, totKB, numFS := diskUsage(cfg.CachePaths)
	if err := l.Send([]byte(wire.StartLine(maxKB, numFS, totKB))); err != nil {
		return nil, err
	}

	log.WithField("manager", addr).Info("subscribed to manager")
	return l, nil
}

func permString(readable, writable, stageable bool) string {
	var b strings.Builder
	switch {
	case readable && writable:
		b.WriteString("rw")
	case writable:
		b.WriteString("w")
	default:
		b.WriteString("r")
	}
	if stageable {
		b.WriteString("s")
	}
	return b.String()
}

// diskUsage reports the aggregate free/total space across the
// configured cache paths, sampled with gopsutil's disk.Usage.
func diskUsage(paths []string) (freeKB int64, totalKB int64, numFS int) {
	for _, p := range paths {
		usage, err := disk.Usage(p)
		if err != nil {
			continue
		}
		freeKB += int64(usage.Free / 1024)
		totalKB += int64(usage.Total / 1024)
		numFS++
	}
	if numFS == 0 {
		numFS = 1
	}
	return
}

// sampleLoad blends local CPU/memory/run-queue pressure into a 0..100
// score reported on the "alive" line, driving the by-load SelServer
// policy (spec.md §4.6) whenever cfg.Sched carries nonzero weights.
// IO and Pag have no cheap cross-platform signal via gopsutil and are
// not sampled; they contribute 0 regardless of configured weight.
func sampleLoad(w config.SchedWeights) int {
	total := w.CPU + w.IO + w.Mem + w.Pag + w.RunQ
	if total <= 0 {
		return 0
	}

	var cpuPct, memPct, runqPct float64
	if pcts, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memPct = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		n := float64(runtime.NumCPU())
		if n <= 0 {
			n = 1
		}
		runqPct = (avg.Load1 / n) * 100
		if runqPct > 100 {
			runqPct = 100
		}
	}

	score := (w.CPU*cpuPct + w.Mem*memPct + w.RunQ*runqPct) / total
	switch {
	case score < 0:
		score = 0
	case score > 100:
		score = 100
	}
	return int(score)
}

// serverControlLoop reads the manager's state/ping polls and locate
// replies off the shared control Link, replying on the capability
// data the Path Registry client (this process's own path rules) and
// filesystem can answer directly.
func serverControlLoop(l *link.Link, locator *session.Locator, cfg config.Settings, log *logrus.Entry) {
	defer l.Close(false)
	for {
		line, err := l.GetLine()
		if err != nil {
			log.WithError(err).Info("manager control link closed")
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if _, err := strconv.Atoi(fields[0]); err == nil {
			rest := strings.TrimPrefix(line, fields[0]+" ")
			if err := locator.HandleReply(fields[0], rest); err != nil {
				log.WithError(err).Debug("malformed locate reply")
			}
			continue
		}

		switch fields[0] {
		case "state":
			if len(fields) < 2 {
				continue
			}
			handleStatePoll(l, fields[1], cfg, log)
		case "ping":
			freeKB, totalKB, numFS := diskUsage(cfg.CachePaths)
			_ = l.Send([]byte(wire.AliveLine(sampleLoad(cfg.Sched), freeKB, totalKB, numFS)))
		}
	}
}

// scrubPrepareQueue runs the Prepare Queue's periodic scrub Job
// (spec.md §4.7, cfg.Prep.Scrub), removing entries whose path is
// already resident on this server's backing filesystem and firing the
// queue's completion notifier for the non-quiet ones.
func scrubPrepareQueue(q *prepare.Queue, cfg config.Settings, log *logrus.Entry) {
	if cfg.Prep.Scrub <= 0 {
		return
	}
	rw := session.Rewriter{LocalRoot: cfg.LocalRoot, RemoteRoot: cfg.RemoteRoot}
	present := func(path string) bool {
		local, err := rw.ToLocal(path)
		if err != nil {
			return false
		}
		_, err = (session.LocalFS{}).Stat(local)
		return err == nil
	}
	for range time.Tick(cfg.Prep.Scrub) {
		if n := q.Scrub(present); n > 0 {
			log.WithField("count", n).Debug("prepare scrub removed resident paths")
		}
	}
}

func handleStatePoll(l *link.Link, path string, cfg config.Settings, log *logrus.Entry) {
	local, err := (session.Rewriter{LocalRoot: cfg.LocalRoot, RemoteRoot: cfg.RemoteRoot}).ToLocal(path)
	if err != nil {
		_ = l.Send([]byte(wire.GoneLine(path)))
		return
	}
	if _, err := (session.LocalFS{}).Stat(local); err != nil {
		_ = l.Send([]byte(wire.GoneLine(path)))
		return
	}
	_ = l.Send([]byte(wire.HaveLine('r', path)))
}
