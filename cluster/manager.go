package cluster

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rfsd/rfsd/config"
	"github.com/rfsd/rfsd/internal/xlog"
	"github.com/rfsd/rfsd/loccache"
	"github.com/rfsd/rfsd/pathreg"
	"github.com/rfsd/rfsd/sched"
	"github.com/rfsd/rfsd/smask"
)

// StateNotifier is implemented by whatever owns the wire connection
// to a bound server (the session/admin layer); Manager calls it to
// issue the ASCII control messages of spec.md §6 without needing to
// know about Link framing itself.
type StateNotifier interface {
	// NotifyState asks srv to report what it knows about path
	// ("state <path>").
	NotifyState(srv *Server, path string) error
}

// Manager is the orchestrator of spec.md §4.6: it accepts logins,
// binds servers into the Table, drives monitoring, and implements
// SelServer.
type Manager struct {
	log *logrus.Entry
	cfg config.Settings

	Table    *Table
	Paths    *pathreg.Registry
	Cache    *loccache.Cache
	Sched    *sched.Scheduler
	Notify   StateNotifier
	Selector Selector
}

// NewManager wires a Manager from its collaborators. notify may be
// nil in tests that never exercise broadcast.
func NewManager(cfg config.Settings, notify StateNotifier) *Manager {
	m := &Manager{
		log:    xlog.For("cluster.manager"),
		cfg:    cfg,
		Table:  NewTable(),
		Paths:  pathreg.New(),
		Cache:  loccache.New(),
		Sched:  sched.New("cluster", cfg.Threads.Manager.Min, cfg.Threads.Manager.Max),
		Notify: notify,
	}
	m.Selector = NewSelector(cfg.Sched)
	return m
}

// BindServer runs the Table.Login step of the `server` login protocol
// (spec.md §4.6).
func (m *Manager) BindServer(host string, port int) (*Server, error) {
	srv, err := m.Table.Login(host, port)
	if err != nil {
		m.log.WithError(err).WithField("host", host).Warn("server login rejected")
		return nil, err
	}
	m.log.WithFields(logrus.Fields{"host": host, "port": port, "slot": srv.Slot}).Info("server bound")
	return srv, nil
}

// AddPath records srv's claim on prefix (an `addpath <perm> <prefix>`
// line) and returns the cached paths matching prefix that need a
// `state <path>` seed broadcast to the newly-bound server (spec.md
// §4.6).
func (m *Manager) AddPath(srv *Server, prefix string, readable, writable, stageable bool) []string {
	m.Paths.Insert(prefix, srv.Mask, readable, writable, stageable)
	matches := m.Cache.Extract(prefix)
	if m.Notify != nil {
		for _, p := range matches {
			if err := m.Notify.NotifyState(srv, p); err != nil {
				m.log.WithError(err).WithField("path", p).Warn("state seed failed")
			}
		}
	}
	return matches
}

// StartServer records the `start <maxKB> <numFS> <totKB>` line that
// completes a server login.
func (m *Manager) StartServer(srv *Server, maxKB int64, numFS int, totKB int64) {
	srv.ReportUsage(0, maxKB, totKB, numFS)
}

// Disconnect marks srv offline and schedules its drop after
// cfg.Delay.Drop, unless it reconnects under the same Instance first
// (spec.md §4.6 "Drop loop").
func (m *Manager) Disconnect(srv *Server) {
	srv.SetFlags(func(f *Flags) { f.Offline = true; f.Bound = false })
	instanceAtDisconnect := srv.Instance
	deadline := time.Now().Add(m.cfg.Delay.Drop)
	srv.mu.Lock()
	srv.DropDeadline = deadline
	srv.mu.Unlock()

	m.Sched.ScheduleAt(sched.JobFunc(func() {
		srv.mu.Lock()
		same := srv.Instance == instanceAtDisconnect
		stillOffline := srv.Flags.Offline
		slot := srv.Slot
		srv.mu.Unlock()
		if same && stillOffline {
			m.Table.Release(slot)
			m.log.WithField("slot", slot).Info("server slot released after drop delay")
		}
	}), deadline)
}

// broadcastState fans the `state <path>` message out to every server
// capable of serving path (spec.md §4.6), concurrently via
// errgroup — grounded on backend/raid3's errgroup fan-out across
// striped remotes.
func (m *Manager) broadcastState(path string, info pathreg.PathInfo) {
	if m.Notify == nil {
		return
	}
	targets := info.ROVec.Or(info.SSVec)
	var g errgroup.Group
	for _, srv := range m.Table.All() {
		srv := srv
		if !targets.Test(srv.Slot) {
			continue
		}
		if !srv.GetFlags().Bound {
			continue
		}
		g.Go(func() error {
			return m.Notify.NotifyState(srv, path)
		})
	}
	if err := g.Wait(); err != nil {
		m.log.WithError(err).WithField("path", path).Debug("state broadcast had failures")
	}
}

// broadcastBounce targets just the bouncing servers (spec.md §4.6
// "Bouncing").
func (m *Manager) broadcastBounce(path string, bounce smask.Mask) {
	if m.Notify == nil {
		return
	}
	for _, srv := range m.Table.All() {
		if !bounce.Test(srv.Slot) {
			continue
		}
		srv := srv
		go func() {
			if err := m.Notify.NotifyState(srv, path); err != nil {
				m.log.WithError(err).Debug("bounce re-poll failed")
			}
		}()
	}
}

// PingSweep walks the Table and issues ping/usage to every bound
// server concurrently, declaring dead any server that misses two
// consecutive replies (spec.md §4.6 "Ping loop"). pinger is supplied
// by the caller (the session/admin layer owns the actual wire round
// trip); PingSweep only owns the fan-out, scoring, and drop logic.
func (m *Manager) PingSweep(ctx context.Context, pinger func(ctx context.Context, srv *Server) error) {
	var g errgroup.Group
	for _, srv := range m.Table.All() {
		srv := srv
		if !srv.GetFlags().Bound {
			continue
		}
		g.Go(func() error {
			err := pinger(ctx, srv)
			if err != nil {
				if srv.RecordPingMiss() {
					srv.SetFlags(func(f *Flags) { f.Offline = true })
					m.log.WithField("slot", srv.Slot).Warn("server declared dead: two missed pings")
					m.Disconnect(srv)
				}
				return nil
			}
			srv.RecordAlive()
			return nil
		})
	}
	_ = g.Wait()
}

// ResetRefCounts runs the periodic reference-reset sweep (spec.md
// §4.6 "Reference reset").
func (m *Manager) ResetRefCounts() {
	for _, srv := range m.Table.All() {
		srv.ResetRefs()
	}
}

// StartMonitoring schedules the ping, reference-reset, and
// location-cache scrub periodic Jobs on the Manager's Scheduler.
func (m *Manager) StartMonitoring(pinger func(ctx context.Context, srv *Server) error) {
	var pingJob sched.JobFunc
	pingJob = func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Ping.Interval)
		m.PingSweep(ctx, pinger)
		cancel()
		m.Sched.ScheduleAfter(pingJob, m.cfg.Ping.Interval)
	}
	m.Sched.ScheduleAfter(pingJob, m.cfg.Ping.Interval)

	var resetJob sched.JobFunc
	resetJob = func() {
		m.ResetRefCounts()
		m.Sched.ScheduleAfter(resetJob, m.cfg.Sched.RefReset)
	}
	m.Sched.ScheduleAfter(resetJob, m.cfg.Sched.RefReset)

	var scrubJob sched.JobFunc
	scrubJob = func() {
		m.Cache.Scrub(m.cfg.FXHold)
		m.Sched.ScheduleAfter(scrubJob, m.cfg.FXHold)
	}
	m.Sched.ScheduleAfter(scrubJob, m.cfg.FXHold)
}
