package cluster

import (
	"time"

	"github.com/rfsd/rfsd/internal/xerr"
	"github.com/rfsd/rfsd/smask"
)

// SelServer implements spec.md §4.6's placement algorithm end to end:
// path resolution against the Path Registry and Location Cache, the
// bouncing special case, and candidate scoring via Selector.
//
// stageAllowed is the caller's own willingness to stage (e.g. false
// for a plain open-for-read that must already exist); per-server
// no-stage flags are applied inside Selector regardless.
func (m *Manager) SelServer(path string, mode Mode, stageAllowed bool) xerr.Outcome {
	pinfo, matched := m.Paths.Find(path)

	entry, _ := m.Cache.Resolve(path, m.cfg.Delay.Lookup, func() {
		m.broadcastState(path, pinfo)
	})

	if entry.Provisional(time.Now()) {
		return xerr.Retry(int(m.cfg.Delay.Lookup.Seconds()))
	}

	primary := entry.ROVec
	if mode == ModeWrite {
		primary = entry.RWVec
	}

	if !entry.BounceVec.IsZero() && primary.IsZero() {
		m.broadcastBounce(path, entry.BounceVec)
		return xerr.Retry(int(m.cfg.Delay.Servers.Seconds()))
	}

	alternate := pinfo.SSVec.AndNot(entry.ROVec)
	if !matched {
		alternate = smask.Mask{}
	}

	if primary.IsZero() && alternate.IsZero() {
		return xerr.Failure(xerr.CodeNoServer, "no server can ever serve "+path)
	}

	candidates := primary
	requireStage := false
	if candidates.IsZero() {
		if !stageAllowed {
			return xerr.Failure(xerr.CodeNoServer, "staging required but not permitted for "+path)
		}
		candidates = alternate
		requireStage = true
	}

	purpose := PurposeRedirection
	if requireStage {
		purpose = PurposeAllocation
	}

	var servers []*Server
	for _, slot := range candidates.Slots() {
		if srv := m.Table.Get(slot); srv != nil {
			servers = append(servers, srv)
		}
	}

	result := m.Selector.Pick(servers, mode, purpose, requireStage, m.cfg.Space.MinFree)
	switch result.Reason {
	case ReasonOverloaded:
		return xerr.Retry(int(m.cfg.Delay.Full.Seconds()))
	case ReasonSuspended:
		return xerr.Retry(int(m.cfg.Delay.Suspend.Seconds()))
	case ReasonOffline:
		return xerr.Retry(int(m.cfg.Delay.Service.Seconds()))
	case ReasonNoEligible:
		return xerr.Failure(xerr.CodeNoServer, "no eligible server for "+path)
	}

	srv := result.Server
	if purpose == PurposeAllocation {
		srv.BumpRefA()
	} else {
		srv.BumpRefR()
	}
	if mode == ModeWrite {
		srv.AdjustFree(m.cfg.Space.Adjust)
	}

	host, port := srv.HostPort()
	return xerr.Ready(ServerAddr{Host: host, Port: port})
}

// ServerAddr is the payload of a successful SelServer Outcome.
type ServerAddr struct {
	Host string
	Port int
}
