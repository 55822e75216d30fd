// Package prepare implements spec.md §4.7: a durable queue of
// outstanding stage-in requests, forwarded to an external prepare-IF
// program and mirrored locally so the selector can answer "is this
// file on the way" without talking to the IF on every lookup.
package prepare

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/rfsd/rfsd/internal/xlog"
)

const bucketName = "prepare"

// ErrIFDown is returned by Add while the external prepare-IF program
// is known to be unreachable (spec.md §4.7 "Failure"). The queue
// starts accepting adds again only after the next successful Reset.
var ErrIFDown = errors.New("prepare: IF program unavailable")

// Request is one outstanding stage-in, durable across restarts.
type Request struct {
	ReqID    string    `json:"reqid"`
	User     string    `json:"user"`
	Priority int       `json:"priority"` // 0-3, highest first (SPEC_FULL.md §4)
	Mode     string    `json:"mode"`     // raw w|r|n|q flags (spec.md §9)
	Path     string    `json:"path"`
	Info     []byte    `json:"info,omitempty"` // opaque client info, passed through uninterpreted
	Quiet    bool      `json:"quiet"`          // q flag: suppress the completion notify
	Queued   time.Time `json:"queued"`
}

// Forwarder is the external prepare-IF program collaborator: Add
// submits a new stage-in, FullList asks for everything still
// outstanding (the Reset re-sync).
type Forwarder interface {
	Add(req Request) error
	Cancel(reqid string) error
	FullList() ([]Request, error)
}

// Queue is the durable, priority-indexed stage-in table.
type Queue struct {
	log *logrus.Entry

	db        *bolt.DB
	forwarder Forwarder

	mu     sync.Mutex
	byID   map[string]Request
	byPath map[string]string // path -> reqid, for exists()/gone()
	ifDown bool

	notify func(Request)
}

// SetNotifier installs the callback invoked when a request completes
// (Scrub finds its path resident), skipped entirely for quiet (`q`)
// requests — spec.md §9 "q (quiet) suppresses the ack broadcast".
func (q *Queue) SetNotifier(fn func(Request)) {
	q.mu.Lock()
	q.notify = fn
	q.mu.Unlock()
}

// New opens (or creates) the bbolt-backed queue at dbPath and loads
// any requests persisted from a prior run.
func New(dbPath string, forwarder Forwarder) (*Queue, error) {
	db, err := bolt.Open(dbPath, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "prepare: opening queue db %q", dbPath)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists([]byte(bucketName))
		return e
	})
	if err != nil {
		return nil, errors.Wrap(err, "prepare: initializing bucket")
	}

	q := &Queue{
		log:       xlog.For("prepare.queue"),
		db:        db,
		forwarder: forwarder,
		byID:      make(map[string]Request),
		byPath:    make(map[string]string),
	}
	if err := q.loadFromDisk(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) loadFromDisk() error {
	return q.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.ForEach(func(k, v []byte) error {
			var req Request
			if err := json.Unmarshal(v, &req); err != nil {
				return errors.Wrapf(err, "prepare: decoding persisted request %q", string(k))
			}
			q.byID[req.ReqID] = req
			q.byPath[req.Path] = req.ReqID
			return nil
		})
	})
}

func (q *Queue) persist(req Request) error {
	encoded, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "prepare: encoding request")
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(req.ReqID), encoded)
	})
}

func (q *Queue) persistDelete(reqid string) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(reqid))
	})
}

// Add forwards req to the external IF program and inserts it into the
// local table. It fails with ErrIFDown if the IF is currently known
// unreachable (spec.md §4.7 "Failure"). info is carried through
// uninterpreted (spec.md §9); quiet marks a `q`-flagged request whose
// completion never fires the notify callback.
func (q *Queue) Add(reqid, user string, prty int, mode, path string, info []byte, quiet bool) error {
	q.mu.Lock()
	down := q.ifDown
	q.mu.Unlock()
	if down {
		return ErrIFDown
	}

	req := Request{ReqID: reqid, User: user, Priority: prty, Mode: mode, Path: path, Info: info, Quiet: quiet, Queued: time.Now()}
	if q.forwarder != nil {
		if err := q.forwarder.Add(req); err != nil {
			q.mu.Lock()
			q.ifDown = true
			q.mu.Unlock()
			q.log.WithError(err).Warn("prepare-IF unreachable, queue closed to new adds")
			return ErrIFDown
		}
	}

	if err := q.persist(req); err != nil {
		return err
	}
	q.mu.Lock()
	q.byID[reqid] = req
	q.byPath[path] = reqid
	q.mu.Unlock()
	return nil
}

// Del cancels and removes reqid.
func (q *Queue) Del(reqid string) error {
	q.mu.Lock()
	req, ok := q.byID[reqid]
	q.mu.Unlock()
	if !ok {
		return nil
	}

	if q.forwarder != nil {
		if err := q.forwarder.Cancel(reqid); err != nil {
			q.log.WithError(err).WithField("reqid", reqid).Warn("prepare-IF cancel failed")
		}
	}
	if err := q.persistDelete(reqid); err != nil {
		return err
	}

	q.mu.Lock()
	delete(q.byID, reqid)
	if q.byPath[req.Path] == reqid {
		delete(q.byPath, req.Path)
	}
	q.mu.Unlock()
	return nil
}

// Exists reports whether path has an outstanding stage-in, the
// selector's "is this file on the way" question (spec.md §4.7).
func (q *Queue) Exists(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byPath[path]
	return ok
}

// Gone removes path's entry asynchronously, when a server reports the
// file is no longer resident (spec.md §4.7).
func (q *Queue) Gone(path string) {
	q.mu.Lock()
	reqid, ok := q.byPath[path]
	q.mu.Unlock()
	if !ok {
		return
	}
	if err := q.Del(reqid); err != nil {
		q.log.WithError(err).WithField("path", path).Warn("gone: failed to clear prepare entry")
	}
}

// Reset re-syncs with the external IF by asking for its full
// outstanding list, replacing the local table and clearing the
// IF-down flag on success (spec.md §4.7: "restarted by the next
// scrub cycle").
func (q *Queue) Reset() error {
	if q.forwarder == nil {
		q.mu.Lock()
		q.ifDown = false
		q.mu.Unlock()
		return nil
	}

	list, err := q.forwarder.FullList()
	if err != nil {
		q.mu.Lock()
		q.ifDown = true
		q.mu.Unlock()
		return errors.Wrap(err, "prepare: reset failed")
	}

	if err := q.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		nb, err := tx.CreateBucket([]byte(bucketName))
		if err != nil {
			return err
		}
		for _, req := range list {
			encoded, err := json.Marshal(req)
			if err != nil {
				return err
			}
			if err := nb.Put([]byte(req.ReqID), encoded); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "prepare: persisting reset list")
	}

	q.mu.Lock()
	q.byID = make(map[string]Request, len(list))
	q.byPath = make(map[string]string, len(list))
	for _, req := range list {
		q.byID[req.ReqID] = req
		q.byPath[req.Path] = req.ReqID
	}
	q.ifDown = false
	q.mu.Unlock()
	return nil
}

// Scrub stats each pending path against the live filesystem (via
// present, supplied by the session/backing-filesystem layer) and
// removes those already resident. It returns the number removed. If
// the IF is marked down, Scrub first tries to restart it via Reset.
// Periodic Job (spec.md §4.7).
func (q *Queue) Scrub(present func(path string) bool) int {
	q.mu.Lock()
	down := q.ifDown
	q.mu.Unlock()
	if down {
		if err := q.Reset(); err != nil {
			q.log.WithError(err).Debug("prepare IF still unavailable")
		}
	}

	q.mu.Lock()
	reqs := make([]Request, 0, len(q.byID))
	for _, req := range q.byID {
		reqs = append(reqs, req)
	}
	notify := q.notify
	q.mu.Unlock()

	removed := 0
	for _, req := range reqs {
		if !present(req.Path) {
			continue
		}
		if err := q.Del(req.ReqID); err != nil {
			continue
		}
		removed++
		if notify != nil && !req.Quiet {
			notify(req)
		}
	}
	return removed
}

// List returns the outstanding requests ordered by descending
// priority then queue time, for inspection
// (SPEC_FULL.md §4 "priority re-queueing": a reporting-only ordering,
// forwarding itself stays FIFO).
func (q *Queue) List() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, 0, len(q.byID))
	for _, req := range q.byID {
		out = append(out, req)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Queued.Before(out[j].Queued)
	})
	return out
}

// Len reports the number of outstanding requests, for the summary
// statistics document.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}

// Close closes the underlying database file.
func (q *Queue) Close() error {
	return q.db.Close()
}
