// Package pathreg implements spec.md §4.4: an ordered longest-prefix
// matcher from a path to a capability bitmask (readable, writable,
// stageable servers).
package pathreg

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/rfsd/rfsd/smask"
)

// PathInfo is the capability triple a matched pattern carries.
type PathInfo struct {
	ROVec smask.Mask
	RWVec smask.Mask
	SSVec smask.Mask
}

// Merge ORs o's vectors into info, used when several servers
// independently declare the same prefix.
func (info *PathInfo) Merge(o PathInfo) {
	info.ROVec = info.ROVec.Or(o.ROVec)
	info.RWVec = info.RWVec.Or(o.RWVec)
	info.SSVec = info.SSVec.Or(o.SSVec)
}

type pattern struct {
	prefix   string
	wildcard bool
	info     PathInfo
}

// Registry is the longest-absolute-prefix matcher. A "/" pattern acts
// as the default when nothing more specific matches. The set of
// prefixes is normally loaded once at startup from config and is then
// read far more often than it is written, but `addpath` (spec.md
// §4.6) does mutate it at runtime under Insert's lock — "immutable
// thereafter" in the Data Model table describes the common case, not
// a hard restriction.
type Registry struct {
	mu       sync.RWMutex
	patterns []pattern
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

func normalizePath(p string) string {
	return norm.NFC.String(p)
}

// splitWildcard strips a trailing "*" and reports whether it was
// present (spec.md §8: "An addpath suffix of * matches as a wildcard
// segment in the registry").
func splitWildcard(prefix string) (string, bool) {
	if strings.HasSuffix(prefix, "*") {
		return strings.TrimSuffix(prefix, "*"), true
	}
	return prefix, false
}

// Insert records a server's claim on prefix: mask's bit is ORed into
// ROVec iff r or w, into RWVec iff w, and into SSVec iff s. It returns the
// merged PathInfo for that prefix after the insert. Inserting the same
// (prefix, mask, r, w, s) twice is idempotent (spec.md §8 law).
func (r *Registry) Insert(prefix string, mask smask.Mask, readable, writable, stageable bool) PathInfo {
	base, wildcard := splitWildcard(normalizePath(prefix))

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(base, wildcard)
	if idx < 0 {
		p := pattern{prefix: base, wildcard: wildcard}
		r.applyClaim(&p.info, mask, readable, writable, stageable)
		r.patterns = append(r.patterns, p)
		r.sortByLengthDesc()
		return p.info
	}
	r.applyClaim(&r.patterns[idx].info, mask, readable, writable, stageable)
	return r.patterns[idx].info
}

func (r *Registry) applyClaim(info *PathInfo, mask smask.Mask, readable, writable, stageable bool) {
	if readable {
		info.ROVec = info.ROVec.Or(mask)
	}
	if writable {
		info.RWVec = info.RWVec.Or(mask)
		info.ROVec = info.ROVec.Or(mask)
	}
	if stageable {
		info.SSVec = info.SSVec.Or(mask)
	}
}

func (r *Registry) indexOf(base string, wildcard bool) int {
	for i, p := range r.patterns {
		if p.prefix == base && p.wildcard == wildcard {
			return i
		}
	}
	return -1
}

func (r *Registry) sortByLengthDesc() {
	sort.SliceStable(r.patterns, func(i, j int) bool {
		return len(r.patterns[i].prefix) > len(r.patterns[j].prefix)
	})
}

// Remove clears mask's bit from every pattern's capability vectors
// (spec.md §4.4 "remove(mask) clears the bit from every pattern").
// Patterns are never deleted, matching the Data Model's "immutable"
// default: a pattern whose capability vectors are all zero still
// matches in Find, which then returns those empty vectors until a
// future addpath repopulates them.
func (r *Registry) Remove(mask smask.Mask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.patterns {
		r.patterns[i].info.ROVec = r.patterns[i].info.ROVec.AndNot(mask)
		r.patterns[i].info.RWVec = r.patterns[i].info.RWVec.AndNot(mask)
		r.patterns[i].info.SSVec = r.patterns[i].info.SSVec.AndNot(mask)
	}
}

// Find returns the PathInfo of the longest matching prefix of path,
// or false if no pattern (not even "/") matches.
func (r *Registry) Find(path string) (PathInfo, bool) {
	path = normalizePath(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patterns {
		if matches(path, p.prefix, p.wildcard) {
			return p.info, true
		}
	}
	return PathInfo{}, false
}

func matches(path, prefix string, wildcard bool) bool {
	if prefix == "" {
		return false
	}
	if wildcard {
		return strings.HasPrefix(path, prefix)
	}
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, prefix+"/")
}

// Prefixes returns the configured prefix strings in longest-first
// match order, for admin/diagnostic listing.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.patterns))
	for i, p := range r.patterns {
		s := p.prefix
		if p.wildcard {
			s += "*"
		}
		out[i] = s
	}
	return out
}
