// Package fileindex implements the two-partition file catalog — master
// entries this node owns, and copy entries cached from elsewhere — and
// the cache-coherence metadata attached to each.
package fileindex

// Mode selects which cache-consistency protocol governs copy entries.
type Mode int

const (
	Push Mode = iota // origin pushes INVALIDATE on modify
	Pull             // consumer polls with QUERY_VALID against TTR
)

// Info is the cache-coherence record for one filename. Invariants:
//   - Push mode: IsValid == (Version == MasterVersion); TTR, LastValidTime,
//     DidQuery are unused.
//   - Pull mode: IsValid is authoritative.
//   - Master entries: Version == MasterVersion always, OriginServer == myID.
type Info struct {
	Name          string
	OriginServer  uint32
	Version       int32
	MasterVersion int32
	IsValid       bool
	TTR           uint32
	LastValidTime int64 // wall-clock seconds, pull mode only
	DidQuery      bool  // pull mode only: a QUERY_VALID is in flight
}

// Index holds the master and copy partitions. Not safe for concurrent
// use; callers hold the node's single coarse mutex.
type Index struct {
	mode   Mode
	myID   uint32
	master map[string]*Info
	copies map[string]*Info
}

// New creates an empty index for myID operating in the given mode.
func New(mode Mode, myID uint32) *Index {
	return &Index{
		mode:   mode,
		myID:   myID,
		master: make(map[string]*Info),
		copies: make(map[string]*Info),
	}
}

func (ix *Index) Mode() Mode { return ix.mode }

// AddMaster registers a new file owned by this node (the `addfile`
// command).
func (ix *Index) AddMaster(name string, now int64) *Info {
	f := &Info{
		Name:          name,
		OriginServer:  ix.myID,
		Version:       0,
		MasterVersion: 0,
		IsValid:       true,
		TTR:           0,
		LastValidTime: now,
	}
	ix.master[name] = f
	return f
}

// AddCopy installs (or replaces) a copy entry, typically after a
// completed download (NOTIFY_STARTING_TRANSFER handling).
func (ix *Index) AddCopy(f Info) *Info {
	cp := f
	ix.copies[f.Name] = &cp
	return &cp
}

// Get returns the Info for name, checking master first then copies, and
// whether it was found.
func (ix *Index) Get(name string) (*Info, bool) {
	if f, ok := ix.master[name]; ok {
		return f, true
	}
	if f, ok := ix.copies[name]; ok {
		return f, true
	}
	return nil, false
}

// IsMaster reports whether name is a master (not copy) entry.
func (ix *Index) IsMaster(name string) bool {
	_, ok := ix.master[name]
	return ok
}

// Search reports whether name can be served locally: true if name is a
// master entry (refreshing its LastValidTime as a side effect) or a copy
// entry that satisfies the serving criterion for the active mode.
func (ix *Index) Search(name string, now int64) bool {
	if f, ok := ix.master[name]; ok {
		f.LastValidTime = now
		return true
	}
	f, ok := ix.copies[name]
	if !ok {
		return false
	}
	if ix.mode == Push {
		return f.Version == f.MasterVersion
	}
	return f.IsValid
}

// ApplyInvalidate updates every copy entry named name to MasterVersion =
// version (push mode's INVALIDATE handling). The Version==MasterVersion
// invariant then renders a stale copy invalid.
// Applying the same invalidation twice is idempotent: MasterVersion is
// simply overwritten with the same value.
func (ix *Index) ApplyInvalidate(name string, version int32) {
	if f, ok := ix.copies[name]; ok {
		f.MasterVersion = version
		if ix.mode == Push {
			f.IsValid = f.Version == f.MasterVersion
		}
	}
}

// ApplyResponseValid updates a copy entry after a RESPONSE_VALID
// (pull mode). Applying the same response twice cannot revert IsValid
// from true back to false: the second application re-derives the same
// comparison, so IsValid stays true and DidQuery stays false; only
// LastValidTime moves forward to the second call's now.
func (ix *Index) ApplyResponseValid(name string, masterVersion int32, now int64) (becameValid bool) {
	f, ok := ix.copies[name]
	if !ok {
		return false
	}
	f.MasterVersion = masterVersion
	if f.Version == f.MasterVersion {
		f.LastValidTime = now
		f.IsValid = true
		f.DidQuery = false
		return true
	}
	f.IsValid = false
	return false
}

// ModifyMaster increments a master entry's version (and masterVersion,
// which always tracks it for master entries) for the `modifyfile`
// command.
func (ix *Index) ModifyMaster(name string) (*Info, bool) {
	f, ok := ix.master[name]
	if !ok {
		return nil, false
	}
	f.Version++
	f.MasterVersion++
	return f, true
}

// Master returns every master entry, for `printfiles`.
func (ix *Index) Master() []*Info { return values(ix.master) }

// Copies returns every copy entry, for `printfiles` and TTR sweeps.
func (ix *Index) Copies() []*Info { return values(ix.copies) }

func values(m map[string]*Info) []*Info {
	out := make([]*Info, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
