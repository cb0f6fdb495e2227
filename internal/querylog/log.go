// Package querylog implements the time-bounded (sourceId, sequence) table
// that suppresses duplicate flood traffic and anchors reverse-path
// routing.
package querylog

import "time"

// TTL is how long a log entry is retained before eviction.
const TTL = 20 * time.Second

// Item records that this node has seen and forwarded a flood originated
// by SourceID with sequence Seq, arriving from UpstreamPeer.
type Item struct {
	UpstreamPeer  uint32
	SourceID      uint32
	Seq           uint32
	InsertionTime time.Time
}

type key struct {
	sourceID uint32
	seq      uint32
}

// Log is the query log. It is not safe for concurrent use; callers hold
// the node's single coarse mutex around all operations.
type Log struct {
	clock   func() time.Time
	entries map[key]Item
	order   []key // insertion order, for cheap oldest-first eviction
}

// New creates an empty query log using the given monotonic clock source,
// kept distinct from the wall clock pull-mode TTR checks use.
func New(clock func() time.Time) *Log {
	return &Log{clock: clock, entries: make(map[key]Item)}
}

// See records (sourceID, seq) as seen-and-forwarded if novel, returning
// true iff it was novel. A message whose sourceID is this node's own id
// is never novel — it is a cycle back to its originator and must be
// dropped.
func (l *Log) See(myID, upstreamPeer, sourceID, seq uint32) bool {
	if sourceID == myID {
		return false
	}
	k := key{sourceID: sourceID, seq: seq}
	if _, seen := l.entries[k]; seen {
		return false
	}
	l.entries[k] = Item{
		UpstreamPeer:  upstreamPeer,
		SourceID:      sourceID,
		Seq:           seq,
		InsertionTime: l.clock(),
	}
	l.order = append(l.order, k)
	return true
}

// UpstreamFor returns the recorded upstream peer for (sourceID, seq) and
// whether an entry exists. Used to reverse-route a response.
func (l *Log) UpstreamFor(sourceID, seq uint32) (uint32, bool) {
	item, ok := l.entries[key{sourceID: sourceID, seq: seq}]
	return item.UpstreamPeer, ok
}

// Evict removes every entry older than TTL. Called at least once per
// event-loop tick.
func (l *Log) Evict() {
	now := l.clock()
	cut := 0
	for _, k := range l.order {
		item, ok := l.entries[k]
		if !ok {
			continue // already removed by a previous partial evict
		}
		if now.Sub(item.InsertionTime) > TTL {
			delete(l.entries, k)
			cut++
			continue
		}
		break // order is insertion order, so entries only get younger from here
	}
	if cut > 0 {
		l.order = l.order[cut:]
	}
}

// Len reports the number of live entries, for metrics.
func (l *Log) Len() int { return len(l.entries) }
