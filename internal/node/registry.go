package node

// Registry owns every live connection: a fixed neighbor slot per
// configured peer id, and an append-only list of transient ad-hoc
// connections used for point-to-point transfers.
//
// Not safe for concurrent use; callers hold the node's single coarse
// mutex.
type Registry struct {
	neighbors map[uint32]*Connection
	adhoc     []*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{neighbors: make(map[uint32]*Connection)}
}

// SetNeighbor installs conn as the slot for id, closing and discarding
// whatever connection (if any) previously occupied that slot. Used for
// both the initial outbound connect and ad-hoc-to-neighbor promotion —
// promotion is exactly an atomic swap-and-destroy of the prior slot.
func (r *Registry) SetNeighbor(id uint32, conn *Connection) {
	if old, ok := r.neighbors[id]; ok && old != conn {
		old.Close()
	}
	r.neighbors[id] = conn
}

// Neighbor returns the slot for id, if occupied.
func (r *Registry) Neighbor(id uint32) (*Connection, bool) {
	c, ok := r.neighbors[id]
	return c, ok
}

// Neighbors returns the live neighbor table, keyed by peer id.
func (r *Registry) Neighbors() map[uint32]*Connection {
	return r.neighbors
}

// RemoveNeighbor drops the slot for id, if occupied, without closing the
// connection — callers that already closed it (or intend to) call this
// purely to forget the table entry.
func (r *Registry) RemoveNeighbor(id uint32) {
	delete(r.neighbors, id)
}

// AddAdHoc appends conn to the ad-hoc list.
func (r *Registry) AddAdHoc(conn *Connection) {
	r.adhoc = append(r.adhoc, conn)
}

// PromoteToNeighbor moves conn from the ad-hoc list (removing it there,
// if present) into the neighbor slot for id, resolving a simultaneous
// mutual-connect race.
func (r *Registry) PromoteToNeighbor(conn *Connection, id uint32) {
	r.removeAdHoc(conn)
	r.SetNeighbor(id, conn)
}

// RemoveAdHoc removes conn from the ad-hoc list, e.g. once its transfer
// session completes or it is promoted.
func (r *Registry) RemoveAdHoc(conn *Connection) {
	r.removeAdHoc(conn)
}

func (r *Registry) removeAdHoc(conn *Connection) {
	for i, c := range r.adhoc {
		if c == conn {
			r.adhoc = append(r.adhoc[:i], r.adhoc[i+1:]...)
			return
		}
	}
}

// AdHoc returns the current ad-hoc connection list.
func (r *Registry) AdHoc() []*Connection {
	return r.adhoc
}

// CloseAll closes every neighbor and ad-hoc connection, for shutdown.
func (r *Registry) CloseAll() {
	for _, c := range r.neighbors {
		c.Close()
	}
	for _, c := range r.adhoc {
		c.Close()
	}
	r.adhoc = nil
}
