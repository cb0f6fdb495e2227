// Package node implements the overlay router, cache-coherence engine,
// command interface, and event loop: the component that ties the wire
// codec, connection registry, query log, file index, and transfer
// sessions together into one running peer.
package node

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/meshnode/filemesh/internal/config"
	"github.com/meshnode/filemesh/internal/fileindex"
	"github.com/meshnode/filemesh/internal/metrics"
	"github.com/meshnode/filemesh/internal/querylog"
	"github.com/meshnode/filemesh/internal/transfer"
	"github.com/meshnode/filemesh/internal/wire"
)

// floodRateLimit bounds how many flood-kind messages this node will
// rebroadcast per neighbor per second. A novel flood message that arrives
// once the neighbor's bucket is empty is still logged (and its local
// state update still applied), but it is dropped rather than
// rebroadcast.
const floodRateLimit = 50

// Node is one overlay peer: the shared state guarded by mu, plus the
// collaborators it coordinates. All mutation of the fields below must
// happen with mu held — a single coarse mutex rather than fine-grained
// per-table locks.
type Node struct {
	mu sync.Mutex

	myID uint32
	cfg  *config.Config

	registry *Registry
	qlog     *querylog.Log
	index    *fileindex.Index

	sequence         uint32
	pendingRequests  map[string]struct{}
	pendingResponses int
	testStart        time.Time

	sessions map[string]*transfer.Session
	workDir  string

	limiters map[uint32]*rate.Limiter

	timeToExit bool

	logger  *slog.Logger
	metrics *metrics.Metrics

	// inbox receives decoded messages from every connection's reader
	// goroutine; the event loop goroutine is the sole consumer and the
	// sole holder of mu while processing them.
	inbox chan inboundMessage
	// newConns notifies the event loop of connections it did not itself
	// accept or dial synchronously (ad-hoc connections opened mid-flight
	// by the router, e.g. after GIVE_FILE_LOCATION) so it can start a
	// reader goroutine for them too.
	newConns chan *Connection
}

// New constructs a Node for myID in the given consistency mode, serving
// and receiving files from workDir.
func New(cfg *config.Config, myID uint32, mode fileindex.Mode, workDir string, logger *slog.Logger, m *metrics.Metrics) *Node {
	return &Node{
		myID:            myID,
		cfg:             cfg,
		registry:        NewRegistry(),
		qlog:            querylog.New(time.Now),
		index:           fileindex.New(mode, myID),
		pendingRequests: make(map[string]struct{}),
		sessions:        make(map[string]*transfer.Session),
		limiters:        make(map[uint32]*rate.Limiter),
		workDir:         workDir,
		logger:          logger,
		metrics:         m,
		inbox:           make(chan inboundMessage, 64),
		newConns:        make(chan *Connection, 16),
	}
}

func (n *Node) nextSeq() uint32 {
	n.sequence++
	return n.sequence
}

// limiterFor returns (creating if needed) the flood-forward token
// bucket for the neighbor peerID arrived from.
func (n *Node) limiterFor(peerID uint32) *rate.Limiter {
	l, ok := n.limiters[peerID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(floodRateLimit), floodRateLimit)
		n.limiters[peerID] = l
	}
	return l
}

// broadcastFlood sends a routed message to every neighbor except
// exceptID (the flood-forwarding rule). except=myID is used by the
// command interface, which has no inbound neighbor to exclude.
func (n *Node) broadcastFlood(hdr wire.Header, kind wire.Kind, payload any, exceptID uint32) {
	for id, conn := range n.registry.Neighbors() {
		if id == exceptID {
			continue
		}
		if err := wire.WriteRouted(conn, hdr, kind, payload); err != nil {
			n.logger.Warn("flood send failed", "neighbor", id, "kind", kind, "error", err)
		}
	}
}

// sendReverse forwards a response-kind message to the single upstream
// neighbor recorded in the query log for (sourceId, seq); if no entry
// matches, the message is dropped.
func (n *Node) sendReverse(hdr wire.Header, kind wire.Kind, payload any) {
	upstream, ok := n.qlog.UpstreamFor(hdr.SourceID, hdr.Seq)
	if !ok {
		n.metrics.MessagesDropped.WithLabelValues("no_log_entry").Inc()
		return
	}
	conn, ok := n.registry.Neighbor(upstream)
	if !ok {
		n.metrics.MessagesDropped.WithLabelValues("upstream_gone").Inc()
		return
	}
	if err := wire.WriteRouted(conn, hdr, kind, payload); err != nil {
		n.logger.Warn("reverse-path send failed", "neighbor", upstream, "kind", kind, "error", err)
	}
}

// dialDescriptor opens a TCP connection to the node directory entry id.
func (n *Node) dialDescriptor(id uint32) (*Connection, error) {
	desc, ok := n.cfg.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("node: %d is not in the node directory", id)
	}
	return dial(desc)
}

// Close broadcasts a disconnect notification to every neighbor, then
// releases all connections. Safe to call without already holding mu;
// the "exit" command path (commands.go) calls closeLocked directly since
// HandleCommand already holds it.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closeLocked()
}

func (n *Node) closeLocked() {
	hdr := wire.Header{DestID: 0, SourceID: n.myID, Seq: n.nextSeq(), TTL: 5}
	n.broadcastFlood(hdr, wire.NotifyPeerDisconnect, wire.Empty{}, n.myID)
	n.registry.CloseAll()
	n.timeToExit = true
}

// TimeToExit reports whether the "exit" command or Close has run.
func (n *Node) TimeToExit() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.timeToExit
}
