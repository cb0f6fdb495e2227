package node

import (
	"time"

	"github.com/meshnode/filemesh/internal/fileindex"
	"github.com/meshnode/filemesh/internal/wire"
)

// HandleRouted dispatches one routed (neighbor-connection) message by
// kind. peerID is the neighbor it arrived from. Callers must hold mu.
func (n *Node) HandleRouted(peerID uint32, hdr wire.Header, kind wire.Kind, payload any) {
	switch kind {
	case wire.NotifyPeerDisconnect:
		n.handleDisconnect(peerID)
	case wire.QueryFileLocation:
		n.handleQueryFileLocation(peerID, hdr, payload.(wire.QueryFileLocationPayload))
	case wire.GiveFileLocation:
		n.handleGiveFileLocation(peerID, hdr, payload.(wire.GiveFileLocationPayload))
	case wire.Invalidate:
		n.handleInvalidate(peerID, hdr, payload.(wire.InvalidatePayload))
	case wire.QueryValid:
		n.handleQueryValid(peerID, hdr, payload.(wire.QueryValidPayload))
	case wire.ResponseValid:
		n.handleResponseValid(peerID, hdr, payload.(wire.ResponseValidPayload))
	case wire.TestQuery:
		n.handleTestQuery(peerID, hdr)
	case wire.TestResponse:
		n.handleTestResponse(peerID, hdr)
	default:
		n.logger.Warn("unknown routed message kind", "peer", peerID, "kind", int32(kind))
		n.metrics.MessagesDropped.WithLabelValues("unknown_kind").Inc()
	}
}

// handleDisconnect closes exactly the neighbor slot matching the
// sender, rather than every slot that happens to reference the same
// connection pointer.
func (n *Node) handleDisconnect(peerID uint32) {
	if conn, ok := n.registry.Neighbor(peerID); ok {
		conn.Close()
		n.registry.RemoveNeighbor(peerID)
	}
	n.logger.Info("neighbor disconnected", "peer", peerID)
}

func (n *Node) handleQueryFileLocation(peerID uint32, hdr wire.Header, p wire.QueryFileLocationPayload) {
	if n.index.Search(p.Filename, time.Now().Unix()) {
		response := wire.Header{DestID: hdr.SourceID, SourceID: hdr.SourceID, Seq: hdr.Seq, TTL: 0}
		n.sendToPeer(peerID, response, wire.GiveFileLocation, wire.GiveFileLocationPayload{
			Filename: p.Filename, HolderID: n.myID,
		})
		return
	}
	n.forwardFlood(peerID, hdr, wire.QueryFileLocation, p)
}

func (n *Node) handleGiveFileLocation(peerID uint32, hdr wire.Header, p wire.GiveFileLocationPayload) {
	if hdr.DestID != n.myID {
		n.sendReverse(wire.Header{DestID: hdr.DestID, SourceID: hdr.SourceID, Seq: hdr.Seq, TTL: 0},
			wire.GiveFileLocation, p)
		return
	}
	if _, pending := n.pendingRequests[p.Filename]; !pending {
		return // duplicate GIVE_FILE_LOCATION for the same filename: first wins
	}
	delete(n.pendingRequests, p.Filename)

	conn, err := n.dialDescriptor(p.HolderID)
	if err != nil {
		n.logger.Warn("failed to connect to file holder", "holder", p.HolderID, "error", err)
		return
	}
	n.registry.AddAdHoc(conn)
	if err := wire.WriteAdHoc(conn, wire.RequestFile, wire.RequestFilePayload{Filename: p.Filename}); err != nil {
		n.logger.Warn("REQUEST_FILE send failed", "holder", p.HolderID, "error", err)
		return
	}
	n.watchAdHoc(conn)
	n.logger.Info("file found, requesting download", "filename", p.Filename, "holder", p.HolderID)
}

func (n *Node) handleInvalidate(peerID uint32, hdr wire.Header, p wire.InvalidatePayload) {
	if n.index.Mode() != fileindex.Push {
		return
	}
	n.forwardFlood(peerID, hdr, wire.Invalidate, p, func() {
		n.index.ApplyInvalidate(p.Filename, p.Version)
		n.metrics.CacheTransitions.WithLabelValues("invalidated").Inc()
	})
}

func (n *Node) handleQueryValid(peerID uint32, hdr wire.Header, p wire.QueryValidPayload) {
	if hdr.DestID == n.myID {
		f, ok := n.index.Get(p.Filename)
		if !ok {
			return
		}
		response := wire.Header{DestID: hdr.SourceID, SourceID: hdr.SourceID, Seq: hdr.Seq, TTL: 0}
		n.sendToPeer(peerID, response, wire.ResponseValid, wire.ResponseValidPayload{
			Filename: p.Filename, MasterVersion: f.MasterVersion,
		})
		return
	}
	n.forwardFlood(peerID, hdr, wire.QueryValid, p)
}

func (n *Node) handleResponseValid(peerID uint32, hdr wire.Header, p wire.ResponseValidPayload) {
	if hdr.DestID != n.myID {
		n.sendReverse(wire.Header{DestID: hdr.DestID, SourceID: hdr.SourceID, Seq: hdr.Seq, TTL: 0},
			wire.ResponseValid, p)
		return
	}
	becameValid := n.index.ApplyResponseValid(p.Filename, p.MasterVersion, time.Now().Unix())
	if becameValid {
		n.metrics.CacheTransitions.WithLabelValues("confirmed_valid").Inc()
		n.logger.Info("file confirmed valid", "filename", p.Filename)
	} else {
		n.metrics.CacheTransitions.WithLabelValues("confirmed_stale").Inc()
		n.logger.Info("file is out of date", "filename", p.Filename)
	}
}

func (n *Node) handleTestQuery(peerID uint32, hdr wire.Header) {
	if hdr.DestID == n.myID {
		response := wire.Header{DestID: hdr.SourceID, SourceID: hdr.SourceID, Seq: hdr.Seq, TTL: 0}
		n.sendToPeer(peerID, response, wire.TestResponse, wire.Empty{})
		return
	}
	n.forwardFlood(peerID, hdr, wire.TestQuery, wire.Empty{})
}

func (n *Node) handleTestResponse(peerID uint32, hdr wire.Header) {
	if hdr.DestID != n.myID {
		n.sendReverse(wire.Header{DestID: hdr.DestID, SourceID: hdr.SourceID, Seq: hdr.Seq, TTL: 0},
			wire.TestResponse, wire.Empty{})
		return
	}
	if n.pendingResponses == 0 {
		return
	}
	n.pendingResponses--
	if n.pendingResponses == 0 {
		elapsed := time.Since(n.testStart)
		n.metrics.TestResponseLatency.Observe(elapsed.Seconds())
		n.logger.Info("test response time", "elapsed", elapsed)
	}
}

// forwardFlood applies the query-log dedup + TTL-decay gate shared by
// every flood-kind message, rebroadcasting on success. onNovel, if given,
// runs once the message is confirmed novel but before the per-neighbor
// rate limit is consulted — for local state updates (e.g. applying an
// INVALIDATE) that must happen regardless of whether forwarding onward
// is itself rate-limited.
func (n *Node) forwardFlood(peerID uint32, hdr wire.Header, kind wire.Kind, payload any, onNovel ...func()) {
	if hdr.TTL == 0 {
		return
	}
	if !n.qlog.See(n.myID, peerID, hdr.SourceID, hdr.Seq) {
		n.metrics.DuplicatesDropped.WithLabelValues(kind.String()).Inc()
		return
	}
	for _, f := range onNovel {
		f()
	}
	if !n.limiterFor(peerID).Allow() {
		n.metrics.MessagesDropped.WithLabelValues("rate_limited").Inc()
		return
	}
	n.broadcastFlood(wire.Header{DestID: hdr.DestID, SourceID: hdr.SourceID, Seq: hdr.Seq, TTL: hdr.TTL - 1},
		kind, payload, peerID)
	n.metrics.MessagesForwarded.WithLabelValues(kind.String()).Inc()
}

// sendToPeer writes directly to the connection for peerID rather than
// through the registry-wide broadcast helper; used for the single-hop
// reply a matching node sends back to the neighbor a query arrived
// from (it is the correct reverse hop by construction: the query log
// entry for this flow was just written, or never needed, since this is
// the very first hop).
func (n *Node) sendToPeer(peerID uint32, hdr wire.Header, kind wire.Kind, payload any) {
	conn, ok := n.registry.Neighbor(peerID)
	if !ok {
		return
	}
	if err := wire.WriteRouted(conn, hdr, kind, payload); err != nil {
		n.logger.Warn("send failed", "peer", peerID, "kind", kind, "error", err)
	}
}
