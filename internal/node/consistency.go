package node

import (
	"time"

	"github.com/meshnode/filemesh/internal/wire"
)

// checkAllTTR implements the pull-mode half of the consistency engine:
// for every copy entry whose refresh interval has elapsed and that
// doesn't already have a validation in flight, mark it as querying and
// broadcast QUERY_VALID to its origin. Callers must hold mu.
func (n *Node) checkAllTTR() {
	now := time.Now().Unix()
	for _, f := range n.index.Copies() {
		if now < f.LastValidTime+int64(f.TTR) || f.DidQuery {
			continue
		}
		f.DidQuery = true
		hdr := wire.Header{DestID: f.OriginServer, SourceID: n.myID, Seq: n.nextSeq(), TTL: 20}
		n.broadcastFlood(hdr, wire.QueryValid, wire.QueryValidPayload{Filename: f.Name}, n.myID)
		n.logger.Info("TTR expired, sent validation request", "filename", f.Name)
	}
}
