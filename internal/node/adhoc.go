package node

import (
	"github.com/meshnode/filemesh/internal/fileindex"
	"github.com/meshnode/filemesh/internal/transfer"
	"github.com/meshnode/filemesh/internal/wire"
)

// HandleAdHoc dispatches one ad-hoc (point-to-point connection) message
// by kind. It reports whether conn is done and should be dropped from
// the ad-hoc list (either promoted to a neighbor slot, or its transfer
// session finished/failed). Callers must hold mu.
func (n *Node) HandleAdHoc(conn *Connection, kind wire.Kind, payload any) (done bool) {
	switch kind {
	case wire.ConnectAsNeighbor:
		p := payload.(wire.ConnectAsNeighborPayload)
		n.registry.PromoteToNeighbor(conn, p.SenderID)
		n.logger.Info("ad-hoc connection promoted to neighbor", "peer", p.SenderID)
		return true
	case wire.RequestFile:
		n.handleRequestFile(conn, payload.(wire.RequestFilePayload))
		return false
	case wire.NotifyStartingTransfer:
		n.handleNotifyStartingTransfer(conn, payload.(wire.NotifyStartingTransferPayload))
		return false
	case wire.GiveFilePortion:
		return n.handleGiveFilePortion(conn, payload.(wire.GiveFilePortionPayload))
	case wire.FileNotFound:
		p := payload.(wire.FileNotFoundPayload)
		n.logger.Info("file not found at holder", "filename", p.Filename)
		return true
	default:
		n.logger.Warn("unknown ad-hoc message kind", "kind", int32(kind))
		n.metrics.MessagesDropped.WithLabelValues("unknown_kind").Inc()
		return false
	}
}

// handleRequestFile serves a REQUEST_FILE: if the filename is not known
// locally (or cannot be read), reply FILE_NOT_FOUND, close the
// connection and drop it from the ad-hoc list; otherwise announce and
// stream the erasure-coded shards.
func (n *Node) handleRequestFile(conn *Connection, p wire.RequestFilePayload) {
	f, ok := n.index.Get(p.Filename)
	if !ok {
		if err := wire.WriteAdHoc(conn, wire.FileNotFound, wire.FileNotFoundPayload{Filename: p.Filename}); err != nil {
			n.logger.Warn("FILE_NOT_FOUND send failed", "filename", p.Filename, "error", err)
		}
		conn.Close()
		n.registry.RemoveAdHoc(conn)
		return
	}

	size, shards, err := transfer.ReadForUpload(n.workDir, p.Filename)
	if err != nil {
		n.logger.Warn("failed to read file for upload", "filename", p.Filename, "error", err)
		wire.WriteAdHoc(conn, wire.FileNotFound, wire.FileNotFoundPayload{Filename: p.Filename})
		conn.Close()
		n.registry.RemoveAdHoc(conn)
		return
	}

	err = wire.WriteAdHoc(conn, wire.NotifyStartingTransfer, wire.NotifyStartingTransferPayload{
		Filename: p.Filename, Size: size, Origin: f.OriginServer,
		Version: f.Version, TTR: f.TTR, LastValid: f.LastValidTime,
	})
	if err != nil {
		n.logger.Warn("NOTIFY_STARTING_TRANSFER send failed", "filename", p.Filename, "error", err)
		return
	}
	for i, shard := range shards {
		portion := wire.GiveFilePortionPayload{Filename: p.Filename, ShardIndex: uint32(i), Data: shard}
		if err := wire.WriteAdHoc(conn, wire.GiveFilePortion, portion); err != nil {
			n.logger.Warn("GIVE_FILE_PORTION send failed", "filename", p.Filename, "shard", i, "error", err)
			return
		}
	}
	n.logger.Info("started upload", "filename", p.Filename, "peer", conn.String())
}

// handleNotifyStartingTransfer opens the local download session and
// installs/refreshes the copy-index entry with the sender's coherence
// metadata.
func (n *Node) handleNotifyStartingTransfer(conn *Connection, p wire.NotifyStartingTransferPayload) {
	existing, hadEntry := n.index.Get(p.Filename)
	info := fileindex.Info{
		Name:          p.Filename,
		OriginServer:  p.Origin,
		Version:       p.Version,
		MasterVersion: p.Version,
		IsValid:       true,
		TTR:           p.TTR,
		LastValidTime: p.LastValid,
		DidQuery:      false,
	}
	if hadEntry && n.index.IsMaster(p.Filename) {
		// A master entry never gets overwritten by an incoming transfer
		// announcement; keep existing.
		_ = existing
	} else {
		n.index.AddCopy(info)
	}

	sess := transfer.NewSession(p.Filename, p.Size)
	n.sessions[p.Filename] = sess
	n.logger.Info("beginning download", "filename", p.Filename, "session", sess.ID, "peer", conn.String())
}

// handleGiveFilePortion records one shard; once enough have arrived to
// reconstruct, the file is written to disk and the session torn down.
func (n *Node) handleGiveFilePortion(conn *Connection, p wire.GiveFilePortionPayload) (done bool) {
	sess, ok := n.sessions[p.Filename]
	if !ok {
		return false
	}
	sess.TakeShard(p.ShardIndex, p.Data)
	n.metrics.TransferBytes.Add(float64(len(p.Data)))
	n.logger.Info("download progress", "filename", p.Filename,
		"completion_pct", sess.CompletionPercentage()*100)

	if !sess.Complete() {
		return false
	}
	if err := sess.WriteToDisk(n.workDir); err != nil {
		n.logger.Error("failed to write downloaded file", "filename", p.Filename, "session", sess.ID, "error", err)
	} else {
		n.logger.Info("download complete", "filename", p.Filename, "session", sess.ID)
	}
	delete(n.sessions, p.Filename)
	delete(n.pendingRequests, p.Filename)
	return true
}
