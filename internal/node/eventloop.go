package node

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/meshnode/filemesh/internal/config"
	"github.com/meshnode/filemesh/internal/fileindex"
	"github.com/meshnode/filemesh/internal/wire"
)

// inboundMessage is one decoded frame handed from a connection's reader
// goroutine to the single event-loop goroutine that owns mu. It is the
// channel-handoff substitute for a single-threaded socket multiplexer.
type inboundMessage struct {
	conn    *Connection
	closed  bool
	routed  bool
	peerID  uint32
	hdr     wire.Header
	kind    wire.Kind
	payload any
}

func dial(desc config.NodeDescriptor) (*Connection, error) {
	c, err := net.Dial("tcp", fmt.Sprintf("%s:%d", desc.IP, desc.Port))
	if err != nil {
		return nil, fmt.Errorf("node: dial %s:%d: %w", desc.IP, desc.Port, err)
	}
	return NewConnection(c, desc.IP, desc.Port), nil
}

// ConnectToConfiguredNeighbors dials every configured neighbor,
// announces this node via CONNECT_AS_NEIGHBOR, and installs the
// connection directly as a neighbor slot (the dialing side of the
// promotion race never waits for a reply — the accepting side is the
// one that promotes). A failed dial is logged and the slot is left
// empty; the overlay degrades gracefully.
func (n *Node) ConnectToConfiguredNeighbors(ctx context.Context) {
	n.mu.Lock()
	neighborIDs := append([]uint32(nil), n.cfg.Neighbors...)
	n.mu.Unlock()

	for _, id := range neighborIDs {
		n.mu.Lock()
		desc, ok := n.cfg.Nodes[id]
		n.mu.Unlock()
		if !ok {
			continue
		}
		conn, err := dial(desc)
		if err != nil {
			n.logger.Warn("failed to connect to neighbor", "peer", id, "error", err)
			continue
		}
		if err := wire.WriteAdHoc(conn, wire.ConnectAsNeighbor, wire.ConnectAsNeighborPayload{SenderID: n.myID}); err != nil {
			n.logger.Warn("CONNECT_AS_NEIGHBOR send failed", "peer", id, "error", err)
			conn.Close()
			continue
		}
		n.mu.Lock()
		n.registry.SetNeighbor(id, conn)
		n.mu.Unlock()
		n.logger.Info("connected to neighbor", "peer", id, "addr", conn.String())
		go n.readRoutedLoop(ctx, conn, id)
	}
}

// acceptLoop accepts inbound connections and starts an ad-hoc reader
// for each; an inbound connection is always ad-hoc until (if ever) it
// sends CONNECT_AS_NEIGHBOR.
func (n *Node) acceptLoop(ctx context.Context, l net.Listener) {
	for {
		c, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				n.logger.Error("accept failed", "error", err)
				return
			}
		}
		remoteIP, remotePort := splitHostPort(c.RemoteAddr().String())
		conn := NewConnection(c, remoteIP, remotePort)
		n.mu.Lock()
		n.registry.AddAdHoc(conn)
		n.mu.Unlock()
		n.logger.Info("accepted connection", "peer", conn.String())
		go n.readAdHocLoop(ctx, conn)
	}
}

// watchAdHoc requests a reader goroutine for a connection the event
// loop did not itself accept or dial (e.g. one the router opened
// mid-dispatch after a GIVE_FILE_LOCATION hit).
func (n *Node) watchAdHoc(conn *Connection) {
	select {
	case n.newConns <- conn:
	default:
		n.logger.Warn("newConns queue full, reader not started", "peer", conn.String())
	}
}

// readRoutedLoop decodes routed frames from a neighbor connection until
// error, handing each to the event loop over n.inbox.
func (n *Node) readRoutedLoop(ctx context.Context, conn *Connection, peerID uint32) {
	for {
		hdr, kind, payload, err := wire.ReadRouted(conn)
		if err != nil {
			n.inbox <- inboundMessage{conn: conn, closed: true, routed: true, peerID: peerID}
			return
		}
		select {
		case n.inbox <- inboundMessage{conn: conn, routed: true, peerID: peerID, hdr: hdr, kind: kind, payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}

// readAdHocLoop decodes ad-hoc frames from a transient connection. If
// it observes CONNECT_AS_NEIGHBOR, it hands that frame off and then
// switches to decoding the same connection as a neighbor connection —
// the format transition a promoted socket undergoes — since nothing else
// is reading this socket's bytes concurrently.
func (n *Node) readAdHocLoop(ctx context.Context, conn *Connection) {
	for {
		kind, payload, err := wire.ReadAdHoc(conn)
		if err != nil {
			n.inbox <- inboundMessage{conn: conn, closed: true}
			return
		}
		select {
		case n.inbox <- inboundMessage{conn: conn, kind: kind, payload: payload}:
		case <-ctx.Done():
			return
		}
		if kind == wire.ConnectAsNeighbor {
			peerID := payload.(wire.ConnectAsNeighborPayload).SenderID
			n.readRoutedLoop(ctx, conn, peerID)
			return
		}
	}
}

// Run is the network task: the event loop multiplexing the listener,
// every neighbor and ad-hoc connection, and the periodic tick that
// drives log eviction and pull-mode TTR checks. It returns when ctx is
// cancelled.
func (n *Node) Run(ctx context.Context, listener net.Listener) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	go n.acceptLoop(ctx, listener)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.mu.Lock()
			n.tick()
			exit := n.timeToExit
			n.mu.Unlock()
			if exit {
				return nil
			}
		case conn := <-n.newConns:
			go n.readAdHocLoop(ctx, conn)
		case msg := <-n.inbox:
			n.mu.Lock()
			n.dispatch(msg)
			exit := n.timeToExit
			n.mu.Unlock()
			if exit {
				return nil
			}
		}
	}
}

func (n *Node) dispatch(msg inboundMessage) {
	if msg.closed {
		if msg.routed {
			n.handleDisconnect(msg.peerID)
		} else {
			msg.conn.Close()
			n.registry.RemoveAdHoc(msg.conn)
		}
		return
	}
	if msg.routed {
		n.HandleRouted(msg.peerID, msg.hdr, msg.kind, msg.payload)
		return
	}
	if done := n.HandleAdHoc(msg.conn, msg.kind, msg.payload); done && msg.kind != wire.ConnectAsNeighbor {
		n.registry.RemoveAdHoc(msg.conn)
	}
}

// tick runs the event loop's per-wake maintenance: log eviction, and in
// pull mode, the TTR sweep.
func (n *Node) tick() {
	n.qlog.Evict()
	n.metrics.QueryLogSize.Set(float64(n.qlog.Len()))
	if n.index.Mode() == fileindex.Pull {
		n.checkAllTTR()
	}
}

func splitHostPort(addr string) (string, uint32) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	var p uint32
	fmt.Sscanf(port, "%d", &p)
	return host, p
}
