package node

import (
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meshnode/filemesh/internal/config"
	"github.com/meshnode/filemesh/internal/fileindex"
	"github.com/meshnode/filemesh/internal/metrics"
	"github.com/meshnode/filemesh/internal/wire"
)

func testNode(t *testing.T, myID uint32, mode fileindex.Mode) *Node {
	t.Helper()
	cfg := &config.Config{DefaultTTR: 20, Nodes: map[uint32]config.NodeDescriptor{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	return New(cfg, myID, mode, t.TempDir(), logger, m)
}

// pipeNeighbor wires a net.Pipe connection into n's neighbor slot for
// peerID and returns the far end, so a test can read what n sends.
func pipeNeighbor(n *Node, peerID uint32) net.Conn {
	a, b := net.Pipe()
	n.registry.SetNeighbor(peerID, NewConnection(a, "test", 0))
	return b
}

// readRouted reads exactly one routed frame from conn, failing the test
// on error.
func readRouted(t *testing.T, conn net.Conn) (wire.Header, wire.Kind, any) {
	t.Helper()
	hdr, kind, payload, err := wire.ReadRouted(conn)
	if err != nil {
		t.Fatalf("ReadRouted: %v", err)
	}
	return hdr, kind, payload
}
