package node

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/meshnode/filemesh/internal/fileindex"
	"github.com/meshnode/filemesh/internal/querylog"
	"github.com/meshnode/filemesh/internal/wire"
)

// TestMain verifies that no test in this package leaves behind a reader,
// ticker, or event-loop goroutine once the suite finishes.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatchClosedRoutedRemovesNeighborSlot(t *testing.T) {
	n := testNode(t, 1, fileindex.Push)
	far := pipeNeighbor(n, 2)
	defer far.Close()

	conn, ok := n.registry.Neighbor(2)
	if !ok {
		t.Fatal("neighbor slot not installed")
	}

	n.mu.Lock()
	n.dispatch(inboundMessage{conn: conn, closed: true, routed: true, peerID: 2})
	n.mu.Unlock()

	if _, ok := n.registry.Neighbor(2); ok {
		t.Fatal("dispatch should drop the neighbor slot on a closed routed message")
	}
}

func TestDispatchClosedAdHocRemovesFromRegistry(t *testing.T) {
	n := testNode(t, 1, fileindex.Push)
	a, b := net.Pipe()
	defer b.Close()
	conn := NewConnection(a, "test", 0)
	n.registry.AddAdHoc(conn)

	n.mu.Lock()
	n.dispatch(inboundMessage{conn: conn, closed: true})
	n.mu.Unlock()

	for _, c := range n.registry.AdHoc() {
		if c == conn {
			t.Fatal("dispatch should remove a closed ad-hoc connection from the registry")
		}
	}
}

func TestDispatchRoutedMessageReachesHandler(t *testing.T) {
	n := testNode(t, 2, fileindex.Push)
	n.index.AddMaster("x", time.Now().Unix())
	far := pipeNeighbor(n, 1)
	defer far.Close()

	hdr := wire.Header{DestID: 0, SourceID: 1, Seq: 7, TTL: 10}
	go func() {
		n.mu.Lock()
		n.dispatch(inboundMessage{
			routed: true, peerID: 1, hdr: hdr,
			kind: wire.QueryFileLocation, payload: wire.QueryFileLocationPayload{Filename: "x"},
		})
		n.mu.Unlock()
	}()

	_, kind, payload := readRouted(t, far)
	if kind != wire.GiveFileLocation {
		t.Fatalf("kind = %v, want GiveFileLocation", kind)
	}
	if payload.(wire.GiveFileLocationPayload).HolderID != 2 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestTickEvictsExpiredLogEntries(t *testing.T) {
	n := testNode(t, 1, fileindex.Push)
	base := time.Unix(1_700_000_000, 0)
	clock := base
	n.qlog = querylog.New(func() time.Time { return clock })

	n.qlog.See(1, 9, 5, 1)
	clock = base.Add(querylog.TTL + time.Second)

	n.mu.Lock()
	n.tick()
	n.mu.Unlock()

	if n.qlog.Len() != 0 {
		t.Fatalf("qlog.Len() = %d, want 0 after TTL elapsed", n.qlog.Len())
	}
}

func TestTickPullModeSweepsExpiredTTR(t *testing.T) {
	n := testNode(t, 2, fileindex.Pull)
	far := pipeNeighbor(n, 9)
	defer far.Close()

	n.index.AddCopy(fileindex.Info{
		Name: "z", OriginServer: 9, Version: 0, MasterVersion: 0,
		TTR: 5, LastValidTime: time.Now().Unix() - 100,
	})

	go func() {
		n.mu.Lock()
		n.tick()
		n.mu.Unlock()
	}()

	_, kind, payload := readRouted(t, far)
	if kind != wire.QueryValid {
		t.Fatalf("kind = %v, want QueryValid", kind)
	}
	if payload.(wire.QueryValidPayload).Filename != "z" {
		t.Fatalf("payload = %+v", payload)
	}
}

// TestRunShutsDownCleanlyOnContextCancel verifies that Run's listener,
// ticker, and reader goroutines all exit once ctx is cancelled and the
// listener is closed, leaving no goroutine behind.
func TestRunShutsDownCleanlyOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := testNode(t, 1, fileindex.Push)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	runDone := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		runDone <- n.Run(ctx, listener)
	}()

	cancel()
	listener.Close()

	select {
	case err := <-runDone:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after ctx cancellation")
	}
}
