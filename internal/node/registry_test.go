package node

import (
	"net"
	"testing"
)

func newTestConnection() (*Connection, net.Conn) {
	a, b := net.Pipe()
	return NewConnection(a, "test", 0), b
}

func TestSetNeighborClosesReplacedSlot(t *testing.T) {
	r := NewRegistry()
	c1, far1 := newTestConnection()
	defer far1.Close()
	c2, far2 := newTestConnection()
	defer far2.Close()

	r.SetNeighbor(1, c1)
	r.SetNeighbor(1, c2)

	if _, err := c1.Write([]byte("x")); err == nil {
		t.Fatal("replaced connection should have been closed")
	}
	got, ok := r.Neighbor(1)
	if !ok || got != c2 {
		t.Fatal("slot 1 should hold the replacement connection")
	}
}

func TestPromoteToNeighborRemovesFromAdHoc(t *testing.T) {
	r := NewRegistry()
	c, far := newTestConnection()
	defer far.Close()

	r.AddAdHoc(c)
	if len(r.AdHoc()) != 1 {
		t.Fatal("expected one ad-hoc connection before promotion")
	}

	r.PromoteToNeighbor(c, 42)

	if len(r.AdHoc()) != 0 {
		t.Fatal("promoted connection must be removed from the ad-hoc list")
	}
	got, ok := r.Neighbor(42)
	if !ok || got != c {
		t.Fatal("promoted connection should occupy neighbor slot 42")
	}
}

func TestCloseAllIsIdempotentAndClosesEverything(t *testing.T) {
	r := NewRegistry()
	c1, far1 := newTestConnection()
	defer far1.Close()
	c2, far2 := newTestConnection()
	defer far2.Close()

	r.SetNeighbor(1, c1)
	r.AddAdHoc(c2)

	r.CloseAll()
	r.CloseAll() // must not panic or error on double-close

	if _, err := c1.Write([]byte("x")); err == nil {
		t.Fatal("neighbor connection should be closed")
	}
	if _, err := c2.Write([]byte("x")); err == nil {
		t.Fatal("ad-hoc connection should be closed")
	}
}
