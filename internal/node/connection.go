package node

import (
	"fmt"
	"net"
	"sync"
)

// Connection is a uniquely-owned live socket. Close is idempotent:
// double-close must not fault.
type Connection struct {
	net.Conn
	RemoteIP   string
	RemotePort uint32

	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps an already-established net.Conn with the remote
// descriptor fields the overlay's logging and directory lookups need.
func NewConnection(conn net.Conn, remoteIP string, remotePort uint32) *Connection {
	return &Connection{Conn: conn, RemoteIP: remoteIP, RemotePort: remotePort}
}

// Close closes the underlying socket exactly once; subsequent calls are
// no-ops returning the first Close's result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s:%d", c.RemoteIP, c.RemotePort)
}
