package transfer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Session is one in-progress inbound download, keyed by filename. ID
// tags the session's start and completion log lines, so successive
// sessions for the same filename (e.g. a retry after a teardown) can be
// told apart in the logs.
type Session struct {
	ID            uuid.UUID
	Filename      string
	DeclaredSize  uint32 // compressed-payload length, per NOTIFY_STARTING_TRANSFER
	Layout        Layout
	shards        [][]byte
	receivedCount int
}

// NewSession creates a session for an announced transfer of
// declaredSize compressed bytes.
func NewSession(filename string, declaredSize uint32) *Session {
	layout := LayoutFor(int(declaredSize))
	return &Session{
		ID:           uuid.New(),
		Filename:     filename,
		DeclaredSize: declaredSize,
		Layout:       layout,
		shards:       make([][]byte, layout.Total()),
	}
}

// TakeShard records one received shard. Out-of-range or duplicate shard
// indices are ignored: a duplicate GIVE_FILE_PORTION has no effect,
// consistent with dropping the affected message rather than retrying on
// message-layer hiccups.
func (s *Session) TakeShard(index uint32, data []byte) {
	if int(index) >= len(s.shards) {
		return
	}
	if s.shards[index] != nil {
		return
	}
	s.shards[index] = append([]byte(nil), data...)
	s.receivedCount++
}

// Complete reports whether enough shards have arrived to reconstruct.
func (s *Session) Complete() bool {
	return s.Layout.ReceivedEnough(s.shards)
}

// CompletionPercentage is a user-facing progress figure shown on each
// download progress line.
func (s *Session) CompletionPercentage() float64 {
	if s.Layout.DataShards == 0 {
		return 0
	}
	return float64(s.receivedCount) / float64(s.Layout.DataShards)
}

// WriteToDisk reconstructs the file and writes it to dir/filename.
func (s *Session) WriteToDisk(dir string) error {
	data, err := Decode(s.Layout, int(s.DeclaredSize), s.shards)
	if err != nil {
		return fmt.Errorf("transfer: reconstruct %s: %w", s.Filename, err)
	}
	path := filepath.Join(dir, s.Filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("transfer: write %s: %w", path, err)
	}
	return nil
}

// ReadForUpload reads name from dir and prepares it for sending: the
// compressed length (the transfer's declared size) and the shard set to
// hand out one-per-GIVE_FILE_PORTION.
func ReadForUpload(dir, name string) (declaredSize uint32, shards [][]byte, err error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, nil, fmt.Errorf("transfer: read %s: %w", name, err)
	}
	n, shards, err := Encode(data)
	if err != nil {
		return 0, nil, err
	}
	return uint32(n), shards, nil
}
