package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameLen bounds a single frame body to guard against a corrupt or
// malicious length prefix causing an unbounded allocation.
const MaxFrameLen = 64 << 20 // 64 MiB, comfortably above one erasure-coded shard

// ReadFrame reads one length-framed record: a uint32 byte count (network
// order) followed by that many bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameLen {
		return nil, fmt.Errorf("wire: frame length %d exceeds max %d", n, MaxFrameLen)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wire: short frame body: %w", err)
	}
	return body, nil
}

// WriteFrame writes one length-framed record.
func WriteFrame(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
