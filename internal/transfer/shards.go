// Package transfer implements the concrete bytes-on-the-wire mechanics of
// the chunked file transport: compress the file, split it into
// Reed-Solomon shards, and carry them one per GIVE_FILE_PORTION message
// so shards may arrive out of order and tolerate a bounded number of
// drops.
package transfer

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/reedsolomon"
)

const (
	// targetShardSize is the data carried by one shard before padding.
	// Chosen so a shard plus its wire framing comfortably fits one TCP
	// segment's worth of payload.
	targetShardSize = 4096

	// maxDataShards bounds encoder construction cost for very large
	// files; beyond this, shards simply get bigger instead of more
	// numerous.
	maxDataShards = 64
)

// Layout describes how a payload of a given size is split into shards.
// Both sender and receiver derive the same Layout from the declared size
// carried in NOTIFY_STARTING_TRANSFER, so no extra wire field is needed.
type Layout struct {
	DataShards   int
	ParityShards int
}

// LayoutFor deterministically derives the shard layout for a payload of
// size n bytes. It is pure so sender and receiver never disagree.
func LayoutFor(n int) Layout {
	if n <= 0 {
		return Layout{DataShards: 1, ParityShards: 1}
	}
	data := (n + targetShardSize - 1) / targetShardSize
	if data < 1 {
		data = 1
	}
	if data > maxDataShards {
		data = maxDataShards
	}
	parity := data/4 + 1
	return Layout{DataShards: data, ParityShards: parity}
}

func (l Layout) Total() int { return l.DataShards + l.ParityShards }

func (l Layout) encoder() (reedsolomon.Encoder, error) {
	return reedsolomon.New(l.DataShards, l.ParityShards)
}

// Encode compresses payload and splits it into erasure-coded shards.
// It returns the compressed length (to be sent as the transfer's
// declared size) and the shard slice (data shards followed by parity
// shards, ready to be sent one-per-message in any order).
func Encode(payload []byte) (compressedLen int, shards [][]byte, err error) {
	compressed, err := compress(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("transfer: compress: %w", err)
	}
	layout := LayoutFor(len(compressed))
	enc, err := layout.encoder()
	if err != nil {
		return 0, nil, fmt.Errorf("transfer: new encoder: %w", err)
	}
	shards, err = enc.Split(compressed)
	if err != nil {
		return 0, nil, fmt.Errorf("transfer: split: %w", err)
	}
	if err := enc.Encode(shards); err != nil {
		return 0, nil, fmt.Errorf("transfer: encode parity: %w", err)
	}
	return len(compressed), shards, nil
}

// Decode reconstructs the original payload from a partially-filled shard
// set (nil entries are "not yet received"). It returns an error if fewer
// than DataShards shards have arrived.
func Decode(layout Layout, compressedLen int, shards [][]byte) ([]byte, error) {
	enc, err := layout.encoder()
	if err != nil {
		return nil, fmt.Errorf("transfer: new encoder: %w", err)
	}
	if err := enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("transfer: reconstruct: %w", err)
	}
	var buf bytes.Buffer
	if err := enc.Join(&buf, shards, compressedLen); err != nil {
		return nil, fmt.Errorf("transfer: join: %w", err)
	}
	return decompress(buf.Bytes())
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("transfer: decompress: %w", err)
	}
	return out, nil
}

// ReceivedEnough reports whether shards contains at least DataShards
// non-nil entries, i.e. enough to reconstruct.
func (l Layout) ReceivedEnough(shards [][]byte) bool {
	count := 0
	for _, s := range shards {
		if s != nil {
			count++
		}
	}
	return count >= l.DataShards
}
