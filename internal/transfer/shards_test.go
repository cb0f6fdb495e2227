package transfer

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 500)

	size, shards, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	layout := LayoutFor(size)

	got, err := Decode(layout, size, shards)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestDecodeToleratesMissingParityShards(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 50000)
	size, shards, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	layout := LayoutFor(size)

	// Drop the parity shards; data shards alone must still reconstruct.
	lossy := make([][]byte, len(shards))
	copy(lossy, shards)
	for i := layout.DataShards; i < layout.Total(); i++ {
		lossy[i] = nil
	}

	got, err := Decode(layout, size, lossy)
	if err != nil {
		t.Fatalf("Decode with only data shards: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round trip mismatch with only data shards present")
	}
}

func TestSessionCompletesOnceEnoughShardsArrive(t *testing.T) {
	payload := bytes.Repeat([]byte("payload"), 1000)
	size, shards, err := Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	sess := NewSession("f.bin", size)
	if sess.Complete() {
		t.Fatal("a fresh session must not be complete")
	}

	// Deliver whichever of shards 3, 0, 2, 1 exist, out of order, then
	// parity shards one by one until the session reports complete.
	order := []int{3, 0, 2, 1}
	for _, i := range order {
		if i < len(shards) {
			sess.TakeShard(uint32(i), shards[i])
		}
	}
	for i := sess.Layout.DataShards; i < sess.Layout.Total() && !sess.Complete(); i++ {
		sess.TakeShard(uint32(i), shards[i])
	}
	if !sess.Complete() {
		t.Fatal("session should complete once DataShards shards have arrived")
	}
}

func TestLayoutForIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10_000_000).Draw(t, "n")
		a := LayoutFor(n)
		b := LayoutFor(n)
		if a != b {
			t.Fatalf("LayoutFor(%d) not deterministic: %+v vs %+v", n, a, b)
		}
		if a.DataShards < 1 || a.ParityShards < 1 {
			t.Fatalf("LayoutFor(%d) produced non-positive shard count: %+v", n, a)
		}
	})
}
