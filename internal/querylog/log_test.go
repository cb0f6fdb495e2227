package querylog

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestSeeDedupesSameSourceAndSeq(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(func() time.Time { return now })

	if !l.See(0, 5, 1, 100) {
		t.Fatal("first sighting should be novel")
	}
	if l.See(0, 9, 1, 100) {
		t.Fatal("duplicate (sourceID, seq) must not be novel")
	}
	up, ok := l.UpstreamFor(1, 100)
	if !ok || up != 5 {
		t.Fatalf("UpstreamFor = (%d, %v), want (5, true)", up, ok)
	}
}

func TestSeeRejectsOwnSource(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(func() time.Time { return now })
	if l.See(42, 5, 42, 1) {
		t.Fatal("a message whose source is myID must never be novel")
	}
}

func TestEvictRemovesOnlyExpiredEntries(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	l := New(func() time.Time { return now })

	l.See(0, 1, 10, 1)
	now = base.Add(25 * time.Second)
	l.See(0, 1, 10, 2)

	l.Evict()
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (only the expired entry removed)", l.Len())
	}
	if _, ok := l.UpstreamFor(10, 2); !ok {
		t.Fatal("the fresh entry must survive eviction")
	}
}

// TestNovelSeqsAreForwardedExactlyOnce checks the duplicate-suppression
// invariant: for every routed message observed, if its (sourceId, seq)
// already appears in the log, it is not forwarded (i.e. See returns
// false).
func TestNovelSeqsAreForwardedExactlyOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Unix(0, 0)
		l := New(func() time.Time { return now })

		source := rapid.Uint32Range(1, 100).Draw(t, "source")
		seqs := rapid.SliceOf(rapid.Uint32Range(0, 5)).Draw(t, "seqs")

		seen := make(map[uint32]bool)
		for _, seq := range seqs {
			novel := l.See(0, 1, source, seq)
			want := !seen[seq]
			if novel != want {
				t.Fatalf("See(seq=%d) = %v, want %v (seen=%v)", seq, novel, want, seen)
			}
			seen[seq] = true
		}
	})
}
