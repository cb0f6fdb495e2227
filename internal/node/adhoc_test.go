package node

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meshnode/filemesh/internal/fileindex"
	"github.com/meshnode/filemesh/internal/transfer"
	"github.com/meshnode/filemesh/internal/wire"
)

func TestConnectAsNeighborPromotes(t *testing.T) {
	n := testNode(t, 1, fileindex.Push)
	conn, far := newTestConnection()
	defer far.Close()
	n.registry.AddAdHoc(conn)

	done := n.HandleAdHoc(conn, wire.ConnectAsNeighbor, wire.ConnectAsNeighborPayload{SenderID: 7})
	if !done {
		t.Fatal("CONNECT_AS_NEIGHBOR should report done (promoted)")
	}
	if got, ok := n.registry.Neighbor(7); !ok || got != conn {
		t.Fatal("connection should be promoted to neighbor slot 7")
	}
	if len(n.registry.AdHoc()) != 0 {
		t.Fatal("promoted connection must leave the ad-hoc list")
	}
}

func TestRequestFileUnknownRepliesNotFound(t *testing.T) {
	n := testNode(t, 1, fileindex.Push)
	conn, far := newTestConnection()
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		n.handleRequestFile(conn, wire.RequestFilePayload{Filename: "ghost"})
		close(done)
	}()

	kind, payload, err := wire.ReadAdHoc(far)
	if err != nil {
		t.Fatalf("ReadAdHoc: %v", err)
	}
	if kind != wire.FileNotFound {
		t.Fatalf("kind = %v, want FileNotFound", kind)
	}
	if payload.(wire.FileNotFoundPayload).Filename != "ghost" {
		t.Fatalf("payload = %+v", payload)
	}
	<-done
}

func TestRequestFileKnownStreamsShards(t *testing.T) {
	n := testNode(t, 1, fileindex.Push)
	content := bytes.Repeat([]byte("hello world "), 200)
	if err := os.WriteFile(filepath.Join(n.workDir, "data.bin"), content, 0644); err != nil {
		t.Fatal(err)
	}
	n.index.AddMaster("data.bin", time.Now().Unix())

	conn, far := newTestConnection()
	defer conn.Close()

	go n.handleRequestFile(conn, wire.RequestFilePayload{Filename: "data.bin"})

	kind, payload, err := wire.ReadAdHoc(far)
	if err != nil {
		t.Fatalf("ReadAdHoc header: %v", err)
	}
	if kind != wire.NotifyStartingTransfer {
		t.Fatalf("kind = %v, want NotifyStartingTransfer", kind)
	}
	announce := payload.(wire.NotifyStartingTransferPayload)
	layout := transfer.LayoutFor(int(announce.Size))

	for i := 0; i < layout.Total(); i++ {
		k, p, err := wire.ReadAdHoc(far)
		if err != nil {
			t.Fatalf("ReadAdHoc shard %d: %v", i, err)
		}
		if k != wire.GiveFilePortion {
			t.Fatalf("shard %d kind = %v, want GiveFilePortion", i, k)
		}
		_ = p.(wire.GiveFilePortionPayload)
	}
}

func TestDownloadSessionCompletesAndWritesFile(t *testing.T) {
	n := testNode(t, 2, fileindex.Push)
	content := bytes.Repeat([]byte{0x42}, 9000)
	size, shards, err := transfer.Encode(content)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	conn, _ := newTestConnection()
	defer conn.Close()

	n.handleNotifyStartingTransfer(conn, wire.NotifyStartingTransferPayload{
		Filename: "big.bin", Size: uint32(size), Origin: 1, Version: 0, TTR: 0, LastValid: time.Now().Unix(),
	})

	var done bool
	for i, shard := range shards {
		done = n.handleGiveFilePortion(conn, wire.GiveFilePortionPayload{
			Filename: "big.bin", ShardIndex: uint32(i), Data: shard,
		})
		if done {
			break
		}
	}
	if !done {
		t.Fatal("session should complete once enough shards arrive")
	}

	got, err := os.ReadFile(filepath.Join(n.workDir, "big.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("written file content does not match the original")
	}

	if _, ok := n.sessions["big.bin"]; ok {
		t.Fatal("completed session should be removed")
	}

	f, ok := n.index.Get("big.bin")
	if !ok || f.OriginServer != 1 {
		t.Fatalf("copy entry not installed correctly: %+v", f)
	}
}
