package node

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meshnode/filemesh/internal/fileindex"
	"github.com/meshnode/filemesh/internal/wire"
)

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiFaint = "\033[2m"
)

// colorsEnabled reports whether stdout is a terminal willing to accept
// ANSI escapes. Checked per call since command output is infrequent and
// the user can attach/detach stdout across a long-running node.
func colorsEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func printRed(format string, a ...any) {
	printColor(ansiRed, format, a...)
}

func printGreen(format string, a ...any) {
	printColor(ansiGreen, format, a...)
}

func printFaint(format string, a ...any) {
	printColor(ansiFaint, format, a...)
}

func printColor(code, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if colorsEnabled() {
		fmt.Println(code + msg + ansiReset)
		return
	}
	fmt.Println(msg)
}

// HandleCommand parses and executes one line of user input. It is the
// input task's sole entry point into shared state and acquires mu
// itself, for the command's whole duration — including testresponse's N
// outbound broadcasts, a deliberate simplification of
// release-and-reacquire with no loss of semantics.
func (n *Node) HandleCommand(line string) (exit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	switch fields[0] {
	case "exit":
		n.doExit()
		return true
	case "getfile":
		n.doGetFile(fields)
	case "addfile":
		n.doAddFile(fields)
	case "modifyfile":
		n.doModifyFile(fields)
	case "updatefile":
		n.doUpdateFile(fields)
	case "testresponse":
		n.doTestResponse(fields)
	case "printfiles":
		n.doPrintFiles()
	default:
		printRed("unknown command: %s", fields[0])
	}
	return false
}

func (n *Node) doExit() {
	n.closeLocked()
}

func (n *Node) doGetFile(fields []string) {
	if len(fields) != 2 {
		printRed("usage: getfile <filename>")
		return
	}
	filename := fields[1]
	n.pendingRequests[filename] = struct{}{}
	hdr := wire.Header{DestID: 0, SourceID: n.myID, Seq: n.nextSeq(), TTL: 10}
	n.broadcastFlood(hdr, wire.QueryFileLocation, wire.QueryFileLocationPayload{Filename: filename}, n.myID)
	printFaint("querying overlay for %s", filename)
}

func (n *Node) doAddFile(fields []string) {
	if len(fields) != 2 {
		printRed("usage: addfile <filename>")
		return
	}
	f := n.index.AddMaster(fields[1], time.Now().Unix())
	f.TTR = n.cfg.DefaultTTR
	printGreen("file added to master index: %s", fields[1])
}

func (n *Node) doModifyFile(fields []string) {
	if len(fields) != 2 {
		printRed("usage: modifyfile <filename>")
		return
	}
	f, ok := n.index.ModifyMaster(fields[1])
	if !ok {
		printRed("no such master file: %s", fields[1])
		return
	}
	if n.index.Mode() == fileindex.Push {
		hdr := wire.Header{DestID: 0, SourceID: n.myID, Seq: n.nextSeq(), TTL: 20}
		n.broadcastFlood(hdr, wire.Invalidate, wire.InvalidatePayload{
			Filename: fields[1], Version: f.MasterVersion,
		}, n.myID)
	}
	printGreen("modified file: %s", fields[1])
}

func (n *Node) doUpdateFile(fields []string) {
	if len(fields) != 2 {
		printRed("usage: updatefile <filename>")
		return
	}
	filename := fields[1]
	if n.index.Search(filename, time.Now().Unix()) {
		printFaint("file is still up to date")
		return
	}
	n.pendingRequests[filename] = struct{}{}
	hdr := wire.Header{DestID: 0, SourceID: n.myID, Seq: n.nextSeq(), TTL: 10}
	n.broadcastFlood(hdr, wire.QueryFileLocation, wire.QueryFileLocationPayload{Filename: filename}, n.myID)
}

func (n *Node) doTestResponse(fields []string) {
	if len(fields) != 3 {
		printRed("usage: testresponse <destId> <n>")
		return
	}
	dest, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		printRed("invalid destId: %s", fields[1])
		return
	}
	count, err := strconv.Atoi(fields[2])
	if err != nil || count <= 0 {
		printRed("invalid query count: %s", fields[2])
		return
	}

	n.pendingResponses = count
	n.testStart = time.Now()
	printFaint("testing response time with %d queries", count)
	for i := 0; i < count; i++ {
		hdr := wire.Header{DestID: uint32(dest), SourceID: n.myID, Seq: n.nextSeq(), TTL: 10}
		n.broadcastFlood(hdr, wire.TestQuery, wire.Empty{}, n.myID)
	}
}

func (n *Node) doPrintFiles() {
	printFaint("Master files:")
	for _, f := range n.index.Master() {
		printGreen("%s, Version: %d, Valid: %t", f.Name, f.MasterVersion, true)
	}
	printFaint("Cached files:")
	for _, f := range n.index.Copies() {
		valid := f.IsValid
		if n.index.Mode() == fileindex.Push {
			valid = f.Version == f.MasterVersion
		}
		printGreen("%s, Version: %d, Valid: %t", f.Name, f.MasterVersion, valid)
	}
}
