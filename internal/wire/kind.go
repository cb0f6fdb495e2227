// Package wire implements the length-framed binary protocol shared by
// neighbor (routed) and ad-hoc (point-to-point) connections.
package wire

// Kind identifies the payload carried by a frame.
type Kind int32

const (
	ConnectAsNeighbor Kind = iota
	NotifyPeerDisconnect
	QueryFileLocation
	GiveFileLocation
	RequestFile
	NotifyStartingTransfer
	GiveFilePortion
	TestQuery
	TestResponse
	Invalidate
	QueryValid
	ResponseValid
	FileNotFound
)

func (k Kind) String() string {
	switch k {
	case ConnectAsNeighbor:
		return "CONNECT_AS_NEIGHBOR"
	case NotifyPeerDisconnect:
		return "NOTIFY_PEER_DISCONNECT"
	case QueryFileLocation:
		return "QUERY_FILE_LOCATION"
	case GiveFileLocation:
		return "GIVE_FILE_LOCATION"
	case RequestFile:
		return "REQUEST_FILE"
	case NotifyStartingTransfer:
		return "NOTIFY_STARTING_TRANSFER"
	case GiveFilePortion:
		return "GIVE_FILE_PORTION"
	case TestQuery:
		return "TEST_QUERY"
	case TestResponse:
		return "TEST_RESPONSE"
	case Invalidate:
		return "INVALIDATE"
	case QueryValid:
		return "QUERY_VALID"
	case ResponseValid:
		return "RESPONSE_VALID"
	case FileNotFound:
		return "FILE_NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// IsFlood reports whether a routed message kind is forwarded to every
// neighbor except the one it arrived from, per the flood-forwarding rule.
func (k Kind) IsFlood() bool {
	switch k {
	case QueryFileLocation, TestQuery, Invalidate, QueryValid:
		return true
	default:
		return false
	}
}

// IsReverseRouted reports whether a routed message kind is forwarded
// along the single reverse path recorded in the query log.
func (k Kind) IsReverseRouted() bool {
	switch k {
	case GiveFileLocation, TestResponse, ResponseValid:
		return true
	default:
		return false
	}
}

// IsRouted reports whether a kind travels over a neighbor connection with
// a common header, as opposed to an ad-hoc connection.
func (k Kind) IsRouted() bool {
	switch k {
	case NotifyPeerDisconnect, QueryFileLocation, GiveFileLocation,
		TestQuery, TestResponse, Invalidate, QueryValid, ResponseValid:
		return true
	default:
		return false
	}
}
