package wire

import (
	"fmt"
	"io"
)

// Header is the common routed-message header: destination, flood
// originator, originator-assigned sequence, and remaining hop budget.
// DestID == 0 means broadcast/unrouted (used by flood-kind messages).
type Header struct {
	DestID   uint32
	SourceID uint32
	Seq      uint32
	TTL      uint32
}

// Empty is the payload for routed kinds that carry no fields beyond the
// header (NOTIFY_PEER_DISCONNECT, TEST_QUERY, TEST_RESPONSE).
type Empty struct{}

type QueryFileLocationPayload struct {
	Filename string
}

type GiveFileLocationPayload struct {
	Filename string
	HolderID uint32
}

type InvalidatePayload struct {
	Filename string
	Version  int32
}

type QueryValidPayload struct {
	Filename string
}

type ResponseValidPayload struct {
	Filename      string
	MasterVersion int32
}

// ConnectAsNeighborPayload is sent over an ad-hoc connection to request
// promotion to a neighbor slot.
type ConnectAsNeighborPayload struct {
	SenderID uint32
}

type RequestFilePayload struct {
	Filename string
}

// NotifyStartingTransferPayload announces an inbound transfer: the
// compressed payload length (before it is split into erasure-coded
// shards) and the file's coherence
// metadata as known to the sender at transfer time.
type NotifyStartingTransferPayload struct {
	Filename  string
	Size      uint32
	Origin    uint32
	Version   int32
	TTR       uint32
	LastValid int64
}

// GiveFilePortionPayload carries one Reed-Solomon shard of the transfer.
// Shards may arrive out of order; ShardIndex identifies its position.
type GiveFilePortionPayload struct {
	Filename   string
	ShardIndex uint32
	Data       []byte
}

type FileNotFoundPayload struct {
	Filename string
}

// WriteRouted encodes and writes a routed (neighbor-connection) message.
func WriteRouted(w io.Writer, hdr Header, kind Kind, payload any) error {
	e := &encoder{}
	e.putUint32(hdr.DestID)
	e.putUint32(hdr.SourceID)
	e.putUint32(hdr.Seq)
	e.putUint32(hdr.TTL)
	e.putInt32(int32(kind))

	switch p := payload.(type) {
	case Empty, nil:
		// no payload
	case QueryFileLocationPayload:
		e.putString(p.Filename)
	case GiveFileLocationPayload:
		e.putString(p.Filename)
		e.putUint32(p.HolderID)
	case InvalidatePayload:
		e.putString(p.Filename)
		e.putInt32(p.Version)
	case QueryValidPayload:
		e.putString(p.Filename)
	case ResponseValidPayload:
		e.putString(p.Filename)
		e.putInt32(p.MasterVersion)
	default:
		return fmt.Errorf("wire: unsupported routed payload type %T for kind %s", payload, kind)
	}
	return WriteFrame(w, e.bytes())
}

// ReadRouted reads and decodes one routed message, returning its header,
// kind, and payload (one of the Payload types above, or Empty).
func ReadRouted(r io.Reader) (Header, Kind, any, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Header{}, 0, nil, err
	}
	d := newDecoder(body)

	var hdr Header
	var kindRaw int32
	fields := []*uint32{&hdr.DestID, &hdr.SourceID, &hdr.Seq, &hdr.TTL}
	for _, f := range fields {
		v, err := d.uint32()
		if err != nil {
			return Header{}, 0, nil, fmt.Errorf("wire: decode header: %w", err)
		}
		*f = v
	}
	kindRaw, err = d.int32()
	if err != nil {
		return Header{}, 0, nil, fmt.Errorf("wire: decode kind: %w", err)
	}
	kind := Kind(kindRaw)

	payload, err := decodeRoutedPayload(d, kind)
	if err != nil {
		return Header{}, 0, nil, err
	}
	return hdr, kind, payload, nil
}

func decodeRoutedPayload(d *decoder, kind Kind) (any, error) {
	switch kind {
	case NotifyPeerDisconnect, TestQuery, TestResponse:
		return Empty{}, nil
	case QueryFileLocation:
		name, err := d.string()
		return QueryFileLocationPayload{Filename: name}, err
	case GiveFileLocation:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		id, err := d.uint32()
		return GiveFileLocationPayload{Filename: name, HolderID: id}, err
	case Invalidate:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		v, err := d.int32()
		return InvalidatePayload{Filename: name, Version: v}, err
	case QueryValid:
		name, err := d.string()
		return QueryValidPayload{Filename: name}, err
	case ResponseValid:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		v, err := d.int32()
		return ResponseValidPayload{Filename: name, MasterVersion: v}, err
	default:
		return nil, fmt.Errorf("wire: unknown routed kind %d", int32(kind))
	}
}

// WriteAdHoc encodes and writes an ad-hoc (non-routed) message: just a
// kind tag followed by its payload, no common header.
func WriteAdHoc(w io.Writer, kind Kind, payload any) error {
	e := &encoder{}
	e.putInt32(int32(kind))

	switch p := payload.(type) {
	case ConnectAsNeighborPayload:
		e.putUint32(p.SenderID)
	case RequestFilePayload:
		e.putString(p.Filename)
	case NotifyStartingTransferPayload:
		e.putString(p.Filename)
		e.putUint32(p.Size)
		e.putUint32(p.Origin)
		e.putInt32(p.Version)
		e.putUint32(p.TTR)
		e.putInt64(p.LastValid)
	case GiveFilePortionPayload:
		e.putString(p.Filename)
		e.putUint32(p.ShardIndex)
		e.putBytes(p.Data)
	case FileNotFoundPayload:
		e.putString(p.Filename)
	default:
		return fmt.Errorf("wire: unsupported ad-hoc payload type %T for kind %s", payload, kind)
	}
	return WriteFrame(w, e.bytes())
}

// ReadAdHoc reads and decodes one ad-hoc message.
func ReadAdHoc(r io.Reader) (Kind, any, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return 0, nil, err
	}
	d := newDecoder(body)
	kindRaw, err := d.int32()
	if err != nil {
		return 0, nil, fmt.Errorf("wire: decode kind: %w", err)
	}
	kind := Kind(kindRaw)

	switch kind {
	case ConnectAsNeighbor:
		id, err := d.uint32()
		return kind, ConnectAsNeighborPayload{SenderID: id}, err
	case RequestFile:
		name, err := d.string()
		return kind, RequestFilePayload{Filename: name}, err
	case NotifyStartingTransfer:
		name, err := d.string()
		if err != nil {
			return kind, nil, err
		}
		size, err := d.uint32()
		if err != nil {
			return kind, nil, err
		}
		origin, err := d.uint32()
		if err != nil {
			return kind, nil, err
		}
		version, err := d.int32()
		if err != nil {
			return kind, nil, err
		}
		ttr, err := d.uint32()
		if err != nil {
			return kind, nil, err
		}
		lastValid, err := d.int64()
		return kind, NotifyStartingTransferPayload{
			Filename: name, Size: size, Origin: origin,
			Version: version, TTR: ttr, LastValid: lastValid,
		}, err
	case GiveFilePortion:
		name, err := d.string()
		if err != nil {
			return kind, nil, err
		}
		idx, err := d.uint32()
		if err != nil {
			return kind, nil, err
		}
		data, err := d.bytesField()
		return kind, GiveFilePortionPayload{Filename: name, ShardIndex: idx, Data: data}, err
	case FileNotFound:
		name, err := d.string()
		return kind, FileNotFoundPayload{Filename: name}, err
	default:
		return kind, nil, fmt.Errorf("wire: unknown ad-hoc kind %d", int32(kind))
	}
}
