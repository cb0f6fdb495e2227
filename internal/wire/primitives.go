package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encoder accumulates a frame body in network byte order.
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) putUint32(v uint32) { _ = binary.Write(&e.buf, binary.BigEndian, v) }
func (e *encoder) putInt32(v int32)   { _ = binary.Write(&e.buf, binary.BigEndian, v) }
func (e *encoder) putInt64(v int64)   { _ = binary.Write(&e.buf, binary.BigEndian, v) }

func (e *encoder) putString(s string) {
	e.putUint32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) putBytes(b []byte) {
	e.putUint32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

// decoder consumes a frame body produced by encoder.
type decoder struct {
	r *bytes.Reader
}

func newDecoder(body []byte) *decoder { return &decoder{r: bytes.NewReader(body)} }

func (d *decoder) uint32() (uint32, error) {
	var v uint32
	if err := binary.Read(d.r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (d *decoder) int32() (int32, error) {
	var v int32
	if err := binary.Read(d.r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (d *decoder) int64() (int64, error) {
	var v int64
	if err := binary.Read(d.r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (d *decoder) string() (string, error) {
	n, err := d.uint32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := d.r.Read(buf); err != nil && n > 0 {
		return "", fmt.Errorf("wire: short string field: %w", err)
	}
	return string(buf), nil
}

func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := d.r.Read(buf); err != nil {
			return nil, fmt.Errorf("wire: short bytes field: %w", err)
		}
	}
	return buf, nil
}
