// Package block decodes IEEE 488.2 definite-length arbitrary blocks, the
// framing SCPI instruments use for binary (REAL,32/REAL,64) query replies.
//
//	'#', one digit n, n digits giving the payload length, payload, LF
package block

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Read reads one block from r and returns its payload. A trailing LF after the
// payload is consumed.
func Read(r *bufio.Reader) ([]byte, error) {
	hdr, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	// some instruments echo leading whitespace before the block
	for hdr == ' ' || hdr == '\r' || hdr == '\n' {
		if hdr, err = r.ReadByte(); err != nil {
			return nil, err
		}
	}
	if hdr != '#' {
		return nil, fmt.Errorf("invalid header: want # got %q", hdr)
	}
	nd, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	n, err := digitCount(nd)
	if err != nil {
		return nil, err
	}
	digits := make([]byte, n)
	if _, err := io.ReadFull(r, digits); err != nil {
		return nil, fmt.Errorf("reading block length: %w", err)
	}
	count, err := strconv.Atoi(string(digits))
	if err != nil {
		return nil, fmt.Errorf("invalid block length %q: %w", digits, err)
	}
	payload := make([]byte, count)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading %d byte block: %w", count, err)
	}
	if b, err := r.Peek(1); err == nil && b[0] == '\n' {
		_, _ = r.ReadByte()
	}
	return payload, nil
}

// Unpack extracts the payload of a block that has already been read in full.
func Unpack(pack []byte) ([]byte, error) {
	if len(pack) < 3 {
		return nil, io.ErrUnexpectedEOF
	}
	if pack[0] != '#' {
		return nil, fmt.Errorf("invalid header: want # got %q", pack[0])
	}
	n, err := digitCount(pack[1])
	if err != nil {
		return nil, err
	}
	if len(pack) < 2+n {
		return nil, io.ErrUnexpectedEOF
	}
	count, err := strconv.Atoi(string(pack[2 : 2+n]))
	if err != nil {
		return nil, fmt.Errorf("invalid block length %q: %w", pack[2:2+n], err)
	}
	data := pack[2+n:]
	if len(data) < count {
		return nil, fmt.Errorf("invalid length: expect %d, got %d", count, len(data))
	}
	return data[:count], nil
}

// Encode frames payload as a definite-length block, without a terminator.
func Encode(payload []byte) []byte {
	l := strconv.Itoa(len(payload))
	out := make([]byte, 0, 2+len(l)+len(payload))
	out = append(out, '#', byte('0'+len(l)))
	out = append(out, l...)
	return append(out, payload...)
}

// Float64s decodes a REAL,64 payload.
func Float64s(payload []byte, order binary.ByteOrder) ([]float64, error) {
	if len(payload)%8 != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of 8", len(payload))
	}
	vals := make([]float64, len(payload)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(order.Uint64(payload[i*8:]))
	}
	return vals, nil
}

// PutFloat64s encodes vals as a REAL,64 payload.
func PutFloat64s(vals []float64, order binary.ByteOrder) []byte {
	payload := make([]byte, 8*len(vals))
	for i, v := range vals {
		order.PutUint64(payload[i*8:], math.Float64bits(v))
	}
	return payload
}

func digitCount(c byte) (int, error) {
	// #0 is the indefinite-length form, which we do not accept
	if c < '1' || c > '9' {
		return 0, fmt.Errorf("unsupported block length digit %q", c)
	}
	return int(c - '0'), nil
}
