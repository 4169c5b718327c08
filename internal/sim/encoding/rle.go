// Package encoding packs voxel runs for transport. The format is
// base64(uvarint(block), uvarint(run)...).
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrTooLong = errors.New("rle: decoded length exceeds limit")

// EncodeRLE encodes voxel ids as (id, run) pairs.
func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	put := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}
	for i := 0; i < len(ids); {
		j := i + 1
		for j < len(ids) && ids[j] == ids[i] {
			j++
		}
		put(uint64(ids[i]))
		put(uint64(j - i))
		i = j
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. limit caps the decoded length so a hostile
// run cannot allocate without bound; limit <= 0 means no cap.
func DecodeRLE(s string, limit int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("rle: bad id varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("rle: bad run varint at %d", i)
		}
		i += n
		if b > math.MaxUint16 {
			return nil, fmt.Errorf("rle: voxel id too large: %d", b)
		}
		if run == 0 {
			return nil, fmt.Errorf("rle: empty run at %d", i)
		}
		if limit > 0 && run > uint64(limit-len(out)) {
			return nil, ErrTooLong
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	return out, nil
}
