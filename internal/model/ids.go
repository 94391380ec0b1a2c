package model

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedIDList is returned when an encoded id list cannot be decoded.
var ErrMalformedIDList = errors.New("malformed id list")

// EncodeIDs writes ids as a uvarint count followed by one varint per id.
func EncodeIDs(ids []int) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64*(len(ids)+1))
	buf = binary.AppendUvarint(buf, uint64(len(ids)))

	for _, id := range ids {
		buf = binary.AppendVarint(buf, int64(id))
	}

	return buf
}

// DecodeIDs reads a list written by EncodeIDs. Trailing bytes are an error.
func DecodeIDs(data []byte) ([]int, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad length prefix", ErrMalformedIDList)
	}

	data = data[n:]
	if count > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d ids announced, %d bytes left", ErrMalformedIDList, count, len(data))
	}

	ids := make([]int, 0, count)

	for i := uint64(0); i < count; i++ {
		id, n := binary.Varint(data)
		if n <= 0 {
			return nil, fmt.Errorf("%w: truncated at id %d", ErrMalformedIDList, i)
		}

		ids = append(ids, int(id))
		data = data[n:]
	}

	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedIDList, len(data))
	}

	return ids, nil
}
