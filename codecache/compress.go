package codecache

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Stored values start with a tag byte and the uvarint length of the plain
// JSON. Incompressible values are stored raw.
const (
	tagRaw byte = 'r'
	tagLZ4 byte = 'z'
)

// maxValueSize bounds the declared plain length of a stored value. lz4
// never expands a block more than 255 times.
const (
	maxValueSize = 64 << 20
	maxLZ4Ratio  = 255
)

var errCorrupt = errors.New("corrupt cache value")

func compress(plain []byte) ([]byte, error) {
	head := make([]byte, 1, 1+binary.MaxVarintLen64)
	head = binary.AppendUvarint(head, uint64(len(plain)))

	buf := make([]byte, lz4.CompressBlockBound(len(plain)))
	var c lz4.Compressor
	n, err := c.CompressBlock(plain, buf)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if n == 0 || n >= len(plain) {
		head[0] = tagRaw
		return append(head, plain...), nil
	}
	head[0] = tagLZ4
	return append(head, buf[:n]...), nil
}

func decompress(stored []byte) ([]byte, error) {
	if len(stored) < 2 {
		return nil, errCorrupt
	}
	size, k := binary.Uvarint(stored[1:])
	if k <= 0 {
		return nil, errCorrupt
	}
	body := stored[1+k:]
	switch stored[0] {
	case tagRaw:
		if uint64(len(body)) != size {
			return nil, errCorrupt
		}
		return body, nil
	case tagLZ4:
		if size > maxValueSize || size > uint64(len(body))*maxLZ4Ratio {
			return nil, fmt.Errorf("%w: declared length %d", errCorrupt, size)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if uint64(n) != size {
			return nil, errCorrupt
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: tag %#x", errCorrupt, stored[0])
}
