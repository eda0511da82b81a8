package blendfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"github.com/klauspost/compress/gzip"

	"github.com/twinfer/blenddna/pkg/stream"
)

// HeaderSize is the length of the file preamble.
const HeaderSize = 12

const magic = "BLENDER"

// ErrNotBlend is returned when the input does not start with the preamble,
// even after gzip decompression.
var ErrNotBlend = errors.New("not a blend file")

// Header is the file preamble: pointer width, byte order and the version of
// the producing application.
type Header struct {
	Layout  stream.Layout
	Version string
}

func (h Header) String() string {
	return fmt.Sprintf("v%s %s", h.Version, h.Layout)
}

// ParseHeader reads the 12 byte preamble at the start of data.
func ParseHeader(data []byte) (Header, error) {
	ks := kaitai.NewStream(bytes.NewReader(data))
	id, err := ks.ReadBytes(len(magic))
	if err != nil || string(id) != magic {
		return Header{}, fmt.Errorf("%w: missing %s magic", ErrNotBlend, magic)
	}

	var h Header
	ptr, err := ks.ReadU1()
	if err != nil {
		return Header{}, fmt.Errorf("%w: truncated preamble", ErrNotBlend)
	}
	switch ptr {
	case '_':
		h.Layout.PointerSize = 4
	case '-':
		h.Layout.PointerSize = 8
	default:
		return Header{}, fmt.Errorf("%w: unknown pointer size marker %q", ErrNotBlend, ptr)
	}

	order, err := ks.ReadU1()
	if err != nil {
		return Header{}, fmt.Errorf("%w: truncated preamble", ErrNotBlend)
	}
	switch order {
	case 'v':
	case 'V':
		h.Layout.BigEndian = true
	default:
		return Header{}, fmt.Errorf("%w: unknown byte order marker %q", ErrNotBlend, order)
	}

	version, err := ks.ReadBytes(3)
	if err != nil {
		return Header{}, fmt.Errorf("%w: truncated preamble", ErrNotBlend)
	}
	for _, c := range version {
		if c < '0' || c > '9' {
			return Header{}, fmt.Errorf("%w: bad version %q", ErrNotBlend, version)
		}
	}
	h.Version = string(version)
	return h, nil
}

// maxInflated bounds the size of a decompressed input.
const maxInflated = 1 << 30

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// inflate returns data unchanged unless it is gzip compressed.
func inflate(data []byte) ([]byte, error) {
	if !isGzip(data) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxInflated+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing input: %w", err)
	}
	if len(out) > maxInflated {
		return nil, fmt.Errorf("decompressed input exceeds %d bytes", maxInflated)
	}
	return out, nil
}
