package client

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// utf8Stream decodes a byte stream chunk by chunk. A multi-byte sequence cut
// by a chunk boundary is held back until the rest arrives; invalid bytes
// become U+FFFD.
type utf8Stream struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func newUTF8Stream() *utf8Stream {
	return &utf8Stream{
		t:   unicode.UTF8.NewDecoder(),
		dst: make([]byte, 4096),
	}
}

// Decode returns the text completed by chunk.
func (d *utf8Stream) Decode(chunk []byte) string {
	return d.run(chunk, false)
}

// Flush returns whatever is still pending at end of stream.
func (d *utf8Stream) Flush() string {
	return d.run(nil, true)
}

func (d *utf8Stream) run(chunk []byte, atEOF bool) string {
	src := append(d.pending, chunk...)
	var out strings.Builder

	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]
		if err != transform.ErrShortDst {
			break
		}
	}

	d.pending = append([]byte(nil), src...)
	return out.String()
}
