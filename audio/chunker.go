package audio

import (
	"fmt"
	"io"
)

// Chunker regroups the bytes of a Source into fixed-size chunks for the
// recognition stream. Chunks are emitted strictly in source order; the
// final chunk of a finite source may be short but is never padded or
// dropped.
type Chunker struct {
	src  Source
	size int
	done bool
}

// NewChunker wraps src, producing chunks of the given byte size.
func NewChunker(src Source, size int) *Chunker {
	if size <= 0 {
		size = FrameBytes
	}
	return &Chunker{src: src, size: size}
}

// Next blocks until a full chunk has accumulated, the source ends, or a
// read fails. After the source is exhausted every call returns io.EOF.
func (c *Chunker) Next() ([]byte, error) {
	if c.done {
		return nil, io.EOF
	}

	chunk := make([]byte, 0, c.size)
	for len(chunk) < c.size {
		frame, err := c.src.ReadFrame(c.size - len(chunk))
		if err == io.EOF {
			c.done = true
			if len(chunk) == 0 {
				return nil, io.EOF
			}
			return chunk, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read audio frame: %w", err)
		}
		chunk = append(chunk, frame...)
	}
	return chunk, nil
}

// Size returns the nominal chunk size in bytes.
func (c *Chunker) Size() int {
	return c.size
}
