package llm

import (
	"io"

	"github.com/pkg/errors"
)

// ChunkReader turns a delta stream into keyed chunks. The sequence ends with
// either a CONFIRM chunk (a code block closed) or a PAUSE chunk, then io.EOF.
type ChunkReader struct {
	stream   Stream
	splitter *FenceSplitter
	queue    []Chunk
	done     bool
}

func NewChunkReader(stream Stream) *ChunkReader {
	return &ChunkReader{
		stream:   stream,
		splitter: NewFenceSplitter(),
	}
}

func (r *ChunkReader) Next() (Chunk, error) {
	for len(r.queue) == 0 {
		if r.done {
			return Chunk{}, io.EOF
		}

		delta, err := r.stream.Recv()
		if errors.Is(err, io.EOF) {
			r.queue = append(r.queue, r.splitter.Flush()...)
			if !r.splitter.Confirmed() {
				r.queue = append(r.queue, Chunk{Key: KeyPause})
			}
			r.done = true
			continue
		}
		if err != nil {
			return Chunk{}, err
		}

		r.queue = append(r.queue, r.splitter.Push(delta)...)
		if r.splitter.Confirmed() {
			r.done = true
		}
	}

	c := r.queue[0]
	r.queue = r.queue[1:]
	return c, nil
}

func (r *ChunkReader) Close() error {
	return r.stream.Close()
}
