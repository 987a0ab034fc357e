package flat

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/vexasearch/vexa/index"
)

// Payload layout (little endian):
//
//	count   uint64
//	dim     uint32
//	metric  uint8
//	nextID  int64
//	rows    count * (id int64, dim * float32)
//
// The surrounding snapshot header (magic, version, checksum, compression)
// is owned by the persistence layer.

// WriteTo serializes the index payload.
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	f.writeMu.Lock()
	st := f.state.Load()
	nextID := f.nextID.Load()
	f.writeMu.Unlock()

	cw := &countingWriter{w: w}
	le := binary.LittleEndian

	var scratch [8]byte
	le.PutUint64(scratch[:], uint64(len(st.ids)))
	if _, err := cw.Write(scratch[:]); err != nil {
		return cw.n, err
	}
	le.PutUint32(scratch[:4], uint32(f.dimension))
	if _, err := cw.Write(scratch[:4]); err != nil {
		return cw.n, err
	}
	if _, err := cw.Write([]byte{uint8(f.opts.Metric)}); err != nil {
		return cw.n, err
	}
	le.PutUint64(scratch[:], uint64(nextID))
	if _, err := cw.Write(scratch[:]); err != nil {
		return cw.n, err
	}

	dim := f.dimension
	row := make([]byte, 8+dim*4)
	for i, id := range st.ids {
		le.PutUint64(row[:8], uint64(id))
		vec := st.vectors[i*dim : (i+1)*dim]
		for j, v := range vec {
			le.PutUint32(row[8+j*4:], math.Float32bits(v))
		}
		if _, err := cw.Write(row); err != nil {
			return cw.n, err
		}
	}

	return cw.n, nil
}

// ReadFrom replaces the index content from a payload produced by WriteTo.
// The payload's dimension must match the configured one.
func (f *Flat) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	le := binary.LittleEndian

	var head [8 + 4 + 1 + 8]byte
	if _, err := io.ReadFull(cr, head[:]); err != nil {
		return cr.n, fmt.Errorf("flat: short payload header: %w", err)
	}

	count := le.Uint64(head[0:8])
	dim := int(le.Uint32(head[8:12]))
	nextID := int64(le.Uint64(head[13:21]))

	if dim != f.dimension {
		return cr.n, &index.ErrDimensionMismatch{Expected: f.dimension, Actual: dim}
	}

	st := &indexState{
		ids:     make([]int64, 0, count),
		vectors: make([]float32, 0, int(count)*dim),
		rows:    make(map[int64]int, count),
	}

	row := make([]byte, 8+dim*4)
	maxID := int64(-1)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(cr, row); err != nil {
			return cr.n, fmt.Errorf("flat: short payload row %d: %w", i, err)
		}
		id := int64(le.Uint64(row[:8]))
		if _, dup := st.rows[id]; dup {
			return cr.n, fmt.Errorf("flat: duplicate id %d in payload", id)
		}
		st.rows[id] = len(st.ids)
		st.ids = append(st.ids, id)
		for j := 0; j < dim; j++ {
			st.vectors = append(st.vectors, math.Float32frombits(le.Uint32(row[8+j*4:])))
		}
		if id > maxID {
			maxID = id
		}
	}

	// Never hand out an ID at or below one already present.
	if nextID <= maxID {
		nextID = maxID + 1
	}

	f.writeMu.Lock()
	f.nextID.Store(nextID)
	f.state.Store(st)
	f.writeMu.Unlock()

	return cr.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
