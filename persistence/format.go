package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic identifies snapshot files (ASCII "VEXA").
	Magic = 0x56455841

	// Version is the current snapshot format version (v1.0).
	Version = 0x00010000

	headerSize = 48
)

// Section identifies what a snapshot blob contains.
type Section uint8

const (
	SectionIndex    Section = 1
	SectionMetadata Section = 2
)

// ErrFormat is the root of all snapshot format errors. Every parse or
// validation failure satisfies errors.Is(err, ErrFormat).
var ErrFormat = errors.New("invalid snapshot format")

var (
	ErrInvalidMagic      = fmt.Errorf("%w: bad magic number", ErrFormat)
	ErrInvalidVersion    = fmt.Errorf("%w: unsupported version", ErrFormat)
	ErrInvalidSection    = fmt.Errorf("%w: unexpected section", ErrFormat)
	ErrChecksumMismatch  = fmt.Errorf("%w: checksum mismatch", ErrFormat)
	ErrTruncated         = fmt.Errorf("%w: truncated file", ErrFormat)
	ErrUnknownCompressor = fmt.Errorf("%w: unknown compression", ErrFormat)
)

// Header is the fixed-size header at the start of every snapshot blob.
//
// Layout (little-endian, 48 bytes):
//
//	Magic       uint32
//	Version     uint32
//	Section     uint8
//	IndexKind   uint8   (0 for metadata sections)
//	Compression uint8
//	_           uint8   (reserved)
//	Dimension   uint32
//	Count       uint64
//	RawSize     uint64  (payload size before compression)
//	PayloadSize uint64  (payload size as stored)
//	Checksum    uint32  (CRC32-Castagnoli of the stored payload)
//	_           [4]byte (reserved)
type Header struct {
	Magic       uint32
	Version     uint32
	Section     Section
	IndexKind   uint8
	Compression Compression
	Dimension   uint32
	Count       uint64
	RawSize     uint64
	PayloadSize uint64
	Checksum    uint32
}

// WriteTo serializes the header.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	buf[8] = uint8(h.Section)
	buf[9] = h.IndexKind
	buf[10] = uint8(h.Compression)
	binary.LittleEndian.PutUint32(buf[12:], h.Dimension)
	binary.LittleEndian.PutUint64(buf[16:], h.Count)
	binary.LittleEndian.PutUint64(buf[24:], h.RawSize)
	binary.LittleEndian.PutUint64(buf[32:], h.PayloadSize)
	binary.LittleEndian.PutUint32(buf[40:], h.Checksum)

	n, err := w.Write(buf[:])
	return int64(n), err
}

// parseHeader decodes and validates the fixed header fields.
func parseHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, ErrTruncated
	}

	h := Header{
		Magic:       binary.LittleEndian.Uint32(data[0:]),
		Version:     binary.LittleEndian.Uint32(data[4:]),
		Section:     Section(data[8]),
		IndexKind:   data[9],
		Compression: Compression(data[10]),
		Dimension:   binary.LittleEndian.Uint32(data[12:]),
		Count:       binary.LittleEndian.Uint64(data[16:]),
		RawSize:     binary.LittleEndian.Uint64(data[24:]),
		PayloadSize: binary.LittleEndian.Uint64(data[32:]),
		Checksum:    binary.LittleEndian.Uint32(data[40:]),
	}

	if h.Magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: 0x%08x", ErrInvalidVersion, h.Version)
	}
	if uint64(len(data)-headerSize) < h.PayloadSize {
		return Header{}, ErrTruncated
	}

	return h, nil
}
