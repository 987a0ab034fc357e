// Package persistence writes and reopens engine snapshots.
//
// A snapshot blob is a fixed header followed by an optionally compressed
// payload. The header carries a CRC32-Castagnoli checksum of the stored
// payload, so corruption is detected before any bytes reach an index.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vexasearch/vexa/blobstore"
	"github.com/vexasearch/vexa/distance"
	"github.com/vexasearch/vexa/index"
	"github.com/vexasearch/vexa/internal/hash"
	"github.com/vexasearch/vexa/metadata"
	"github.com/vexasearch/vexa/resource"
)

// Options configures a Manager.
type Options struct {
	// Compression is applied to snapshot payloads. Defaults to none.
	Compression Compression

	// Controller rate-limits snapshot I/O when set.
	Controller *resource.Controller
}

// Manager serializes indexes and metadata stores to a blob store.
type Manager struct {
	store       blobstore.Store
	compression Compression
	rc          *resource.Controller
}

// NewManager creates a Manager on top of the given blob store.
func NewManager(store blobstore.Store, optFns ...func(o *Options)) *Manager {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		store:       store,
		compression: opts.Compression,
		rc:          opts.Controller,
	}
}

// SaveIndex writes an index snapshot under the given blob name.
func (m *Manager) SaveIndex(ctx context.Context, name string, idx index.Index) error {
	kindCode, ok := index.Code(idx.Kind())
	if !ok {
		return fmt.Errorf("persistence: unregistered index kind %q", idx.Kind())
	}

	var raw bytes.Buffer
	if _, err := idx.WriteTo(&raw); err != nil {
		return fmt.Errorf("persistence: serialize index: %w", err)
	}

	return m.put(ctx, name, Header{
		Section:   SectionIndex,
		IndexKind: kindCode,
		Dimension: uint32(idx.Dimension()),
		Count:     uint64(idx.Len()),
	}, raw.Bytes())
}

// LoadIndex reopens an index snapshot. The returned index uses the given
// metric. If wantDimension is nonzero, a snapshot of any other dimension
// is rejected with index.ErrDimensionMismatch.
func (m *Manager) LoadIndex(ctx context.Context, name string, metric distance.Metric, wantDimension int) (index.Index, error) {
	h, payload, err := m.get(ctx, name)
	if err != nil {
		return nil, err
	}
	if h.Section != SectionIndex {
		return nil, ErrInvalidSection
	}
	if wantDimension > 0 && int(h.Dimension) != wantDimension {
		return nil, &index.ErrDimensionMismatch{Expected: wantDimension, Actual: int(h.Dimension)}
	}

	idx, err := index.New(h.IndexKind, int(h.Dimension), metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFormat, err)
	}
	if _, err := idx.ReadFrom(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFormat, err)
	}
	if uint64(idx.Len()) != h.Count {
		return nil, fmt.Errorf("%w: header count %d, payload count %d", ErrFormat, h.Count, idx.Len())
	}
	return idx, nil
}

// metadataRecord is the JSON shape of one metadata entry in a snapshot.
type metadataRecord struct {
	ID         int64             `json:"id"`
	Payload    string            `json:"payload,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SaveMetadata writes a metadata snapshot under the given blob name.
func (m *Manager) SaveMetadata(ctx context.Context, name string, store *metadata.Store) error {
	entries := store.ToMap()
	records := make([]metadataRecord, 0, len(entries))
	for id, e := range entries {
		records = append(records, metadataRecord{
			ID:         id,
			Payload:    e.Payload,
			Attributes: e.Attributes,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("persistence: serialize metadata: %w", err)
	}

	return m.put(ctx, name, Header{
		Section: SectionMetadata,
		Count:   uint64(len(records)),
	}, raw)
}

// LoadMetadata replaces the contents of store from a metadata snapshot.
func (m *Manager) LoadMetadata(ctx context.Context, name string, store *metadata.Store) error {
	h, payload, err := m.get(ctx, name)
	if err != nil {
		return err
	}
	if h.Section != SectionMetadata {
		return ErrInvalidSection
	}

	var records []metadataRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return fmt.Errorf("%w: %s", ErrFormat, err)
	}
	if uint64(len(records)) != h.Count {
		return fmt.Errorf("%w: header count %d, payload count %d", ErrFormat, h.Count, len(records))
	}

	entries := make(map[int64]metadata.Entry, len(records))
	for _, r := range records {
		entries[r.ID] = metadata.Entry{Payload: r.Payload, Attributes: r.Attributes}
	}
	store.Replace(entries)
	return nil
}

// Delete removes a snapshot blob. Missing blobs are not an error.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.store.Delete(ctx, name)
}

// List returns snapshot blob names with the given prefix.
func (m *Manager) List(ctx context.Context, prefix string) ([]string, error) {
	return m.store.List(ctx, prefix)
}

func (m *Manager) put(ctx context.Context, name string, h Header, raw []byte) error {
	payload, comp, err := compress(raw, m.compression)
	if err != nil {
		return err
	}

	h.Magic = Magic
	h.Version = Version
	h.Compression = comp
	h.RawSize = uint64(len(raw))
	h.PayloadSize = uint64(len(payload))
	h.Checksum = hash.CRC32C(payload)

	var out bytes.Buffer
	out.Grow(headerSize + len(payload))
	if _, err := h.WriteTo(&out); err != nil {
		return err
	}
	if _, err := out.Write(payload); err != nil {
		return err
	}

	if err := m.rc.WaitIO(ctx, out.Len()); err != nil {
		return err
	}
	return m.store.Put(ctx, name, out.Bytes())
}

func (m *Manager) get(ctx context.Context, name string) (Header, []byte, error) {
	blob, err := m.store.Open(ctx, name)
	if err != nil {
		return Header{}, nil, err
	}
	defer blob.Close()

	if err := m.rc.WaitIO(ctx, int(blob.Size())); err != nil {
		return Header{}, nil, err
	}

	data, err := blobstore.ReadAll(ctx, blob)
	if err != nil {
		return Header{}, nil, err
	}

	h, err := parseHeader(data)
	if err != nil {
		return Header{}, nil, err
	}

	payload := data[headerSize : headerSize+int(h.PayloadSize)]
	if hash.CRC32C(payload) != h.Checksum {
		return Header{}, nil, ErrChecksumMismatch
	}

	out, err := decompress(payload, h.Compression, h.RawSize)
	if err != nil {
		return Header{}, nil, err
	}
	return h, out, nil
}
