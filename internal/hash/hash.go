// Package hash provides the hashing primitives shared by persistence and
// caching: CRC32-Castagnoli for data integrity and FNV-1a for cache keys.
//
// CRC32C is hardware-accelerated on x86 (SSE4.2) and ARM (CRC extension)
// through the standard library. The polynomial is the same one used by
// iSCSI, RocksDB and LevelDB.
package hash

import (
	"hash"
	"hash/crc32"
	"hash/fnv"
)

// crc32cTable is pre-computed once; MakeTable is not free.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a streaming CRC32-Castagnoli hash.Hash32.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}

// New64 returns a 64-bit FNV-1a hash for building deterministic keys.
// Unlike maphash, the result is stable across processes, which keeps
// fingerprints reproducible in tests and logs.
func New64() hash.Hash64 {
	return fnv.New64a()
}
