package recordstore

import (
	"encoding/binary"
	"fmt"

	"github.com/nainya/bsdb/common"
)

// NONE is the sentinel offset meaning "unset" (spec.md 6.1).
const NONE uint64 = 0xFFFFFFFFFFFFFFFF

// signature identifies a bsdb storage file: "BSDB" as a little-endian uint32.
const signature uint32 = 0x42445342

// version is the on-disk format version this package reads and writes.
const version uint32 = 1

// StorageHeaderSize is the fixed size, in bytes, of the storage header
// that occupies the start of the file. spec.md 6.1 specifies 64 bytes;
// this package adds a trailing header_checksum (spec.md 9, Open
// Questions), growing it to 68.
const StorageHeaderSize = 68

// RecordHeaderSize is the fixed size, in bytes, of a record header.
const RecordHeaderSize = 32

// StorageHeader is the first 68 bytes of a bsdb file. It tracks the
// active and free record lists and the logical end of file.
type StorageHeader struct {
	EndOfFile         uint64
	TotalRecords      uint64
	FirstRecord       uint64
	LastRecord        uint64
	TotalFreeRecords  uint64
	FirstFreeRecord   uint64
	LastFreeRecord    uint64
}

// newStorageHeader returns the header for a freshly created, empty file.
func newStorageHeader() StorageHeader {
	return StorageHeader{
		EndOfFile:        StorageHeaderSize,
		TotalRecords:     0,
		FirstRecord:      NONE,
		LastRecord:       NONE,
		TotalFreeRecords: 0,
		FirstFreeRecord:  NONE,
		LastFreeRecord:   NONE,
	}
}

// Encode serializes the header to exactly StorageHeaderSize bytes,
// including a freshly computed header_checksum.
func (h StorageHeader) Encode() []byte {
	buf := make([]byte, StorageHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], signature)
	binary.LittleEndian.PutUint32(buf[4:8], version)
	binary.LittleEndian.PutUint64(buf[8:16], h.EndOfFile)
	binary.LittleEndian.PutUint64(buf[16:24], h.TotalRecords)
	binary.LittleEndian.PutUint64(buf[24:32], h.FirstRecord)
	binary.LittleEndian.PutUint64(buf[32:40], h.LastRecord)
	binary.LittleEndian.PutUint64(buf[40:48], h.TotalFreeRecords)
	binary.LittleEndian.PutUint64(buf[48:56], h.FirstFreeRecord)
	binary.LittleEndian.PutUint64(buf[56:64], h.LastFreeRecord)
	binary.LittleEndian.PutUint32(buf[64:68], checksum(buf[0:64]))
	return buf
}

// decodeStorageHeader parses and validates a storage header, checking
// both the signature and the header_checksum before trusting any field.
func decodeStorageHeader(buf []byte) (StorageHeader, error) {
	if len(buf) < StorageHeaderSize {
		return StorageHeader{}, fmt.Errorf("storage header short read: %d bytes", len(buf))
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != signature {
		return StorageHeader{}, common.ErrInvalidSignature
	}
	want := binary.LittleEndian.Uint32(buf[64:68])
	got := checksum(buf[0:64])
	if want != got {
		return StorageHeader{}, common.ErrChecksumMismatch
	}
	h := StorageHeader{
		EndOfFile:        binary.LittleEndian.Uint64(buf[8:16]),
		TotalRecords:     binary.LittleEndian.Uint64(buf[16:24]),
		FirstRecord:      binary.LittleEndian.Uint64(buf[24:32]),
		LastRecord:       binary.LittleEndian.Uint64(buf[32:40]),
		TotalFreeRecords: binary.LittleEndian.Uint64(buf[40:48]),
		FirstFreeRecord:  binary.LittleEndian.Uint64(buf[48:56]),
		LastFreeRecord:   binary.LittleEndian.Uint64(buf[56:64]),
	}
	return h, nil
}

// RecordHeader precedes every record's payload on disk.
type RecordHeader struct {
	Next           uint64
	Previous       uint64
	RecordCapacity uint32
	DataLength     uint32
	DataChecksum   uint32
}

// Encode serializes the header to exactly RecordHeaderSize bytes,
// including a freshly computed head_checksum.
func (h RecordHeader) Encode() []byte {
	buf := make([]byte, RecordHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Next)
	binary.LittleEndian.PutUint64(buf[8:16], h.Previous)
	binary.LittleEndian.PutUint32(buf[16:20], h.RecordCapacity)
	binary.LittleEndian.PutUint32(buf[20:24], h.DataLength)
	binary.LittleEndian.PutUint32(buf[24:28], h.DataChecksum)
	binary.LittleEndian.PutUint32(buf[28:32], checksum(buf[0:28]))
	return buf
}

// decodeRecordHeader parses and validates a record header's head_checksum.
func decodeRecordHeader(buf []byte) (RecordHeader, error) {
	if len(buf) < RecordHeaderSize {
		return RecordHeader{}, fmt.Errorf("record header short read: %d bytes", len(buf))
	}
	want := binary.LittleEndian.Uint32(buf[28:32])
	got := checksum(buf[0:28])
	if want != got {
		return RecordHeader{}, common.ErrChecksumMismatch
	}
	h := RecordHeader{
		Next:           binary.LittleEndian.Uint64(buf[0:8]),
		Previous:       binary.LittleEndian.Uint64(buf[8:16]),
		RecordCapacity: binary.LittleEndian.Uint32(buf[16:20]),
		DataLength:     binary.LittleEndian.Uint32(buf[20:24]),
		DataChecksum:   binary.LittleEndian.Uint32(buf[24:28]),
	}
	return h, nil
}
