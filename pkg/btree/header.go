package btree

import "encoding/binary"

// indexHeaderSize is the fixed payload size of the index header record
// (spec.md 6.1, "Index header record"): tree_order(4) + padding(4) +
// root_position(8) + records_count(8) + auto_key_counter(8).
const indexHeaderSize = 32

// indexHeader is the single record that anchors a tree: its order, its
// root, and the running entry/auto-key counters.
type indexHeader struct {
	TreeOrder      uint32
	RootPosition   uint64
	RecordsCount   uint64
	AutoKeyCounter uint64
}

func (h indexHeader) Encode() []byte {
	buf := make([]byte, indexHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.TreeOrder)
	binary.LittleEndian.PutUint64(buf[8:16], h.RootPosition)
	binary.LittleEndian.PutUint64(buf[16:24], h.RecordsCount)
	binary.LittleEndian.PutUint64(buf[24:32], h.AutoKeyCounter)
	return buf
}

func decodeIndexHeader(buf []byte) (indexHeader, error) {
	if len(buf) < indexHeaderSize {
		return indexHeader{}, errShortNode
	}
	return indexHeader{
		TreeOrder:      binary.LittleEndian.Uint32(buf[0:4]),
		RootPosition:   binary.LittleEndian.Uint64(buf[8:16]),
		RecordsCount:   binary.LittleEndian.Uint64(buf[16:24]),
		AutoKeyCounter: binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}
