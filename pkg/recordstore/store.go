// Package recordstore implements the variable-length record layer
// (spec.md 4.2): allocation, a doubly-linked active list, a doubly-linked
// free list for reuse, and per-record/per-header checksums. It is built
// directly on top of pkg/pagecache and knows nothing about keys, values,
// or tree structure — that belongs to pkg/btree.
package recordstore

import (
	"github.com/nainya/bsdb/common"
	"github.com/nainya/bsdb/internal/logger"
	"github.com/nainya/bsdb/internal/metrics"
	"github.com/nainya/bsdb/pkg/pagecache"
)

// Options configures a Store on Open.
type Options struct {
	ReadOnly bool
	// FreeLookupDepth bounds how many free-list entries create_record
	// scans before giving up the first-fit search. Zero means unbounded.
	FreeLookupDepth int
	Logger          *logger.Logger
	Metrics         *metrics.Metrics
}

// Store is the record-store handle: one storage header plus a cursor
// into the active list.
type Store struct {
	cache    *pagecache.Cache
	readOnly bool
	depth    int

	header StorageHeader
	cursor uint64

	log *logger.Logger
	met *metrics.Metrics
}

// Open reads the storage header from cache, or writes a fresh one if the
// file is empty. cache must already be positioned at a freshly-Open'd,
// otherwise-untouched file.
func Open(cache *pagecache.Cache, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.StoreLogger()

	s := &Store{
		cache:    cache,
		readOnly: opts.ReadOnly,
		depth:    opts.FreeLookupDepth,
		cursor:   NONE,
		log:      log,
		met:      opts.Metrics,
	}

	if cache.FileSize() < StorageHeaderSize {
		s.header = newStorageHeader()
		if !opts.ReadOnly {
			if err := s.persistHeader(); err != nil {
				return nil, err
			}
			if err := cache.Flush(); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	buf := make([]byte, StorageHeaderSize)
	if _, err := cache.Read(0, buf); err != nil {
		return nil, err
	}
	h, err := decodeStorageHeader(buf)
	if err != nil {
		log.LogIntegrityFailure(0, "storage header validation failed", err)
		return nil, err
	}
	s.header = h
	s.refreshGauges()
	return s, nil
}

// IsOpen reports whether the store has a usable in-memory header. A
// Store returned by Open is always open; this mirrors spec.md's
// is_open() for callers that hold a possibly-closed handle.
func (s *Store) IsOpen() bool {
	return s.cache != nil
}

// SetFreeLookupDepth bounds the first-fit free-list scan length.
func (s *Store) SetFreeLookupDepth(n int) {
	s.depth = n
}

// TotalRecords returns the number of records on the active list.
func (s *Store) TotalRecords() uint64 {
	return s.header.TotalRecords
}

// TotalFreeRecords returns the number of records on the free list.
func (s *Store) TotalFreeRecords() uint64 {
	return s.header.TotalFreeRecords
}

// Position returns the cursor's current record offset, or NONE.
func (s *Store) Position() uint64 {
	return s.cursor
}

// SetPosition validates offset's header and, on success, moves the
// cursor there. On checksum failure the cursor does not move.
func (s *Store) SetPosition(offset uint64) error {
	if offset == NONE {
		s.cursor = NONE
		return nil
	}
	if _, err := s.readRecordHeader(offset); err != nil {
		return err
	}
	s.cursor = offset
	return nil
}

// First moves the cursor to the head of the active list.
func (s *Store) First() (uint64, error) {
	return s.anchor(s.header.FirstRecord)
}

// Last moves the cursor to the tail of the active list.
func (s *Store) Last() (uint64, error) {
	return s.anchor(s.header.LastRecord)
}

func (s *Store) anchor(offset uint64) (uint64, error) {
	if offset == NONE {
		s.cursor = NONE
		return NONE, nil
	}
	if err := s.SetPosition(offset); err != nil {
		return NONE, err
	}
	return s.cursor, nil
}

// Next advances the cursor along the active list. At the tail it
// returns NONE without moving the cursor.
func (s *Store) Next() (uint64, error) {
	if s.cursor == NONE {
		return NONE, nil
	}
	h, err := s.readRecordHeader(s.cursor)
	if err != nil {
		return NONE, err
	}
	if h.Next == NONE {
		return NONE, nil
	}
	if err := s.SetPosition(h.Next); err != nil {
		return NONE, err
	}
	return s.cursor, nil
}

// Previous retreats the cursor along the active list. At the head it
// returns NONE without moving the cursor.
func (s *Store) Previous() (uint64, error) {
	if s.cursor == NONE {
		return NONE, nil
	}
	h, err := s.readRecordHeader(s.cursor)
	if err != nil {
		return NONE, err
	}
	if h.Previous == NONE {
		return NONE, nil
	}
	if err := s.SetPosition(h.Previous); err != nil {
		return NONE, err
	}
	return s.cursor, nil
}

// DataLength returns the payload length of the record at the cursor.
func (s *Store) DataLength() (uint32, error) {
	if s.cursor == NONE {
		return 0, common.ErrRecordNotFound
	}
	h, err := s.readRecordHeader(s.cursor)
	if err != nil {
		return 0, err
	}
	return h.DataLength, nil
}

// Capacity returns the allocated capacity of the record at the cursor.
func (s *Store) Capacity() (uint32, error) {
	if s.cursor == NONE {
		return 0, common.ErrRecordNotFound
	}
	h, err := s.readRecordHeader(s.cursor)
	if err != nil {
		return 0, err
	}
	return h.RecordCapacity, nil
}

// GetData returns the payload of the record at the cursor. A data
// checksum mismatch is reported as common.ErrChecksumMismatch and no
// data is returned.
func (s *Store) GetData() ([]byte, error) {
	if s.cursor == NONE {
		return nil, common.ErrRecordNotFound
	}
	h, err := s.readRecordHeader(s.cursor)
	if err != nil {
		return nil, err
	}
	data, err := s.readPayload(s.cursor, h.DataLength)
	if err != nil {
		return nil, err
	}
	if checksum(data) != h.DataChecksum {
		s.log.LogIntegrityFailure(s.cursor, "record data checksum mismatch", common.ErrChecksumMismatch)
		return nil, common.ErrChecksumMismatch
	}
	return data, nil
}

// CreateRecord allocates a record (reusing a free one with enough
// capacity, or appending), writes data into it, links it onto the tail
// of the active list, and returns its offset.
func (s *Store) CreateRecord(data []byte) (uint64, error) {
	if s.readOnly {
		return NONE, common.ErrReadOnly
	}
	length := uint32(len(data))
	offset, capacity, reused, err := s.allocate(length)
	if err != nil {
		return NONE, err
	}

	h := RecordHeader{
		Next:           NONE,
		Previous:       s.header.LastRecord,
		RecordCapacity: capacity,
		DataLength:     length,
		DataChecksum:   checksum(data),
	}
	if err := s.writeRecordHeader(offset, h); err != nil {
		return NONE, err
	}
	if err := s.writePayload(offset, data); err != nil {
		return NONE, err
	}

	if s.header.LastRecord != NONE {
		tailH, err := s.readRecordHeader(s.header.LastRecord)
		if err != nil {
			return NONE, err
		}
		tailH.Next = offset
		if err := s.writeRecordHeader(s.header.LastRecord, tailH); err != nil {
			return NONE, err
		}
	} else {
		s.header.FirstRecord = offset
	}
	s.header.LastRecord = offset
	s.header.TotalRecords++

	if err := s.persistHeader(); err != nil {
		return NONE, err
	}
	if s.met != nil {
		s.met.RecordAllocation(reused)
	}
	s.refreshGauges()
	return offset, nil
}

// RemoveRecord unlinks the record at the cursor from the active list,
// pushes it onto the head of the free list, and returns the right
// active neighbour (the new cursor) or NONE.
func (s *Store) RemoveRecord() (uint64, error) {
	if s.readOnly {
		return NONE, common.ErrReadOnly
	}
	offset := s.cursor
	if offset == NONE {
		return NONE, common.ErrRecordNotFound
	}
	h, err := s.readRecordHeader(offset)
	if err != nil {
		return NONE, err
	}

	if err := s.unlinkActive(offset, h); err != nil {
		return NONE, err
	}

	rightNeighbour := h.Next
	if err := s.pushFree(offset, h); err != nil {
		return NONE, err
	}

	if err := s.persistHeader(); err != nil {
		return NONE, err
	}
	s.refreshGauges()

	if rightNeighbour == NONE {
		s.cursor = NONE
		return NONE, nil
	}
	s.cursor = rightNeighbour
	return rightNeighbour, nil
}

// SetRecordData overwrites the record at the cursor. If data fits within
// the existing capacity it is rewritten in place at the same offset.
// Otherwise a new record is allocated, the old record's list neighbours
// are patched to point at it, the old record is freed, and the cursor
// moves to the new offset. The returned bool reports whether the record
// relocated (false means in-place).
func (s *Store) SetRecordData(data []byte) (uint64, bool, error) {
	if s.readOnly {
		return NONE, false, common.ErrReadOnly
	}
	offset := s.cursor
	if offset == NONE {
		return NONE, false, common.ErrRecordNotFound
	}
	h, err := s.readRecordHeader(offset)
	if err != nil {
		return NONE, false, err
	}
	length := uint32(len(data))

	if length <= h.RecordCapacity {
		h.DataLength = length
		h.DataChecksum = checksum(data)
		if err := s.writeRecordHeader(offset, h); err != nil {
			return NONE, false, err
		}
		if err := s.writePayload(offset, data); err != nil {
			return NONE, false, err
		}
		return offset, false, nil
	}

	newOffset, capacity, reused, err := s.allocate(length)
	if err != nil {
		return NONE, false, err
	}
	newHeader := RecordHeader{
		Next:           h.Next,
		Previous:       h.Previous,
		RecordCapacity: capacity,
		DataLength:     length,
		DataChecksum:   checksum(data),
	}
	if err := s.writeRecordHeader(newOffset, newHeader); err != nil {
		return NONE, false, err
	}
	if err := s.writePayload(newOffset, data); err != nil {
		return NONE, false, err
	}

	if h.Previous != NONE {
		prevH, err := s.readRecordHeader(h.Previous)
		if err != nil {
			return NONE, false, err
		}
		prevH.Next = newOffset
		if err := s.writeRecordHeader(h.Previous, prevH); err != nil {
			return NONE, false, err
		}
	} else {
		s.header.FirstRecord = newOffset
	}
	if h.Next != NONE {
		nextH, err := s.readRecordHeader(h.Next)
		if err != nil {
			return NONE, false, err
		}
		nextH.Previous = newOffset
		if err := s.writeRecordHeader(h.Next, nextH); err != nil {
			return NONE, false, err
		}
	} else {
		s.header.LastRecord = newOffset
	}

	oldFree := RecordHeader{Next: NONE, Previous: NONE, RecordCapacity: h.RecordCapacity}
	if err := s.pushFree(offset, oldFree); err != nil {
		return NONE, false, err
	}

	if err := s.persistHeader(); err != nil {
		return NONE, false, err
	}
	if s.met != nil {
		s.met.RecordAllocation(reused)
	}
	s.refreshGauges()
	s.cursor = newOffset
	return newOffset, true, nil
}

// allocate finds a free record with capacity >= length (first-fit,
// scanning at most depth entries, 0 meaning unbounded), or appends a new
// record at end_of_file. It does not touch the active list.
func (s *Store) allocate(length uint32) (offset uint64, capacity uint32, reused bool, err error) {
	cur := s.header.FirstFreeRecord
	scanned := 0
	for cur != NONE {
		if s.depth > 0 && scanned >= s.depth {
			break
		}
		h, err := s.readRecordHeader(cur)
		if err != nil {
			return 0, 0, false, err
		}
		if h.RecordCapacity >= length {
			if err := s.unlinkFree(cur, h); err != nil {
				return 0, 0, false, err
			}
			return cur, h.RecordCapacity, true, nil
		}
		cur = h.Next
		scanned++
	}

	offset = s.header.EndOfFile
	s.header.EndOfFile += uint64(RecordHeaderSize) + uint64(length)
	return offset, length, false, nil
}

func (s *Store) unlinkFree(offset uint64, h RecordHeader) error {
	if h.Previous != NONE {
		prevH, err := s.readRecordHeader(h.Previous)
		if err != nil {
			return err
		}
		prevH.Next = h.Next
		if err := s.writeRecordHeader(h.Previous, prevH); err != nil {
			return err
		}
	} else {
		s.header.FirstFreeRecord = h.Next
	}
	if h.Next != NONE {
		nextH, err := s.readRecordHeader(h.Next)
		if err != nil {
			return err
		}
		nextH.Previous = h.Previous
		if err := s.writeRecordHeader(h.Next, nextH); err != nil {
			return err
		}
	} else {
		s.header.LastFreeRecord = h.Previous
	}
	s.header.TotalFreeRecords--
	return nil
}

func (s *Store) pushFree(offset uint64, h RecordHeader) error {
	h.Next = s.header.FirstFreeRecord
	h.Previous = NONE
	if s.header.FirstFreeRecord != NONE {
		oldHead, err := s.readRecordHeader(s.header.FirstFreeRecord)
		if err != nil {
			return err
		}
		oldHead.Previous = offset
		if err := s.writeRecordHeader(s.header.FirstFreeRecord, oldHead); err != nil {
			return err
		}
	} else {
		s.header.LastFreeRecord = offset
	}
	s.header.FirstFreeRecord = offset
	s.header.TotalFreeRecords++
	return s.writeRecordHeader(offset, h)
}

func (s *Store) unlinkActive(offset uint64, h RecordHeader) error {
	if h.Previous != NONE {
		prevH, err := s.readRecordHeader(h.Previous)
		if err != nil {
			return err
		}
		prevH.Next = h.Next
		if err := s.writeRecordHeader(h.Previous, prevH); err != nil {
			return err
		}
	} else {
		s.header.FirstRecord = h.Next
	}
	if h.Next != NONE {
		nextH, err := s.readRecordHeader(h.Next)
		if err != nil {
			return err
		}
		nextH.Previous = h.Previous
		if err := s.writeRecordHeader(h.Next, nextH); err != nil {
			return err
		}
	} else {
		s.header.LastRecord = h.Previous
	}
	s.header.TotalRecords--
	return nil
}

// Flush delegates to the underlying cache.
func (s *Store) Flush() error {
	return s.cache.Flush()
}

func (s *Store) persistHeader() error {
	_, err := s.cache.Write(0, s.header.Encode())
	return err
}

func (s *Store) readRecordHeader(offset uint64) (RecordHeader, error) {
	buf := make([]byte, RecordHeaderSize)
	if _, err := s.cache.Read(int64(offset), buf); err != nil {
		return RecordHeader{}, err
	}
	h, err := decodeRecordHeader(buf)
	if err != nil {
		s.log.LogIntegrityFailure(offset, "record header checksum mismatch", err)
		return RecordHeader{}, err
	}
	return h, nil
}

func (s *Store) writeRecordHeader(offset uint64, h RecordHeader) error {
	_, err := s.cache.Write(int64(offset), h.Encode())
	return err
}

func (s *Store) readPayload(offset uint64, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	_, err := s.cache.Read(int64(offset)+int64(RecordHeaderSize), buf)
	return buf, err
}

func (s *Store) writePayload(offset uint64, data []byte) error {
	_, err := s.cache.Write(int64(offset)+int64(RecordHeaderSize), data)
	return err
}

func (s *Store) refreshGauges() {
	if s.met == nil {
		return
	}
	s.met.RecordStoreActiveRecords.Set(float64(s.header.TotalRecords))
	s.met.RecordStoreFreeRecords.Set(float64(s.header.TotalFreeRecords))
}
