package pagecache

import "sync/atomic"

// StatKind selects one of the page cache's exposed counters (spec.md 6.2 "stats(kind)").
type StatKind int

const (
	StatRequests StatKind = iota
	StatMisses
	StatBytesRead
	StatBytesWritten
	StatReadTimeNanos
	StatWriteTimeNanos
)

// stats holds the page cache's running counters. All fields are accessed
// through atomic operations so Stats() can be called while the cache is
// in use (the cache itself is not otherwise safe for concurrent callers;
// see spec.md 5, "Shared mutability").
type stats struct {
	requests     atomic.Uint64
	misses       atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	readTimeNs   atomic.Uint64
	writeTimeNs  atomic.Uint64
}

func (s *stats) recordRequest(hit bool) {
	s.requests.Add(1)
	if !hit {
		s.misses.Add(1)
	}
}

func (s *stats) recordRead(bytes int, elapsedNs int64) {
	s.bytesRead.Add(uint64(bytes))
	s.readTimeNs.Add(uint64(elapsedNs))
}

func (s *stats) recordWrite(bytes int, elapsedNs int64) {
	s.bytesWritten.Add(uint64(bytes))
	s.writeTimeNs.Add(uint64(elapsedNs))
}

func (s *stats) get(kind StatKind) uint64 {
	switch kind {
	case StatRequests:
		return s.requests.Load()
	case StatMisses:
		return s.misses.Load()
	case StatBytesRead:
		return s.bytesRead.Load()
	case StatBytesWritten:
		return s.bytesWritten.Load()
	case StatReadTimeNanos:
		return s.readTimeNs.Load()
	case StatWriteTimeNanos:
		return s.writeTimeNs.Load()
	default:
		return 0
	}
}

// HitRate returns (requests - misses) / requests, or 1.0 with no requests yet.
func (s *stats) HitRate() float64 {
	requests := s.requests.Load()
	if requests == 0 {
		return 1.0
	}
	misses := s.misses.Load()
	return float64(requests-misses) / float64(requests)
}

// ReadThroughput returns bytes read per second of cumulative read time.
func (s *stats) ReadThroughput() float64 {
	ns := s.readTimeNs.Load()
	if ns == 0 {
		return 0
	}
	return float64(s.bytesRead.Load()) / (float64(ns) / 1e9)
}

// WriteThroughput returns bytes written per second of cumulative write time.
func (s *stats) WriteThroughput() float64 {
	ns := s.writeTimeNs.Load()
	if ns == 0 {
		return 0
	}
	return float64(s.bytesWritten.Load()) / (float64(ns) / 1e9)
}
