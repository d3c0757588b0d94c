package pagecache

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/nainya/bsdb/common"
	"github.com/nainya/bsdb/internal/logger"
	"github.com/nainya/bsdb/internal/metrics"
)

// Options configures a Cache on Open.
type Options struct {
	// CacheBytes is the target cache size; raised to MinCacheBytes if smaller.
	CacheBytes int
	// ReadOnly opens the backing file without allowing Write/WritePage/Flush.
	ReadOnly bool
	// Logger and Metrics are both optional; nil disables the respective hook.
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Cache is a fixed-size LRU page cache over a single backing file. It is
// the sole mediator of file I/O for the layers above it (spec.md 4.1).
// A Cache is owned by exactly one goroutine at a time; see spec.md 5.
type Cache struct {
	file     *os.File
	path     string
	readOnly bool

	capacityPages int
	pages         map[uint64]*page
	head, tail    *page // head = most recently used

	fileSize int64 // logical end of file; monotonically non-decreasing

	stats stats
	log   *logger.Logger
	met   *metrics.Metrics

	closed bool
}

// Open opens or creates the backing file and allocates the cache.
func Open(path string, opts Options) (*Cache, error) {
	cacheBytes := opts.CacheBytes
	if cacheBytes < MinCacheBytes {
		cacheBytes = MinCacheBytes
	}

	flags := os.O_RDWR | os.O_CREATE
	if opts.ReadOnly {
		flags = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open backing file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat backing file: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.CacheLogger()

	c := &Cache{
		file:          f,
		path:          path,
		readOnly:      opts.ReadOnly,
		capacityPages: cacheBytes / PageSize,
		pages:         make(map[uint64]*page),
		fileSize:      info.Size(),
		log:           log,
		met:           opts.Metrics,
	}
	return c, nil
}

// Close flushes (unless read-only) and releases the cache. Idempotent.
func (c *Cache) Close() error {
	if c.closed {
		return nil
	}
	var flushErr error
	if !c.readOnly {
		flushErr = c.Flush()
	}
	c.closed = true
	closeErr := c.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// FileSize returns the logical end of file.
func (c *Cache) FileSize() int64 {
	return c.fileSize
}

// Stats returns the value of one counter.
func (c *Cache) Stats(kind StatKind) uint64 {
	return c.stats.get(kind)
}

// HitRate returns (requests - misses) / requests.
func (c *Cache) HitRate() float64 {
	return c.stats.HitRate()
}

// SetCacheSize adjusts the cache's capacity, evicting from the LRU tail
// immediately if the new size is smaller than the current resident set.
func (c *Cache) SetCacheSize(bytes int) {
	if bytes < MinCacheBytes {
		bytes = MinCacheBytes
	}
	c.capacityPages = bytes / PageSize
	for len(c.pages) > c.capacityPages {
		c.evictTail()
	}
}

// ReadPage reads exactly one PageSize block into buf.
func (c *Cache) ReadPage(pageNumber uint64, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("pagecache: ReadPage buffer must be %d bytes", PageSize)
	}
	p, err := c.fetch(pageNumber)
	if err != nil {
		return err
	}
	copy(buf, p.data[:])
	return nil
}

// WritePage overwrites exactly one PageSize block and marks it dirty.
func (c *Cache) WritePage(pageNumber uint64, buf []byte) error {
	if c.readOnly {
		return common.ErrReadOnly
	}
	if len(buf) != PageSize {
		return fmt.Errorf("pagecache: WritePage buffer must be %d bytes", PageSize)
	}
	p, err := c.fetch(pageNumber)
	if err != nil {
		return err
	}
	copy(p.data[:], buf)
	p.availableDataLength = PageSize
	p.state = Dirty
	c.touchFileSize(int64(pageNumber)*PageSize + PageSize)
	if c.met != nil {
		c.met.PageCacheDirtyPages.Set(float64(c.countDirty()))
	}
	return nil
}

// Read copies length bytes starting at position into buffer, composing
// the result from one or more page slices. At most the bytes actually
// available (up to EOF) are copied; this is not an error.
func (c *Cache) Read(position int64, buffer []byte) (int, error) {
	start := time.Now()
	length := len(buffer)
	total := 0
	for total < length {
		pos := position + int64(total)
		pageNumber := uint64(pos) / PageSize
		offsetInPage := int(uint64(pos) % PageSize)

		p, err := c.fetch(pageNumber)
		if err != nil {
			return total, err
		}

		avail := p.availableDataLength - offsetInPage
		if avail <= 0 {
			break // past EOF: stop, not an error
		}
		want := length - total
		if want > avail {
			want = avail
		}
		if want > PageSize-offsetInPage {
			want = PageSize - offsetInPage
		}
		copy(buffer[total:total+want], p.data[offsetInPage:offsetInPage+want])
		total += want
		if want == 0 {
			break
		}
	}
	c.stats.recordRead(total, time.Since(start).Nanoseconds())
	if c.met != nil {
		c.met.PageCacheBytesRead.Add(float64(total))
		c.met.PageCacheReadSeconds.Observe(time.Since(start).Seconds())
	}
	return total, nil
}

// Write copies length bytes from buffer to position. Partial-page writes
// are fetched-before-written so unmodified bytes in the target page survive.
func (c *Cache) Write(position int64, buffer []byte) (int, error) {
	if c.readOnly {
		return 0, common.ErrReadOnly
	}
	start := time.Now()
	length := len(buffer)
	total := 0
	for total < length {
		pos := position + int64(total)
		pageNumber := uint64(pos) / PageSize
		offsetInPage := int(uint64(pos) % PageSize)

		p, err := c.fetch(pageNumber)
		if err != nil {
			return total, err
		}

		want := length - total
		if want > PageSize-offsetInPage {
			want = PageSize - offsetInPage
		}
		copy(p.data[offsetInPage:offsetInPage+want], buffer[total:total+want])
		if newAvail := offsetInPage + want; newAvail > p.availableDataLength {
			p.availableDataLength = newAvail
		}
		p.state = Dirty
		total += want
	}
	c.touchFileSize(position + int64(total))
	c.stats.recordWrite(total, time.Since(start).Nanoseconds())
	if c.met != nil {
		c.met.PageCacheBytesWritten.Add(float64(total))
		c.met.PageCacheWriteSeconds.Observe(time.Since(start).Seconds())
		c.met.PageCacheDirtyPages.Set(float64(c.countDirty()))
	}
	return total, nil
}

// Flush persists every dirty page to the file in ascending page-number
// order (so writes are sequential on the device), then syncs the file
// handle. Pages stay resident and become Clean.
func (c *Cache) Flush() error {
	if c.readOnly {
		return nil
	}
	start := time.Now()

	dirty := make([]*page, 0)
	for _, p := range c.pages {
		if p.state == Dirty {
			dirty = append(dirty, p)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].number < dirty[j].number })

	var bytesWritten int64
	var firstErr error
	for _, p := range dirty {
		offset := int64(p.number) * PageSize
		n, err := c.file.WriteAt(p.data[:p.availableDataLength], offset)
		bytesWritten += int64(n)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("flush page %d: %w", p.number, err)
			}
			continue
		}
		p.state = Clean
	}

	if firstErr == nil {
		firstErr = c.file.Sync()
	}

	c.log.LogFlush(len(dirty), bytesWritten, time.Since(start), firstErr)
	if c.met != nil {
		c.met.PageCacheDirtyPages.Set(float64(c.countDirty()))
	}
	return firstErr
}

// touchFileSize advances the tracked logical end of file; it never shrinks.
func (c *Cache) touchFileSize(candidate int64) {
	if candidate > c.fileSize {
		c.fileSize = candidate
	}
}

func (c *Cache) countDirty() int {
	n := 0
	for _, p := range c.pages {
		if p.state == Dirty {
			n++
		}
	}
	return n
}

// fetch returns the cached page for pageNumber, loading it on miss and
// moving it to the LRU head. Eviction happens before insertion when at
// capacity.
func (c *Cache) fetch(pageNumber uint64) (*page, error) {
	if p, ok := c.pages[pageNumber]; ok {
		c.stats.recordRequest(true)
		if c.met != nil {
			c.met.RecordPageRequest(true)
		}
		c.moveToHead(p)
		return p, nil
	}

	c.stats.recordRequest(false)
	if c.met != nil {
		c.met.RecordPageRequest(false)
	}

	p, err := c.load(pageNumber)
	if err != nil {
		return nil, err
	}

	for len(c.pages) >= c.capacityPages && c.capacityPages > 0 {
		c.evictTail()
	}

	c.pages[pageNumber] = p
	c.pushHead(p)
	if c.met != nil {
		c.met.PageCacheResidentPages.Set(float64(len(c.pages)))
	}
	return p, nil
}

// load reads a page from the file, or allocates an empty one if the page
// number lies beyond the current file end.
func (c *Cache) load(pageNumber uint64) (*page, error) {
	p := &page{number: pageNumber, state: Clean}
	offset := int64(pageNumber) * PageSize

	if offset >= c.fileSize {
		p.availableDataLength = 0
		return p, nil
	}

	n, err := c.file.ReadAt(p.data[:], offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read page %d: %w", pageNumber, err)
	}
	p.availableDataLength = n
	return p, nil
}

func (c *Cache) evictTail() {
	p := c.tail
	if p == nil {
		return
	}
	wasDirty := p.state == Dirty
	if wasDirty && !c.readOnly {
		offset := int64(p.number) * PageSize
		if _, err := c.file.WriteAt(p.data[:p.availableDataLength], offset); err == nil {
			p.state = Clean
		} else {
			c.log.LogIntegrityFailure(p.number*PageSize, "evict dirty page write failed", err)
		}
	}
	c.log.LogEviction(p.number, wasDirty)
	c.unlink(p)
	delete(c.pages, p.number)
}

func (c *Cache) pushHead(p *page) {
	p.prev = nil
	p.next = c.head
	if c.head != nil {
		c.head.prev = p
	}
	c.head = p
	if c.tail == nil {
		c.tail = p
	}
}

func (c *Cache) unlink(p *page) {
	if p.prev != nil {
		p.prev.next = p.next
	} else {
		c.head = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	} else {
		c.tail = p.prev
	}
	p.prev = nil
	p.next = nil
}

func (c *Cache) moveToHead(p *page) {
	if c.head == p {
		return
	}
	c.unlink(p)
	c.pushHead(p)
}
