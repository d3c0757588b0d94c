package btree

import (
	"github.com/nainya/bsdb/common"
	"github.com/nainya/bsdb/internal/logger"
	"github.com/nainya/bsdb/internal/metrics"
	"github.com/nainya/bsdb/pkg/recordstore"
)

// Options configures a Tree on Open.
type Options struct {
	// Order is the tree order M (spec.md 3.4). On an existing file the
	// value actually recorded in the index header is authoritative and
	// is checked against this one; a mismatch is common.ErrInvalidTreeOrder
	// (spec.md 9, Open Questions).
	Order   int
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Tree is the IndexTree handle: one index header plus a cursor.
type Tree struct {
	store *recordstore.Store
	order int

	headerOffset uint64
	root         uint64
	entries      uint64
	autoKey      uint64

	cursor  cursor
	changed bool

	log *logger.Logger
	met *metrics.Metrics
}

// Open creates a fresh tree (index header + empty root leaf) if the
// store is empty, or loads an existing one and validates its order.
func Open(store *recordstore.Store, opts Options) (*Tree, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.TreeLogger()

	t := &Tree{
		store: store,
		order: opts.Order,
		log:   log,
		met:   opts.Metrics,
	}
	t.cursor = cursor{leaf: NONE, index: -1}

	if store.TotalRecords() == 0 {
		return t.bootstrap(opts.Order)
	}

	firstOffset, err := store.First()
	if err != nil {
		return nil, err
	}
	if firstOffset == NONE {
		return t.bootstrap(opts.Order)
	}

	if err := store.SetPosition(firstOffset); err != nil {
		return nil, err
	}
	data, err := store.GetData()
	if err != nil {
		return nil, err
	}
	h, err := decodeIndexHeader(data)
	if err != nil {
		return nil, err
	}
	if opts.Order != 0 && int(h.TreeOrder) != opts.Order {
		return nil, common.ErrInvalidTreeOrder
	}

	t.headerOffset = firstOffset
	t.order = int(h.TreeOrder)
	t.root = h.RootPosition
	t.entries = h.RecordsCount
	t.autoKey = h.AutoKeyCounter
	t.refreshGauges()
	return t, nil
}

func (t *Tree) bootstrap(order int) (*Tree, error) {
	if order <= 0 {
		order = 5
	}
	t.order = order

	h := indexHeader{TreeOrder: uint32(order), RootPosition: NONE, RecordsCount: 0, AutoKeyCounter: 0}
	headerOffset, err := t.store.CreateRecord(h.Encode())
	if err != nil {
		return nil, err
	}
	t.headerOffset = headerOffset

	root := newNode(order, NodeLeaf)
	rootOffset, err := t.store.CreateRecord(root.Encode())
	if err != nil {
		return nil, err
	}
	t.root = rootOffset

	if err := t.persistHeader(); err != nil {
		return nil, err
	}
	t.refreshGauges()
	return t, nil
}

// Size returns the number of key/value entries in the tree.
func (t *Tree) Size() uint64 {
	return t.entries
}

// NextAutoKey returns the key that would be assigned by InsertAuto.
func (t *Tree) NextAutoKey() uint64 {
	return t.autoKey
}

// Flush delegates to the underlying record store (and its page cache).
func (t *Tree) Flush() error {
	return t.store.Flush()
}

func (t *Tree) persistHeader() error {
	h := indexHeader{
		TreeOrder:      uint32(t.order),
		RootPosition:   t.root,
		RecordsCount:   t.entries,
		AutoKeyCounter: t.autoKey,
	}
	if err := t.store.SetPosition(t.headerOffset); err != nil {
		return err
	}
	_, _, err := t.store.SetRecordData(h.Encode())
	return err
}

func (t *Tree) refreshGauges() {
	if t.met == nil {
		return
	}
	t.met.IndexTreeEntriesTotal.Set(float64(t.entries))
	t.met.IndexTreeHeight.Set(float64(t.height()))
}

// height counts leaf-to-root hops without mutating any cached node state.
func (t *Tree) height() int {
	ctx := newOpCtx(t.store, t.order)
	depth := 0
	offset := t.root
	for {
		n, err := ctx.load(offset)
		if err != nil || n.IsLeaf() {
			break
		}
		offset = n.ChildrenOrValues[0]
		depth++
	}
	return depth
}

// findLeaf descends from the root to the leaf that would hold key
// (spec.md 4.3, "Descent"). It detects cycles defensively.
func (t *Tree) findLeaf(ctx *opCtx, key uint64) (*Node, error) {
	offset := t.root
	visited := make(map[uint64]bool)
	for {
		if visited[offset] {
			return nil, common.ErrCycleDetected
		}
		visited[offset] = true

		n, err := ctx.load(offset)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf() {
			return n, nil
		}
		idx := n.childIndexFor(key)
		offset = n.ChildrenOrValues[idx]
	}
}
