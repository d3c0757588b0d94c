package btree

import "github.com/nainya/bsdb/pkg/recordstore"

// opCtx scopes node loads and writes to a single public Tree operation
// (spec.md 9, "Ownership of loaded nodes"). Nodes loaded during the
// operation are cached by offset so a split/merge cascade touching the
// same node repeatedly doesn't re-read or redundantly rewrite it; dirty
// nodes are written back once, when the operation finishes.
type opCtx struct {
	store  *recordstore.Store
	order  int
	loaded map[uint64]*Node
}

func newOpCtx(store *recordstore.Store, order int) *opCtx {
	return &opCtx{store: store, order: order, loaded: make(map[uint64]*Node)}
}

func (c *opCtx) load(offset uint64) (*Node, error) {
	if n, ok := c.loaded[offset]; ok {
		return n, nil
	}
	if err := c.store.SetPosition(offset); err != nil {
		return nil, err
	}
	data, err := c.store.GetData()
	if err != nil {
		return nil, err
	}
	n, err := decodeNode(data, c.order)
	if err != nil {
		return nil, err
	}
	n.Offset = offset
	n.order = c.order
	c.loaded[offset] = n
	return n, nil
}

// create allocates a fresh node record and caches it as dirty.
func (c *opCtx) create(typ NodeType) (*Node, error) {
	n := newNode(c.order, typ)
	offset, err := c.store.CreateRecord(n.Encode())
	if err != nil {
		return nil, err
	}
	n.Offset = offset
	c.loaded[offset] = n
	return n, nil
}

func (c *opCtx) markDirty(n *Node) {
	n.dirty = true
}

// free removes a node's backing record entirely (used after a merge).
func (c *opCtx) free(offset uint64) error {
	delete(c.loaded, offset)
	if err := c.store.SetPosition(offset); err != nil {
		return err
	}
	_, err := c.store.RemoveRecord()
	return err
}

// flush persists every dirty node loaded or created during the operation.
func (c *opCtx) flush() error {
	for offset, n := range c.loaded {
		if !n.dirty {
			continue
		}
		if err := c.store.SetPosition(offset); err != nil {
			return err
		}
		if _, _, err := c.store.SetRecordData(n.Encode()); err != nil {
			return err
		}
		n.dirty = false
	}
	return nil
}
