package btree

import "github.com/nainya/bsdb/common"

// Insert adds (key, value) if key is absent (spec.md 4.3, "Insert").
func (t *Tree) Insert(key uint64, value string) error {
	ctx := newOpCtx(t.store, t.order)
	leaf, err := t.findLeaf(ctx, key)
	if err != nil {
		return err
	}

	idx := leaf.placeFor(key)
	if idx < 0 {
		return common.ErrDuplicateKey
	}

	valueOffset, err := t.store.CreateRecord([]byte(value))
	if err != nil {
		return err
	}
	leaf.insertKeyValueAt(idx, key, valueOffset)

	if leaf.KeysCount > t.order-1 {
		if err := t.dealOverflow(ctx, leaf); err != nil {
			return err
		}
	}

	if err := ctx.flush(); err != nil {
		return err
	}

	t.entries++
	if key >= t.autoKey {
		t.autoKey = key + 1
	}
	if err := t.persistHeader(); err != nil {
		return err
	}
	t.changed = true
	t.refreshGauges()
	return nil
}

// InsertAuto inserts value under the next auto-assigned key and returns it.
func (t *Tree) InsertAuto(value string) (uint64, error) {
	key := t.autoKey
	if err := t.Insert(key, value); err != nil {
		return 0, err
	}
	return key, nil
}

// Update overwrites the value for an existing key (spec.md 4.3,
// "Update"). An in-place rewrite (value fits the existing record's
// capacity) does not invalidate the cursor; a relocating rewrite does
// (spec.md 9, Open Questions).
func (t *Tree) Update(key uint64, value string) error {
	ctx := newOpCtx(t.store, t.order)
	leaf, err := t.findLeaf(ctx, key)
	if err != nil {
		return err
	}
	idx := leaf.search(key)
	if idx < 0 {
		return common.ErrKeyNotFound
	}

	valueOffset := leaf.ChildrenOrValues[idx]
	if err := t.store.SetPosition(valueOffset); err != nil {
		return err
	}
	newOffset, relocated, err := t.store.SetRecordData([]byte(value))
	if err != nil {
		return err
	}
	if !relocated {
		return nil
	}

	leaf.ChildrenOrValues[idx] = newOffset
	ctx.markDirty(leaf)
	if err := ctx.flush(); err != nil {
		return err
	}
	t.changed = true
	return nil
}

// Erase removes key and its value record (spec.md 4.3, "Erase").
func (t *Tree) Erase(key uint64) error {
	ctx := newOpCtx(t.store, t.order)
	leaf, err := t.findLeaf(ctx, key)
	if err != nil {
		return err
	}
	idx := leaf.search(key)
	if idx < 0 {
		return common.ErrKeyNotFound
	}

	valueOffset := leaf.ChildrenOrValues[idx]
	leaf.removeKeyValueAt(idx)

	if err := t.store.SetPosition(valueOffset); err != nil {
		return err
	}
	if _, err := t.store.RemoveRecord(); err != nil {
		return err
	}

	minKeys := t.order / 2
	if leaf.KeysCount < minKeys && leaf.Offset != t.root {
		if err := t.dealUnderflow(ctx, leaf); err != nil {
			return err
		}
	}

	if err := ctx.flush(); err != nil {
		return err
	}

	t.entries--
	if err := t.persistHeader(); err != nil {
		return err
	}
	t.changed = true
	t.refreshGauges()
	return nil
}
