package btree

// cursor is (leaf_node_offset, index_within_leaf) (spec.md 4.3, "Cursor").
type cursor struct {
	leaf  uint64
	index int
}

// First anchors the cursor at the minimum key and returns it.
func (t *Tree) First() (key uint64, value string, found bool, err error) {
	ctx := newOpCtx(t.store, t.order)
	leaf, err := t.descendLeftmost(ctx)
	if err != nil {
		return 0, "", false, err
	}
	t.cursor = cursor{leaf: leaf.Offset, index: 0}
	t.changed = false
	if leaf.KeysCount == 0 {
		return 0, "", false, nil
	}
	value, err = t.readValue(leaf.ChildrenOrValues[0])
	if err != nil {
		return 0, "", false, err
	}
	return leaf.Keys[0], value, true, nil
}

// Last anchors the cursor at the maximum key and returns it.
func (t *Tree) Last() (key uint64, value string, found bool, err error) {
	ctx := newOpCtx(t.store, t.order)
	leaf, err := t.descendRightmost(ctx)
	if err != nil {
		return 0, "", false, err
	}
	index := leaf.KeysCount - 1
	if index < 0 {
		index = 0
	}
	t.cursor = cursor{leaf: leaf.Offset, index: index}
	t.changed = false
	if leaf.KeysCount == 0 {
		return 0, "", false, nil
	}
	value, err = t.readValue(leaf.ChildrenOrValues[index])
	if err != nil {
		return 0, "", false, err
	}
	return leaf.Keys[index], value, true, nil
}

// Next advances the cursor. A tree mutation since the last anchor (via
// First/Last/Search) ends the sequence (spec.md 4.3, "Cursor").
func (t *Tree) Next() (key uint64, value string, found bool, err error) {
	if t.changed || t.cursor.leaf == NONE {
		return 0, "", false, nil
	}
	ctx := newOpCtx(t.store, t.order)
	leaf, err := ctx.load(t.cursor.leaf)
	if err != nil {
		return 0, "", false, err
	}

	if next := t.cursor.index + 1; next < leaf.KeysCount {
		t.cursor.index = next
		value, err = t.readValue(leaf.ChildrenOrValues[next])
		if err != nil {
			return 0, "", false, err
		}
		return leaf.Keys[next], value, true, nil
	}

	if leaf.RightSibling == NONE {
		return 0, "", false, nil
	}
	rs, err := ctx.load(leaf.RightSibling)
	if err != nil {
		return 0, "", false, err
	}
	if rs.KeysCount == 0 {
		return 0, "", false, nil
	}
	t.cursor = cursor{leaf: rs.Offset, index: 0}
	value, err = t.readValue(rs.ChildrenOrValues[0])
	if err != nil {
		return 0, "", false, err
	}
	return rs.Keys[0], value, true, nil
}

// Previous retreats the cursor; symmetric with Next.
func (t *Tree) Previous() (key uint64, value string, found bool, err error) {
	if t.changed || t.cursor.leaf == NONE {
		return 0, "", false, nil
	}
	ctx := newOpCtx(t.store, t.order)
	leaf, err := ctx.load(t.cursor.leaf)
	if err != nil {
		return 0, "", false, err
	}

	if prev := t.cursor.index - 1; prev >= 0 {
		t.cursor.index = prev
		value, err = t.readValue(leaf.ChildrenOrValues[prev])
		if err != nil {
			return 0, "", false, err
		}
		return leaf.Keys[prev], value, true, nil
	}

	if leaf.LeftSibling == NONE {
		return 0, "", false, nil
	}
	ls, err := ctx.load(leaf.LeftSibling)
	if err != nil {
		return 0, "", false, err
	}
	if ls.KeysCount == 0 {
		return 0, "", false, nil
	}
	index := ls.KeysCount - 1
	t.cursor = cursor{leaf: ls.Offset, index: index}
	value, err = t.readValue(ls.ChildrenOrValues[index])
	if err != nil {
		return 0, "", false, err
	}
	return ls.Keys[index], value, true, nil
}

// Search looks up key and, only when found, anchors the cursor there.
func (t *Tree) Search(key uint64) (value string, found bool, err error) {
	ctx := newOpCtx(t.store, t.order)
	leaf, err := t.findLeaf(ctx, key)
	if err != nil {
		return "", false, err
	}
	idx := leaf.search(key)
	if idx < 0 {
		return "", false, nil
	}
	t.cursor = cursor{leaf: leaf.Offset, index: idx}
	t.changed = false
	value, err = t.readValue(leaf.ChildrenOrValues[idx])
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (t *Tree) descendLeftmost(ctx *opCtx) (*Node, error) {
	offset := t.root
	for {
		n, err := ctx.load(offset)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf() {
			return n, nil
		}
		offset = n.ChildrenOrValues[0]
	}
}

func (t *Tree) descendRightmost(ctx *opCtx) (*Node, error) {
	offset := t.root
	for {
		n, err := ctx.load(offset)
		if err != nil {
			return nil, err
		}
		if n.IsLeaf() {
			return n, nil
		}
		offset = n.ChildrenOrValues[n.childIndexFor(NONE)]
	}
}

func (t *Tree) readValue(valueOffset uint64) (string, error) {
	if err := t.store.SetPosition(valueOffset); err != nil {
		return "", err
	}
	data, err := t.store.GetData()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
