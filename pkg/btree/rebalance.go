package btree

// dealOverflow splits n (keys_count > order-1) and pushes the median key
// into its parent, recursing if the parent overflows in turn. If n was
// the root, a fresh inner root is allocated (spec.md 4.3, "Overflow
// handling").
func (t *Tree) dealOverflow(ctx *opCtx, n *Node) error {
	mid := n.KeysCount / 2
	upKey := n.Keys[mid]

	var sibling *Node
	var err error

	if n.IsLeaf() {
		sibling, err = ctx.create(NodeLeaf)
		if err != nil {
			return err
		}
		rightCount := n.KeysCount - mid
		copy(sibling.Keys[0:rightCount], n.Keys[mid:n.KeysCount])
		copy(sibling.ChildrenOrValues[0:rightCount], n.ChildrenOrValues[mid:n.KeysCount])
		sibling.KeysCount = rightCount
		sibling.ChildCount = rightCount
		n.KeysCount = mid
		n.ChildCount = mid

		sibling.RightSibling = n.RightSibling
		sibling.LeftSibling = n.Offset
		n.RightSibling = sibling.Offset
		if sibling.RightSibling != NONE {
			rs, err := ctx.load(sibling.RightSibling)
			if err != nil {
				return err
			}
			rs.LeftSibling = sibling.Offset
			ctx.markDirty(rs)
		}
	} else {
		sibling, err = ctx.create(NodeInner)
		if err != nil {
			return err
		}
		rightKeys := n.KeysCount - mid - 1
		copy(sibling.Keys[0:rightKeys], n.Keys[mid+1:n.KeysCount])
		rightChildren := n.ChildCount - (mid + 1)
		copy(sibling.ChildrenOrValues[0:rightChildren], n.ChildrenOrValues[mid+1:n.ChildCount])
		sibling.KeysCount = rightKeys
		sibling.ChildCount = rightChildren

		for i := 0; i < rightChildren; i++ {
			child, err := ctx.load(sibling.ChildrenOrValues[i])
			if err != nil {
				return err
			}
			child.Parent = sibling.Offset
			ctx.markDirty(child)
		}

		n.KeysCount = mid
		n.ChildCount = mid + 1
	}
	ctx.markDirty(n)
	ctx.markDirty(sibling)

	if t.met != nil {
		t.met.IndexTreeSplitsTotal.Inc()
	}

	if n.Parent == NONE {
		newRoot, err := ctx.create(NodeInner)
		if err != nil {
			return err
		}
		newRoot.Keys[0] = upKey
		newRoot.ChildrenOrValues[0] = n.Offset
		newRoot.ChildrenOrValues[1] = sibling.Offset
		newRoot.KeysCount = 1
		newRoot.ChildCount = 2
		ctx.markDirty(newRoot)

		n.Parent = newRoot.Offset
		sibling.Parent = newRoot.Offset
		ctx.markDirty(n)
		ctx.markDirty(sibling)

		t.root = newRoot.Offset
		t.log.LogSplit(n.Offset, upKey, true)
		return nil
	}

	parent, err := ctx.load(n.Parent)
	if err != nil {
		return err
	}
	sibling.Parent = n.Parent
	ctx.markDirty(sibling)

	childIdx := parent.indexOfChild(n.Offset)
	parent.insertSeparatorAt(childIdx, upKey, sibling.Offset)
	ctx.markDirty(parent)
	t.log.LogSplit(n.Offset, upKey, false)

	if parent.KeysCount > t.order-1 {
		return t.dealOverflow(ctx, parent)
	}
	return nil
}

// dealUnderflow resolves a non-root node with fewer than floor(order/2)
// keys by borrowing from a sibling or merging with one (spec.md 4.3,
// "Underflow handling"). On the root it only ever shrinks the tree by
// one level when the root is an empty inner node with a single child.
func (t *Tree) dealUnderflow(ctx *opCtx, n *Node) error {
	if n.Offset == t.root {
		if !n.IsLeaf() && n.KeysCount == 0 && n.ChildCount == 1 {
			childOffset := n.ChildrenOrValues[0]
			child, err := ctx.load(childOffset)
			if err != nil {
				return err
			}
			child.Parent = NONE
			ctx.markDirty(child)
			if err := ctx.free(n.Offset); err != nil {
				return err
			}
			t.root = childOffset
		}
		return nil
	}

	parent, err := ctx.load(n.Parent)
	if err != nil {
		return err
	}
	xi := parent.indexOfChild(n.Offset)
	minKeys := t.order / 2

	var left, right *Node
	if xi > 0 {
		left, err = ctx.load(parent.ChildrenOrValues[xi-1])
		if err != nil {
			return err
		}
	}
	if xi < parent.ChildCount-1 {
		right, err = ctx.load(parent.ChildrenOrValues[xi+1])
		if err != nil {
			return err
		}
	}

	switch {
	case left != nil && left.KeysCount > minKeys:
		return t.borrowFromLeft(ctx, parent, left, n, xi)
	case right != nil && right.KeysCount > minKeys:
		return t.borrowFromRight(ctx, parent, n, right, xi)
	case left != nil:
		return t.mergeNodes(ctx, parent, left, n, xi-1)
	case right != nil:
		return t.mergeNodes(ctx, parent, n, right, xi)
	}
	return nil
}

func (t *Tree) borrowFromLeft(ctx *opCtx, parent, left, x *Node, xi int) error {
	if x.IsLeaf() {
		borrowedKey := left.Keys[left.KeysCount-1]
		borrowedVal := left.ChildrenOrValues[left.KeysCount-1]
		left.KeysCount--
		left.ChildCount--

		copy(x.Keys[1:x.KeysCount+1], x.Keys[0:x.KeysCount])
		copy(x.ChildrenOrValues[1:x.ChildCount+1], x.ChildrenOrValues[0:x.ChildCount])
		x.Keys[0] = borrowedKey
		x.ChildrenOrValues[0] = borrowedVal
		x.KeysCount++
		x.ChildCount++

		parent.Keys[xi-1] = x.Keys[0]
	} else {
		borrowedKey := left.Keys[left.KeysCount-1]
		borrowedChild := left.ChildrenOrValues[left.ChildCount-1]
		left.KeysCount--
		left.ChildCount--

		copy(x.Keys[1:x.KeysCount+1], x.Keys[0:x.KeysCount])
		copy(x.ChildrenOrValues[1:x.ChildCount+1], x.ChildrenOrValues[0:x.ChildCount])
		x.Keys[0] = parent.Keys[xi-1]
		x.ChildrenOrValues[0] = borrowedChild
		x.KeysCount++
		x.ChildCount++

		child, err := ctx.load(borrowedChild)
		if err != nil {
			return err
		}
		child.Parent = x.Offset
		ctx.markDirty(child)

		parent.Keys[xi-1] = borrowedKey
	}

	ctx.markDirty(left)
	ctx.markDirty(x)
	ctx.markDirty(parent)
	if t.met != nil {
		t.met.IndexTreeBorrowsTotal.Inc()
	}
	t.log.LogMerge(x.Offset, "borrow-left")
	return nil
}

func (t *Tree) borrowFromRight(ctx *opCtx, parent, x, right *Node, xi int) error {
	if x.IsLeaf() {
		borrowedKey := right.Keys[0]
		borrowedVal := right.ChildrenOrValues[0]
		copy(right.Keys[0:right.KeysCount-1], right.Keys[1:right.KeysCount])
		copy(right.ChildrenOrValues[0:right.ChildCount-1], right.ChildrenOrValues[1:right.ChildCount])
		right.KeysCount--
		right.ChildCount--

		x.Keys[x.KeysCount] = borrowedKey
		x.ChildrenOrValues[x.ChildCount] = borrowedVal
		x.KeysCount++
		x.ChildCount++

		parent.Keys[xi] = right.Keys[0]
	} else {
		borrowedKey := right.Keys[0]
		borrowedChild := right.ChildrenOrValues[0]
		copy(right.Keys[0:right.KeysCount-1], right.Keys[1:right.KeysCount])
		copy(right.ChildrenOrValues[0:right.ChildCount-1], right.ChildrenOrValues[1:right.ChildCount])
		right.KeysCount--
		right.ChildCount--

		x.Keys[x.KeysCount] = parent.Keys[xi]
		x.ChildrenOrValues[x.ChildCount] = borrowedChild
		x.KeysCount++
		x.ChildCount++

		child, err := ctx.load(borrowedChild)
		if err != nil {
			return err
		}
		child.Parent = x.Offset
		ctx.markDirty(child)

		parent.Keys[xi] = borrowedKey
	}

	ctx.markDirty(right)
	ctx.markDirty(x)
	ctx.markDirty(parent)
	if t.met != nil {
		t.met.IndexTreeBorrowsTotal.Inc()
	}
	t.log.LogMerge(x.Offset, "borrow-right")
	return nil
}

// mergeNodes absorbs right into left; sepIndex is the parent key index
// separating them (parent.children[sepIndex] == left, [sepIndex+1] == right).
func (t *Tree) mergeNodes(ctx *opCtx, parent, left, right *Node, sepIndex int) error {
	if left.IsLeaf() {
		for i := 0; i < right.KeysCount; i++ {
			left.Keys[left.KeysCount+i] = right.Keys[i]
			left.ChildrenOrValues[left.ChildCount+i] = right.ChildrenOrValues[i]
		}
		left.KeysCount += right.KeysCount
		left.ChildCount = left.KeysCount

		left.RightSibling = right.RightSibling
		if right.RightSibling != NONE {
			rs, err := ctx.load(right.RightSibling)
			if err != nil {
				return err
			}
			rs.LeftSibling = left.Offset
			ctx.markDirty(rs)
		}
	} else {
		left.Keys[left.KeysCount] = parent.Keys[sepIndex]
		for i := 0; i < right.KeysCount; i++ {
			left.Keys[left.KeysCount+1+i] = right.Keys[i]
		}
		for i := 0; i < right.ChildCount; i++ {
			left.ChildrenOrValues[left.ChildCount+i] = right.ChildrenOrValues[i]
		}
		for i := 0; i < right.ChildCount; i++ {
			child, err := ctx.load(right.ChildrenOrValues[i])
			if err != nil {
				return err
			}
			child.Parent = left.Offset
			ctx.markDirty(child)
		}
		left.KeysCount += right.KeysCount + 1
		left.ChildCount += right.ChildCount
	}
	ctx.markDirty(left)

	parent.removeSeparatorAt(sepIndex)
	ctx.markDirty(parent)

	if err := ctx.free(right.Offset); err != nil {
		return err
	}
	if t.met != nil {
		t.met.IndexTreeMergesTotal.Inc()
	}
	t.log.LogMerge(left.Offset, "merge")

	minKeys := t.order / 2
	if parent.Offset == t.root || parent.KeysCount < minKeys {
		return t.dealUnderflow(ctx, parent)
	}
	return nil
}
