// Package btree implements the IndexTree layer (spec.md 4.3): a fixed
// order B+ tree whose leaves carry all values and form a doubly-linked
// chain, built on top of pkg/recordstore. Every node is persisted as
// exactly one record; node offsets are record offsets.
package btree

import "encoding/binary"

// NodeType distinguishes inner nodes (separator keys only) from leaves
// (keys paired with value-record offsets).
type NodeType uint32

const (
	// NodeLeaf nodes pair each key with the offset of its value record.
	NodeLeaf NodeType = iota
	// NodeInner nodes carry separator keys and child offsets only.
	NodeInner
)

// NONE is the sentinel offset/key meaning "unset" (spec.md 4.3,
// "Key numeric semantics"). It is shared with the record store's NONE.
const NONE uint64 = 0xFFFFFFFFFFFFFFFF

// nodeHeaderSize is the fixed portion of a node's payload, before the
// keys and children_or_values arrays (spec.md 6.1): parent(8) +
// left_sibling(8) + right_sibling(8) + node_type(4) + keys_count(4) +
// children_or_values_count(4) + 4 bytes padding.
const nodeHeaderSize = 40

// NodePayloadSize returns the fixed on-disk size of a node's payload for
// a tree of the given order M.
func NodePayloadSize(order int) int {
	return nodeHeaderSize + 16*order
}

// Node is one B+ tree node, loaded into memory from a single record.
type Node struct {
	Offset       uint64
	Parent       uint64
	LeftSibling  uint64 // leaves only; NONE for inner nodes
	RightSibling uint64 // leaves only; NONE for inner nodes
	Type         NodeType
	KeysCount    int
	ChildCount   int // children_or_values_count

	Keys             []uint64 // len == order+scratchSlots, only [0:KeysCount] meaningful
	ChildrenOrValues []uint64 // len == order+scratchSlots, only [0:ChildCount] meaningful

	order int
	dirty bool
}

// scratchSlots is the extra headroom allocated beyond a node's nominal
// order M. An overflowing inner node transiently holds one more child
// than its steady-state M slots between the separator insert and the
// split that follows it in the same operation; in-memory arrays carry
// this headroom so that step never indexes out of bounds. Only the
// first `order` slots are ever persisted (see Encode/decodeNode).
const scratchSlots = 1

// newNode allocates an empty in-memory node of the given type and order.
// It is not yet persisted; the caller assigns Offset after creating its
// backing record.
func newNode(order int, typ NodeType) *Node {
	return &Node{
		Parent:           NONE,
		LeftSibling:      NONE,
		RightSibling:     NONE,
		Type:             typ,
		Keys:             make([]uint64, order+scratchSlots),
		ChildrenOrValues: make([]uint64, order+scratchSlots),
		order:            order,
		dirty:            true,
	}
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool { return n.Type == NodeLeaf }

// Encode serializes the node to its fixed-size payload.
func (n *Node) Encode() []byte {
	buf := make([]byte, NodePayloadSize(n.order))
	binary.LittleEndian.PutUint64(buf[0:8], n.Parent)
	binary.LittleEndian.PutUint64(buf[8:16], n.LeftSibling)
	binary.LittleEndian.PutUint64(buf[16:24], n.RightSibling)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(n.Type))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(n.KeysCount))
	binary.LittleEndian.PutUint32(buf[32:36], uint32(n.ChildCount))
	// buf[36:40] is padding, left zero.

	base := nodeHeaderSize
	for i := 0; i < n.order; i++ {
		binary.LittleEndian.PutUint64(buf[base+i*8:base+i*8+8], n.Keys[i])
	}
	base += 8 * n.order
	for i := 0; i < n.order; i++ {
		binary.LittleEndian.PutUint64(buf[base+i*8:base+i*8+8], n.ChildrenOrValues[i])
	}
	return buf
}

// decodeNode parses a node payload for a tree of the given order.
func decodeNode(buf []byte, order int) (*Node, error) {
	if len(buf) < NodePayloadSize(order) {
		return nil, errShortNode
	}
	n := &Node{
		Parent:       binary.LittleEndian.Uint64(buf[0:8]),
		LeftSibling:  binary.LittleEndian.Uint64(buf[8:16]),
		RightSibling: binary.LittleEndian.Uint64(buf[16:24]),
		Type:         NodeType(binary.LittleEndian.Uint32(buf[24:28])),
		KeysCount:    int(binary.LittleEndian.Uint32(buf[28:32])),
		ChildCount:   int(binary.LittleEndian.Uint32(buf[32:36])),
		order:        order,
	}
	n.Keys = make([]uint64, order+scratchSlots)
	n.ChildrenOrValues = make([]uint64, order+scratchSlots)

	base := nodeHeaderSize
	for i := 0; i < order; i++ {
		n.Keys[i] = binary.LittleEndian.Uint64(buf[base+i*8 : base+i*8+8])
	}
	base += 8 * order
	for i := 0; i < order; i++ {
		n.ChildrenOrValues[i] = binary.LittleEndian.Uint64(buf[base+i*8 : base+i*8+8])
	}
	return n, nil
}

// placeFor returns the ascending-order insertion index for key among the
// node's keys, or -1 if key is already present. Leaves only.
func (n *Node) placeFor(key uint64) int {
	lo, hi := 0, n.KeysCount
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case n.Keys[mid] == key:
			return -1
		case n.Keys[mid] < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo
}

// search returns the index of key in the node's keys, or -1 if absent.
func (n *Node) search(key uint64) int {
	lo, hi := 0, n.KeysCount
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case n.Keys[mid] == key:
			return mid
		case n.Keys[mid] < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}

// childIndexFor returns the index into keys/children an inner node must
// follow to reach key (spec.md 4.3, "Descent"): ascending linear scan,
// a tie yields the right child, key < entry yields the left child there.
func (n *Node) childIndexFor(key uint64) int {
	for i := 0; i < n.KeysCount; i++ {
		if key < n.Keys[i] {
			return i
		}
		if key == n.Keys[i] {
			return i + 1
		}
	}
	return n.KeysCount
}

// indexOfChild returns the position of childOffset within the node's
// children array, or -1 if not found.
func (n *Node) indexOfChild(childOffset uint64) int {
	for i := 0; i < n.ChildCount; i++ {
		if n.ChildrenOrValues[i] == childOffset {
			return i
		}
	}
	return -1
}

func (n *Node) insertKeyValueAt(index int, key, value uint64) {
	copy(n.Keys[index+1:n.KeysCount+1], n.Keys[index:n.KeysCount])
	copy(n.ChildrenOrValues[index+1:n.ChildCount+1], n.ChildrenOrValues[index:n.ChildCount])
	n.Keys[index] = key
	n.ChildrenOrValues[index] = value
	n.KeysCount++
	n.ChildCount++
	n.dirty = true
}

func (n *Node) removeKeyValueAt(index int) {
	copy(n.Keys[index:n.KeysCount-1], n.Keys[index+1:n.KeysCount])
	copy(n.ChildrenOrValues[index:n.ChildCount-1], n.ChildrenOrValues[index+1:n.ChildCount])
	n.KeysCount--
	n.ChildCount--
	n.dirty = true
}

// insertSeparatorAt inserts a separator key together with the child to
// its right at index (inner nodes: children are one longer than keys).
func (n *Node) insertSeparatorAt(index int, key uint64, rightChild uint64) {
	copy(n.Keys[index+1:n.KeysCount+1], n.Keys[index:n.KeysCount])
	copy(n.ChildrenOrValues[index+2:n.ChildCount+1], n.ChildrenOrValues[index+1:n.ChildCount])
	n.Keys[index] = key
	n.ChildrenOrValues[index+1] = rightChild
	n.KeysCount++
	n.ChildCount++
	n.dirty = true
}

// removeSeparatorAt removes the separator key at index and the child
// immediately to its right.
func (n *Node) removeSeparatorAt(index int) {
	copy(n.Keys[index:n.KeysCount-1], n.Keys[index+1:n.KeysCount])
	copy(n.ChildrenOrValues[index+1:n.ChildCount-1], n.ChildrenOrValues[index+2:n.ChildCount])
	n.KeysCount--
	n.ChildCount--
	n.dirty = true
}
