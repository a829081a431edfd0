package operation

import "fmt"

// Persistent hash array mapped trie keyed by Operation.
// Keys are placed by Hash and matched by Equal.

const (
	hamtBits = 5
	hamtSize = 1 << hamtBits // 32
	hamtMask = hamtSize - 1
)

// Table is an immutable map from operations to values. Put and Remove return
// a new table and leave the receiver untouched, so a Table can be read from
// any number of goroutines while writers publish new versions.
type Table[V any] struct {
	root  *hamtNode[V]
	count int
}

type hamtNode[V any] struct {
	bitmap uint32 // which indices are populated
	nodes  []any  // hamtEntry[V] or *hamtNode[V]
}

type hamtEntry[V any] struct {
	hash  uint32
	key   Operation
	value V
}

// Item is a key-value pair of a Table.
type Item[V any] struct {
	Key   Operation
	Value V
}

// EmptyTable returns an empty table.
func EmptyTable[V any]() *Table[V] {
	return &Table[V]{}
}

func (t *Table[V]) String() string { return fmt.Sprintf("<operation table %d>", t.count) }

// Len returns the number of entries.
func (t *Table[V]) Len() int {
	return t.count
}

// Get returns the value stored for an operation equal to key.
func (t *Table[V]) Get(key Operation) (V, bool) {
	if t.root == nil || key == nil {
		var zero V
		return zero, false
	}
	return t.root.get(key.Hash(), key, 0)
}

// Contains reports whether an operation equal to key is present.
func (t *Table[V]) Contains(key Operation) bool {
	_, ok := t.Get(key)
	return ok
}

// Put returns a new table with key mapped to value. An existing entry with an
// equal key is replaced. A nil key is ignored and t is returned.
func (t *Table[V]) Put(key Operation, value V) *Table[V] {
	if key == nil {
		return t
	}
	hash := key.Hash()

	root := t.root
	if root == nil {
		root = &hamtNode[V]{}
	}
	newRoot, added := root.put(hash, key, value, 0)

	count := t.count
	if added {
		count++
	}
	return &Table[V]{root: newRoot, count: count}
}

// Remove returns a new table without key.
func (t *Table[V]) Remove(key Operation) *Table[V] {
	if t.root == nil || key == nil {
		return t
	}
	newRoot, removed := t.root.remove(key.Hash(), key, 0)
	if !removed {
		return t
	}
	return &Table[V]{root: newRoot, count: t.count - 1}
}

// Keys returns all keys in unspecified order.
func (t *Table[V]) Keys() []Operation {
	keys := make([]Operation, 0, t.count)
	for _, it := range t.Items() {
		keys = append(keys, it.Key)
	}
	return keys
}

// Items returns all entries in unspecified order.
func (t *Table[V]) Items() []Item[V] {
	items := make([]Item[V], 0, t.count)
	if t.root != nil {
		t.root.collect(&items)
	}
	return items
}

func (n *hamtNode[V]) clone() *hamtNode[V] {
	c := &hamtNode[V]{bitmap: n.bitmap, nodes: make([]any, len(n.nodes))}
	copy(c.nodes, n.nodes)
	return c
}

// without returns a copy of n with nodes[pos] dropped and bitmap set to bitmap.
func (n *hamtNode[V]) without(pos int, bitmap uint32) *hamtNode[V] {
	c := &hamtNode[V]{bitmap: bitmap, nodes: make([]any, len(n.nodes)-1)}
	copy(c.nodes[:pos], n.nodes[:pos])
	copy(c.nodes[pos:], n.nodes[pos+1:])
	return c
}

func (n *hamtNode[V]) get(hash uint32, key Operation, shift uint) (V, bool) {
	var zero V
	if shift >= 32 {
		// Collision bucket
		for _, node := range n.nodes {
			if e, ok := node.(hamtEntry[V]); ok && e.key.Equal(key) {
				return e.value, true
			}
		}
		return zero, false
	}

	bit := uint32(1) << ((hash >> shift) & hamtMask)
	if n.bitmap&bit == 0 {
		return zero, false
	}

	switch v := n.nodes[popcount(n.bitmap&(bit-1))].(type) {
	case hamtEntry[V]:
		if v.hash == hash && v.key.Equal(key) {
			return v.value, true
		}
	case *hamtNode[V]:
		return v.get(hash, key, shift+hamtBits)
	}
	return zero, false
}

func (n *hamtNode[V]) put(hash uint32, key Operation, value V, shift uint) (*hamtNode[V], bool) {
	entry := hamtEntry[V]{hash: hash, key: key, value: value}

	// All hash bits used up: equal hashes, unequal keys share a bucket.
	if shift >= 32 {
		bucket := n.clone()
		for i, node := range bucket.nodes {
			if e, ok := node.(hamtEntry[V]); ok && e.key.Equal(key) {
				bucket.nodes[i] = entry
				return bucket, false
			}
		}
		bucket.nodes = append(bucket.nodes, entry)
		return bucket, true
	}

	bit := uint32(1) << ((hash >> shift) & hamtMask)
	newNode := n.clone()

	if n.bitmap&bit == 0 {
		newNode.bitmap |= bit
		pos := popcount(newNode.bitmap & (bit - 1))
		newNode.nodes = append(newNode.nodes, nil)
		copy(newNode.nodes[pos+1:], newNode.nodes[pos:])
		newNode.nodes[pos] = entry
		return newNode, true
	}

	pos := popcount(n.bitmap & (bit - 1))
	switch v := newNode.nodes[pos].(type) {
	case hamtEntry[V]:
		if v.hash == hash && v.key.Equal(key) {
			newNode.nodes[pos] = entry
			return newNode, false
		}
		// Push both entries one level down.
		child := &hamtNode[V]{}
		child, _ = child.put(v.hash, v.key, v.value, shift+hamtBits)
		child, _ = child.put(hash, key, value, shift+hamtBits)
		newNode.nodes[pos] = child
		return newNode, true
	case *hamtNode[V]:
		child, added := v.put(hash, key, value, shift+hamtBits)
		newNode.nodes[pos] = child
		return newNode, added
	}
	return newNode, false
}

func (n *hamtNode[V]) remove(hash uint32, key Operation, shift uint) (*hamtNode[V], bool) {
	if shift >= 32 {
		for i, node := range n.nodes {
			if e, ok := node.(hamtEntry[V]); ok && e.key.Equal(key) {
				return n.without(i, n.bitmap), true
			}
		}
		return n, false
	}

	bit := uint32(1) << ((hash >> shift) & hamtMask)
	if n.bitmap&bit == 0 {
		return n, false
	}

	pos := popcount(n.bitmap & (bit - 1))
	switch v := n.nodes[pos].(type) {
	case hamtEntry[V]:
		if v.hash == hash && v.key.Equal(key) {
			return n.without(pos, n.bitmap&^bit), true
		}
		return n, false

	case *hamtNode[V]:
		child, removed := v.remove(hash, key, shift+hamtBits)
		if !removed {
			return n, false
		}
		if len(child.nodes) == 0 {
			return n.without(pos, n.bitmap&^bit), true
		}
		newNode := n.clone()
		// A lone leaf is pulled up into this level.
		if e, ok := child.nodes[0].(hamtEntry[V]); ok && len(child.nodes) == 1 {
			newNode.nodes[pos] = e
		} else {
			newNode.nodes[pos] = child
		}
		return newNode, true
	}
	return n, false
}

func (n *hamtNode[V]) collect(items *[]Item[V]) {
	for _, node := range n.nodes {
		switch v := node.(type) {
		case hamtEntry[V]:
			*items = append(*items, Item[V]{Key: v.key, Value: v.value})
		case *hamtNode[V]:
			v.collect(items)
		}
	}
}

// popcount counts set bits
func popcount(x uint32) int {
	x = x - ((x >> 1) & 0x55555555)
	x = (x & 0x33333333) + ((x >> 2) & 0x33333333)
	x = (x + (x >> 4)) & 0x0f0f0f0f
	x = x + (x >> 8)
	x = x + (x >> 16)
	return int(x & 0x3f)
}
