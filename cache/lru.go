package cache

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned when a single item does not fit into an empty
// segment. The item is rejected; nothing is evicted.
var ErrTooLarge = errors.New("item is too large")

// node is an intrusive doubly linked list element (head=MRU, tail=LRU).
// size is captured at insertion so removal subtracts exactly what was added.
type node[K Key, V ByteSized] struct {
	key  K
	val  V
	size int

	prev *node[K, V]
	next *node[K, V]
}

// LRU is a byte-budgeted least-recently-used map. It is not safe for
// concurrent use; Cache guards each LRU with its segment mutex.
//
// Invariants after every call:
//   - Bytesize() <= MaxBytesize()
//   - Bytesize() equals the sum of key.Bytesize()+value.Bytesize() over held entries
//   - Len() <= MaxLen() when MaxLen() > 0
type LRU[K Key, V ByteSized] struct {
	m    map[K]*node[K, V]
	head *node[K, V] // MRU
	tail *node[K, V] // LRU

	bytesize    int
	maxBytesize int
	maxLen      int // 0 = no entry-count cap

	// onEvict is called for entries dropped to make room (not for Remove/Clear).
	onEvict func(k K, v V, reason EvictReason)
}

// NewLRU returns an empty LRU limited to maxBytesize bytes and, when
// maxLen > 0, to maxLen entries.
func NewLRU[K Key, V ByteSized](maxBytesize, maxLen int) *LRU[K, V] {
	if maxLen < 0 {
		maxLen = 0
	}
	if maxBytesize < 0 {
		maxBytesize = 0
	}
	return &LRU[K, V]{
		m:           make(map[K]*node[K, V]),
		maxBytesize: maxBytesize,
		maxLen:      maxLen,
	}
}

// OnEvict registers fn to be called for every capacity eviction.
func (l *LRU[K, V]) OnEvict(fn func(k K, v V, reason EvictReason)) { l.onEvict = fn }

// SizeOf is the footprint an entry would be charged.
func SizeOf[K Key, V ByteSized](k K, v V) int { return k.Bytesize() + v.Bytesize() }

// Get returns the value for k and promotes it to MRU.
func (l *LRU[K, V]) Get(k K) (V, bool) {
	n, ok := l.m[k]
	if !ok {
		var zero V
		return zero, false
	}
	l.moveToFront(n)
	return n.val, true
}

// Peek returns the value for k without touching recency.
func (l *LRU[K, V]) Peek(k K) (V, bool) {
	n, ok := l.m[k]
	if !ok {
		var zero V
		return zero, false
	}
	return n.val, true
}

// Set inserts k→v as MRU, evicting from the LRU end until the item fits.
// An existing entry for k is removed first and returned as prev.
// If the item alone exceeds MaxBytesize, Set returns ErrTooLarge and the
// LRU is left untouched.
func (l *LRU[K, V]) Set(k K, v V) (prev V, replaced bool, err error) {
	size := SizeOf(k, v)
	if size > l.maxBytesize {
		return prev, false, fmt.Errorf("%w: %d bytes, expected size <= %d bytes", ErrTooLarge, size, l.maxBytesize)
	}

	if n, ok := l.m[k]; ok {
		l.removeNode(n)
		prev, replaced = n.val, true
	}

	l.makeRoomFor(size)

	n := &node[K, V]{key: k, val: v, size: size}
	l.m[k] = n
	l.pushFront(n)
	return prev, replaced, nil
}

// Remove deletes k and returns its value.
func (l *LRU[K, V]) Remove(k K) (V, bool) {
	n, ok := l.m[k]
	if !ok {
		var zero V
		return zero, false
	}
	l.removeNode(n)
	return n.val, true
}

// Clear drops every entry and resets the byte count.
func (l *LRU[K, V]) Clear() {
	clear(l.m)
	l.head, l.tail = nil, nil
	l.bytesize = 0
}

// Len returns the number of resident entries.
func (l *LRU[K, V]) Len() int { return len(l.m) }

// Bytesize returns the bytes currently charged.
func (l *LRU[K, V]) Bytesize() int { return l.bytesize }

// MaxBytesize returns the byte budget.
func (l *LRU[K, V]) MaxBytesize() int { return l.maxBytesize }

// MaxLen returns the entry-count cap (0 = none).
func (l *LRU[K, V]) MaxLen() int { return l.maxLen }

// Keys returns keys from MRU to LRU.
func (l *LRU[K, V]) Keys() []K {
	keys := make([]K, 0, len(l.m))
	for n := l.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// -------------------- internals --------------------

// makeRoomFor evicts the strict LRU entry until size more bytes and one more
// entry fit. size <= maxBytesize is guaranteed by the caller, so the loop
// ends at the latest when the list is empty.
func (l *LRU[K, V]) makeRoomFor(size int) {
	for l.tail != nil {
		switch {
		case l.bytesize+size > l.maxBytesize:
			l.evict(l.tail, EvictBytes)
		case l.maxLen > 0 && len(l.m)+1 > l.maxLen:
			l.evict(l.tail, EvictLen)
		default:
			return
		}
	}
}

func (l *LRU[K, V]) evict(n *node[K, V], reason EvictReason) {
	l.removeNode(n)
	if l.onEvict != nil {
		l.onEvict(n.key, n.val, reason)
	}
}

// pushFront links n at MRU and charges its size.
func (l *LRU[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.bytesize += n.size
}

func (l *LRU[K, V]) moveToFront(n *node[K, V]) {
	if n == l.head {
		return
	}
	// detach
	n.prev.next = n.next
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = l.head
	l.head.prev = n
	l.head = n
}

// removeNode unlinks n, deletes it from the map and releases its bytes.
func (l *LRU[K, V]) removeNode(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	delete(l.m, n.key)
	l.bytesize -= n.size
}
