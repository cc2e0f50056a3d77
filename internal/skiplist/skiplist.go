package skiplist

import (
	"math/rand"
	"time"
)

const (
	maxHeight    = 12
	branchFactor = 4
)

// Comparator is a function that compares two keys.
// It returns a negative number if a < b, 0 if a == b, and a positive number if a > b.
type Comparator[K any] func(a, b K) int

type node[K any, V any] struct {
	key   K
	value V
	next  [maxHeight]*node[K, V]
}

type searchPath[K any, V any] [maxHeight]*node[K, V]

// Skiplist is an ordered map. It is not safe for concurrent use.
type Skiplist[K any, V any] struct {
	head    *node[K, V]
	compare Comparator[K]
	rnd     *rand.Rand
	height  int
	size    int
}

// New returns an empty Skiplist ordered by the comparator.
func New[K any, V any](compare Comparator[K]) *Skiplist[K, V] {
	return NewWithSource[K, V](compare, rand.NewSource(time.Now().UnixNano()))
}

// NewWithSource is like New but takes the source of randomness used to pick
// node heights, which makes the list layout reproducible.
func NewWithSource[K any, V any](compare Comparator[K], src rand.Source) *Skiplist[K, V] {
	return &Skiplist[K, V]{
		head:    &node[K, V]{},
		compare: compare,
		rnd:     rand.New(src),
		height:  1,
	}
}

// Len returns the number of key-value pairs in the list.
func (l *Skiplist[K, V]) Len() int {
	return l.size
}

// Height returns the current number of levels.
func (l *Skiplist[K, V]) Height() int {
	return l.height
}

// findLess returns the last node with a key less than the given one at the
// bottom level. When path is not nil, it is filled with the last node visited
// at every level.
func (l *Skiplist[K, V]) findLess(key K, path *searchPath[K, V]) *node[K, V] {
	n := l.head

	for level := l.height - 1; level >= 0; level-- {
		for n.next[level] != nil && l.compare(n.next[level].key, key) < 0 {
			n = n.next[level]
		}

		if path != nil {
			path[level] = n
		}
	}

	return n
}

func (l *Skiplist[K, V]) find(key K, path *searchPath[K, V]) *node[K, V] {
	n := l.findLess(key, path).next[0]
	if n != nil && l.compare(n.key, key) == 0 {
		return n
	}

	return nil
}

// Get returns the value associated with the key.
func (l *Skiplist[K, V]) Get(key K) (value V, found bool) {
	if n := l.find(key, nil); n != nil {
		return n.value, true
	}

	return value, false
}

// Contains returns true if the list contains the key.
func (l *Skiplist[K, V]) Contains(key K) bool {
	return l.find(key, nil) != nil
}

// Insert adds the key only if it is not in the list yet. It returns false if
// the key already exists, in which case its value is left unchanged.
func (l *Skiplist[K, V]) Insert(key K, value V) bool {
	var path searchPath[K, V]
	if l.find(key, &path) != nil {
		return false
	}

	l.link(key, value, &path)

	return true
}

// Replace updates the value of an existing key. It returns false if the key is
// not in the list.
func (l *Skiplist[K, V]) Replace(key K, value V) bool {
	n := l.find(key, nil)
	if n == nil {
		return false
	}

	n.value = value

	return true
}

// Set inserts the key or overwrites its value.
func (l *Skiplist[K, V]) Set(key K, value V) {
	var path searchPath[K, V]
	if n := l.find(key, &path); n != nil {
		n.value = value
		return
	}

	l.link(key, value, &path)
}

func (l *Skiplist[K, V]) link(key K, value V, path *searchPath[K, V]) {
	height := l.randomHeight()

	if height > l.height {
		for level := l.height; level < height; level++ {
			path[level] = l.head
		}

		l.height = height
	}

	n := &node[K, V]{key: key, value: value}

	for level := 0; level < height; level++ {
		n.next[level] = path[level].next[level]
		path[level].next[level] = n
	}

	l.size++
}

// Remove removes the key from the list. It returns true if the key was found.
func (l *Skiplist[K, V]) Remove(key K) bool {
	var path searchPath[K, V]

	n := l.find(key, &path)
	if n == nil {
		return false
	}

	for level := 0; level < l.height; level++ {
		// The node is not linked above this level.
		if path[level].next[level] != n {
			break
		}

		path[level].next[level] = n.next[level]
	}

	for l.height > 1 && l.head.next[l.height-1] == nil {
		l.height--
	}

	l.size--

	return true
}

// Scan returns an iterator over the whole list. The list must not be modified
// while the iterator is in use.
func (l *Skiplist[K, V]) Scan() *Iterator[K, V] {
	return &Iterator[K, V]{next: l.head.next[0], compare: l.compare}
}

// ScanFrom returns an iterator starting at the first key greater than or
// equal to the given one.
func (l *Skiplist[K, V]) ScanFrom(key K) *Iterator[K, V] {
	return &Iterator[K, V]{next: l.findLess(key, nil).next[0], compare: l.compare}
}

// ScanRange returns an iterator over the keys in [start, end].
func (l *Skiplist[K, V]) ScanRange(start, end K) *Iterator[K, V] {
	it := &Iterator[K, V]{
		next:    l.findLess(start, nil).next[0],
		compare: l.compare,
		stopAt:  &end,
	}

	if it.next != nil && l.compare(it.next.key, end) > 0 {
		it.next = nil
	}

	return it
}

func (l *Skiplist[K, V]) randomHeight() int {
	height := 1

	for height < maxHeight && l.rnd.Intn(branchFactor) == 0 {
		height++
	}

	return height
}
