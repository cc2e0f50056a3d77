package skiplist

// Iterator walks the bottom level of a Skiplist in key order.
type Iterator[K any, V any] struct {
	next    *node[K, V]
	compare Comparator[K]
	stopAt  *K
}

// HasNext returns true if there are more items in the iterator.
func (it *Iterator[K, V]) HasNext() bool {
	return it.next != nil
}

// Next returns the next key-value pair. It panics if there are no more items,
// so HasNext should always be called first.
func (it *Iterator[K, V]) Next() (key K, value V) {
	if it.next == nil {
		panic("no more items in the iterator")
	}

	n := it.next
	it.next = n.next[0]

	if it.next != nil && it.stopAt != nil && it.compare(it.next.key, *it.stopAt) > 0 {
		it.next = nil
	}

	return n.key, n.value
}
