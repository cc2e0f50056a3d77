package skiplist

import "golang.org/x/exp/constraints"

var (
	IntComparator    = Ordered[int]
	Int64Comparator  = Ordered[int64]
	Uint64Comparator = Ordered[uint64]
	StringComparator = Ordered[string]
)

// Ordered compares two values of an ordered type.
func Ordered[T constraints.Ordered](a, b T) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// Reverse inverts the order of the comparator.
func Reverse[T any](compare Comparator[T]) Comparator[T] {
	return func(a, b T) int { return -compare(a, b) }
}
