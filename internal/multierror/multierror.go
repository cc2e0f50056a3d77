package multierror

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Error combines errors keyed by their source, e.g. the peer that caused them.
type Error[T comparable] struct {
	mu     sync.Mutex
	errors map[T]error
}

// New creates a new Error.
func New[T comparable]() *Error[T] {
	return &Error[T]{
		errors: make(map[T]error),
	}
}

// Error returns the errors as "key:error" pairs sorted by key.
func (m *Error[T]) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := make([]string, 0, len(m.errors))
	for k, v := range m.errors {
		parts = append(parts, fmt.Sprintf("%v:%s", k, v))
	}

	sort.Strings(parts)

	return strings.Join(parts, "; ")
}

// Unwrap returns the combined errors, so that errors.Is and errors.As look
// into each of them.
func (m *Error[T]) Unwrap() []error {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := make([]error, 0, len(m.errors))
	for _, v := range m.errors {
		errs = append(errs, v)
	}

	return errs
}

// Len returns the number of errors.
func (m *Error[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.errors)
}

// Add records the error of the key. Nil errors are ignored.
func (m *Error[T]) Add(key T, err error) {
	if err == nil {
		return
	}

	m.mu.Lock()
	m.errors[key] = err
	m.mu.Unlock()
}

// Get returns the error recorded for the key.
func (m *Error[T]) Get(key T) (error, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err, ok := m.errors[key]

	return err, ok
}

// Combined returns the Error if it contains any errors, nil otherwise.
func (m *Error[T]) Combined() error {
	if m.Len() == 0 {
		return nil
	}

	return m
}
