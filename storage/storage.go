package storage

// Engine is the local key/value store of a node. Create only inserts absent
// keys, so replaying the same create twice is harmless; Update and Delete
// only touch keys that already exist. Every mutator returns false when it
// made no change.
type Engine interface {
	Create(key, value string) bool
	Read(key string) (string, bool)
	Update(key, value string) bool
	Delete(key string) bool
	Len() int
	Scan() ScanIterator
}

// ScanIterator iterates over the key-value pairs in key order. It is not
// safe for concurrent use, and the engine must not be modified while the
// iterator is in use.
type ScanIterator interface {
	Next() (key, value string)
	HasNext() bool
}

// Keys collects every key of the engine in order.
func Keys(e Engine) []string {
	keys := make([]string, 0, e.Len())

	for it := e.Scan(); it.HasNext(); {
		key, _ := it.Next()
		keys = append(keys, key)
	}

	return keys
}

// Snapshot copies the contents of the engine into a map.
func Snapshot(e Engine) map[string]string {
	data := make(map[string]string, e.Len())

	for it := e.Scan(); it.HasNext(); {
		key, value := it.Next()
		data[key] = value
	}

	return data
}
