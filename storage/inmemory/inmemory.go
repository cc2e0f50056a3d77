package inmemory

import (
	"github.com/maxpoletaev/ringkv/internal/skiplist"
	"github.com/maxpoletaev/ringkv/storage"
)

// Engine keeps the key/value pairs in an ordered skiplist. It is owned by a
// single node and is not safe for concurrent use.
type Engine struct {
	data *skiplist.Skiplist[string, string]
}

var _ storage.Engine = (*Engine)(nil)

func New() *Engine {
	return newWithData(skiplist.New[string, string](skiplist.StringComparator))
}

func newWithData(data *skiplist.Skiplist[string, string]) *Engine {
	return &Engine{data: data}
}

func (e *Engine) Create(key, value string) bool {
	return e.data.Insert(key, value)
}

func (e *Engine) Read(key string) (string, bool) {
	return e.data.Get(key)
}

func (e *Engine) Update(key, value string) bool {
	return e.data.Replace(key, value)
}

func (e *Engine) Delete(key string) bool {
	return e.data.Remove(key)
}

func (e *Engine) Len() int {
	return e.data.Len()
}

func (e *Engine) Scan() storage.ScanIterator {
	return e.data.Scan()
}
