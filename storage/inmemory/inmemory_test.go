package inmemory

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/ringkv/internal/skiplist"
	"github.com/maxpoletaev/ringkv/storage"
)

func newTestEngine() (*Engine, *skiplist.Skiplist[string, string]) {
	lst := skiplist.NewWithSource[string, string](skiplist.StringComparator, rand.NewSource(1))
	return newWithData(lst), lst
}

func TestCreate_OnlyIfAbsent(t *testing.T) {
	engine, lst := newTestEngine()

	assert.True(t, engine.Create("key", "value"))
	assert.False(t, engine.Create("key", "other"))

	value, found := lst.Get("key")
	require.True(t, found)
	assert.Equal(t, "value", value)
}

func TestRead(t *testing.T) {
	engine, lst := newTestEngine()
	lst.Insert("key", "value")

	value, found := engine.Read("key")
	assert.True(t, found)
	assert.Equal(t, "value", value)

	value, found = engine.Read("missing")
	assert.False(t, found)
	assert.Empty(t, value)
}

func TestUpdate_OnlyExisting(t *testing.T) {
	engine, lst := newTestEngine()

	assert.False(t, engine.Update("key", "value"))
	assert.Equal(t, 0, lst.Len())

	lst.Insert("key", "value")
	assert.True(t, engine.Update("key", "new value"))

	value, _ := lst.Get("key")
	assert.Equal(t, "new value", value)
}

func TestDelete(t *testing.T) {
	engine, lst := newTestEngine()
	lst.Insert("key", "value")

	assert.True(t, engine.Delete("key"))
	assert.False(t, engine.Delete("key"))
	assert.Equal(t, 0, engine.Len())
}

func TestScan(t *testing.T) {
	engine, _ := newTestEngine()
	engine.Create("b", "2")
	engine.Create("a", "1")
	engine.Create("c", "3")

	assert.Equal(t, []string{"a", "b", "c"}, storage.Keys(engine))
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, storage.Snapshot(engine))
}
