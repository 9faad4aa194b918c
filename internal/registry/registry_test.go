package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := New[int]()
	r.Add("b", 2)
	r.Add("a", 1)

	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, loaded := r.GetOrAdd("a", func() int { return 10 })
	assert.True(t, loaded)
	assert.Equal(t, 1, v)

	v, loaded = r.GetOrAdd("c", func() int { return 3 })
	assert.False(t, loaded)
	assert.Equal(t, 3, v)

	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	r.Del("b")
	_, ok = r.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "c"}, r.Names())
}
