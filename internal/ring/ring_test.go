package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer_LastBeforeWrap(t *testing.T) {
	b := New[int](5)
	b.Push(1)
	b.Push(2)
	b.Push(3)

	assert.Equal(t, []int{2, 3}, b.Last(2))
	assert.Equal(t, []int{1, 2, 3}, b.Last(10))
	assert.Equal(t, 3, b.Len())
}

func TestBuffer_EvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 7; i++ {
		b.Push(i)
	}

	assert.Equal(t, []int{5, 6, 7}, b.All())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 7, b.Total())
}

func TestBuffer_EmptyAndZeroCapacity(t *testing.T) {
	b := New[string](0)
	assert.Empty(t, b.Last(3))

	b.Push("a")
	b.Push("b")
	assert.Equal(t, []string{"b"}, b.All())
	assert.Empty(t, b.Last(0))
}
