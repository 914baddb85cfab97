package observe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_GetSet(t *testing.T) {
	v := NewValue(false)
	assert.False(t, v.Get())

	v.Set(true)
	assert.True(t, v.Get())
}

func TestValue_SubscribersNotifiedSynchronously(t *testing.T) {
	v := NewValue(0)

	var seen []int
	v.Subscribe(func(n int) { seen = append(seen, n) })

	v.Set(1)
	v.Set(2)

	// Set returns only after subscribers ran.
	assert.Equal(t, []int{1, 2}, seen)
}

func TestValue_ReplaceOnChange(t *testing.T) {
	v := NewValue([]string{"a"})

	var last []string
	v.Subscribe(func(peers []string) { last = peers })

	v.Set([]string{"b", "c"})
	assert.Equal(t, []string{"b", "c"}, last)
	assert.Equal(t, []string{"b", "c"}, v.Get())

	// Replacement is wholesale, including clearing.
	v.Set(nil)
	assert.Nil(t, v.Get())
}

func TestValue_Cancel(t *testing.T) {
	v := NewValue(0)

	calls := 0
	cancel := v.Subscribe(func(int) { calls++ })

	v.Set(1)
	cancel()
	v.Set(2)
	cancel() // idempotent

	assert.Equal(t, 1, calls)
}

func TestValue_MultipleSubscribers(t *testing.T) {
	v := NewValue("")

	a, b := 0, 0
	v.Subscribe(func(string) { a++ })
	v.Subscribe(func(string) { b++ })

	v.Set("x")
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
