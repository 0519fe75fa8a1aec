package reactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_SubscribeReplaysCurrentValue(t *testing.T) {
	c := New(7)
	var got []int
	c.Subscribe(func(v int) { got = append(got, v) })
	assert.Equal(t, []int{7}, got)
}

func TestCell_SetEqualValueIsNoop(t *testing.T) {
	c := New("a")
	calls := 0
	c.Subscribe(func(string) { calls++ })
	c.Set("a")
	c.Set("b")
	c.Set("b")
	assert.Equal(t, 2, calls)
}

func TestCell_NotifiesInSubscriptionOrder(t *testing.T) {
	c := New(false)
	var order []string
	c.Subscribe(func(bool) { order = append(order, "first") })
	c.Subscribe(func(bool) { order = append(order, "second") })
	order = nil

	c.Set(true)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestCell_UnsubscribeStopsDelivery(t *testing.T) {
	c := New(0)
	calls := 0
	unsub := c.Subscribe(func(int) { calls++ })
	unsub()
	unsub()
	c.Set(1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, c.Subscribers())
}

func TestCell_NestedSetIsDeliveredInOrder(t *testing.T) {
	c := New(false)
	var first, second []bool

	c.Subscribe(func(v bool) {
		first = append(first, v)
		if v {
			c.Set(false)
		}
	})
	c.Subscribe(func(v bool) { second = append(second, v) })
	first, second = nil, nil

	c.Set(true)

	require.False(t, c.Get())
	assert.Equal(t, []bool{true, false}, first)
	assert.Equal(t, []bool{true, false}, second)
}

func TestCell_Update(t *testing.T) {
	c := New(2)
	c.Update(func(v int) int { return v * 3 })
	assert.Equal(t, 6, c.Get())
}

func TestList_AppendAndRemove(t *testing.T) {
	l := NewList[string]()
	notified := 0
	l.Subscribe(func([]string) { notified++ })

	l.Append("a", "b", "c")
	l.RemoveAt(1)
	l.RemoveAt(10)

	assert.Equal(t, []string{"a", "c"}, l.Items())
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 3, notified)
	assert.Equal(t, 1, l.IndexFunc(func(s string) bool { return s == "c" }))
	assert.Equal(t, -1, l.IndexFunc(func(s string) bool { return s == "x" }))
}

func TestList_SubscriberSliceIsStable(t *testing.T) {
	l := NewList[int]()
	var seen [][]int
	l.Subscribe(func(v []int) { seen = append(seen, v) })

	l.Append(1)
	l.Append(2)

	assert.Equal(t, []int{1}, seen[1])
	assert.Equal(t, []int{1, 2}, seen[2])
}

func TestSet_IgnoresDuplicates(t *testing.T) {
	s := NewSet[string]()
	notified := 0
	s.Subscribe(func([]string) { notified++ })

	assert.True(t, s.Add("roads", "water"))
	assert.False(t, s.Add("roads"))
	assert.True(t, s.Add("water", "soil"))

	assert.Equal(t, []string{"roads", "water", "soil"}, s.Items())
	assert.True(t, s.Has("soil"))
	assert.Equal(t, 3, notified)
}

func TestCell_RecoversAfterSubscriberPanic(t *testing.T) {
	c := New(0)
	var seen []int
	c.Subscribe(func(v int) {
		seen = append(seen, v)
		if v == 1 {
			c.Set(2)
		}
	})
	c.Subscribe(func(v int) {
		if v == 1 {
			panic("subscriber failed")
		}
	})

	assert.Panics(t, func() { c.Set(1) })

	seen = nil
	c.Set(3)
	assert.Equal(t, []int{3}, seen)
	assert.Equal(t, 3, c.Get())
}
