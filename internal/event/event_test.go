package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_DispatchInRegistrationOrder(t *testing.T) {
	var d Dispatcher
	var got []string
	d.On("layerAdded", func(data any) { got = append(got, "a:"+data.(string)) })
	d.On("layerAdded", func(data any) { got = append(got, "b:"+data.(string)) })
	d.On("layerRemoved", func(any) { got = append(got, "removed") })

	d.Dispatch("layerAdded", "x")
	assert.Equal(t, []string{"a:x", "b:x"}, got)
}

func TestDispatcher_DispatchUnknownEvent(t *testing.T) {
	var d Dispatcher
	assert.NotPanics(t, func() { d.Dispatch("nothing", nil) })
}

func TestDispatcher_Off(t *testing.T) {
	var d Dispatcher
	calls := 0
	h1 := d.On("e", func(any) { calls++ })
	h2 := d.On("e", func(any) { calls += 10 })

	d.Off("e", h1)
	d.Dispatch("e", nil)
	assert.Equal(t, 10, calls)

	d.Off("e", h2)
	assert.Equal(t, 0, d.Handlers("e"))
	d.Off("missing", h2)
}

func TestDispatcher_OffDuringDispatchKeepsSnapshot(t *testing.T) {
	var d Dispatcher
	calls := 0
	var h2 Handle
	d.On("e", func(any) {
		calls++
		d.Off("e", h2)
	})
	h2 = d.On("e", func(any) { calls++ })

	d.Dispatch("e", nil)
	assert.Equal(t, 2, calls)

	d.Dispatch("e", nil)
	assert.Equal(t, 3, calls)
}

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(Change{Topic: "library", Name: "layerAdded", ID: "roads"})

	select {
	case m := <-sub.C():
		assert.Equal(t, "roads", m.ID)
		assert.Equal(t, "layerAdded", m.Name)
	default:
		t.Fatal("expected a message")
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe()
	for i := 0; i < 200; i++ {
		b.Publish(Change{Topic: "map", Name: "spam"})
	}
	assert.Len(t, sub.C(), SubscriptionBuffer)
	assert.EqualValues(t, 200-SubscriptionBuffer, sub.Dropped())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.Subscribers())
	for range sub.C() {
	}
	_, open := <-sub.C()
	require.False(t, open)
}

func TestBus_TopicFilter(t *testing.T) {
	b := NewBus()
	notes := b.Subscribe("notification")
	defer notes.Close()
	all := b.Subscribe()
	defer all.Close()

	b.Publish(Change{Topic: "library", Name: "layerAdded", ID: "roads"})
	b.Publish(Change{Topic: "notification", Name: "notificationAdded", ID: "n1"})

	require.Len(t, notes.C(), 1)
	assert.Equal(t, "n1", (<-notes.C()).ID)
	assert.Len(t, all.C(), 2)
	assert.Zero(t, notes.Dropped())
}
