package library

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	added   []string
	removed []string
}

func record(l *LayerLibrary) *recorder {
	r := &recorder{}
	l.On(EventLayerAdded, func(data any) { r.added = append(r.added, data.(*LayerConfig).ID) })
	l.On(EventLayerRemoved, func(data any) { r.removed = append(r.removed, data.(*LayerConfig).ID) })
	return r
}

func shape(l *LayerLibrary) map[string][]string {
	out := map[string][]string{}
	l.Walk(func(g *LayerConfigGroup, _ int) bool {
		var children []string
		for _, c := range g.ChildGroups.Items() {
			children = append(children, "group:"+c.ID)
		}
		for _, c := range g.LayerConfigs.Items() {
			children = append(children, "layer:"+c.ID)
		}
		out[g.ID] = children
		return true
	})
	return out
}

func TestLibrary_StartsWithFallbackGroups(t *testing.T) {
	l := New(nil)
	require.Equal(t, 2, l.Groups.Len())
	assert.Equal(t, BackgroundGroupID, l.Groups.Items()[0].ID)
	assert.Equal(t, UncategorisedGroupID, l.Groups.Items()[1].ID)
}

func TestLibrary_AttachesChildUnderParent(t *testing.T) {
	l := New(nil)
	l.AddLayerConfigGroup(NewLayerConfigGroup("a", "A", ""))
	l.AddLayerConfigGroup(NewLayerConfigGroup("b", "B", "a"))

	a, ok := l.FindGroup("a")
	require.True(t, ok)
	require.Equal(t, 1, a.ChildGroups.Len())
	assert.Equal(t, "b", a.ChildGroups.Items()[0].ID)
	assert.Empty(t, l.Pending())
}

func TestLibrary_OutOfOrderAttachmentMatchesInOrder(t *testing.T) {
	inOrder := New(nil)
	inOrder.AddLayerConfigGroups([]*LayerConfigGroup{
		NewLayerConfigGroup("a", "A", ""),
		NewLayerConfigGroup("b", "B", "a"),
		NewLayerConfigGroup("c", "C", "b"),
	})

	reversed := New(nil)
	reversed.AddLayerConfigGroups([]*LayerConfigGroup{
		NewLayerConfigGroup("c", "C", "b"),
		NewLayerConfigGroup("b", "B", "a"),
	})
	assert.Len(t, reversed.Pending(), 2)
	reversed.AddLayerConfigGroup(NewLayerConfigGroup("a", "A", ""))

	assert.Empty(t, reversed.Pending())
	assert.Equal(t, shape(inOrder), shape(reversed))
}

func TestLibrary_PendingResolvesUnderNonRootParent(t *testing.T) {
	l := New(nil)
	l.AddLayerConfigGroup(NewLayerConfigGroup("a", "A", ""))
	l.AddLayerConfigGroup(NewLayerConfigGroup("c", "C", "b"))
	l.AddLayerConfigGroup(NewLayerConfigGroup("b", "B", "a"))

	c, ok := l.FindGroup("c")
	require.True(t, ok)
	assert.Equal(t, "C", c.Title)
	assert.Empty(t, l.Pending())
}

func TestLibrary_OrphanStaysPending(t *testing.T) {
	l := New(nil)
	l.AddLayerConfigGroup(NewLayerConfigGroup("lost", "Lost", "nowhere"))

	_, ok := l.FindGroup("lost")
	assert.False(t, ok)
	require.Len(t, l.Pending(), 1)
	assert.Equal(t, "lost", l.Pending()[0].ID)
}

func TestLibrary_ConfigBeforeItsGroup(t *testing.T) {
	l := New(nil)
	l.AddLayerConfigGroup(NewLayerConfigGroup("A", "A", ""))

	c1 := NewLayerConfig(Descriptor{ID: "c1", GroupID: "B", DefaultAddToManager: true})
	l.AddLayerConfig(c1)
	assert.True(t, l.Uncategorised().HasLayerConfig("c1"))

	l.AddLayerConfigGroup(NewLayerConfigGroup("B", "B", "A"))

	a, _ := l.FindGroup("A")
	b, _ := l.FindGroup("B")
	assert.Equal(t, 1, a.EnabledLayerCount.Get())
	assert.True(t, b.HasLayerConfig("c1"))
	assert.False(t, l.Uncategorised().HasLayerConfig("c1"))
	assert.Equal(t, 0, l.Uncategorised().TotalLayerCount.Get())
}

func TestLibrary_FallbackGroups(t *testing.T) {
	l := New(nil)
	l.AddLayerConfig(NewLayerConfig(Descriptor{ID: "bg", IsBackground: true}))
	l.AddLayerConfig(NewLayerConfig(Descriptor{ID: "misc", GroupID: "unknown"}))

	assert.True(t, l.Background().HasLayerConfig("bg"))
	assert.True(t, l.Uncategorised().HasLayerConfig("misc"))
}

func TestLibrary_DefaultAddFiresExactlyOnce(t *testing.T) {
	l := New(nil)
	rec := record(l)

	l.AddLayerConfig(NewLayerConfig(Descriptor{ID: "on", DefaultAddToManager: true}))
	l.AddLayerConfig(NewLayerConfig(Descriptor{ID: "off"}))

	assert.Equal(t, []string{"on"}, rec.added)
	assert.Empty(t, rec.removed)
}

func TestLibrary_AddedTogglesDispatch(t *testing.T) {
	l := New(nil)
	rec := record(l)
	c := NewLayerConfig(Descriptor{ID: "x"})
	l.AddLayerConfig(c)

	c.Add()
	c.Add()
	c.Remove()

	assert.Equal(t, []string{"x"}, rec.added)
	assert.Equal(t, []string{"x"}, rec.removed)
}

func TestLibrary_DuplicateConfigIsIgnored(t *testing.T) {
	l := New(nil)
	rec := record(l)
	first := NewLayerConfig(Descriptor{ID: "dup", DefaultAddToManager: true})
	second := NewLayerConfig(Descriptor{ID: "dup", DefaultAddToManager: true})

	l.AddLayerConfig(first)
	l.AddLayerConfig(second)

	assert.Equal(t, []string{"dup"}, rec.added)
	assert.Equal(t, 1, l.Uncategorised().TotalLayerCount.Get())
	assert.False(t, second.Added.Get())
}

func TestLibrary_GroupWithConfigsIsSubscribed(t *testing.T) {
	l := New(nil)
	rec := record(l)
	g := NewLayerConfigGroup("g", "G", "")
	g.AddLayerConfig(NewLayerConfig(Descriptor{ID: "inner", DefaultAddToManager: true, Tags: []string{"water"}}))

	l.AddLayerConfigGroup(g)

	assert.Equal(t, []string{"inner"}, rec.added)
	assert.True(t, l.Tags.Has("water"))
}

func TestLibrary_TagsAreMerged(t *testing.T) {
	l := New(nil)
	l.AddLayerConfig(NewLayerConfig(Descriptor{ID: "a", Tags: []string{"roads", "water"}}))
	l.AddLayerConfig(NewLayerConfig(Descriptor{ID: "b", Tags: []string{"water", "soil"}}))
	assert.Equal(t, []string{"roads", "water", "soil"}, l.Tags.Items())
}

func TestLibrary_RemoveLayerConfig(t *testing.T) {
	l := New(nil)
	rec := record(l)
	l.AddLayerConfigGroup(NewLayerConfigGroup("g", "G", ""))
	c := NewLayerConfig(Descriptor{ID: "x", GroupID: "g"})
	l.AddLayerConfig(c)
	c.Add()

	l.RemoveLayerConfig(c)

	assert.Equal(t, []string{"x"}, rec.removed)
	_, ok := l.FindLayer("x")
	assert.False(t, ok)

	c.Remove()
	assert.Equal(t, []string{"x"}, rec.removed)
}

func TestLibrary_FindLayerAndSelect(t *testing.T) {
	l := New(nil)
	l.AddLayerConfigGroups([]*LayerConfigGroup{
		NewLayerConfigGroup("a", "A", ""),
		NewLayerConfigGroup("b", "B", "a"),
	})
	l.AddLayerConfig(NewLayerConfig(Descriptor{ID: "deep", GroupID: "b"}))

	c, ok := l.FindLayer("deep")
	require.True(t, ok)
	assert.Equal(t, "b", c.GroupID)

	require.NoError(t, l.Select("deep"))
	assert.Same(t, c, l.SelectedLayerConfig.Get())
	assert.ErrorIs(t, l.Select("missing"), ErrNotFound)

	_, ok = l.FindGroup("")
	assert.False(t, ok)
	assert.Len(t, l.LayerConfigs(), 1)
}

func TestLibrary_LogsDuplicateInGroupWithItsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.New(slog.NewTextHandler(&buf, nil)))

	l.AddLayerConfig(NewLayerConfig(Descriptor{ID: "x", GroupID: "g"}))
	g := NewLayerConfigGroup("g", "G", "")
	g.AddLayerConfig(NewLayerConfig(Descriptor{ID: "x", GroupID: "g"}))
	l.AddLayerConfigGroup(g)

	assert.Contains(t, buf.String(), "layer already added to group")
	assert.Contains(t, buf.String(), "group=g")
	assert.Equal(t, 1, g.TotalLayerCount.Get())
	assert.Equal(t, 0, l.Uncategorised().TotalLayerCount.Get())
}
