package library

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg(id, group string) *LayerConfig {
	return NewLayerConfig(Descriptor{ID: id, Title: id, GroupID: group})
}

// checkCounts asserts both count equations for g and every descendant.
func checkCounts(t *testing.T, g *LayerConfigGroup) (total, enabled int) {
	t.Helper()
	for _, c := range g.LayerConfigs.Items() {
		total++
		if c.Added.Get() {
			enabled++
		}
	}
	for _, child := range g.ChildGroups.Items() {
		ct, ce := checkCounts(t, child)
		total += ct
		enabled += ce
	}
	require.Equal(t, total, g.TotalLayerCount.Get(), "total of %s", g.ID)
	require.Equal(t, enabled, g.EnabledLayerCount.Get(), "enabled of %s", g.ID)
	return total, enabled
}

func TestGroup_CountsHoldAfterEveryOperation(t *testing.T) {
	root := NewLayerConfigGroup("root", "Root", "")
	a := NewLayerConfigGroup("a", "A", "root")
	b := NewLayerConfigGroup("b", "B", "a")

	steps := []func(){
		func() { root.AddGroup(a) },
		func() { root.AddLayerConfig(cfg("r1", "root")) },
		func() { a.AddGroup(b) },
		func() { b.AddLayerConfig(cfg("b1", "b")) },
		func() { b.LayerConfigs.Items()[0].Add() },
		func() { a.AddLayerConfig(cfg("a1", "a")) },
		func() { a.LayerConfigs.Items()[0].Add() },
		func() { b.LayerConfigs.Items()[0].Remove() },
		func() { a.RemoveLayerConfig(a.LayerConfigs.Items()[0]) },
		func() { root.AddAllLayers() },
		func() { root.RemoveAllLayers() },
	}
	for i, step := range steps {
		step()
		t.Run(fmt.Sprintf("step %d", i), func(t *testing.T) { checkCounts(t, root) })
	}
}

func TestGroup_CountsMatchDuringCascade(t *testing.T) {
	root := NewLayerConfigGroup("root", "Root", "")
	child := NewLayerConfigGroup("child", "Child", "root")
	root.AddGroup(child)
	c := cfg("c", "child")
	child.AddLayerConfig(c)

	var seen []int
	root.EnabledLayerCount.Subscribe(func(n int) { seen = append(seen, n) })
	c.Add()
	c.Remove()

	assert.Equal(t, []int{0, 1, 0}, seen)
}

func TestGroup_AddLayerConfigIsIdempotent(t *testing.T) {
	g := NewLayerConfigGroup("g", "G", "")
	assert.True(t, g.AddLayerConfig(cfg("x", "g")))
	require.Equal(t, 1, g.TotalLayerCount.Get())

	assert.False(t, g.AddLayerConfig(cfg("x", "g")))
	assert.Equal(t, 1, g.TotalLayerCount.Get())
	assert.Equal(t, 1, g.LayerConfigs.Len())
}

func TestGroup_RemoveUnknownConfigIsNoop(t *testing.T) {
	g := NewLayerConfigGroup("g", "G", "")
	g.AddLayerConfig(cfg("x", "g"))
	g.RemoveLayerConfig(cfg("y", "g"))
	assert.Equal(t, 1, g.TotalLayerCount.Get())
}

func TestGroup_RemovedConfigNoLongerCounts(t *testing.T) {
	g := NewLayerConfigGroup("g", "G", "")
	c := cfg("x", "g")
	g.AddLayerConfig(c)
	c.Add()
	g.RemoveLayerConfig(c)

	c.Remove()
	c.Add()
	assert.Equal(t, 0, g.EnabledLayerCount.Get())
	assert.Equal(t, 0, c.Added.Subscribers())
}

func TestGroup_ConstructorAttachesChildren(t *testing.T) {
	leaf := NewLayerConfigGroup("leaf", "Leaf", "top")
	leaf.AddLayerConfig(cfg("l1", "leaf"))
	top := NewLayerConfigGroup("top", "Top", "", leaf)

	assert.Equal(t, 1, top.TotalLayerCount.Get())
	assert.Equal(t, 1, top.ChildGroups.Len())
}

func TestGroup_AddAllLayersIsRecursive(t *testing.T) {
	leaf := NewLayerConfigGroup("leaf", "Leaf", "top")
	leaf.AddLayerConfig(cfg("l1", "leaf"))
	leaf.AddLayerConfig(cfg("l2", "leaf"))
	top := NewLayerConfigGroup("top", "Top", "", leaf)
	top.AddLayerConfig(cfg("t1", "top"))

	top.AddAllLayers()
	assert.Equal(t, 3, top.EnabledLayerCount.Get())

	leaf.RemoveAllLayers()
	assert.Equal(t, 1, top.EnabledLayerCount.Get())
	checkCounts(t, top)
}

func TestLayerConfig_Helpers(t *testing.T) {
	c := NewLayerConfig(Descriptor{
		ID:          "x",
		LegendURL:   "https://example.com/legend.png",
		Transparent: true,
		Settings:    map[string]any{"url": "https://example.com/wms", "n": 3},
		Metadata:    []MetadataEntry{{Key: "Preview afbeelding", Value: "p.png"}},
	})
	assert.True(t, c.LegendSupported())
	assert.True(t, c.OpacitySupported())
	assert.Equal(t, "https://example.com/wms", c.Setting("url"))
	assert.Equal(t, "", c.Setting("n"))
	v, ok := c.MetadataValue("Preview afbeelding")
	assert.True(t, ok)
	assert.Equal(t, "p.png", v)
	assert.False(t, c.Ready())
}
