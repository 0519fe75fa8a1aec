package library

import "github.com/leia-project/viewer-sub001/internal/reactive"

// LayerConfigGroup is a node of the catalog tree. It owns its child groups
// and layer configs and keeps two derived counts up to date:
//
//	TotalLayerCount   = |LayerConfigs| + Σ child.TotalLayerCount
//	EnabledLayerCount = |{c ∈ LayerConfigs : c.Added}| + Σ child.EnabledLayerCount
//
// ParentID is a lookup key, never a pointer; groups do not reference upward.
type LayerConfigGroup struct {
	ID       string
	Title    string
	ParentID string

	ChildGroups       *reactive.List[*LayerConfigGroup]
	LayerConfigs      *reactive.List[*LayerConfig]
	Open              *reactive.Cell[bool]
	TotalLayerCount   *reactive.Cell[int]
	EnabledLayerCount *reactive.Cell[int]

	groupUnsubscribers map[*LayerConfigGroup][]reactive.Unsubscriber
	layerUnsubscribers map[string]reactive.Unsubscriber
}

// NewLayerConfigGroup creates a group and attaches the given children.
func NewLayerConfigGroup(id, title, parentID string, children ...*LayerConfigGroup) *LayerConfigGroup {
	g := &LayerConfigGroup{
		ID:                 id,
		Title:              title,
		ParentID:           parentID,
		ChildGroups:        reactive.NewList[*LayerConfigGroup](),
		LayerConfigs:       reactive.NewList[*LayerConfig](),
		Open:               reactive.New(false),
		TotalLayerCount:    reactive.New(0),
		EnabledLayerCount:  reactive.New(0),
		groupUnsubscribers: make(map[*LayerConfigGroup][]reactive.Unsubscriber),
		layerUnsubscribers: make(map[string]reactive.Unsubscriber),
	}
	for _, child := range children {
		g.AddGroup(child)
	}
	return g
}

// AddGroup appends child and tracks its counts. Duplicate IDs are not
// checked; that is the caller's responsibility.
func (g *LayerConfigGroup) AddGroup(child *LayerConfigGroup) {
	total := child.TotalLayerCount.Subscribe(func(int) { g.recalculate() })
	enabled := child.EnabledLayerCount.Subscribe(func(int) { g.recalculate() })
	g.groupUnsubscribers[child] = []reactive.Unsubscriber{total, enabled}

	g.ChildGroups.Append(child)
	g.recalculate()
}

// AddLayerConfig appends config unless a config with the same ID is already
// in this group, and reports whether it did.
func (g *LayerConfigGroup) AddLayerConfig(config *LayerConfig) bool {
	if g.HasLayerConfig(config.ID) {
		return false
	}

	g.layerUnsubscribers[config.ID] = config.Added.Subscribe(func(bool) { g.recalculate() })
	g.LayerConfigs.Append(config)
	g.recalculate()
	return true
}

// RemoveLayerConfig detaches config. It is a no-op if config is not here.
func (g *LayerConfigGroup) RemoveLayerConfig(config *LayerConfig) {
	idx := g.LayerConfigs.IndexFunc(func(c *LayerConfig) bool { return c.ID == config.ID })
	if idx < 0 {
		return
	}

	if unsub, ok := g.layerUnsubscribers[config.ID]; ok {
		unsub()
		delete(g.layerUnsubscribers, config.ID)
	}

	g.LayerConfigs.RemoveAt(idx)
	g.recalculate()
}

// HasLayerConfig reports whether a config with id is owned directly by g.
func (g *LayerConfigGroup) HasLayerConfig(id string) bool {
	return g.LayerConfigs.IndexFunc(func(c *LayerConfig) bool { return c.ID == id }) >= 0
}

// AddAllLayers activates every config in g and its descendants. Each
// activation runs its own notification cascade.
func (g *LayerConfigGroup) AddAllLayers() {
	for _, c := range g.LayerConfigs.Items() {
		c.Add()
	}
	for _, child := range g.ChildGroups.Items() {
		child.AddAllLayers()
	}
}

// RemoveAllLayers deactivates every config in g and its descendants.
func (g *LayerConfigGroup) RemoveAllLayers() {
	for _, c := range g.LayerConfigs.Items() {
		c.Remove()
	}
	for _, child := range g.ChildGroups.Items() {
		child.RemoveAllLayers()
	}
}

func (g *LayerConfigGroup) recalculate() {
	total, enabled := 0, 0
	for _, child := range g.ChildGroups.Items() {
		total += child.TotalLayerCount.Get()
		enabled += child.EnabledLayerCount.Get()
	}

	configs := g.LayerConfigs.Items()
	total += len(configs)
	for _, c := range configs {
		if c.Added.Get() {
			enabled++
		}
	}

	g.TotalLayerCount.Set(total)
	g.EnabledLayerCount.Set(enabled)
}
