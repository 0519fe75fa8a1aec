package library

import (
	"errors"
	"log/slog"

	"github.com/leia-project/viewer-sub001/internal/event"
	"github.com/leia-project/viewer-sub001/internal/reactive"
)

// Events dispatched by LayerLibrary. The payload is the *LayerConfig.
const (
	EventLayerAdded   = "layerAdded"
	EventLayerRemoved = "layerRemoved"
)

// IDs of the fallback groups every library starts with.
const (
	BackgroundGroupID    = "group_background"
	UncategorisedGroupID = "group_uncategorised"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("not found")

// LayerLibrary owns the forest of layer groups. Groups whose parent has not
// been registered yet are held as pending and attached once it arrives.
// Changes of a config's Added flag are re-dispatched as EventLayerAdded and
// EventLayerRemoved.
type LayerLibrary struct {
	event.Dispatcher

	Groups              *reactive.List[*LayerConfigGroup]
	SelectedLayerConfig *reactive.Cell[*LayerConfig]
	Tags                *reactive.Set[string]

	background    *LayerConfigGroup
	uncategorised *LayerConfigGroup

	pending       []*LayerConfigGroup
	parked        map[string][]*LayerConfig
	unsubscribers map[string]reactive.Unsubscriber
	logger        *slog.Logger
}

// New creates a library holding only the background and uncategorised
// groups. A nil logger uses slog.Default().
func New(logger *slog.Logger) *LayerLibrary {
	if logger == nil {
		logger = slog.Default()
	}
	l := &LayerLibrary{
		Groups:              reactive.NewList[*LayerConfigGroup](),
		SelectedLayerConfig: reactive.New[*LayerConfig](nil),
		Tags:                reactive.NewSet[string](),
		background:          NewLayerConfigGroup(BackgroundGroupID, "Background", ""),
		uncategorised:       NewLayerConfigGroup(UncategorisedGroupID, "No Category", ""),
		parked:              make(map[string][]*LayerConfig),
		unsubscribers:       make(map[string]reactive.Unsubscriber),
		logger:              logger,
	}

	l.AddLayerConfigGroup(l.background)
	l.AddLayerConfigGroup(l.uncategorised)
	return l
}

// Background returns the fallback group for background layers.
func (l *LayerLibrary) Background() *LayerConfigGroup { return l.background }

// Uncategorised returns the fallback group for everything else.
func (l *LayerLibrary) Uncategorised() *LayerConfigGroup { return l.uncategorised }

// AddLayerConfigGroups registers groups in order.
func (l *LayerLibrary) AddLayerConfigGroups(groups []*LayerConfigGroup) {
	for _, g := range groups {
		l.AddLayerConfigGroup(g)
	}
}

// AddLayerConfigGroup registers group as a root, or under its parent when
// ParentID is set. If the parent is unknown the group waits in Pending until
// a group with that ID is registered.
func (l *LayerLibrary) AddLayerConfigGroup(group *LayerConfigGroup) {
	l.walkConfigs(group, func(c *LayerConfig) {
		l.subscribeLayerConfig(c)
		l.Tags.Add(c.Tags...)
	})

	if group.ParentID == "" {
		l.Groups.Append(group)
		l.adopt(group)
		return
	}

	parent, ok := l.FindGroup(group.ParentID)
	if !ok {
		l.logger.Warn("parent group not found, holding group as pending",
			"group", group.ID, "parent", group.ParentID)
		l.pending = append(l.pending, group)
		return
	}

	parent.AddGroup(group)
	l.adopt(group)
}

// adopt attaches pending groups and parked configs that were waiting for
// group or any of its descendants.
func (l *LayerLibrary) adopt(group *LayerConfigGroup) {
	var waiting, rest []*LayerConfigGroup
	for _, p := range l.pending {
		if p.ParentID == group.ID {
			waiting = append(waiting, p)
		} else {
			rest = append(rest, p)
		}
	}
	l.pending = rest

	for _, child := range waiting {
		l.logger.Debug("attaching pending group", "group", child.ID, "parent", group.ID)
		group.AddGroup(child)
	}

	if configs, ok := l.parked[group.ID]; ok {
		delete(l.parked, group.ID)
		for _, c := range configs {
			l.fallbackFor(c).RemoveLayerConfig(c)
			l.attach(group, c)
		}
	}

	for _, child := range group.ChildGroups.Items() {
		l.adopt(child)
	}
}

// AddLayerConfigs registers configs in order.
func (l *LayerLibrary) AddLayerConfigs(configs []*LayerConfig) {
	for _, c := range configs {
		l.AddLayerConfig(c)
	}
}

// AddLayerConfig attaches config to the group named by its GroupID, or to
// the background/uncategorised fallback when that group is unknown. A config
// parked in a fallback group moves to its own group once it is registered.
func (l *LayerLibrary) AddLayerConfig(config *LayerConfig) {
	if _, ok := l.unsubscribers[config.ID]; ok {
		l.logger.Info("layer already registered", "layer", config.ID, "title", config.Title)
		return
	}

	group, ok := l.FindGroup(config.GroupID)
	if !ok {
		group = l.fallbackFor(config)
		if config.GroupID != "" {
			l.parked[config.GroupID] = append(l.parked[config.GroupID], config)
		}
	}

	l.attach(group, config)
	l.subscribeLayerConfig(config)
	l.Tags.Add(config.Tags...)
}

func (l *LayerLibrary) attach(group *LayerConfigGroup, config *LayerConfig) {
	if !group.AddLayerConfig(config) {
		l.logger.Info("layer already added to group", "group", group.ID, "layer", config.ID, "title", config.Title)
	}
}

// RemoveLayerConfig reports the config as removed, detaches it from its group
// and stops listening to it.
func (l *LayerLibrary) RemoveLayerConfig(config *LayerConfig) {
	l.Dispatch(EventLayerRemoved, config)

	if group, ok := l.groupOf(config.ID); ok {
		group.RemoveLayerConfig(config)
	}

	if unsub, ok := l.unsubscribers[config.ID]; ok {
		unsub()
		delete(l.unsubscribers, config.ID)
	}
	config.ready = false

	if parked := l.parked[config.GroupID]; len(parked) > 0 {
		kept := parked[:0]
		for _, c := range parked {
			if c.ID != config.ID {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(l.parked, config.GroupID)
		} else {
			l.parked[config.GroupID] = kept
		}
	}
}

// subscribeLayerConfig wires the Added listener. The listener is live before
// ready is set, and ready is set before any default activation, so exactly
// one EventLayerAdded is produced for a default-on config.
func (l *LayerLibrary) subscribeLayerConfig(config *LayerConfig) {
	if _, ok := l.unsubscribers[config.ID]; ok {
		return
	}

	l.unsubscribers[config.ID] = config.Added.Subscribe(func(added bool) {
		if !config.ready {
			return
		}
		if added {
			l.Dispatch(EventLayerAdded, config)
		} else {
			l.Dispatch(EventLayerRemoved, config)
		}
	})
	config.ready = true

	if config.DefaultAddToManager {
		config.Added.Set(true)
	}
}

func (l *LayerLibrary) fallbackFor(config *LayerConfig) *LayerConfigGroup {
	if config.IsBackground {
		return l.background
	}
	return l.uncategorised
}

// FindLayer returns the config with id, searching the forest depth first.
func (l *LayerLibrary) FindLayer(id string) (*LayerConfig, bool) {
	var found *LayerConfig
	l.Walk(func(g *LayerConfigGroup, _ int) bool {
		for _, c := range g.LayerConfigs.Items() {
			if c.ID == id {
				found = c
				return false
			}
		}
		return true
	})
	return found, found != nil
}

// FindGroup returns the attached group with id. Pending groups are not found.
func (l *LayerLibrary) FindGroup(id string) (*LayerConfigGroup, bool) {
	if id == "" {
		return nil, false
	}
	return findGroup(l.Groups.Items(), id)
}

func findGroup(groups []*LayerConfigGroup, id string) (*LayerConfigGroup, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
	}
	for _, g := range groups {
		if found, ok := findGroup(g.ChildGroups.Items(), id); ok {
			return found, true
		}
	}
	return nil, false
}

func (l *LayerLibrary) groupOf(configID string) (*LayerConfigGroup, bool) {
	var owner *LayerConfigGroup
	l.Walk(func(g *LayerConfigGroup, _ int) bool {
		if g.HasLayerConfig(configID) {
			owner = g
			return false
		}
		return true
	})
	return owner, owner != nil
}

// Walk visits every attached group depth first. Returning false stops the walk.
func (l *LayerLibrary) Walk(fn func(g *LayerConfigGroup, depth int) bool) {
	walk(l.Groups.Items(), 0, fn)
}

func walk(groups []*LayerConfigGroup, depth int, fn func(*LayerConfigGroup, int) bool) bool {
	for _, g := range groups {
		if !fn(g, depth) {
			return false
		}
		if !walk(g.ChildGroups.Items(), depth+1, fn) {
			return false
		}
	}
	return true
}

func (l *LayerLibrary) walkConfigs(group *LayerConfigGroup, fn func(*LayerConfig)) {
	walk([]*LayerConfigGroup{group}, 0, func(g *LayerConfigGroup, _ int) bool {
		for _, c := range g.LayerConfigs.Items() {
			fn(c)
		}
		return true
	})
}

// LayerConfigs returns every attached config in depth-first order.
func (l *LayerLibrary) LayerConfigs() []*LayerConfig {
	var out []*LayerConfig
	l.Walk(func(g *LayerConfigGroup, _ int) bool {
		out = append(out, g.LayerConfigs.Items()...)
		return true
	})
	return out
}

// Pending returns the groups still waiting for their parent.
func (l *LayerLibrary) Pending() []*LayerConfigGroup {
	out := make([]*LayerConfigGroup, len(l.pending))
	copy(out, l.pending)
	return out
}

// Select marks the config with id as selected.
func (l *LayerLibrary) Select(id string) error {
	c, ok := l.FindLayer(id)
	if !ok {
		return ErrNotFound
	}
	l.SelectedLayerConfig.Set(c)
	return nil
}
