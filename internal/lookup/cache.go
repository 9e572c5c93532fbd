// Package lookup memoizes the indexes views and reconciliation use to resolve
// ids, external ids and labels. Each index is rebuilt lazily after the tables
// it derives from change.
package lookup

import (
	"strings"
	"sync"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/events"
	"github.com/dvloznov/taxonomy-bridge/internal/repository"
)

// Reader is the read side of the repository the cache derives from.
type Reader interface {
	AllCategories() []*domain.Category
	AllCharacteristics() []*domain.Characteristic
	AllMarketplaces() []*domain.Marketplace
	AllMirrored(kind domain.Kind) []*domain.MpEntity
}

// CategoryNode is a canonical or mirrored category in the combined tree.
type CategoryNode struct {
	ID            string
	Name          string
	ParentRef     string
	MarketplaceID string
	ExternalID    string
	SourceID      string
	Own           bool
}

// CategoryMaps indexes every category node.
type CategoryMaps struct {
	// ByID holds canonical ids and mirrored row ids.
	ByID map[string]*CategoryNode
	// BySourceID and ByExternalID are keyed by marketplace id, then reference.
	BySourceID   map[string]map[string]*CategoryNode
	ByExternalID map[string]map[string]*CategoryNode
	// ByGlobalExternalID keeps the first node seen per external id across marketplaces.
	ByGlobalExternalID map[string]*CategoryNode
}

// EntityMaps indexes mirrored entities by row id and by external id.
type EntityMaps struct {
	Categories      map[string]*domain.MpEntity
	Characteristics map[string]*domain.MpEntity
	Options         map[string]*domain.MpEntity
	Marketplaces    map[string]*domain.Marketplace
}

// ForKind returns the entity index of kind.
func (m *EntityMaps) ForKind(kind domain.Kind) map[string]*domain.MpEntity {
	switch kind {
	case domain.KindCategory:
		return m.Categories
	case domain.KindCharacteristic:
		return m.Characteristics
	case domain.KindOption:
		return m.Options
	}
	return nil
}

// Cache holds the memoized indexes.
type Cache struct {
	reader Reader

	mu           sync.Mutex
	categories   *CategoryMaps
	catLabels    map[string]string
	charLabels   map[string]string
	entities     *EntityMaps
	unsubscribes []func()
}

// New creates a cache over reader. With a non-nil bus the cache invalidates
// itself whenever a table it depends on is loaded or changed.
func New(reader Reader, bus *events.Bus) *Cache {
	c := &Cache{reader: reader}
	if bus != nil {
		c.unsubscribes = append(c.unsubscribes,
			bus.Subscribe(events.DataLoaded, c.onTableEvent),
			bus.Subscribe(events.DataChanged, c.onTableEvent),
		)
	}
	return c
}

// Close detaches the cache from the bus.
func (c *Cache) Close() {
	for _, unsubscribe := range c.unsubscribes {
		unsubscribe()
	}
	c.unsubscribes = nil
}

func (c *Cache) onTableEvent(e events.Event) {
	switch e.Table {
	case repository.SheetCategories, repository.SheetMpCategories:
		c.InvalidateCategories()
		c.InvalidateLabels()
		c.InvalidateMpEntities()
	case repository.SheetCharacteristics, repository.SheetMpCharacteristics:
		c.InvalidateLabels()
		c.InvalidateMpEntities()
	case repository.SheetMpOptions, repository.SheetMarketplaces:
		c.InvalidateMpEntities()
	}
}

// Invalidate drops every index.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = nil
	c.catLabels = nil
	c.charLabels = nil
	c.entities = nil
}

// InvalidateCategories drops the category tree index.
func (c *Cache) InvalidateCategories() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = nil
}

// InvalidateLabels drops both label maps.
func (c *Cache) InvalidateLabels() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catLabels = nil
	c.charLabels = nil
}

// InvalidateMpEntities drops the mirrored entity index.
func (c *Cache) InvalidateMpEntities() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities = nil
}

// CategoryLookupMaps returns the category index, building it if needed.
// The result must be treated as read only.
func (c *Cache) CategoryLookupMaps() *CategoryMaps {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.categories == nil {
		c.categories = c.buildCategoryMaps()
	}
	return c.categories
}

func (c *Cache) buildCategoryMaps() *CategoryMaps {
	m := &CategoryMaps{
		ByID:               make(map[string]*CategoryNode),
		BySourceID:         make(map[string]map[string]*CategoryNode),
		ByExternalID:       make(map[string]map[string]*CategoryNode),
		ByGlobalExternalID: make(map[string]*CategoryNode),
	}
	for _, cat := range c.reader.AllCategories() {
		m.ByID[cat.ID] = &CategoryNode{ID: cat.ID, Name: cat.NamePrimary, ParentRef: cat.ParentID, Own: true}
	}
	for _, e := range c.reader.AllMirrored(domain.KindCategory) {
		node := &CategoryNode{
			ID:            e.ID,
			Name:          e.Name(),
			ParentRef:     e.Data.ParentID,
			MarketplaceID: e.MarketplaceID,
			ExternalID:    e.ExternalID,
			SourceID:      e.Data.SourceID,
		}
		if _, taken := m.ByID[e.ID]; !taken {
			m.ByID[e.ID] = node
		}
		if node.SourceID != "" {
			if m.BySourceID[e.MarketplaceID] == nil {
				m.BySourceID[e.MarketplaceID] = make(map[string]*CategoryNode)
			}
			m.BySourceID[e.MarketplaceID][node.SourceID] = node
		}
		if m.ByExternalID[e.MarketplaceID] == nil {
			m.ByExternalID[e.MarketplaceID] = make(map[string]*CategoryNode)
		}
		m.ByExternalID[e.MarketplaceID][e.ExternalID] = node
		if _, seen := m.ByGlobalExternalID[e.ExternalID]; !seen {
			m.ByGlobalExternalID[e.ExternalID] = node
		}
	}
	return m
}

// CategoryLabelMap maps canonical ids, mirrored ids and external ids to
// display names. Canonical names win on collisions.
func (c *Cache) CategoryLabelMap() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catLabels == nil {
		labels := make(map[string]string)
		for _, e := range c.reader.AllMirrored(domain.KindCategory) {
			putLabel(labels, e)
		}
		for _, cat := range c.reader.AllCategories() {
			labels[cat.ID] = cat.NamePrimary
		}
		c.catLabels = labels
	}
	return c.catLabels
}

// CharacteristicLabelMap is CategoryLabelMap for characteristics.
func (c *Cache) CharacteristicLabelMap() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.charLabels == nil {
		labels := make(map[string]string)
		for _, e := range c.reader.AllMirrored(domain.KindCharacteristic) {
			putLabel(labels, e)
		}
		for _, ch := range c.reader.AllCharacteristics() {
			labels[ch.ID] = ch.NamePrimary
		}
		c.charLabels = labels
	}
	return c.charLabels
}

func putLabel(labels map[string]string, e *domain.MpEntity) {
	name := e.Name()
	if name == "" {
		return
	}
	labels[e.ID] = name
	if _, taken := labels[e.ExternalID]; !taken {
		labels[e.ExternalID] = name
	}
}

// MpEntityMaps returns the mirrored entity index, building it if needed.
func (c *Cache) MpEntityMaps() *EntityMaps {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entities == nil {
		m := &EntityMaps{
			Categories:      indexEntities(c.reader.AllMirrored(domain.KindCategory)),
			Characteristics: indexEntities(c.reader.AllMirrored(domain.KindCharacteristic)),
			Options:         indexEntities(c.reader.AllMirrored(domain.KindOption)),
			Marketplaces:    make(map[string]*domain.Marketplace),
		}
		for _, mp := range c.reader.AllMarketplaces() {
			m.Marketplaces[mp.ID] = mp
		}
		c.entities = m
	}
	return c.entities
}

// indexEntities keys by row id, then by external id where free.
func indexEntities(list []*domain.MpEntity) map[string]*domain.MpEntity {
	out := make(map[string]*domain.MpEntity, len(list)*2)
	for _, e := range list {
		out[e.ID] = e
	}
	for _, e := range list {
		if _, taken := out[e.ExternalID]; !taken {
			out[e.ExternalID] = e
		}
	}
	return out
}

// FindParentCategory resolves a parent reference: canonical id, then the
// marketplace's source ids, then its external ids, then any marketplace's
// external ids. nil means the node is a root.
func (c *Cache) FindParentCategory(ref, marketplaceID string) *CategoryNode {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "0" {
		return nil
	}
	m := c.CategoryLookupMaps()
	if node, ok := m.ByID[ref]; ok {
		return node
	}
	if node, ok := m.BySourceID[marketplaceID][ref]; ok {
		return node
	}
	if node, ok := m.ByExternalID[marketplaceID][ref]; ok {
		return node
	}
	if node, ok := m.ByGlobalExternalID[ref]; ok {
		return node
	}
	return nil
}

// Ancestors returns the parents of node, nearest first. A cycle ends the walk.
func (c *Cache) Ancestors(node *CategoryNode) []*CategoryNode {
	var out []*CategoryNode
	seen := map[*CategoryNode]bool{node: true}
	for cur := node; cur != nil; {
		parent := c.FindParentCategory(cur.ParentRef, cur.MarketplaceID)
		if parent == nil || seen[parent] {
			break
		}
		seen[parent] = true
		out = append(out, parent)
		cur = parent
	}
	return out
}

// CategoryPath renders "Root > Child > Leaf" for a canonical or mirrored
// category id. Unknown ids render as themselves.
func (c *Cache) CategoryPath(id string) string {
	node, ok := c.CategoryLookupMaps().ByID[id]
	if !ok {
		return id
	}
	ancestors := c.Ancestors(node)
	parts := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		parts = append(parts, ancestors[i].Name)
	}
	parts = append(parts, node.Name)
	return strings.Join(parts, " > ")
}
