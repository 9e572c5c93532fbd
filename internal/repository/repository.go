package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/events"
	"github.com/dvloznov/taxonomy-bridge/internal/rowstore"
	"github.com/dvloznov/taxonomy-bridge/internal/textnorm"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Repository groups the tables of every entity kind.
type Repository struct {
	Categories      *Table[*domain.Category]
	Characteristics *Table[*domain.Characteristic]
	Options         *Table[*domain.Option]
	Marketplaces    *Table[*domain.Marketplace]

	mirrored map[domain.Kind]*Table[*domain.MpEntity]
	mappings map[domain.Kind]*Table[*domain.Mapping]

	log zerolog.Logger
	now func() time.Time
}

// New builds a repository over store. Tables publish their loads and
// mutations on bus.
func New(store *rowstore.Store, bus *events.Bus, log zerolog.Logger) *Repository {
	r := &Repository{
		Categories:      newTable(categorySchema(), store, bus, log),
		Characteristics: newTable(characteristicSchema(), store, bus, log),
		Options:         newTable(optionSchema(), store, bus, log),
		Marketplaces:    newTable(marketplaceSchema(), store, bus, log),
		mirrored:        make(map[domain.Kind]*Table[*domain.MpEntity]),
		mappings:        make(map[domain.Kind]*Table[*domain.Mapping]),
		log:             log,
		now:             time.Now,
	}
	for _, kind := range domain.Kinds {
		r.mirrored[kind] = newTable(mirroredSchema(kind), store, bus, log)
		r.mappings[kind] = newTable(mappingSchema(kind), store, bus, log)
	}
	return r
}

// Mirrored returns the table of mirrored entities of kind.
func (r *Repository) Mirrored(kind domain.Kind) *Table[*domain.MpEntity] {
	return r.mirrored[kind]
}

// Mappings returns the mapping table of kind.
func (r *Repository) Mappings(kind domain.Kind) *Table[*domain.Mapping] {
	return r.mappings[kind]
}

// sheetTable is the kind-independent part of a Table.
type sheetTable interface {
	Load(ctx context.Context) error
	Sheet() rowstore.SheetRef
	Columns() []string
}

func (r *Repository) tables() []sheetTable {
	out := []sheetTable{r.Categories, r.Characteristics, r.Options, r.Marketplaces}
	for _, kind := range domain.Kinds {
		out = append(out, r.mirrored[kind], r.mappings[kind])
	}
	return out
}

// LoadAll loads every table concurrently. Loads only read, so they may overlap.
func (r *Repository) LoadAll(ctx context.Context) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range r.tables() {
		g.Go(func() error {
			if err := t.Load(gctx); err != nil {
				return fmt.Errorf("LoadAll: %s: %w", t.Sheet().Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.log.Info().Dur("duration", time.Since(start)).Msg("All sheets loaded")
	return nil
}

// Bootstrap creates missing sheets and writes their headers. It returns the
// names of the sheets it initialized.
func (r *Repository) Bootstrap(ctx context.Context, store *rowstore.Store) ([]string, error) {
	var created []string
	for _, t := range r.tables() {
		wrote, err := store.EnsureSheet(ctx, t.Sheet(), t.Columns())
		if err != nil {
			return created, fmt.Errorf("Bootstrap: %w", err)
		}
		if wrote {
			created = append(created, t.Sheet().Name)
		}
	}
	return created, nil
}

// AllCategories returns every canonical category.
func (r *Repository) AllCategories() []*domain.Category { return r.Categories.All() }

// AllCharacteristics returns every canonical characteristic.
func (r *Repository) AllCharacteristics() []*domain.Characteristic { return r.Characteristics.All() }

// AllOptions returns every canonical option.
func (r *Repository) AllOptions() []*domain.Option { return r.Options.All() }

// AllMarketplaces returns every marketplace.
func (r *Repository) AllMarketplaces() []*domain.Marketplace { return r.Marketplaces.All() }

// AllMirrored returns every mirrored entity of kind.
func (r *Repository) AllMirrored(kind domain.Kind) []*domain.MpEntity { return r.mirrored[kind].All() }

// AllMappings returns every mapping row of kind.
func (r *Repository) AllMappings(kind domain.Kind) []*domain.Mapping { return r.mappings[kind].All() }

// Marketplace returns the marketplace with id.
func (r *Repository) Marketplace(id string) (*domain.Marketplace, bool) {
	return r.Marketplaces.Get(id)
}

// OwnExists reports whether a canonical record of kind exists.
func (r *Repository) OwnExists(kind domain.Kind, id string) bool {
	var ok bool
	switch kind {
	case domain.KindCategory:
		_, ok = r.Categories.Get(id)
	case domain.KindCharacteristic:
		_, ok = r.Characteristics.Get(id)
	case domain.KindOption:
		_, ok = r.Options.Get(id)
	}
	return ok
}

// OwnName returns the primary name of a canonical record.
func (r *Repository) OwnName(kind domain.Kind, id string) string {
	switch kind {
	case domain.KindCategory:
		if c, ok := r.Categories.Get(id); ok {
			return c.NamePrimary
		}
	case domain.KindCharacteristic:
		if c, ok := r.Characteristics.Get(id); ok {
			return c.NamePrimary
		}
	case domain.KindOption:
		if o, ok := r.Options.Get(id); ok {
			return o.ValuePrimary
		}
	}
	return ""
}

// CreateMarketplace adds a marketplace, deriving a unique slug from the name
// when none is given.
func (r *Repository) CreateMarketplace(ctx context.Context, m *domain.Marketplace) (*domain.Marketplace, error) {
	m = m.Clone()
	if m.Slug == "" {
		m.Slug = textnorm.Slug(m.Name)
	}
	for _, existing := range r.Marketplaces.All() {
		if existing.Slug == m.Slug {
			return nil, fmt.Errorf("CreateMarketplace: slug %q is taken by %s: %w", m.Slug, existing.ID, domain.ErrValidation)
		}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}
	created, err := r.Marketplaces.Add(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("CreateMarketplace: %w", err)
	}
	return created, nil
}

// AddMirrored appends mirrored entities of one kind in a single write. Ids
// are derived from marketplace and external id when missing.
func (r *Repository) AddMirrored(ctx context.Context, kind domain.Kind, items []*domain.MpEntity) ([]*domain.MpEntity, error) {
	now := r.now()
	prepared := make([]*domain.MpEntity, len(items))
	for i, e := range items {
		e = e.Clone()
		e.Kind = kind
		if e.ID == "" {
			e.ID = domain.MpEntityID(kind, e.MarketplaceID, e.Data.CharacteristicID, e.ExternalID)
		}
		if kind == domain.KindOption {
			e.Data.StripCharacteristicAttrs()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
		prepared[i] = e
	}
	added, err := r.mirrored[kind].AddBatch(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("AddMirrored: %w", err)
	}
	return added, nil
}

// UpdateMirrored patches a mirrored entity and bumps its updated_at.
func (r *Repository) UpdateMirrored(ctx context.Context, kind domain.Kind, id string, patch func(*domain.MpEntity) error) (*domain.MpEntity, error) {
	now := r.now()
	return r.mirrored[kind].Update(ctx, id, func(e *domain.MpEntity) error {
		if err := patch(e); err != nil {
			return err
		}
		e.UpdatedAt = now
		return nil
	})
}

// AddMapping appends a mapping row without checking for an existing pair.
func (r *Repository) AddMapping(ctx context.Context, kind domain.Kind, ownID, mpID string) (*domain.Mapping, error) {
	m := &domain.Mapping{Kind: kind, OwnID: ownID, MpID: mpID, CreatedAt: r.now()}
	added, err := r.mappings[kind].Add(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("AddMapping: %w", err)
	}
	return added, nil
}

// AddCategories appends canonical categories in one write.
func (r *Repository) AddCategories(ctx context.Context, items []*domain.Category) ([]*domain.Category, error) {
	added, err := r.Categories.AddBatch(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("AddCategories: %w", err)
	}
	return added, nil
}

// AddCharacteristics appends canonical characteristics in one write.
func (r *Repository) AddCharacteristics(ctx context.Context, items []*domain.Characteristic) ([]*domain.Characteristic, error) {
	added, err := r.Characteristics.AddBatch(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("AddCharacteristics: %w", err)
	}
	return added, nil
}

// AddOptions appends canonical options in one write.
func (r *Repository) AddOptions(ctx context.Context, items []*domain.Option) ([]*domain.Option, error) {
	added, err := r.Options.AddBatch(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("AddOptions: %w", err)
	}
	return added, nil
}
