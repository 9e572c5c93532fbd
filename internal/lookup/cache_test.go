package lookup

import (
	"testing"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/events"
	"github.com/dvloznov/taxonomy-bridge/internal/repository"
	"github.com/google/go-cmp/cmp"
)

type fakeReader struct {
	categories      []*domain.Category
	characteristics []*domain.Characteristic
	marketplaces    []*domain.Marketplace
	mirrored        map[domain.Kind][]*domain.MpEntity
	calls           int
}

func (f *fakeReader) AllCategories() []*domain.Category {
	f.calls++
	return f.categories
}

func (f *fakeReader) AllCharacteristics() []*domain.Characteristic { return f.characteristics }

func (f *fakeReader) AllMarketplaces() []*domain.Marketplace { return f.marketplaces }

func (f *fakeReader) AllMirrored(kind domain.Kind) []*domain.MpEntity { return f.mirrored[kind] }

func mpCategory(mp, ext, name, parent, sourceID string) *domain.MpEntity {
	return &domain.MpEntity{
		Kind:          domain.KindCategory,
		ID:            domain.MpEntityID(domain.KindCategory, mp, "", ext),
		MarketplaceID: mp,
		ExternalID:    ext,
		Data:          domain.MpData{Name: name, ParentID: parent, SourceID: sourceID},
	}
}

func newFixture() *fakeReader {
	return &fakeReader{
		categories: []*domain.Category{
			{ID: "cat-000001", NamePrimary: "Clothing"},
			{ID: "cat-000002", NamePrimary: "Shirts", ParentID: "cat-000001"},
		},
		characteristics: []*domain.Characteristic{{ID: "chr-000001", NamePrimary: "Colour"}},
		marketplaces:    []*domain.Marketplace{{ID: "mkt-000001", Name: "Shop"}},
		mirrored: map[domain.Kind][]*domain.MpEntity{
			domain.KindCategory: {
				mpCategory("mkt-000001", "10", "Root", "", "s10"),
				mpCategory("mkt-000001", "11", "Child", "s10", ""),
				mpCategory("mkt-000001", "12", "Grandchild", "11", ""),
				mpCategory("mkt-000002", "77", "Other root", "", ""),
				mpCategory("mkt-000001", "13", "Orphan of other", "77", ""),
			},
			domain.KindCharacteristic: {
				{ID: "mpch-mkt-000001-5", MarketplaceID: "mkt-000001", ExternalID: "5", Data: domain.MpData{Name: "Color"}},
				{ID: "chr-000001", MarketplaceID: "mkt-000001", ExternalID: "6", Data: domain.MpData{Name: "Clash"}},
			},
		},
	}
}

func TestFindParentCategory_Order(t *testing.T) {
	c := New(newFixture(), nil)

	tests := []struct {
		name string
		ref  string
		mp   string
		want string
	}{
		{"empty is root", "", "mkt-000001", ""},
		{"zero is root", "0", "mkt-000001", ""},
		{"canonical id", "cat-000001", "mkt-000001", "cat-000001"},
		{"source id of marketplace", "s10", "mkt-000001", "mpc-mkt-000001-10"},
		{"external id of marketplace", "11", "mkt-000001", "mpc-mkt-000001-11"},
		{"global external id", "77", "mkt-000001", "mpc-mkt-000002-77"},
		{"unknown", "999", "mkt-000001", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.FindParentCategory(tt.ref, tt.mp)
			gotID := ""
			if got != nil {
				gotID = got.ID
			}
			if gotID != tt.want {
				t.Errorf("FindParentCategory(%q) = %q, want %q", tt.ref, gotID, tt.want)
			}
		})
	}
}

func TestCategoryPath(t *testing.T) {
	c := New(newFixture(), nil)

	if got, want := c.CategoryPath("mpc-mkt-000001-12"), "Root > Child > Grandchild"; got != want {
		t.Errorf("CategoryPath() = %q, want %q", got, want)
	}
	if got, want := c.CategoryPath("cat-000002"), "Clothing > Shirts"; got != want {
		t.Errorf("CategoryPath() = %q, want %q", got, want)
	}
	if got, want := c.CategoryPath("mpc-mkt-000001-13"), "Other root > Orphan of other"; got != want {
		t.Errorf("CategoryPath() = %q, want %q", got, want)
	}
	if got := c.CategoryPath("missing"); got != "missing" {
		t.Errorf("CategoryPath(missing) = %q", got)
	}
}

func TestAncestors_CycleGuard(t *testing.T) {
	r := &fakeReader{categories: []*domain.Category{
		{ID: "cat-000001", NamePrimary: "A", ParentID: "cat-000002"},
		{ID: "cat-000002", NamePrimary: "B", ParentID: "cat-000001"},
	}}
	c := New(r, nil)

	node := c.CategoryLookupMaps().ByID["cat-000001"]
	got := c.Ancestors(node)
	if len(got) != 1 || got[0].ID != "cat-000002" {
		t.Fatalf("Ancestors() = %v, want [cat-000002]", got)
	}
	if path := c.CategoryPath("cat-000001"); path != "B > A" {
		t.Errorf("CategoryPath() = %q", path)
	}
}

func TestLabelMaps_CanonicalWins(t *testing.T) {
	c := New(newFixture(), nil)

	chars := c.CharacteristicLabelMap()
	want := map[string]string{
		"mpch-mkt-000001-5": "Color",
		"5":                 "Color",
		"chr-000001":        "Colour",
		"6":                 "Clash",
	}
	if diff := cmp.Diff(want, chars); diff != "" {
		t.Errorf("CharacteristicLabelMap() mismatch (-want +got):\n%s", diff)
	}

	cats := c.CategoryLabelMap()
	if cats["cat-000001"] != "Clothing" || cats["12"] != "Grandchild" {
		t.Errorf("CategoryLabelMap() = %v", cats)
	}
}

func TestMpEntityMaps(t *testing.T) {
	c := New(newFixture(), nil)

	m := c.MpEntityMaps()
	if e := m.ForKind(domain.KindCategory)["11"]; e == nil || e.Name() != "Child" {
		t.Errorf("lookup by external id = %v", e)
	}
	if e := m.ForKind(domain.KindCharacteristic)["mpch-mkt-000001-5"]; e == nil || e.ExternalID != "5" {
		t.Errorf("lookup by row id = %v", e)
	}
	if m.Marketplaces["mkt-000001"] == nil {
		t.Error("marketplace missing")
	}
}

func TestCache_MemoizesUntilInvalidated(t *testing.T) {
	r := newFixture()
	bus := events.NewBus()
	c := New(r, bus)
	defer c.Close()

	c.CategoryLookupMaps()
	c.CategoryLookupMaps()
	if r.calls != 1 {
		t.Fatalf("AllCategories called %d times, want 1", r.calls)
	}

	// characteristic changes leave the category tree alone
	bus.Publish(events.Event{Topic: events.DataChanged, Table: repository.SheetCharacteristics})
	c.CategoryLookupMaps()
	if r.calls != 1 {
		t.Fatalf("AllCategories called %d times after unrelated change, want 1", r.calls)
	}

	r.categories = append(r.categories, &domain.Category{ID: "cat-000003", NamePrimary: "Hats"})
	bus.Publish(events.Event{Topic: events.DataChanged, Table: repository.SheetCategories, Op: events.OpCreate})
	if _, ok := c.CategoryLookupMaps().ByID["cat-000003"]; !ok {
		t.Error("new category not visible after change event")
	}

	c.Close()
	r.categories = r.categories[:1]
	bus.Publish(events.Event{Topic: events.DataLoaded, Table: repository.SheetCategories})
	if _, ok := c.CategoryLookupMaps().ByID["cat-000003"]; !ok {
		t.Error("closed cache still reacted to events")
	}

	c.Invalidate()
	if _, ok := c.CategoryLookupMaps().ByID["cat-000003"]; ok {
		t.Error("Invalidate did not drop the tree")
	}
}
