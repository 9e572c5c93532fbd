package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/repository"
	"github.com/dvloznov/taxonomy-bridge/internal/rowstore"
	"github.com/google/go-cmp/cmp"
)

func TestDeleteCategory_Cascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.category(t, &domain.Category{NamePrimary: "Clothing"})
	other := f.category(t, &domain.Category{NamePrimary: "Shoes"})
	child := f.category(t, &domain.Category{NamePrimary: "Shirts", ParentID: root.ID})
	char := f.characteristic(t, &domain.Characteristic{NamePrimary: "Size", CategoryIDs: domain.IDSet{root.ID, other.ID}})
	ent := f.mirrored(t, domain.KindCategory, mp("mkt-000001", "10", "Clothing"))[0]
	if _, err := f.engine.CreateMapping(ctx, domain.KindCategory, root.ID, ent.ID); err != nil {
		t.Fatalf("CreateMapping failed: %v", err)
	}

	res, err := f.engine.DeleteCategory(ctx, root.ID)
	if err != nil {
		t.Fatalf("DeleteCategory failed: %v", err)
	}
	if !res.Deleted || len(res.DeletedMappings) != 1 {
		t.Errorf("Unexpected result %+v", res)
	}
	if diff := cmp.Diff([]string{char.ID, child.ID}, res.Unlinked); diff != "" {
		t.Errorf("Unlinked mismatch (-want +got):\n%s", diff)
	}

	if _, ok := f.repo.Categories.Get(root.ID); ok {
		t.Error("Expected category to be gone")
	}
	gotChar, _ := f.repo.Characteristics.Get(char.ID)
	if diff := cmp.Diff(domain.IDSet{other.ID}, gotChar.CategoryIDs); diff != "" {
		t.Errorf("CategoryIDs mismatch (-want +got):\n%s", diff)
	}
	gotChild, _ := f.repo.Categories.Get(child.ID)
	if gotChild.ParentID != "" {
		t.Errorf("Expected child detached, got parent %q", gotChild.ParentID)
	}
	if f.repo.CategoryDependencies(root.ID).Total() != 0 {
		t.Error("Expected no dependents left")
	}
	// row positions stay consistent after the delete
	if gotChild.Index() != 3 {
		t.Errorf("child row = %d, want 3", gotChild.Index())
	}
}

func TestDeleteCategory_UnlinkFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.category(t, &domain.Category{NamePrimary: "Clothing"})
	f.characteristic(t, &domain.Characteristic{NamePrimary: "Size", CategoryIDs: domain.IDSet{root.ID}})

	f.backend.OnUpdate = func(sheet rowstore.SheetRef, _ int) error {
		if sheet.Name == repository.SheetCharacteristics {
			return errors.New("quota exceeded")
		}
		return nil
	}

	res, err := f.engine.DeleteCategory(ctx, root.ID)
	if !errors.Is(err, ErrCascadeIncomplete) {
		t.Fatalf("Expected ErrCascadeIncomplete, got %v", err)
	}
	if res.Deleted || len(res.Failed) != 1 {
		t.Errorf("Unexpected result %+v", res)
	}
	if _, ok := f.repo.Categories.Get(root.ID); !ok {
		t.Error("Expected category to survive")
	}
}

func TestDeleteCategory_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.DeleteCategory(context.Background(), "cat-000404"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCharacteristic_UnlinksOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	char := f.characteristic(t, &domain.Characteristic{NamePrimary: "Colour"})
	red := f.option(t, &domain.Option{CharacteristicID: char.ID, ValuePrimary: "Red"})
	ent := f.mirrored(t, domain.KindCharacteristic, mp("mkt-000001", "5", "Color"))[0]
	_, _ = f.engine.CreateMapping(ctx, domain.KindCharacteristic, char.ID, ent.ID)

	res, err := f.engine.DeleteCharacteristic(ctx, char.ID)
	if err != nil {
		t.Fatalf("DeleteCharacteristic failed: %v", err)
	}
	if len(res.DeletedMappings) != 1 || !res.Deleted {
		t.Errorf("Unexpected result %+v", res)
	}
	got, _ := f.repo.Options.Get(red.ID)
	if got.CharacteristicID != "" {
		t.Errorf("Expected option detached, got %q", got.CharacteristicID)
	}
	if f.engine.IsMapped(domain.KindCharacteristic, ent.ID) {
		t.Error("Expected mirrored characteristic to be unmapped")
	}
}

func TestDeleteOption_UnlinksChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.option(t, &domain.Option{ValuePrimary: "Europe"})
	child := f.option(t, &domain.Option{ValuePrimary: "France", ParentOptionID: parent.ID})

	res, err := f.engine.DeleteOption(ctx, parent.ID)
	if err != nil {
		t.Fatalf("DeleteOption failed: %v", err)
	}
	if diff := cmp.Diff([]string{child.ID}, res.Unlinked); diff != "" {
		t.Errorf("Unlinked mismatch (-want +got):\n%s", diff)
	}
	got, _ := f.repo.Options.Get(child.ID)
	if got.ParentOptionID != "" || got.Index() != 2 {
		t.Errorf("Unexpected child %+v", got)
	}
}

func TestDeleteMarketplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gone, err := f.repo.CreateMarketplace(ctx, &domain.Marketplace{Name: "Gone"})
	if err != nil {
		t.Fatalf("CreateMarketplace failed: %v", err)
	}
	kept, _ := f.repo.CreateMarketplace(ctx, &domain.Marketplace{Name: "Kept"})
	own := f.category(t, &domain.Category{NamePrimary: "Shoes"})
	ents := f.mirrored(t, domain.KindCategory,
		mp(gone.ID, "1", "Shoes"), mp(kept.ID, "1", "Shoes"), mp(gone.ID, "2", "Hats"))
	for _, e := range ents[:2] {
		if _, err := f.engine.CreateMapping(ctx, domain.KindCategory, own.ID, e.ID); err != nil {
			t.Fatalf("CreateMapping failed: %v", err)
		}
	}
	f.mirrored(t, domain.KindCharacteristic, mp(gone.ID, "5", "Size"))

	res, err := f.engine.DeleteMarketplace(ctx, gone.ID)
	if err != nil {
		t.Fatalf("DeleteMarketplace failed: %v", err)
	}
	if !res.Deleted || res.Mirrored[domain.KindCategory] != 2 || res.Mirrored[domain.KindCharacteristic] != 1 ||
		res.Mappings[domain.KindCategory] != 1 {
		t.Errorf("Unexpected result %+v", res)
	}

	left := f.repo.AllMirrored(domain.KindCategory)
	if len(left) != 1 || left[0].ID != ents[1].ID || left[0].Index() != 2 {
		t.Errorf("Unexpected mirrored categories left: %+v", left)
	}
	maps := f.repo.AllMappings(domain.KindCategory)
	if len(maps) != 1 || maps[0].MpID != ents[1].ID {
		t.Errorf("Unexpected mappings left: %+v", maps)
	}
	if _, ok := f.repo.Marketplaces.Get(gone.ID); ok {
		t.Error("Expected marketplace to be gone")
	}
	if rows := f.backend.Rows(f.repo.Mirrored(domain.KindCategory).Sheet()); len(rows) != 2 {
		t.Errorf("Expected header plus one row, got %v", rows)
	}
}

func TestDeleteMarketplace_RemovesExternalIDMappings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gone, _ := f.repo.CreateMarketplace(ctx, &domain.Marketplace{Name: "Gone"})
	kept, _ := f.repo.CreateMarketplace(ctx, &domain.Marketplace{Name: "Kept"})
	own := f.category(t, &domain.Category{NamePrimary: "Shoes"})
	f.mirrored(t, domain.KindCategory,
		mp(gone.ID, "10", "Shoes"), mp(gone.ID, "1", "Boots"), mp(kept.ID, "1", "Boots"))

	// Legacy rows hold the external id instead of the mirrored row id.
	if _, err := f.repo.AddMapping(ctx, domain.KindCategory, own.ID, "10"); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	if _, err := f.repo.AddMapping(ctx, domain.KindCategory, own.ID, "1"); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}

	res, err := f.engine.DeleteMarketplace(ctx, gone.ID)
	if err != nil {
		t.Fatalf("DeleteMarketplace failed: %v", err)
	}
	if res.Mappings[domain.KindCategory] != 1 {
		t.Errorf("Expected 1 mapping removed, got %+v", res.Mappings)
	}
	maps := f.repo.AllMappings(domain.KindCategory)
	if len(maps) != 1 || maps[0].MpID != "1" {
		t.Errorf("Expected only the shared external id mapping to stay, got %+v", maps)
	}
}
