package pipeline

import (
	"testing"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/google/go-cmp/cmp"
)

var exportHeader = []string{"Characteristic ID", "Characteristic", "Option ID", "Option", "Category ID", "Category"}

func exportColumns() ColumnMap {
	return DetectColumns(exportHeader, DefaultPatterns)
}

func TestInterpretRows(t *testing.T) {
	rows := [][]string{
		{"10", "Color", "100", "Red", "5", "Shoes"},
		{"10", "Color", "101", "Blue", "5", "Shoes"},
		{"10", "Colour", "100", "Red", "6", "Boots"},
		{"20", "Size", "", "", "5", "Shoes"},
		{"", "", "", "", "", ""},
		{"", "orphan", "", "", "", ""},
	}
	got := InterpretRows("mkt-000001", "file", exportHeader, rows, exportColumns())

	if len(got.Characteristics) != 2 {
		t.Fatalf("Expected 2 characteristics, got %d", len(got.Characteristics))
	}
	color := got.Characteristics[0]
	if color.Data.Name != "Color" {
		t.Errorf("First occurrence should win, got name %q", color.Data.Name)
	}
	if diff := cmp.Diff(domain.IDSet{"5", "6"}, color.Data.CategoryIDs); diff != "" {
		t.Errorf("CategoryIDs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Shoes", "Boots"}, color.Data.CategoryNames); diff != "" {
		t.Errorf("CategoryNames mismatch (-want +got):\n%s", diff)
	}
	if got := color.Data.Field("Characteristic ID"); got != "10" {
		t.Errorf("Raw column not kept in data, got %q", got)
	}

	var options []string
	for _, o := range got.Options {
		options = append(options, o.Data.CharacteristicID+"/"+o.ExternalID+"/"+o.Data.Name)
		if len(o.Data.CategoryIDs) != 0 {
			t.Errorf("Option %s carries category ids %v", o.ExternalID, o.Data.CategoryIDs)
		}
	}
	if diff := cmp.Diff([]string{"10/100/Red", "10/101/Blue"}, options); diff != "" {
		t.Errorf("Options mismatch (-want +got):\n%s", diff)
	}

	var cats []string
	for _, c := range got.Categories {
		cats = append(cats, c.ExternalID+"/"+c.Data.Name)
		if c.Data.SourceID != c.ExternalID {
			t.Errorf("Category %s SourceID = %q", c.ExternalID, c.Data.SourceID)
		}
	}
	if diff := cmp.Diff([]string{"5/Shoes", "6/Boots"}, cats); diff != "" {
		t.Errorf("Categories mismatch (-want +got):\n%s", diff)
	}

	if got.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", got.Duplicates)
	}
	if got.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", got.Skipped)
	}
	if got.Len() != 6 {
		t.Errorf("Len = %d, want 6", got.Len())
	}
}

func TestInterpretRows_CategoryTree(t *testing.T) {
	header := []string{"Category ID", "Category", "Parent ID"}
	cols := DetectColumns(header, DefaultPatterns)
	rows := [][]string{
		{"1", "Clothing", ""},
		{"2", "Shoes", "1"},
		{"2", "Shoes again", "1"},
	}
	got := InterpretRows("mkt-000001", "file", header, rows, cols)
	if len(got.Categories) != 2 {
		t.Fatalf("Expected 2 categories, got %d", len(got.Categories))
	}
	if got.Categories[1].Data.ParentID != "1" {
		t.Errorf("ParentID = %q, want %q", got.Categories[1].Data.ParentID, "1")
	}
	if got.Duplicates != 0 {
		t.Errorf("Repeated categories in one tab should fold silently, Duplicates = %d", got.Duplicates)
	}
}

func TestInterpretRows_OptionsWithoutCharacteristicName(t *testing.T) {
	header := []string{"Characteristic ID", "Option ID", "Option"}
	cols := DetectColumns(header, DefaultPatterns)
	if !cols.Importable() {
		t.Fatalf("Option columns should be importable, got %v", cols)
	}
	rows := [][]string{
		{"10", "100", "Red"},
		{"10", "101", "Blue"},
		{"", "102", "Green"},
	}
	got := InterpretRows("mkt-000001", "file", header, rows, cols)

	var options []string
	for _, o := range got.Options {
		options = append(options, OptionKey(o.Data.CharacteristicID, o.ExternalID))
	}
	if diff := cmp.Diff([]string{OptionKey("10", "100"), OptionKey("10", "101")}, options); diff != "" {
		t.Errorf("Options mismatch (-want +got):\n%s", diff)
	}
	if len(got.Characteristics) != 0 {
		t.Errorf("No characteristic should be created without a name, got %d", len(got.Characteristics))
	}
	if got.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 for the option without a characteristic id", got.Skipped)
	}
}

func TestParsed_AddCategories(t *testing.T) {
	p := &Parsed{Categories: []*domain.MpEntity{{ExternalID: "5"}}}
	p.AddCategories(&domain.MpEntity{ExternalID: "5"}, &domain.MpEntity{ExternalID: "7"}, &domain.MpEntity{ExternalID: "7"})
	if len(p.Categories) != 2 || p.Categories[1].ExternalID != "7" {
		t.Errorf("Unexpected categories: %+v", p.Categories)
	}
	if p.Duplicates != 2 {
		t.Errorf("Duplicates = %d, want 2", p.Duplicates)
	}
}

// MockMirrorReader returns fixed mirrored records per kind.
type MockMirrorReader struct {
	Records map[domain.Kind][]*domain.MpEntity
}

func (m *MockMirrorReader) AllMirrored(kind domain.Kind) []*domain.MpEntity {
	return m.Records[kind]
}

func TestDedup(t *testing.T) {
	store := &MockMirrorReader{Records: map[domain.Kind][]*domain.MpEntity{
		domain.KindCharacteristic: {
			{ID: "mpch-mkt-000001-10", MarketplaceID: "mkt-000001", ExternalID: "10",
				Data: domain.MpData{Name: "Color", CategoryIDs: domain.IDSet{"5"}, CategoryNames: []string{"Shoes"}}},
			{ID: "mpch-mkt-000002-20", MarketplaceID: "mkt-000002", ExternalID: "20"},
		},
		domain.KindOption: {
			{MarketplaceID: "mkt-000001", ExternalID: "100", Data: domain.MpData{CharacteristicID: "10"}},
		},
		domain.KindCategory: {
			{MarketplaceID: "mkt-000001", ExternalID: "5"},
		},
	}}
	parsed := InterpretRows("mkt-000001", "file", exportHeader, [][]string{
		{"10", "Color", "100", "Red", "5", "Shoes"},
		{"10", "Color", "101", "Blue", "6", "Boots"},
		{"20", "Size", "100", "S", "5", "Shoes"},
	}, exportColumns())

	plan := Dedup(store, "mkt-000001", parsed)

	if len(plan.Characteristics) != 1 || plan.Characteristics[0].ExternalID != "20" {
		t.Errorf("Only the characteristic of another marketplace's id should be new, got %+v", plan.Characteristics)
	}
	var options []string
	for _, o := range plan.Options {
		options = append(options, OptionKey(o.Data.CharacteristicID, o.ExternalID))
	}
	if diff := cmp.Diff([]string{OptionKey("10", "101"), OptionKey("20", "100")}, options); diff != "" {
		t.Errorf("Options mismatch (-want +got):\n%s", diff)
	}
	if len(plan.Categories) != 1 || plan.Categories[0].ExternalID != "6" {
		t.Errorf("Expected only category 6 to be new, got %+v", plan.Categories)
	}
	wantMerges := []CategoryMerge{{ID: "mpch-mkt-000001-10", CategoryIDs: []string{"6"}, CategoryNames: []string{"Boots"}}}
	if diff := cmp.Diff(wantMerges, plan.Merges); diff != "" {
		t.Errorf("Merges mismatch (-want +got):\n%s", diff)
	}
	wantRejected := map[domain.Kind]int{domain.KindCharacteristic: 1, domain.KindOption: 1, domain.KindCategory: 1}
	if diff := cmp.Diff(wantRejected, plan.Rejected); diff != "" {
		t.Errorf("Rejected mismatch (-want +got):\n%s", diff)
	}
	if plan.Empty() {
		t.Error("Plan should not be empty")
	}
}

func TestDedup_IdenticalReimportIsEmpty(t *testing.T) {
	parsed := InterpretRows("mkt-000001", "file", exportHeader, [][]string{
		{"10", "Color", "100", "Red", "5", "Shoes"},
	}, exportColumns())
	store := &MockMirrorReader{Records: map[domain.Kind][]*domain.MpEntity{
		domain.KindCharacteristic: parsed.Characteristics,
		domain.KindOption:         parsed.Options,
		domain.KindCategory:       parsed.Categories,
	}}
	if plan := Dedup(store, "mkt-000001", parsed); !plan.Empty() {
		t.Errorf("Expected empty plan, got %+v", plan)
	}
}
