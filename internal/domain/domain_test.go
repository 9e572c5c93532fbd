package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMpData_KeepsUnknownKeys(t *testing.T) {
	in := `{"id": 17, "name": " Color ", "category_ids": "10, 11,10", "is_global": "так", "Колір RGB": "#fff", "weight": 2.5}`

	var d MpData
	if err := json.Unmarshal([]byte(in), &d); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if d.SourceID != "17" {
		t.Errorf("SourceID = %q, want 17", d.SourceID)
	}
	if d.Name != "Color" {
		t.Errorf("Name = %q, want Color", d.Name)
	}
	if diff := cmp.Diff(IDSet{"10", "11"}, d.CategoryIDs); diff != "" {
		t.Errorf("CategoryIDs mismatch (-want +got):\n%s", diff)
	}
	if !d.IsGlobal {
		t.Error("Expected IsGlobal to be coerced from a localized token")
	}

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal of output failed: %v", err)
	}
	if back["Колір RGB"] != "#fff" || back["weight"] != 2.5 {
		t.Errorf("Extension keys lost: %v", back)
	}
	if back["id"] != "17" {
		t.Errorf("Expected id to survive, got %v", back["id"])
	}
}

func TestMpData_StripCharacteristicAttrs(t *testing.T) {
	d := MpData{Name: "Red", Unit: "cm", FilterType: "range", IsGlobal: true}
	d.Set("value_type", "string")
	d.Set("hex", "#f00")

	d.StripCharacteristicAttrs()

	if d.Unit != "" || d.FilterType != "" || d.IsGlobal {
		t.Errorf("Expected characteristic attributes cleared, got %+v", d)
	}
	if d.Field("value_type") != "" {
		t.Error("Expected value_type removed from extension keys")
	}
	if d.Field("hex") != "#f00" {
		t.Error("Expected unrelated extension key to remain")
	}
}

func TestMpData_DisplayNameFallback(t *testing.T) {
	var d MpData
	d.Set("title", "Size")
	if got := d.DisplayName(); got != "Size" {
		t.Errorf("DisplayName() = %q, want Size", got)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{true, true},
		{"TRUE", true},
		{"Да", true},
		{"oui", true},
		{float64(1), true},
		{"no", false},
		{"", false},
		{nil, false},
		{float64(0), false},
	}
	for _, tt := range tests {
		if got := Truthy(tt.in); got != tt.want {
			t.Errorf("Truthy(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIDSet(t *testing.T) {
	set := ParseIDSet(" cat-1, cat-2,,cat-1 ")
	if got := set.String(); got != "cat-1,cat-2" {
		t.Errorf("String() = %q", got)
	}
	set = set.Add("cat-3", "cat-2")
	if got := set.Remove("cat-1").String(); got != "cat-2,cat-3" {
		t.Errorf("Remove() = %q", got)
	}
	if !set.Has("cat-1") {
		t.Error("Remove must not mutate the receiver")
	}
}

func TestMpEntityID(t *testing.T) {
	if got := MpEntityID(KindCategory, "mkt-000001", "", "55"); got != "mpc-mkt-000001-55" {
		t.Errorf("category id = %q", got)
	}
	if got := MpEntityID(KindOption, "mkt-000001", "9", "55"); got != "mpo-mkt-000001-9-55" {
		t.Errorf("option id = %q", got)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("Options"); err != nil || k != KindOption {
		t.Errorf("ParseKind(Options) = %v, %v", k, err)
	}
	if _, err := ParseKind("brand"); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}
