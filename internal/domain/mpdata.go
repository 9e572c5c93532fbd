package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MpData is the JSON blob stored with every mirrored entity. Fields the
// reconciliation logic reads are typed; everything else an import saw is kept
// in Extra and written back untouched.
type MpData struct {
	Name             string
	Type             string
	ParentID         string
	CategoryIDs      IDSet
	CategoryNames    []string
	CharacteristicID string
	Unit             string
	FilterType       string
	IsGlobal         bool
	// SourceID is the "id" key inside the blob, which may differ from the row id.
	SourceID string

	// Legacy inline mappings written by older imports. Read only.
	OurCategoryID       string
	OurCharacteristicID string
	OurOptionID         string

	Extra map[string]any
}

var knownDataKeys = map[string]bool{
	"name": true, "type": true, "parent_id": true, "category_ids": true,
	"category_names": true, "characteristic_id": true, "unit": true,
	"filter_type": true, "is_global": true, "id": true,
	"our_category_id": true, "our_characteristic_id": true, "our_option_id": true,
}

// characteristicOnlyKeys never belong on option records.
var characteristicOnlyKeys = []string{"unit", "filter_type", "is_global", "value_type", "category_ids", "category_names"}

// DisplayName returns the best human readable name in the blob.
func (d MpData) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	for _, key := range []string{"title", "value", "label", "name_primary"} {
		if v := d.Field(key); v != "" {
			return v
		}
	}
	return ""
}

// Field returns an extension value as a string.
func (d MpData) Field(key string) string {
	if d.Extra == nil {
		return ""
	}
	return stringify(d.Extra[key])
}

// Set stores an extension value. Known keys are routed to their typed field.
func (d *MpData) Set(key string, value any) {
	if knownDataKeys[key] {
		d.assignKnown(key, value)
		return
	}
	if d.Extra == nil {
		d.Extra = make(map[string]any)
	}
	d.Extra[key] = value
}

// LegacyOwnID returns the inline canonical id recorded for kind, if any.
func (d MpData) LegacyOwnID(kind Kind) string {
	switch kind {
	case KindCategory:
		return d.OurCategoryID
	case KindCharacteristic:
		return d.OurCharacteristicID
	case KindOption:
		return d.OurOptionID
	}
	return ""
}

// StripCharacteristicAttrs removes attributes that only describe characteristics.
func (d *MpData) StripCharacteristicAttrs() {
	d.Unit = ""
	d.FilterType = ""
	d.IsGlobal = false
	d.CategoryIDs = nil
	d.CategoryNames = nil
	for _, key := range characteristicOnlyKeys {
		delete(d.Extra, key)
	}
}

// Clone returns an independent copy.
func (d MpData) Clone() MpData {
	cp := d
	cp.CategoryIDs = d.CategoryIDs.Clone()
	if d.CategoryNames != nil {
		cp.CategoryNames = append([]string(nil), d.CategoryNames...)
	}
	if d.Extra != nil {
		cp.Extra = make(map[string]any, len(d.Extra))
		for k, v := range d.Extra {
			cp.Extra[k] = v
		}
	}
	return cp
}

// MarshalJSON writes extension keys and non-empty typed fields as one object.
func (d MpData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+8)
	for k, v := range d.Extra {
		out[k] = v
	}
	put := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	put("name", d.Name)
	put("type", d.Type)
	put("parent_id", d.ParentID)
	put("characteristic_id", d.CharacteristicID)
	put("unit", d.Unit)
	put("filter_type", d.FilterType)
	put("id", d.SourceID)
	put("our_category_id", d.OurCategoryID)
	put("our_characteristic_id", d.OurCharacteristicID)
	put("our_option_id", d.OurOptionID)
	if len(d.CategoryIDs) > 0 {
		out["category_ids"] = []string(d.CategoryIDs)
	}
	if len(d.CategoryNames) > 0 {
		out["category_names"] = d.CategoryNames
	}
	if d.IsGlobal {
		out["is_global"] = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a blob leniently: numbers, strings and lists are all
// accepted for the typed fields.
func (d *MpData) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("MpData: decoding blob: %w", err)
	}
	*d = MpData{}
	for k, v := range raw {
		d.Set(k, v)
	}
	return nil
}

func (d *MpData) assignKnown(key string, v any) {
	switch key {
	case "name":
		d.Name = stringify(v)
	case "type":
		d.Type = stringify(v)
	case "parent_id":
		d.ParentID = stringify(v)
	case "category_ids":
		d.CategoryIDs = IDSet(nil).Add(stringList(v)...)
	case "category_names":
		d.CategoryNames = stringList(v)
	case "characteristic_id":
		d.CharacteristicID = stringify(v)
	case "unit":
		d.Unit = stringify(v)
	case "filter_type":
		d.FilterType = stringify(v)
	case "is_global":
		d.IsGlobal = Truthy(v)
	case "id":
		d.SourceID = stringify(v)
	case "our_category_id":
		d.OurCategoryID = stringify(v)
	case "our_characteristic_id":
		d.OurCharacteristicID = stringify(v)
	case "our_option_id":
		d.OurOptionID = stringify(v)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		for _, s := range strings.Split(stringify(v), ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// truthyTokens are the "yes" spellings seen in marketplace exports.
var truthyTokens = map[string]bool{
	"true": true, "1": true, "yes": true, "y": true, "on": true, "+": true, "x": true,
	"да": true, "так": true, "tak": true, "ja": true, "oui": true, "si": true, "sí": true,
	"evet": true, "igen": true, "是": true, "✓": true,
}

// Truthy interprets a loosely typed flag.
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return truthyTokens[strings.ToLower(stringify(v))]
}

// FormatBool renders a flag the way the sheet stores it.
func FormatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
