package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across packages. Callers match them with errors.Is.
var (
	// ErrValidation marks input rejected before any remote write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to a record that is not loaded.
	ErrNotFound = errors.New("not found")
	// ErrParse marks an import source that could not be turned into rows.
	ErrParse = errors.New("parse failed")
)

// Kind identifies one of the three reconciled entity families.
type Kind string

const (
	KindCategory       Kind = "category"
	KindCharacteristic Kind = "characteristic"
	KindOption         Kind = "option"
)

// Kinds lists every kind in dependency order.
var Kinds = []Kind{KindCategory, KindCharacteristic, KindOption}

// ParseKind accepts singular or plural kind names.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "category", "categories":
		return KindCategory, nil
	case "characteristic", "characteristics":
		return KindCharacteristic, nil
	case "option", "options":
		return KindOption, nil
	}
	return "", fmt.Errorf("ParseKind: unknown kind %q: %w", s, ErrValidation)
}

// Plural returns the plural name used in sheet names.
func (k Kind) Plural() string {
	switch k {
	case KindCategory:
		return "categories"
	case KindCharacteristic:
		return "characteristics"
	case KindOption:
		return "options"
	}
	return string(k)
}

// OwnColumn is the mapping column holding the canonical id ("category_id").
func (k Kind) OwnColumn() string {
	return string(k) + "_id"
}

// MpColumn is the mapping column holding the mirrored id ("mp_category_id").
func (k Kind) MpColumn() string {
	return "mp_" + string(k) + "_id"
}

// LegacyKey is the data blob key older imports used to record a mapping inline.
func (k Kind) LegacyKey() string {
	return "our_" + string(k) + "_id"
}

// MpPrefix is the id prefix of mirrored entities of this kind.
func (k Kind) MpPrefix() string {
	switch k {
	case KindCategory:
		return "mpc"
	case KindCharacteristic:
		return "mpch"
	case KindOption:
		return "mpo"
	}
	return "mp"
}

// MappingPrefix is the id prefix of mapping rows of this kind.
func (k Kind) MappingPrefix() string {
	switch k {
	case KindCategory:
		return "mapc"
	case KindCharacteristic:
		return "mapch"
	case KindOption:
		return "mapo"
	}
	return "map"
}
