package domain

import "strings"

// IDSet is an ordered set of ids stored in a single cell as "a,b,c".
type IDSet []string

// ParseIDSet splits a comma-joined cell, dropping blanks and duplicates.
func ParseIDSet(s string) IDSet {
	var set IDSet
	for _, part := range strings.Split(s, ",") {
		set = set.Add(strings.TrimSpace(part))
	}
	return set
}

// Has reports whether id is a member.
func (s IDSet) Has(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add returns the set with id appended unless it is blank or already present.
func (s IDSet) Add(ids ...string) IDSet {
	for _, id := range ids {
		if id == "" || s.Has(id) {
			continue
		}
		s = append(s, id)
	}
	return s
}

// Remove returns a new set without id.
func (s IDSet) Remove(id string) IDSet {
	out := make(IDSet, 0, len(s))
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	if s == nil {
		return nil
	}
	return append(IDSet(nil), s...)
}

// String joins the set for storage.
func (s IDSet) String() string {
	return strings.Join(s, ",")
}
