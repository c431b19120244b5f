package domain

import (
	"slices"

	"github.com/samber/lo"
)

// Set is a set of usernames.
type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Add reports whether the item was missing.
func (s Set) Add(item string) bool {
	if s.Has(item) {
		return false
	}
	s[item] = struct{}{}
	return true
}

// Remove reports whether the item was present.
func (s Set) Remove(item string) bool {
	if !s.Has(item) {
		return false
	}
	delete(s, item)
	return true
}

// Sorted returns the members in lexical order, never nil.
func (s Set) Sorted() []string {
	items := lo.Keys(s)
	slices.Sort(items)
	if items == nil {
		return []string{}
	}
	return items
}

func (s Set) Clone() Set {
	return NewSet(lo.Keys(s)...)
}
