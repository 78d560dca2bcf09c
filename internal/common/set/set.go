// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package set

import (
	"cmp"
	"encoding/json"
	"slices"
)

// Set is an unordered collection of unique items. It serializes as a
// sorted JSON array so metadata containing sets has deterministic bytes.
type Set[T cmp.Ordered] struct {
	contents map[T]bool
}

func NewSet[T cmp.Ordered]() *Set[T] {
	return &Set[T]{contents: map[T]bool{}}
}

func NewSetFromItems[T cmp.Ordered](items ...T) *Set[T] {
	set := NewSet[T]()
	for _, item := range items {
		set.Add(item)
	}
	return set
}

// Contents returns the items in the set, sorted.
func (s *Set[T]) Contents() []T {
	items := make([]T, 0, len(s.contents))
	for item := range s.contents {
		items = append(items, item)
	}
	slices.Sort(items)
	return items
}

func (s *Set[T]) Add(item T) {
	if s.contents == nil {
		s.contents = map[T]bool{}
	}
	s.contents[item] = true
}

func (s *Set[T]) Remove(item T) {
	delete(s.contents, item)
}

func (s *Set[T]) Extend(set *Set[T]) {
	if set == nil {
		return
	}
	for item := range set.contents {
		s.Add(item)
	}
}

func (s *Set[T]) Has(item T) bool {
	return s.contents[item]
}

func (s *Set[T]) Len() int {
	return len(s.contents)
}

func (s *Set[T]) Equal(set *Set[T]) bool {
	if set == nil || s.Len() != set.Len() {
		return false
	}
	for item := range s.contents {
		if !set.Has(item) {
			return false
		}
	}
	return true
}

func (s *Set[T]) Intersection(set *Set[T]) *Set[T] {
	intersection := NewSet[T]()

	rangeOver := s
	other := set
	if set.Len() < s.Len() {
		rangeOver = set
		other = s
	}

	for item := range rangeOver.contents {
		if other.Has(item) {
			intersection.Add(item)
		}
	}

	return intersection
}

func (s *Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Contents())
}

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	items := []T{}
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	s.contents = map[T]bool{}
	for _, item := range items {
		s.Add(item)
	}
	return nil
}
