// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package ordered provides a slice kept sorted by a numeric key.
//
// Sequence is shared by the automation tracks (keyframes by time) and the
// event scheduler (events by launch time). Lookups are binary searches;
// inserts shift the tail, which is fine for the handful of inserts a frame
// produces.
package ordered

import "sort"

// Sequence is a slice of items kept in non-decreasing key order.
//
// The zero value is not usable; create one with New.
// Sequence is not safe for concurrent use.
type Sequence[T any] struct {
	items []T
	key   func(T) float64
}

// New creates an empty sequence ordered by key.
func New[T any](key func(T) float64) *Sequence[T] {
	return &Sequence[T]{key: key}
}

// Len returns the number of items.
func (s *Sequence[T]) Len() int {
	return len(s.items)
}

// At returns the item at index i. It panics if i is out of range.
func (s *Sequence[T]) At(i int) T {
	return s.items[i]
}

// Key returns the key of the item at index i.
func (s *Sequence[T]) Key(i int) float64 {
	return s.key(s.items[i])
}

// Insert places item after every item with an equal or smaller key,
// so equal keys keep their insertion order. It returns the index used.
func (s *Sequence[T]) Insert(item T) int {
	k := s.key(item)
	i := sort.Search(len(s.items), func(i int) bool {
		return s.key(s.items[i]) > k
	})
	var zero T
	s.items = append(s.items, zero)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = item
	return i
}

// SearchRight returns the first index whose key is >= k, or Len() if none.
func (s *Sequence[T]) SearchRight(k float64) int {
	return sort.Search(len(s.items), func(i int) bool {
		return s.key(s.items[i]) >= k
	})
}

// SearchLeft returns the index of the last item with key <= k.
// When k precedes every item the result is 0.
func (s *Sequence[T]) SearchLeft(k float64) int {
	r := s.SearchRight(k)
	if r == len(s.items) || s.key(s.items[r]) > k {
		if r > 0 {
			return r - 1
		}
	}
	return r
}

// Front returns the item with the smallest key.
func (s *Sequence[T]) Front() (T, bool) {
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[0], true
}

// PopFront removes and returns the item with the smallest key.
func (s *Sequence[T]) PopFront() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	item := s.items[0]
	s.items[0] = zero
	s.items = s.items[1:]
	return item, true
}

// RemoveFunc deletes every item for which drop returns true and reports
// how many were removed. Order of the survivors is unchanged.
func (s *Sequence[T]) RemoveFunc(drop func(T) bool) int {
	kept := s.items[:0]
	for _, it := range s.items {
		if !drop(it) {
			kept = append(kept, it)
		}
	}
	removed := len(s.items) - len(kept)
	var zero T
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = zero
	}
	s.items = kept
	return removed
}

// Clear removes all items.
func (s *Sequence[T]) Clear() {
	clear(s.items)
	s.items = s.items[:0]
}

// Slice returns a copy of the items in key order.
func (s *Sequence[T]) Slice() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
