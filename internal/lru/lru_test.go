// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package lru

import (
	"strconv"
	"sync"
	"testing"
)

func constant(v int) func() int { return func() int { return v } }

func TestGetOrCreate(t *testing.T) {
	c := New[string, int](0)
	calls := 0
	create := func() int { calls++; return 7 }

	for range 3 {
		if v := c.GetOrCreate("k", create); v != 7 {
			t.Fatalf("GetOrCreate = %d, want 7", v)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Len != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](2)
	c.GetOrCreate(1, constant(1))
	c.GetOrCreate(2, constant(2))
	c.GetOrCreate(1, constant(-1)) // 2 is now the oldest
	c.GetOrCreate(3, constant(3))

	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
	if v := c.GetOrCreate(1, constant(-1)); v != 1 {
		t.Errorf("1 = %d, want cached 1", v)
	}
	if v := c.GetOrCreate(3, constant(-1)); v != 3 {
		t.Errorf("3 = %d, want cached 3", v)
	}
	if v := c.GetOrCreate(2, constant(-2)); v != -2 {
		t.Errorf("2 = %d, want recreated -2", v)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int](16)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := strconv.Itoa((g + i) % 32)
				c.GetOrCreate(key, func() int { return i })
				_ = c.Stats()
			}
		}()
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Errorf("Len = %d exceeds capacity", c.Len())
	}
}
