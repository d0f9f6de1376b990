package ynab

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "ynabot/pkg/logx"
)

type countingSource struct {
	calls  int
	groups []CategoryGroup
	err    error
}

func (s *countingSource) CategoryGroups(ctx context.Context) ([]CategoryGroup, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.groups, nil
}

func TestCategoryCacheServesWithinTTL(t *testing.T) {
	t.Parallel()
	src := &countingSource{groups: []CategoryGroup{{ID: "g1"}}}
	c := NewCategoryCache(src, 30*time.Minute, logx.Nop())

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, err := c.Get(context.Background(), false); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	now = now.Add(29 * time.Minute)
	if _, err := c.Get(context.Background(), false); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1 (cache hit within TTL)", src.calls)
	}
}

func TestCategoryCacheRefetchesAfterTTL(t *testing.T) {
	t.Parallel()
	src := &countingSource{groups: []CategoryGroup{{ID: "g1"}}}
	c := NewCategoryCache(src, 30*time.Minute, logx.Nop())

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, _ = c.Get(context.Background(), false)
	now = now.Add(31 * time.Minute)
	if _, err := c.Get(context.Background(), false); err != nil {
		t.Fatalf("Get after TTL: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2 (TTL elapsed)", src.calls)
	}
}

func TestCategoryCacheForcedRefresh(t *testing.T) {
	t.Parallel()
	src := &countingSource{groups: []CategoryGroup{{ID: "g1"}}}
	c := NewCategoryCache(src, 30*time.Minute, logx.Nop())

	_, _ = c.Get(context.Background(), false)
	if _, err := c.Get(context.Background(), true); err != nil {
		t.Fatalf("forced Get: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2 (forced refresh)", src.calls)
	}
}

func TestCategoryCacheKeepsValueOnFetchFailure(t *testing.T) {
	t.Parallel()
	src := &countingSource{groups: []CategoryGroup{{ID: "g1"}}}
	c := NewCategoryCache(src, 30*time.Minute, logx.Nop())

	if _, err := c.Get(context.Background(), false); err != nil {
		t.Fatalf("seed Get: %v", err)
	}

	src.err = errors.New("down")
	if _, err := c.Get(context.Background(), true); err == nil {
		t.Fatal("expected error from forced refresh")
	}

	// Previous value still served within TTL.
	src.err = nil
	groups, err := c.Get(context.Background(), false)
	if err != nil {
		t.Fatalf("Get after failure: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "g1" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	if src.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", src.calls)
	}
}
