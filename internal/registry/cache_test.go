package registry

import (
	"testing"
	"time"
)

func TestSWRCache_FreshHit(t *testing.T) {
	c := newSWRCache[string](time.Minute)
	c.set("k", "v")

	v, hit, needsRefresh := c.get("k")
	if !hit {
		t.Fatal("expected hit")
	}
	if needsRefresh {
		t.Fatal("fresh entry must not need refresh")
	}
	if v != "v" {
		t.Fatalf("expected v, got %s", v)
	}
}

func TestSWRCache_Miss(t *testing.T) {
	c := newSWRCache[string](time.Minute)
	if _, hit, _ := c.get("absent"); hit {
		t.Fatal("expected miss")
	}
}

func TestSWRCache_StaleServedOnceRefreshing(t *testing.T) {
	c := newSWRCache[string](-time.Second) // everything is immediately stale
	c.set("k", "stale")

	v, hit, needsRefresh := c.get("k")
	if !hit || v != "stale" {
		t.Fatal("expected stale value to be served")
	}
	if !needsRefresh {
		t.Fatal("first stale read should win the refresh CAS")
	}

	// Second stale read must not trigger a duplicate refresh.
	_, hit, needsRefresh = c.get("k")
	if !hit {
		t.Fatal("expected stale hit")
	}
	if needsRefresh {
		t.Fatal("refresh already claimed; second reader must not refresh")
	}
}

func TestSWRCache_NegativeEntry(t *testing.T) {
	c := newSWRCache[*Tool](time.Minute)
	c.set("missing", nil)

	tool, hit, _ := c.get("missing")
	if !hit {
		t.Fatal("expected negative cache hit")
	}
	if tool != nil {
		t.Fatal("expected nil tool")
	}
}

func TestSWRCache_Delete(t *testing.T) {
	c := newSWRCache[string](time.Minute)
	c.set("k", "v")
	c.delete("k")
	if _, hit, _ := c.get("k"); hit {
		t.Fatal("expected miss after delete")
	}
}
