package bridge

import (
	"path/filepath"
	"testing"
)

func TestModuleCache_PutGet(t *testing.T) {
	cache, err := OpenModuleCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenModuleCache: %v", err)
	}
	defer cache.Close()

	if err := cache.Put("lib.js", "export var x = 1;"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	source, ok, err := cache.Get("lib.js")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("cached entry not found")
	}
	if source != "export var x = 1;" {
		t.Errorf("source = %q", source)
	}
}

func TestModuleCache_Miss(t *testing.T) {
	cache, err := OpenModuleCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenModuleCache: %v", err)
	}
	defer cache.Close()

	_, ok, err := cache.Get("never-stored.js")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("miss reported as hit")
	}
}

func TestModuleCache_PutOverwrites(t *testing.T) {
	cache, err := OpenModuleCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenModuleCache: %v", err)
	}
	defer cache.Close()

	cache.Put("lib.js", "v1")
	cache.Put("lib.js", "v2")

	source, ok, _ := cache.Get("lib.js")
	if !ok || source != "v2" {
		t.Errorf("source = %q ok=%v, want v2", source, ok)
	}
}

func TestModuleCache_PersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()

	first, err := OpenModuleCache(dir)
	if err != nil {
		t.Fatalf("OpenModuleCache: %v", err)
	}
	first.Put("lib.js", "persisted")
	first.Close()

	second, err := OpenModuleCache(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	source, ok, _ := second.Get("lib.js")
	if !ok || source != "persisted" {
		t.Errorf("source = %q ok=%v after reopen", source, ok)
	}
}

func TestModuleCache_CreatesNestedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	cache, err := OpenModuleCache(dir)
	if err != nil {
		t.Fatalf("OpenModuleCache: %v", err)
	}
	cache.Close()
}
