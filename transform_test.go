package bridge

import (
	"strings"
	"testing"
)

func TestTransformModuleSource_JSPassthrough(t *testing.T) {
	source := "export var weird = /* keep me verbatim */ 1;"
	out, err := TransformModuleSource("plain.js", source)
	if err != nil {
		t.Fatalf("TransformModuleSource: %v", err)
	}
	if out != source {
		t.Errorf("JS source was modified: %q", out)
	}
}

func TestTransformModuleSource_StripsTypes(t *testing.T) {
	source := "export function add(a: number, b: number): number { return a + b; }"
	out, err := TransformModuleSource("math.ts", source)
	if err != nil {
		t.Fatalf("TransformModuleSource: %v", err)
	}
	if strings.Contains(out, ": number") {
		t.Errorf("type annotations survived: %q", out)
	}
	if !strings.Contains(out, "function add(a, b)") {
		t.Errorf("output = %q", out)
	}
}

func TestTransformModuleSource_JSON(t *testing.T) {
	out, err := TransformModuleSource("config.json", `{"limit": 10}`)
	if err != nil {
		t.Fatalf("TransformModuleSource: %v", err)
	}
	if !strings.Contains(out, "limit") || !strings.Contains(out, "default") {
		t.Errorf("JSON module output = %q", out)
	}
}

func TestTransformModuleSource_SyntaxErrorNamesFile(t *testing.T) {
	_, err := TransformModuleSource("broken.ts", "function {{{")
	if err == nil {
		t.Fatal("broken source should fail")
	}
	if !strings.Contains(err.Error(), "broken.ts") {
		t.Errorf("error %q should name the file", err)
	}
}

func TestLoaderForSpecifier(t *testing.T) {
	cases := []struct {
		specifier string
		needed    bool
	}{
		{"a.js", false},
		{"a.mjs", false},
		{"a.ts", true},
		{"a.mts", true},
		{"a.tsx", true},
		{"a.jsx", true},
		{"a.json", true},
		{"https://host/mod.TS", true},
	}
	for _, c := range cases {
		if _, needed := loaderForSpecifier(c.specifier); needed != c.needed {
			t.Errorf("loaderForSpecifier(%q) needed = %v, want %v", c.specifier, needed, c.needed)
		}
	}
}

func TestLoadModule_FetchesTransformsAndCaches(t *testing.T) {
	rt := newFakeRuntime()
	ctx, err := NewExecutionContext(rt, nil, ContextConfig{ModuleCacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewExecutionContext: %v", err)
	}
	defer ctx.Teardown()

	fetches := 0
	fetch := func(specifier string) (string, error) {
		fetches++
		return "export var x: number = 1;", nil
	}

	info, err := ctx.LoadModule("lib.ts", false, fetch)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if info.Name != "lib.ts" {
		t.Errorf("name = %q", info.Name)
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, want 1", fetches)
	}

	// Second load hits the cache.
	if _, err := ctx.LoadModule("lib.ts", false, fetch); err != nil {
		t.Fatalf("second LoadModule: %v", err)
	}
	if fetches != 1 {
		t.Errorf("fetches = %d after cached load, want 1", fetches)
	}
}
