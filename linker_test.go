package bridge

import (
	"strings"
	"testing"
)

func TestLowerModule_NamedImport(t *testing.T) {
	out, err := lowerModule(`import { f, g as h } from "lib.js";`, 1, map[string]uint64{"lib.js": 2})
	if err != nil {
		t.Fatalf("lowerModule: %v", err)
	}
	if !strings.Contains(out, "var {f, g: h} = __bridge.ns(2);") {
		t.Errorf("output = %q", out)
	}
}

func TestLowerModule_NamespaceImport(t *testing.T) {
	out, err := lowerModule(`import * as lib from "lib.js";`, 1, map[string]uint64{"lib.js": 2})
	if err != nil {
		t.Fatalf("lowerModule: %v", err)
	}
	if !strings.Contains(out, "var lib = __bridge.ns(2);") {
		t.Errorf("output = %q", out)
	}
}

func TestLowerModule_DefaultImport(t *testing.T) {
	out, err := lowerModule(`import lib from "lib.js";`, 1, map[string]uint64{"lib.js": 2})
	if err != nil {
		t.Fatalf("lowerModule: %v", err)
	}
	if !strings.Contains(out, "var lib = __bridge.ns(2).default;") {
		t.Errorf("output = %q", out)
	}
}

func TestLowerModule_InlineExports(t *testing.T) {
	source := `export function run() { return 1; }
export const limit = 10;`
	out, err := lowerModule(source, 1, nil)
	if err != nil {
		t.Fatalf("lowerModule: %v", err)
	}
	if !strings.Contains(out, "__ns.run = run;") {
		t.Errorf("missing run export in %q", out)
	}
	if !strings.Contains(out, "__ns.limit = limit;") {
		t.Errorf("missing limit export in %q", out)
	}
	if strings.Contains(out, "export ") {
		t.Errorf("export keyword should be stripped: %q", out)
	}
}

func TestLowerModule_ExportDefault(t *testing.T) {
	out, err := lowerModule(`export default { handler: 1 };`, 1, nil)
	if err != nil {
		t.Fatalf("lowerModule: %v", err)
	}
	if !strings.Contains(out, "__ns.default = { handler: 1 };") {
		t.Errorf("output = %q", out)
	}
}

func TestLowerModule_ExportBlockWithRename(t *testing.T) {
	out, err := lowerModule("var a = 1; var b = 2;\nexport { a, b as c };", 1, nil)
	if err != nil {
		t.Fatalf("lowerModule: %v", err)
	}
	if !strings.Contains(out, "__ns.a = a;") || !strings.Contains(out, "__ns.c = b;") {
		t.Errorf("output = %q", out)
	}
}

func TestLowerModule_ReExport(t *testing.T) {
	out, err := lowerModule(`export * from "lib.js";`, 1, map[string]uint64{"lib.js": 2})
	if err != nil {
		t.Fatalf("lowerModule: %v", err)
	}
	if !strings.Contains(out, "Object.assign(__ns, __bridge.ns(2));") {
		t.Errorf("output = %q", out)
	}
}

func TestLowerModule_ImportMeta(t *testing.T) {
	out, err := lowerModule(`var url = import.meta.url;`, 7, nil)
	if err != nil {
		t.Fatalf("lowerModule: %v", err)
	}
	if !strings.Contains(out, "__bridge.importMeta(7).url") {
		t.Errorf("output = %q", out)
	}
}

func TestLowerModule_UnresolvedSpecifierFails(t *testing.T) {
	_, err := lowerModule(`import { f } from "missing.js";`, 1, nil)
	if err == nil {
		t.Fatal("unresolved specifier should fail")
	}
	if !strings.Contains(err.Error(), `"missing.js"`) {
		t.Errorf("error %q should name the specifier", err)
	}
}

func TestExportPairs(t *testing.T) {
	pairs := exportPairs("a, b as c,  d ")
	want := []exportPair{{"a", "a"}, {"b", "c"}, {"d", "d"}}
	if len(pairs) != len(want) {
		t.Fatalf("pairs = %v, want %v", pairs, want)
	}
	for i, w := range want {
		if pairs[i] != w {
			t.Errorf("pair %d = %v, want %v", i, pairs[i], w)
		}
	}
}

func TestInstantiateModule_EvaluatesNamespaceIIFE(t *testing.T) {
	ctx, rt := newTestContext(t, nil)

	lib, err := ctx.RegisterModule("lib.js", false, "export function f() { return 1; }")
	if err != nil {
		t.Fatalf("RegisterModule lib: %v", err)
	}
	main, err := ctx.RegisterModule("main.js", true, `import { f } from "lib.js"; f();`)
	if err != nil {
		t.Fatalf("RegisterModule main: %v", err)
	}

	ctx.SetResolveFunc(func(spec string, _ uint64) uint64 {
		if spec == "lib.js" {
			return lib.ID
		}
		return 0
	})

	if err := ctx.InstantiateModule(lib.ID); err != nil {
		t.Fatalf("instantiate lib: %v", err)
	}
	if err := ctx.InstantiateModule(main.ID); err != nil {
		t.Fatalf("instantiate main: %v", err)
	}

	if !rt.evaledContaining("__bridge.modules[1] = { ns: __ns };") {
		t.Error("lib namespace was not published")
	}
	if !rt.evaledContaining("__bridge.modules[2] = { ns: __ns };") {
		t.Error("main namespace was not published")
	}
}

func TestInstantiateModule_WithoutResolverFails(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	info, _ := ctx.RegisterModule("main.js", true, "var x = 1;")
	if err := ctx.InstantiateModule(info.ID); err == nil {
		t.Error("instantiation without a resolve callback should fail")
	}
}

func TestModuleMeta(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	info, _ := ctx.RegisterModule("main.js", true, "")

	url, main, err := ctx.ModuleMeta(info.ID)
	if err != nil {
		t.Fatalf("ModuleMeta: %v", err)
	}
	if url != "main.js" || !main {
		t.Errorf("meta = %q main=%v, want main.js main=true", url, main)
	}

	if _, _, err := ctx.ModuleMeta(999); err == nil {
		t.Error("unknown module id should fail")
	}
}
