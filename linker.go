package bridge

import (
	"fmt"
	"regexp"
	"strings"
)

// Import rewriting patterns. Instantiation lowers ES module syntax onto
// the bridge's module table, one statement shape at a time.
var (
	reLinkImportNS      = regexp.MustCompile(`(?m)^(\s*)import\s+\*\s+as\s+(\w+)\s+from\s+['"]([^'"]+)['"];?`)
	reLinkImportDefNam  = regexp.MustCompile(`(?m)^(\s*)import\s+(\w+)\s*,\s*\{([^}]*)\}\s+from\s+['"]([^'"]+)['"];?`)
	reLinkImportNamed   = regexp.MustCompile(`(?m)^(\s*)import\s+\{([^}]*)\}\s+from\s+['"]([^'"]+)['"];?`)
	reLinkImportDefault = regexp.MustCompile(`(?m)^(\s*)import\s+(\w+)\s+from\s+['"]([^'"]+)['"];?`)
	reLinkImportBare    = regexp.MustCompile(`(?m)^(\s*)import\s+['"]([^'"]+)['"];?`)

	reLinkExportStarFrom  = regexp.MustCompile(`(?m)^(\s*)export\s+\*\s+from\s+['"]([^'"]+)['"];?`)
	reLinkExportBlockFrom = regexp.MustCompile(`(?m)^(\s*)export\s+\{([^}]*)\}\s+from\s+['"]([^'"]+)['"];?`)
	reLinkExportBlock     = regexp.MustCompile(`(?m)^(\s*)export\s+\{([^}]*)\};?`)
	reLinkExportDefault   = regexp.MustCompile(`(?m)^(\s*)export\s+default\s+`)
	reLinkExportInline    = regexp.MustCompile(`(?m)^(\s*)export\s+(async\s+function|function|const|let|var|class)\s+(\w+)`)
)

// RegisterModule records a module with the context. The source is kept on
// the registry entry until instantiation; static requests are parsed here
// so the linker can resolve them later.
func (c *ExecutionContext) RegisterModule(name string, main bool, source string) (*ModuleInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	if name == "" {
		return nil, fmt.Errorf("empty module name")
	}
	return c.modules.register(name, main, source, source), nil
}

// InstantiateModule links and evaluates a registered module. Every static
// request is resolved synchronously through the host resolve callback
// before evaluation begins; resolution failures name both specifier and
// referrer. Dependencies must already be instantiated.
func (c *ExecutionContext) InstantiateModule(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	if c.resolveFn == nil {
		return fmt.Errorf("no resolve callback installed")
	}
	info, ok := c.modules.get(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownModule, id)
	}
	source, ok := info.Handle.(string)
	if !ok {
		return fmt.Errorf("module %q has no source handle", info.Name)
	}

	resolved, err := c.modules.link(id, c.resolveFn)
	if err != nil {
		return err
	}
	targets := make(map[string]uint64, len(info.Requests))
	for i, req := range info.Requests {
		targets[req] = resolved[i].ID
	}

	body, err := lowerModule(source, id, targets)
	if err != nil {
		return fmt.Errorf("lowering module %q: %w", info.Name, err)
	}
	js := fmt.Sprintf("(function() {\nvar __ns = {};\n%s\n__bridge.modules[%d] = { ns: __ns };\n})();", body, id)
	if err := c.rt.Eval(js); err != nil {
		return fmt.Errorf("instantiating module %q: %w", info.Name, err)
	}
	return nil
}

// ModuleMeta answers the metadata query made available to a module during
// instantiation: its url and whether it is the main module.
func (c *ExecutionContext) ModuleMeta(id uint64) (url string, main bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.modules.get(id)
	if !ok {
		return "", false, fmt.Errorf("%w: id %d", ErrUnknownModule, id)
	}
	return info.Name, info.Main, nil
}

// lowerModule rewrites ES module syntax into plain statements over the
// bridge module table. targets maps each static request specifier to its
// resolved module id.
func lowerModule(source string, id uint64, targets map[string]uint64) (string, error) {
	nsExpr := func(spec string) (string, error) {
		target, ok := targets[spec]
		if !ok {
			return "", fmt.Errorf("unresolved specifier %q", spec)
		}
		return fmt.Sprintf("__bridge.ns(%d)", target), nil
	}
	var rewriteErr error
	sub := func(re *regexp.Regexp, f func(m []string) (string, error)) {
		source = re.ReplaceAllStringFunc(source, func(match string) string {
			if rewriteErr != nil {
				return match
			}
			out, err := f(re.FindStringSubmatch(match))
			if err != nil {
				rewriteErr = err
				return match
			}
			return out
		})
	}

	sub(reLinkImportNS, func(m []string) (string, error) {
		ns, err := nsExpr(m[3])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%svar %s = %s;", m[1], m[2], ns), nil
	})
	sub(reLinkImportDefNam, func(m []string) (string, error) {
		ns, err := nsExpr(m[4])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%svar %s = %s.default; var {%s} = %s;", m[1], m[2], ns, destructureList(m[3]), ns), nil
	})
	sub(reLinkImportNamed, func(m []string) (string, error) {
		ns, err := nsExpr(m[3])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%svar {%s} = %s;", m[1], destructureList(m[2]), ns), nil
	})
	sub(reLinkImportDefault, func(m []string) (string, error) {
		ns, err := nsExpr(m[3])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%svar %s = %s.default;", m[1], m[2], ns), nil
	})
	sub(reLinkImportBare, func(m []string) (string, error) {
		ns, err := nsExpr(m[2])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s%s;", m[1], ns), nil
	})

	sub(reLinkExportStarFrom, func(m []string) (string, error) {
		ns, err := nsExpr(m[2])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%sObject.assign(__ns, %s);", m[1], ns), nil
	})
	sub(reLinkExportBlockFrom, func(m []string) (string, error) {
		ns, err := nsExpr(m[3])
		if err != nil {
			return "", err
		}
		var stmts []string
		for _, e := range exportPairs(m[2]) {
			stmts = append(stmts, fmt.Sprintf("__ns.%s = %s.%s;", e.exported, ns, e.local))
		}
		return m[1] + strings.Join(stmts, " "), nil
	})
	sub(reLinkExportBlock, func(m []string) (string, error) {
		var stmts []string
		for _, e := range exportPairs(m[2]) {
			stmts = append(stmts, fmt.Sprintf("__ns.%s = %s;", e.exported, e.local))
		}
		return m[1] + strings.Join(stmts, " "), nil
	})
	if rewriteErr != nil {
		return "", rewriteErr
	}

	source = reLinkExportDefault.ReplaceAllString(source, "${1}__ns.default = ")

	var inlineNames []string
	source = reLinkExportInline.ReplaceAllStringFunc(source, func(match string) string {
		m := reLinkExportInline.FindStringSubmatch(match)
		inlineNames = append(inlineNames, m[3])
		return m[1] + m[2] + " " + m[3]
	})
	for _, name := range inlineNames {
		source += fmt.Sprintf("\n__ns.%s = %s;", name, name)
	}

	source = strings.ReplaceAll(source, "import.meta", fmt.Sprintf("__bridge.importMeta(%d)", id))
	return source, nil
}

// exportPair is one entry of an export { ... } block.
type exportPair struct {
	local    string
	exported string
}

// exportPairs parses "a, b as c" into local/exported name pairs.
func exportPairs(block string) []exportPair {
	var pairs []exportPair
	for _, entry := range strings.Split(block, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Fields(entry)
		switch {
		case len(parts) == 3 && parts[1] == "as":
			pairs = append(pairs, exportPair{local: parts[0], exported: parts[2]})
		case len(parts) == 1:
			pairs = append(pairs, exportPair{local: parts[0], exported: parts[0]})
		}
	}
	return pairs
}

// destructureList converts "a, b as c" into JS destructuring "a, b: c".
func destructureList(block string) string {
	var out []string
	for _, e := range exportPairs(block) {
		if e.local == e.exported {
			out = append(out, e.local)
		} else {
			out = append(out, e.local+": "+e.exported)
		}
	}
	return strings.Join(out, ", ")
}
