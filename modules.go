package bridge

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrUnknownModule is returned when a module id has no registry entry.
var ErrUnknownModule = errors.New("unknown module")

// reImportFrom matches static imports with a source: import x from "m",
// import { a, b } from "m", import * as ns from "m".
var reImportFrom = regexp.MustCompile(`(?m)^\s*import\s+[^'"]+?\s+from\s+['"]([^'"]+)['"]`)

// reImportBare matches side-effect imports: import "m".
var reImportBare = regexp.MustCompile(`(?m)^\s*import\s+['"]([^'"]+)['"]`)

// reExportFrom matches re-exports: export { a } from "m", export * from "m".
var reExportFrom = regexp.MustCompile(`(?m)^\s*export\s+(?:\*|\{[^}]*\})\s+from\s+['"]([^'"]+)['"]`)

// parseModuleRequests extracts the static import specifiers of an ES
// module source, in order of first appearance, without duplicates.
func parseModuleRequests(source string) []string {
	var reqs []string
	seen := make(map[string]bool)
	for _, re := range []*regexp.Regexp{reImportFrom, reImportBare, reExportFrom} {
		for _, m := range re.FindAllStringSubmatch(source, -1) {
			if spec := m[1]; !seen[spec] {
				seen[spec] = true
				reqs = append(reqs, spec)
			}
		}
	}
	return reqs
}

// moduleRegistry is the append-only per-context registry of modules.
// Entries are looked up by identity id during linking and import.meta
// population and are never removed for the lifetime of the context.
type moduleRegistry struct {
	nextID uint64
	byID   map[uint64]*ModuleInfo
}

func newModuleRegistry() *moduleRegistry {
	return &moduleRegistry{
		nextID: 1,
		byID:   make(map[uint64]*ModuleInfo),
	}
}

// register records a module and its parsed static requests, returning its
// identity id. handle is engine-owned and opaque to the registry.
func (r *moduleRegistry) register(name string, main bool, source string, handle any) *ModuleInfo {
	id := r.nextID
	r.nextID++
	info := &ModuleInfo{
		ID:       id,
		Name:     name,
		Main:     main,
		Requests: parseModuleRequests(source),
		Handle:   handle,
	}
	r.byID[id] = info
	return info
}

// get returns the module registered under id.
func (r *moduleRegistry) get(id uint64) (*ModuleInfo, bool) {
	info, ok := r.byID[id]
	return info, ok
}

// resolve serves the engine linker's synchronous resolution of one static
// import. The specifier must appear among the referrer's recorded
// requests; the host callback then names a target module id, which must
// be registered. Both failure modes name specifier and referrer.
func (r *moduleRegistry) resolve(specifier string, referrerID uint64, fn ResolveFunc) (*ModuleInfo, error) {
	referrer, ok := r.byID[referrerID]
	if !ok {
		return nil, fmt.Errorf("%w: referrer id %d", ErrUnknownModule, referrerID)
	}
	for _, req := range referrer.Requests {
		if req != specifier {
			continue
		}
		targetID := fn(specifier, referrerID)
		target, ok := r.byID[targetID]
		if !ok {
			return nil, fmt.Errorf("cannot resolve module %q from %q", specifier, referrer.Name)
		}
		return target, nil
	}
	return nil, fmt.Errorf("specifier %q is not a request of module %q", specifier, referrer.Name)
}

// link resolves every recorded request of the module up front, so linking
// completes synchronously with no suspension.
func (r *moduleRegistry) link(id uint64, fn ResolveFunc) ([]*ModuleInfo, error) {
	mod, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownModule, id)
	}
	resolved := make([]*ModuleInfo, 0, len(mod.Requests))
	for _, req := range mod.Requests {
		target, err := r.resolve(req, id, fn)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, target)
	}
	return resolved, nil
}
