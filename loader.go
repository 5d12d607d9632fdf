package bridge

import "fmt"

// FetchFunc retrieves raw module source for a specifier. Provided by the
// host; the bridge never does I/O of its own for module loading.
type FetchFunc func(specifier string) (string, error)

// LoadModule fetches, transforms, and registers a module, consulting the
// context's cache when one is configured. Cached entries hold the
// already-transformed source. This is the host side of the dynamic-import
// loop: on success the caller typically instantiates the module and
// completes the import with the returned info's id.
func (c *ExecutionContext) LoadModule(specifier string, main bool, fetch FetchFunc) (*ModuleInfo, error) {
	if fetch == nil {
		return nil, fmt.Errorf("nil fetch function")
	}

	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()

	if cache != nil {
		if source, ok, err := cache.Get(specifier); err != nil {
			return nil, err
		} else if ok {
			return c.RegisterModule(specifier, main, source)
		}
	}

	raw, err := fetch(specifier)
	if err != nil {
		return nil, fmt.Errorf("fetching module %q: %w", specifier, err)
	}
	source, err := TransformModuleSource(specifier, raw)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		if err := cache.Put(specifier, source); err != nil {
			return nil, err
		}
	}
	return c.RegisterModule(specifier, main, source)
}
