package bridge

import "log"

// dynImportEntry tracks one in-flight "load module by specifier" request
// from request time until the host delivers its single completion.
type dynImportEntry struct {
	id        uint64
	specifier string
	referrer  string
}

// dynamicImports assigns strictly increasing ids to in-flight dynamic
// import requests and correlates host completions back to the deferred
// value the guest is awaiting. Ids are never reused within a context.
type dynamicImports struct {
	nextID   uint64
	inflight map[uint64]*dynImportEntry
}

func newDynamicImports() *dynamicImports {
	return &dynamicImports{
		nextID:   firstImportID,
		inflight: make(map[uint64]*dynImportEntry),
	}
}

// request allocates the next import id and records the entry.
func (d *dynamicImports) request(specifier, referrer string) *dynImportEntry {
	id := d.nextID
	d.nextID++
	e := &dynImportEntry{id: id, specifier: specifier, referrer: referrer}
	d.inflight[id] = e
	return e
}

// consume removes and returns the entry for id. A completion for an
// unknown or already-consumed id is a host contract violation; it is
// logged and reported as absent, never a crash.
func (d *dynamicImports) consume(id uint64) (*dynImportEntry, bool) {
	e, ok := d.inflight[id]
	if !ok {
		log.Printf("bridge: ignoring completion for unknown dynamic import id %d", id)
		return nil, false
	}
	delete(d.inflight, id)
	return e, true
}

// drop discards all in-flight entries. Used at context teardown; the
// guest-side resolver handles go down with the engine instance.
func (d *dynamicImports) drop() int {
	n := len(d.inflight)
	d.inflight = make(map[uint64]*dynImportEntry)
	return n
}

func (d *dynamicImports) pending() int { return len(d.inflight) }
