package bridge

// BufferHandle exposes a response buffer to the dispatch path. Size is the
// logical number of bytes written; the backing allocation may be the larger
// shared slot.
type BufferHandle struct {
	data   []byte
	size   int
	shared bool
}

// Bytes returns the written portion of the buffer. For a shared handle the
// contents are valid only until the next dispatch call produces a small
// response.
func (b *BufferHandle) Bytes() []byte { return b.data[:b.size] }

// Len returns the logical size of the response.
func (b *BufferHandle) Len() int { return b.size }

// Shared reports whether the handle aliases the context's shared slot.
func (b *BufferHandle) Shared() bool { return b.shared }

// responseArena manages the single reusable response slot for small
// synchronous results. Responses above the threshold get a fresh
// allocation of exactly the requested size; everything else reuses one
// lazily-created slot, overwriting its previous contents. The guest must
// drain a shared response before the next dispatch call.
type responseArena struct {
	threshold int
	slot      []byte
}

func newResponseArena(threshold int) *responseArena {
	return &responseArena{threshold: threshold}
}

// acquire returns a handle sized for exactly size bytes. The returned
// handle's contents are undefined until written.
func (a *responseArena) acquire(size int) *BufferHandle {
	if size > a.threshold {
		return &BufferHandle{data: make([]byte, size), size: size}
	}
	if a.slot == nil {
		a.slot = make([]byte, a.threshold)
	}
	return &BufferHandle{data: a.slot, size: size, shared: true}
}

// place copies buf into an acquired handle of matching size.
func (a *responseArena) place(buf []byte) *BufferHandle {
	h := a.acquire(len(buf))
	copy(h.data, buf)
	return h
}
