// Package arena implements the single, up-front-sized, 64-byte-aligned
// allocation backing a decoded module (spec §4.2). The scanner computes
// every sub-buffer's exact byte size before the loader writes a single
// byte, so the hot paths (validator, executor) index into contiguous
// storage with no per-item allocation or resizing, and the whole module
// is freed in one call.
package arena

const alignment = 64

// Arena is a bump allocator over one backing slice. Every slice handed
// out by Bytes is a borrowed view into that one allocation, never an
// independently owned buffer, so Destroy alone reclaims everything.
type Arena struct {
	buf    []byte
	offset int
}

// New reserves size bytes (rounded up to the alignment boundary) up
// front. size must already account for per-field alignment padding; the
// caller (the loader, driven by the scanner's summary) computes it.
func New(size int) *Arena {
	return &Arena{buf: make([]byte, align(size))}
}

func align(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// Bytes carves out and returns a zeroed, 64-byte-aligned window of n
// bytes from the arena. It panics on overrun: the scanner's summary is
// the single source of truth for total size, so an overrun here means
// the loader and scanner disagree, which is a programming error, not a
// malformed-input condition.
func (a *Arena) Bytes(n int) []byte {
	start := align(a.offset)
	end := start + n
	if end > len(a.buf) {
		panic("arena: loader requested more bytes than the scanner's summary sized")
	}
	a.offset = end
	return a.buf[start:end]
}

// Used reports how many bytes of the reservation have been carved out,
// for tests that check the scanner's sizing is exact.
func (a *Arena) Used() int { return a.offset }

// Cap reports the total reserved size.
func (a *Arena) Cap() int { return len(a.buf) }

// Destroy drops the arena's only reference to its backing slice. Every
// slice previously returned by Bytes becomes invalid to use afterwards.
func (a *Arena) Destroy() {
	a.buf = nil
	a.offset = 0
}
