package pagecache

// Handle is the opaque client-facing reference to an open descriptor.
// It is a generational index (in place of a
// freelist-of-pointers): idx names a slot in the engine's descriptor
// table, gen guards against a stale Handle from a permanently-closed
// slot resolving to whatever descriptor was later allocated there.
type Handle struct {
	idx int
	gen uint32
}
