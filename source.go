package pagecache

// Source is the capability set the cache requires of a data source. Any
// file-like object -- disk, memory, network -- can back a descriptor as
// long as it satisfies this interface; the storage driver itself is
// explicitly out of scope for this package (see cmd/pagecachedemo for
// an *os.File-backed example).
type Source interface {
	// ReadAt reads into p starting at off, returning a short count only
	// at or past Size(). The engine does not check this: whatever count
	// a Load gets back becomes that page's used size.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes p at off, returning CantWrite-shaped errors on
	// failure. It must write all of p or return an error.
	WriteAt(p []byte, off int64) error

	// Size returns the source's current length in bytes.
	Size() (int64, error)

	// Close releases the source. The descriptor is retained in case it
	// still has unflushed state, so a later Reopen can resume it.
	Close() error

	// Reopen re-opens the same underlying resource with the given
	// mode, returning a fresh Source (which may be the same value).
	Reopen(mode int) (Source, error)
}

// Mode values passed to Open and Source.Reopen. Sources are free to
// interpret additional bits. The engine stores the mode and hands it
// to Source.Reopen; it does not itself refuse writes on a descriptor
// opened without ModeWrite.
const (
	ModeRead      = 1 << iota // O_RDONLY-equivalent
	ModeWrite                 // permit WriteAt
	ModeReadWrite = ModeRead | ModeWrite
)
