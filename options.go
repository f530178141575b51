package pagecache

import (
	"github.com/sirupsen/logrus"

	"github.com/coldstore/pagecache/pageid"
	"github.com/coldstore/pagecache/policy"
)

// PageSize is the fixed size of a page.
const PageSize = pageid.PageSize

// LenUnspecified is a sentinel "unknown length" value. The engine
// itself never stores it: Open takes a descriptor's size from the
// source's Size() and fails if that query fails.
const LenUnspecified = int64(-1)

// SeekReadAhead is the default ReadAheadBurst. Seek itself does not
// prefetch; only Open pre-warms the cache through check_cache.
const SeekReadAhead = 8

// Options configures a new Engine, mirroring the small Options-struct
// idiom the teacher uses for its own cache layers
// (catfs/mio/pagecache/mdcache.Options).
type Options struct {
	// CacheSize is the number of PageSize frames in the pool. Defaults
	// to 16 (CACHE_SIZE = PAGE_SIZE * 16) if zero.
	CacheSize int

	// Thresholds are the three soft per-collection eviction pressure
	// thresholds. Defaults to 8 pages each if zero.
	Thresholds policy.Thresholds

	// OpQueueCapacity bounds the number of outstanding control
	// operations. Defaults to 4 * CacheSize if zero.
	OpQueueCapacity int

	// ReadAheadBurst is both the burst size and the per-second refill
	// rate of the engine-wide read-ahead rate limiter: check_cache
	// spends one token per page it prefetches and stops when none is
	// left, so the tokens are shared by every call, not reset per call.
	// Defaults to SeekReadAhead if zero.
	ReadAheadBurst int

	// Logger receives engine/ioworker diagnostics. Defaults to
	// a fresh logrus.Logger with pclog's formatter if nil, so a host
	// application can share its own logger (and level) with the
	// engine instead of getting a second, independently configured
	// one.
	Logger *logrus.Logger
}

func (o Options) withDefaults() Options {
	if o.CacheSize == 0 {
		o.CacheSize = 16
	}
	if o.Thresholds == (policy.Thresholds{}) {
		o.Thresholds = policy.DefaultThresholds()
	}
	if o.OpQueueCapacity == 0 {
		o.OpQueueCapacity = 4 * o.CacheSize
	}
	if o.ReadAheadBurst == 0 {
		o.ReadAheadBurst = SeekReadAhead
	}
	return o
}
