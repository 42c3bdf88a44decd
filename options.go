package smartmedia

import (
	"os"
	"time"

	"github.com/apex/log"
)

// Options configures a Manager. Every Manager owns its copy; nothing here is
// shared between instances.
type Options struct {
	// Resolver maps media ids to metadata. Required.
	Resolver MetadataResolver

	// Fetcher performs the network transfers. Required.
	Fetcher RangeFetcher

	// Muxer merges video and audio for resources that need it.
	Muxer Muxer

	// Logger receives engine logs. nil disables logging.
	Logger log.Interface

	// Metrics receives engine events. nil disables metrics.
	Metrics Metrics

	// BackMargin and ForwardMargin size the prefetch window around a read,
	// as multiples of the requested length. Defaults are 8 and 16; zero
	// means the default and a negative value means no margin on that side.
	BackMargin    int64
	ForwardMargin int64

	// MaxConcurrent is the maximum number of fetch units transferring at
	// once across all resources. Default is 10
	MaxConcurrent int

	// MaxResources is how many resources are kept before the least recently
	// used one is released. Default is 16
	MaxResources int

	// ChunkSize is the copy granularity of a fetch unit; cancellation is
	// checked between chunks. Default is 64kB
	ChunkSize int

	// PageSize is the memory page size of the backing store. Default is 64kB
	PageSize int64

	// SpillThreshold is the resident size past which a backing store moves
	// to a temporary file. Default is 32MB, negative disables spilling.
	SpillThreshold int64

	// TmpDir is where spill files are created, os.TempDir() by default.
	TmpDir string

	// ProvisionalSize is reported for a resource until its real size is
	// known. Default is 4096
	ProvisionalSize int64

	// JoinTimeout bounds how long a teardown waits for fetch units.
	// Default is 5s
	JoinTimeout time.Duration

	// Preload materializes combined sources fully on open instead of
	// streaming them.
	Preload bool
}

// DefaultOptions returns Options with every tunable at its default.
func DefaultOptions() Options {
	o := Options{}
	o.applyDefaults()
	return o
}

func (o *Options) applyDefaults() {
	if o.BackMargin == 0 {
		o.BackMargin = 8
	}
	if o.ForwardMargin == 0 {
		o.ForwardMargin = 16
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 10
	}
	if o.MaxResources <= 0 {
		o.MaxResources = 16
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 64 * 1024
	}
	if o.PageSize <= 0 {
		o.PageSize = 64 * 1024
	}
	if o.SpillThreshold == 0 {
		o.SpillThreshold = 32 * 1024 * 1024
	}
	if o.TmpDir == "" {
		o.TmpDir = os.TempDir()
	}
	if o.ProvisionalSize <= 0 {
		o.ProvisionalSize = 4096
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 5 * time.Second
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
}
