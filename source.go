package smartmedia

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Role tells what a source URL carries.
type Role string

const (
	RoleCombined Role = "combined"
	RoleVideo    Role = "video"
	RoleAudio    Role = "audio"
)

// Source is one downloadable stream of a media object.
type Source struct {
	Role          Role   `yaml:"role" json:"role"`
	URL           string `yaml:"url" json:"url"`
	RequiresMerge bool   `yaml:"requires_merge,omitempty" json:"requires_merge,omitempty"`
}

// Metadata is what a MetadataResolver knows about a media id. A Size of 0
// or less means unknown until the object is materialized.
type Metadata struct {
	Size    int64
	Sources []Source
}

// MetadataResolver maps a media id to its size and source URLs.
type MetadataResolver interface {
	Resolve(ctx context.Context, id string) (*Metadata, error)
}

// RangeFetcher transfers data from a source URL.
//
// FetchRange returns a body for r together with the range the server
// actually delivered, which may differ from r. FetchAll returns the whole
// object.
type RangeFetcher interface {
	FetchRange(ctx context.Context, url string, r ByteRange) (io.ReadCloser, ByteRange, error)
	FetchAll(ctx context.Context, url string) (io.ReadCloser, error)
}

// Muxer combines separate video and audio streams into one container.
type Muxer interface {
	Merge(ctx context.Context, video, audio []byte) ([]byte, error)
}

// Metrics receives engine events. See package metrics for a Prometheus
// implementation.
type Metrics interface {
	ObserveFetch(bytes int64, d time.Duration, err error)
	ObserveRead(bytes int64, d time.Duration, blocked bool)
	ObserveMerge(d time.Duration, err error)
	SetResources(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveFetch(int64, time.Duration, error) {}
func (nopMetrics) ObserveRead(int64, time.Duration, bool)   {}
func (nopMetrics) ObserveMerge(time.Duration, error)        {}
func (nopMetrics) SetResources(int)                         {}

// Mode is the fetch strategy of a resource.
type Mode int

const (
	// ModeStream fetches byte ranges on demand.
	ModeStream Mode = iota
	// ModePreload materializes the whole object before serving any byte,
	// merging separate video and audio streams when needed.
	ModePreload
)

func (m Mode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModePreload:
		return "preload"
	default:
		return "unknown"
	}
}

// plan is the outcome of mode selection for a resource.
type plan struct {
	mode     Mode
	combined Source // stream or plain preload
	video    Source // merge only
	audio    Source // merge only
	merge    bool
}

// selectPlan picks the fetch strategy for meta. Merging is needed when a
// source says so, or when only separate video and audio streams exist.
func selectPlan(meta *Metadata, preload bool) (plan, error) {
	var p plan
	var haveCombined, haveVideo, haveAudio, needMerge bool

	for _, src := range meta.Sources {
		switch src.Role {
		case RoleVideo:
			if !haveVideo {
				p.video, haveVideo = src, true
			}
		case RoleAudio:
			if !haveAudio {
				p.audio, haveAudio = src, true
			}
		case RoleCombined, "":
			if !haveCombined {
				p.combined, haveCombined = src, true
			}
		default:
			return p, errors.Errorf("unknown source role %q", src.Role)
		}
		if src.RequiresMerge {
			needMerge = true
		}
	}

	if needMerge || (!haveCombined && haveVideo && haveAudio) {
		if !haveVideo || !haveAudio {
			return p, errors.New("merge requires both a video and an audio source")
		}
		p.mode = ModePreload
		p.merge = true
		return p, nil
	}

	if !haveCombined {
		// a lone video or audio stream is served as is
		switch {
		case haveVideo:
			p.combined = p.video
		case haveAudio:
			p.combined = p.audio
		default:
			return p, errors.New("no sources")
		}
	}

	p.mode = ModeStream
	if preload || meta.Size <= 0 {
		// without a size there is nothing to clamp reads against
		p.mode = ModePreload
	}
	return p, nil
}
