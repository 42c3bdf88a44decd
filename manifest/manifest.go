// Package manifest resolves media ids from a YAML catalog. An entry lists
// the sources of one media object and, optionally, its size:
//
//	media:
//	  trailer:
//	    size: 5242880
//	    sources:
//	      - role: combined
//	        url: https://cdn.example.com/trailer.mp4
//	  concert:
//	    sources:
//	      - role: video
//	        url: https://cdn.example.com/concert-video.mp4
//	        requires_merge: true
//	      - role: audio
//	        url: https://cdn.example.com/concert-audio.m4a
package manifest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/KarpelesLab/smartmedia"
)

// ErrUnknownMedia is returned for ids missing from the catalog.
var ErrUnknownMedia = errors.New("unknown media id")

// Entry describes one media object.
type Entry struct {
	Size    int64               `yaml:"size,omitempty"`
	Sources []smartmedia.Source `yaml:"sources"`
}

// Catalog is the file format.
type Catalog struct {
	Media map[string]Entry `yaml:"media"`
}

// Sizer finds the size of a single source when the catalog omits it.
type Sizer interface {
	Size(ctx context.Context, url string) (int64, error)
}

// Resolver implements smartmedia.MetadataResolver on top of a catalog
// file.
type Resolver struct {
	path  string
	sizer Sizer

	// Logger receives reload logs. nil disables logging.
	Logger log.Interface

	lk      sync.RWMutex
	entries map[string]Entry
}

// Load reads the catalog at path. sizer may be nil.
func Load(path string, sizer Sizer) (*Resolver, error) {
	r := &Resolver{path: path, sizer: sizer}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Parse decodes a catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}
	for id, e := range c.Media {
		if len(e.Sources) == 0 {
			return nil, errors.Errorf("media %q has no sources", id)
		}
		for _, src := range e.Sources {
			if src.URL == "" {
				return nil, errors.Errorf("media %q has a source without url", id)
			}
		}
	}
	return &c, nil
}

// Reload reads the catalog file again. On error the previous entries stay
// in effect.
func (r *Resolver) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return errors.Wrapf(err, "failed to read catalog %s", r.path)
	}
	c, err := Parse(data)
	if err != nil {
		return errors.Wrapf(err, "catalog %s", r.path)
	}

	r.lk.Lock()
	r.entries = c.Media
	r.lk.Unlock()
	return nil
}

// IDs returns the known media ids in order.
func (r *Resolver) IDs() []string {
	r.lk.RLock()
	defer r.lk.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve returns the metadata of id. A missing size is looked up through
// the Sizer when the entry has a single source.
func (r *Resolver) Resolve(ctx context.Context, id string) (*smartmedia.Metadata, error) {
	r.lk.RLock()
	e, ok := r.entries[id]
	r.lk.RUnlock()

	if !ok {
		return nil, errors.Wrap(ErrUnknownMedia, id)
	}

	meta := &smartmedia.Metadata{
		Size:    e.Size,
		Sources: append([]smartmedia.Source(nil), e.Sources...),
	}

	if meta.Size <= 0 && len(meta.Sources) == 1 && !meta.Sources[0].RequiresMerge && r.sizer != nil {
		size, err := r.sizer.Size(ctx, meta.Sources[0].URL)
		if err != nil {
			return nil, err
		}
		meta.Size = size
	}
	return meta, nil
}

func (r *Resolver) logger() log.Interface {
	if r.Logger == nil {
		return log.Log
	}
	return r.Logger
}

// Watch reloads the catalog whenever its file changes, until ctx is done.
// The directory is watched so that editors replacing the file are seen.
func (r *Resolver) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return errors.Wrap(err, "failed to watch catalog")
	}

	target := filepath.Clean(r.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger().WithError(err).Warn("catalog reload failed")
				continue
			}
			r.logger().WithField("path", r.path).Info("catalog reloaded")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger().WithError(err).Warn("catalog watcher error")
		}
	}
}

var _ smartmedia.MetadataResolver = (*Resolver)(nil)
