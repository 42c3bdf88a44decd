package smartmedia

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func randomData(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

// fakeResolver serves fixed metadata and counts calls.
type fakeResolver struct {
	mu    sync.Mutex
	meta  map[string]*Metadata
	err   error
	gate  chan struct{} // when set, Resolve blocks until it is closed
	calls atomic.Int32
}

func (f *fakeResolver) Resolve(ctx context.Context, id string) (*Metadata, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.meta[id]
	if !ok {
		return nil, errors.Errorf("no such media %s", id)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeResolver) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// fakeFetcher serves in-memory objects and records every range request.
type fakeFetcher struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   []ByteRange
	alls    int

	gate  chan struct{} // when set, fetches block until it is closed
	err   error         // returned by every fetch while set
	short int64         // when > 0, ranges are cut to this many bytes
	empty bool          // when set, ranges come back empty
	fixed ByteRange     // when valid, every range request is answered with it
}

func (f *fakeFetcher) FetchRange(ctx context.Context, url string, r ByteRange) (io.ReadCloser, ByteRange, error) {
	f.mu.Lock()
	f.calls = append(f.calls, r)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ByteRange{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, ByteRange{}, f.err
	}
	if f.empty {
		return io.NopCloser(bytes.NewReader(nil)), ByteRange{}, nil
	}

	data := f.objects[url]
	if f.fixed.Valid() {
		return io.NopCloser(bytes.NewReader(data[f.fixed.Start:f.fixed.End])), f.fixed, nil
	}
	end := min(r.End, int64(len(data)))
	if f.short > 0 {
		end = min(end, r.Start+f.short)
	}
	return io.NopCloser(bytes.NewReader(data[r.Start:end])), ByteRange{Start: r.Start, End: end}, nil
}

func (f *fakeFetcher) FetchAll(ctx context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.alls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[url]
	if !ok {
		return nil, errors.Errorf("no such url %s", url)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFetcher) rangeCalls() []ByteRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ByteRange(nil), f.calls...)
}

func (f *fakeFetcher) allCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alls
}

func (f *fakeFetcher) set(fn func(f *fakeFetcher)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

// fakeMuxer concatenates video and audio.
type fakeMuxer struct {
	mu    sync.Mutex
	err   error
	calls atomic.Int32
}

func (f *fakeMuxer) Merge(_ context.Context, video, audio []byte) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append(append([]byte(nil), video...), audio...), nil
}

func (f *fakeMuxer) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// fixture is a Manager over fakes.
type fixture struct {
	m        *Manager
	resolver *fakeResolver
	fetcher  *fakeFetcher
	muxer    *fakeMuxer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	fx := &fixture{
		resolver: &fakeResolver{meta: make(map[string]*Metadata)},
		fetcher:  &fakeFetcher{objects: make(map[string][]byte)},
		muxer:    &fakeMuxer{},
	}
	opts.Resolver = fx.resolver
	opts.Fetcher = fx.fetcher
	if opts.Muxer == nil {
		opts.Muxer = fx.muxer
	}
	if opts.TmpDir == "" {
		opts.TmpDir = t.TempDir()
	}

	m, err := NewManager(opts)
	require.NoError(t, err)
	fx.m = m

	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return fx
}

// addStream registers a single combined source of known size.
func (fx *fixture) addStream(id string, data []byte) {
	url := "http://media.test/" + id
	fx.fetcher.objects[url] = data
	fx.resolver.meta[id] = &Metadata{
		Size:    int64(len(data)),
		Sources: []Source{{Role: RoleCombined, URL: url}},
	}
}

// addSplit registers separate video and audio sources that must be merged.
func (fx *fixture) addSplit(id string, video, audio []byte) {
	vurl := "http://media.test/" + id + "/video"
	aurl := "http://media.test/" + id + "/audio"
	fx.fetcher.objects[vurl] = video
	fx.fetcher.objects[aurl] = audio
	fx.resolver.meta[id] = &Metadata{
		Sources: []Source{
			{Role: RoleVideo, URL: vurl, RequiresMerge: true},
			{Role: RoleAudio, URL: aurl},
		},
	}
}
