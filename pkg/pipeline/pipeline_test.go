package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songlift/songlift/pkg/assetstore"
	"github.com/songlift/songlift/pkg/fetch"
	"github.com/songlift/songlift/pkg/ledger"
	"github.com/songlift/songlift/pkg/tags"
	"github.com/songlift/songlift/pkg/worklist"
)

type fakeFetcher struct {
	mu        sync.Mutex
	downloads int
	failURLs  map[string]bool
	withCover bool
	subLangs  []string
}

func (f *fakeFetcher) Probe(ctx context.Context, url string) (*fetch.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failURLs[url] {
		return nil, fmt.Errorf("probe %s: unavailable", url)
	}
	info := &fetch.Info{Title: "probed", SubtitleLangs: f.subLangs}
	if f.withCover {
		info.Thumbnail = "https://thumbs.example/t.jpg"
	}
	return info, nil
}

func (f *fakeFetcher) Download(ctx context.Context, url, destDir, safeTitle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failURLs[url] {
		return fmt.Errorf("download %s: unavailable", url)
	}
	f.downloads++
	return os.WriteFile(filepath.Join(destDir, safeTitle+".mp3"), []byte("mp3"), 0o644)
}

func (f *fakeFetcher) Subtitles(ctx context.Context, url, destDir, safeTitle, lang string) (string, error) {
	return "[00:01.00] " + lang, nil
}

func (f *fakeFetcher) CoverArt(ctx context.Context, thumbnailURL, destDir, safeTitle string) (string, error) {
	if thumbnailURL == "" {
		return "", fmt.Errorf("no thumbnail URL")
	}
	path := filepath.Join(destDir, safeTitle+".jpg")
	return path, os.WriteFile(path, []byte("jpg"), 0o644)
}

func (f *fakeFetcher) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *fakeEmbedder) Embed(ctx context.Context, path string, t tags.Tags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.err
}

type fakeStore struct {
	mu      sync.Mutex
	assets  assetstore.AssetMap
	uploads int
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{assets: assetstore.AssetMap{}}
}

func (s *fakeStore) FindOrCreateRelease(ctx context.Context, tag, name string) (*assetstore.Release, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &assetstore.Release{ID: 1, Tag: tag}, nil
}

func (s *fakeStore) ListAssets(ctx context.Context, rel *assetstore.Release) (assetstore.AssetMap, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := assetstore.AssetMap{}
	for k, v := range s.assets {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) Upload(ctx context.Context, rel *assetstore.Release, name, mime string, body io.Reader, size int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	url := "https://assets.example/" + name
	s.assets[name] = url
	s.uploads++
	return url, nil
}

type fakePusher struct {
	mu     sync.Mutex
	pushes int
	calls  [][]string
}

func (p *fakePusher) Push(ctx context.Context, paths []string, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes++
	p.calls = append(p.calls, append([]string(nil), paths...))
	return nil
}

func makeItems(n int) []worklist.Item {
	items := make([]worklist.Item, n)
	for i := range items {
		items[i] = worklist.Item{
			SourceURL: fmt.Sprintf("https://example.com/watch?v=%03d", i),
			Title:     fmt.Sprintf("Song %03d", i),
		}
	}
	return items
}

type harness struct {
	fetcher  *fakeFetcher
	embedder *fakeEmbedder
	store    *fakeStore
	pusher   *fakePusher
	ledger   *ledger.Store
	pipeline *Pipeline
}

func newHarness(t *testing.T, cfg Config, mutate func(*harness)) *harness {
	t.Helper()
	dir := t.TempDir()
	led, err := ledger.Open(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)

	h := &harness{
		fetcher:  &fakeFetcher{failURLs: map[string]bool{}, withCover: true},
		embedder: &fakeEmbedder{},
		store:    newFakeStore(),
		pusher:   &fakePusher{},
		ledger:   led,
	}
	if mutate != nil {
		mutate(h)
	}
	if cfg.LibraryDir == "" {
		cfg.LibraryDir = filepath.Join(dir, "library")
	}
	h.pipeline = New(Deps{
		Fetcher:  h.fetcher,
		Embedder: h.embedder,
		Store:    h.store,
		Pusher:   h.pusher,
		Ledger:   h.ledger,
	}, cfg)
	return h
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(t, Config{Workers: 3, BatchSize: 10}, nil)
	items := makeItems(23)

	sum, err := h.pipeline.Run(context.Background(), items)
	require.NoError(t, err)

	assert.EqualValues(t, 23, sum.Items)
	assert.EqualValues(t, 23, sum.Processed)
	assert.EqualValues(t, 0, sum.Skipped)
	assert.EqualValues(t, 0, sum.Failed)
	assert.EqualValues(t, 3, sum.Cycles, "two full batches plus the trailing partial batch")

	snap := h.ledger.Snapshot()
	assert.Equal(t, 22, snap.LastIndex)
	require.Len(t, snap.Songs, 23)
	for _, e := range snap.Songs {
		require.NotNil(t, e.FileURL, "entry %q missing artifact URL", e.Title)
		assert.NotNil(t, e.CoverURL, "entry %q missing cover URL", e.Title)
		assert.True(t, e.Downloaded)
	}
	assert.Equal(t, 23, h.fetcher.downloadCount())
	// one mp3 and one jpg per item
	assert.Equal(t, 46, h.store.uploads)
	// two pushes per cycle
	assert.Equal(t, 6, h.pusher.pushes)
}

func TestRunCyclePushesLibraryThenLedger(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "songs")
	h := newHarness(t, Config{Workers: 2, BatchSize: 10, LibraryDir: lib}, nil)

	_, err := h.pipeline.Run(context.Background(), makeItems(3))
	require.NoError(t, err)

	// A cycle pushes the library directory alongside the ledger first,
	// then the reconciled ledger alone.
	require.Len(t, h.pusher.calls, 2)
	assert.Equal(t, []string{lib, h.ledger.Path()}, h.pusher.calls[0])
	assert.Equal(t, []string{h.ledger.Path()}, h.pusher.calls[1])
}

func TestRunFailsWhenLibraryDirCannotBeCreated(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	h := newHarness(t, Config{Workers: 1, BatchSize: 10, LibraryDir: filepath.Join(blocker, "songs")}, nil)
	sum, err := h.pipeline.Run(context.Background(), makeItems(1))
	require.Error(t, err)
	assert.Nil(t, sum, "setup failure yields no summary")
}

func TestRunSecondPassIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{Workers: 2, BatchSize: 10}, nil)
	items := makeItems(8)

	_, err := h.pipeline.Run(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, 8, h.fetcher.downloadCount())

	sum, err := h.pipeline.Run(context.Background(), items)
	require.NoError(t, err)

	assert.EqualValues(t, 0, sum.Processed)
	assert.EqualValues(t, 8, sum.Skipped)
	assert.EqualValues(t, 1, sum.Cycles, "a run with no completions still reconciles once")
	assert.Equal(t, 8, h.fetcher.downloadCount(), "no refetch on the second pass")
	assert.Equal(t, 8, h.ledger.Len(), "no duplicate entries")
}

func TestRunCycleCount(t *testing.T) {
	tests := []struct {
		items  int
		batch  int
		cycles int64
	}{
		{0, 5, 1},
		{3, 5, 1},
		{5, 5, 1},
		{10, 5, 2},
		{12, 5, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d items batch %d", tt.items, tt.batch), func(t *testing.T) {
			h := newHarness(t, Config{Workers: 2, BatchSize: tt.batch}, nil)
			sum, err := h.pipeline.Run(context.Background(), makeItems(tt.items))
			require.NoError(t, err)
			assert.Equal(t, tt.cycles, sum.Cycles)
		})
	}
}

func TestRunContainsItemFailures(t *testing.T) {
	h := newHarness(t, Config{Workers: 2, BatchSize: 10}, func(h *harness) {
		h.fetcher.failURLs["https://example.com/watch?v=002"] = true
	})
	items := makeItems(6)

	sum, err := h.pipeline.Run(context.Background(), items)
	require.NoError(t, err)

	assert.EqualValues(t, 5, sum.Processed)
	assert.EqualValues(t, 1, sum.Failed)

	snap := h.ledger.Snapshot()
	assert.Len(t, snap.Songs, 5)
	assert.False(t, snap.HasCompleted("Song 002"))
	// the watermark cannot pass the abandoned item
	assert.Equal(t, 1, snap.LastIndex)
}

func TestRunFailedItemRetriedNextRun(t *testing.T) {
	h := newHarness(t, Config{Workers: 1, BatchSize: 10}, func(h *harness) {
		h.fetcher.failURLs["https://example.com/watch?v=001"] = true
	})
	items := makeItems(3)

	_, err := h.pipeline.Run(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, 0, h.ledger.LastIndex())

	h.fetcher.mu.Lock()
	delete(h.fetcher.failURLs, "https://example.com/watch?v=001")
	h.fetcher.mu.Unlock()

	sum, err := h.pipeline.Run(context.Background(), items)
	require.NoError(t, err)

	assert.EqualValues(t, 1, sum.Processed, "only the abandoned item is refetched")
	assert.EqualValues(t, 2, sum.Skipped)
	assert.Equal(t, 2, h.ledger.LastIndex())
}

func TestRunWithoutStoreIsPushOnly(t *testing.T) {
	dir := t.TempDir()
	led, err := ledger.Open(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)

	fetcher := &fakeFetcher{failURLs: map[string]bool{}}
	pusher := &fakePusher{}
	p := New(Deps{
		Fetcher:  fetcher,
		Embedder: &fakeEmbedder{},
		Pusher:   pusher,
		Ledger:   led,
	}, Config{Workers: 1, BatchSize: 10, LibraryDir: filepath.Join(dir, "library")})

	sum, err := p.Run(context.Background(), makeItems(2))
	require.NoError(t, err)

	assert.EqualValues(t, 2, sum.Processed)
	assert.EqualValues(t, 1, sum.Cycles)
	assert.Equal(t, 2, pusher.pushes)

	for _, e := range led.Snapshot().Songs {
		assert.Nil(t, e.FileURL, "no store means no reconciliation")
	}
}

func TestRunUnavailableStoreDegrades(t *testing.T) {
	h := newHarness(t, Config{Workers: 1, BatchSize: 10}, func(h *harness) {
		h.store.err = &assetstore.StoreError{Op: "FindOrCreateRelease", Backend: "github", Err: assetstore.ErrMissingToken}
	})

	sum, err := h.pipeline.Run(context.Background(), makeItems(3))
	require.NoError(t, err, "a missing credential never fails the run")

	assert.EqualValues(t, 3, sum.Processed)
	for _, e := range h.ledger.Snapshot().Songs {
		assert.Nil(t, e.FileURL)
	}
}

func TestRunEmbedFailureKeepsArtifact(t *testing.T) {
	h := newHarness(t, Config{Workers: 1, BatchSize: 10}, func(h *harness) {
		h.embedder.err = fmt.Errorf("boom")
	})

	sum, err := h.pipeline.Run(context.Background(), makeItems(2))
	require.NoError(t, err)

	assert.EqualValues(t, 2, sum.Processed, "embed failure does not abandon the item")
	assert.Equal(t, 2, h.ledger.Len())
}

func TestRunRespectsLimit(t *testing.T) {
	h := newHarness(t, Config{Workers: 2, BatchSize: 10, Limit: 4}, nil)

	sum, err := h.pipeline.Run(context.Background(), makeItems(9))
	require.NoError(t, err)

	assert.EqualValues(t, 4, sum.Items)
	assert.EqualValues(t, 4, sum.Processed)
}

func TestRunSkipsExistingArtifact(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "library")
	require.NoError(t, os.MkdirAll(lib, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "Song 000.mp3"), []byte("mp3"), 0o644))

	h := newHarness(t, Config{Workers: 1, BatchSize: 10, LibraryDir: lib}, nil)

	sum, err := h.pipeline.Run(context.Background(), makeItems(2))
	require.NoError(t, err)

	assert.EqualValues(t, 1, sum.Skipped)
	assert.EqualValues(t, 1, sum.Processed)
	assert.Equal(t, 1, h.fetcher.downloadCount())
}
