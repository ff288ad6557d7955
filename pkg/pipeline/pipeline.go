// Package pipeline implements the resumable batch run: a worker pool
// fetches and embeds items while a coordinator runs synchronization
// cycles every BatchSize completions, so progress survives
// interruption at any point.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/songlift/songlift/pkg/assetstore"
	"github.com/songlift/songlift/pkg/fetch"
	"github.com/songlift/songlift/pkg/ledger"
	"github.com/songlift/songlift/pkg/output"
	"github.com/songlift/songlift/pkg/sanitize"
	"github.com/songlift/songlift/pkg/tags"
	"github.com/songlift/songlift/pkg/vcs"
	"github.com/songlift/songlift/pkg/worklist"
)

type Config struct {
	// Workers is the fetch/embed pool size.
	Workers int
	// BatchSize is the completion count between synchronization
	// cycles.
	BatchSize int
	// LibraryDir is where artifacts and cover art are written.
	LibraryDir string
	// Limit caps how many work-list items one run handles.
	Limit int
	// ReleaseTag names the remote release assets are published under.
	ReleaseTag string
	// PushMessage is the commit message for ledger pushes.
	PushMessage string
}

func DefaultConfig() Config {
	workers := runtime.NumCPU() - 1
	if workers > 5 {
		workers = 5
	}
	if workers < 1 {
		workers = 1
	}
	return Config{
		Workers:     workers,
		BatchSize:   10,
		LibraryDir:  "songs",
		Limit:       100,
		ReleaseTag:  "latest",
		PushMessage: "update ledger",
	}
}

// Summary aggregates one run.
type Summary struct {
	Items     int64
	Processed int64
	Skipped   int64
	Failed    int64
	Cycles    int64
	Duration  time.Duration
}

// Deps are the pipeline collaborators. Store may be nil, in which
// case synchronization cycles degrade to push-only.
type Deps struct {
	Fetcher  fetch.Fetcher
	Embedder tags.Embedder
	Store    assetstore.Store
	Pusher   vcs.Pusher
	Ledger   *ledger.Store
	Writer   output.Writer
	Logger   *zap.Logger
}

type Pipeline struct {
	fetcher  fetch.Fetcher
	embedder tags.Embedder
	store    assetstore.Store
	pusher   vcs.Pusher
	ledger   *ledger.Store
	writer   output.Writer
	logger   *zap.Logger
	cfg      Config

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	cycles    atomic.Int64
}

func New(deps Deps, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.LibraryDir == "" {
		cfg.LibraryDir = def.LibraryDir
	}
	if cfg.ReleaseTag == "" {
		cfg.ReleaseTag = def.ReleaseTag
	}
	if cfg.PushMessage == "" {
		cfg.PushMessage = def.PushMessage
	}
	if deps.Writer == nil {
		deps.Writer = output.Discard{}
	}
	if deps.Pusher == nil {
		deps.Pusher = vcs.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Pipeline{
		fetcher:  deps.Fetcher,
		embedder: deps.Embedder,
		store:    deps.Store,
		pusher:   deps.Pusher,
		ledger:   deps.Ledger,
		writer:   deps.Writer,
		logger:   deps.Logger,
		cfg:      cfg,
	}
}

type indexedItem struct {
	index int
	item  worklist.Item
}

// Run processes items through the worker pool and returns the run
// summary. Item failures are contained; Run only returns an error for
// setup problems or context cancellation.
func (p *Pipeline) Run(ctx context.Context, items []worklist.Item) (*Summary, error) {
	start := time.Now()

	// Counters are per run so a resume pass reports its own work.
	p.processed.Store(0)
	p.skipped.Store(0)
	p.failed.Store(0)
	p.cycles.Store(0)

	if p.cfg.Limit > 0 && len(items) > p.cfg.Limit {
		items = items[:p.cfg.Limit]
	}

	if err := os.MkdirAll(p.cfg.LibraryDir, 0o755); err != nil {
		return nil, fmt.Errorf("create library directory: %w", err)
	}

	// Items at or below the persisted watermark were fully handled by
	// an earlier run and are not re-dispatched.
	watermark := p.ledger.LastIndex()

	itemCh := make(chan indexedItem)
	doneCh := make(chan struct{}, len(items))

	var workWg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workWg.Add(1)
		go func() {
			defer workWg.Done()
			for it := range itemCh {
				if p.processOne(ctx, it.index, it.item) {
					doneCh <- struct{}{}
				}
			}
		}()
	}

	// Coordinator: the only goroutine that runs synchronization
	// cycles, so cycles never overlap.
	coordDone := make(chan struct{})
	var completions int
	go func() {
		defer close(coordDone)
		for range doneCh {
			completions++
			if completions%p.cfg.BatchSize == 0 {
				p.runCycle(ctx)
			}
		}
	}()

	dispatch := func() error {
		defer close(itemCh)
		for idx, it := range items {
			if idx <= watermark {
				p.skipped.Add(1)
				_ = p.writer.WriteSkip(ctx, &output.SkipRecord{
					Index:  idx,
					Title:  it.Title,
					Reason: output.SkipReasonWatermark,
				})
				continue
			}
			select {
			case itemCh <- indexedItem{index: idx, item: it}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
	dispatchErr := dispatch()

	workWg.Wait()
	close(doneCh)
	<-coordDone

	// Terminal reconciliation: a trailing partial batch, or a run in
	// which nothing completed, still gets one cycle so remote state
	// and the ledger converge.
	if completions%p.cfg.BatchSize != 0 || completions == 0 {
		p.runCycle(ctx)
	}

	sum := p.summary(int64(len(items)), time.Since(start))
	_ = p.writer.WriteSummary(ctx, &output.SummaryRecord{
		Items:         sum.Items,
		Processed:     sum.Processed,
		Skipped:       sum.Skipped,
		Failed:        sum.Failed,
		Cycles:        sum.Cycles,
		Duration:      sum.Duration,
		DurationHuman: sum.Duration.Round(time.Millisecond).String(),
	})

	if dispatchErr != nil {
		return sum, dispatchErr
	}
	return sum, ctx.Err()
}

// SyncOnce runs a single synchronization cycle against the current
// library and ledger without processing any items.
func (p *Pipeline) SyncOnce(ctx context.Context) {
	p.cycles.Store(0)
	p.runCycle(ctx)
}

// processOne handles a single item. It returns true when the item
// counts as a completion (processed or skipped), false when the item
// was abandoned for a later run.
func (p *Pipeline) processOne(ctx context.Context, index int, item worklist.Item) bool {
	log := p.logger.With(zap.Int("index", index), zap.String("title", item.Title))

	title := item.Title
	if title != "" {
		if done, reason := p.guardCheck(title); done {
			return p.skip(ctx, index, title, reason)
		}
	}

	info, err := p.fetcher.Probe(ctx, item.SourceURL)
	if err != nil {
		return p.abandon(ctx, log, index, title, err)
	}
	if title == "" {
		title = info.Title
		if done, reason := p.guardCheck(title); done {
			return p.skip(ctx, index, title, reason)
		}
	}
	safe := sanitize.Name(title)

	if err := p.fetcher.Download(ctx, item.SourceURL, p.cfg.LibraryDir, safe); err != nil {
		return p.abandon(ctx, log, index, title, err)
	}

	coverPath, err := p.fetcher.CoverArt(ctx, info.Thumbnail, p.cfg.LibraryDir, safe)
	if err != nil {
		log.Warn("cover art unavailable", zap.Error(err))
		coverPath = ""
	}

	var lyrics []string
	for _, lang := range info.SubtitleLangs {
		text, err := p.fetcher.Subtitles(ctx, item.SourceURL, p.cfg.LibraryDir, safe, lang)
		if err != nil {
			log.Debug("subtitles unavailable", zap.String("lang", lang), zap.Error(err))
			continue
		}
		lyrics = append(lyrics, text)
	}

	artifact := filepath.Join(p.cfg.LibraryDir, safe+".mp3")
	embedErr := p.embedder.Embed(ctx, artifact, tags.Tags{
		Title:     title,
		Artists:   splitList(item.Artists),
		Album:     item.Album,
		Year:      item.Year,
		Genre:     item.Genre,
		Composers: splitList(item.Composers),
		Language:  item.Language,
		Duration:  item.Duration,
		Label:     item.Label,
		CoverPath: coverPath,
		Lyrics:    lyrics,
	})
	if embedErr != nil {
		// The artifact is still usable untagged; record and keep it.
		log.Warn("tag embed failed", zap.Error(embedErr))
		_ = p.writer.WriteError(ctx, &output.ErrorRecord{
			Code:    output.ErrCodeEmbed,
			Message: embedErr.Error(),
			Index:   index,
			Title:   title,
		})
	}

	entry := ledger.Entry{
		Title:      title,
		Artists:    item.Artists,
		Album:      item.Album,
		Year:       item.Year,
		Genre:      item.Genre,
		Composers:  item.Composers,
		Language:   item.Language,
		Duration:   item.Duration,
		Label:      item.Label,
		Lyrics:     lyrics,
		Downloaded: true,
	}
	if err := p.ledger.Append(entry, index); err != nil {
		return p.abandon(ctx, log, index, title, err)
	}

	p.processed.Add(1)
	_ = p.writer.WriteItem(ctx, &output.ItemRecord{
		Index:    index,
		Title:    title,
		Artifact: safe + ".mp3",
		Cover:    coverPath != "",
		Lyrics:   len(lyrics),
	})
	log.Info("item processed", zap.String("artifact", safe+".mp3"))
	return true
}

// guardCheck reports whether the item is already done: the artifact
// exists locally, or the ledger records it with a remote reference.
func (p *Pipeline) guardCheck(title string) (bool, string) {
	artifact := filepath.Join(p.cfg.LibraryDir, sanitize.ArtifactName(title, "mp3"))
	if _, err := os.Stat(artifact); err == nil {
		return true, output.SkipReasonArtifact
	}
	if p.ledger.HasCompleted(title) {
		return true, output.SkipReasonLedger
	}
	return false, ""
}

func (p *Pipeline) skip(ctx context.Context, index int, title, reason string) bool {
	p.skipped.Add(1)
	if err := p.ledger.MarkSkipped(index); err != nil {
		p.logger.Warn("persist skip failed", zap.Int("index", index), zap.Error(err))
	}
	_ = p.writer.WriteSkip(ctx, &output.SkipRecord{Index: index, Title: title, Reason: reason})
	return true
}

// abandon leaves the item untouched in the ledger so the next run
// retries it. The watermark cannot advance past it.
func (p *Pipeline) abandon(ctx context.Context, log *zap.Logger, index int, title string, err error) bool {
	p.failed.Add(1)
	log.Error("item failed", zap.Error(err))
	_ = p.writer.WriteError(ctx, &output.ErrorRecord{
		Code:    output.ErrCodeFetch,
		Message: err.Error(),
		Index:   index,
		Title:   title,
	})
	return false
}

func (p *Pipeline) summary(items int64, d time.Duration) *Summary {
	return &Summary{
		Items:     items,
		Processed: p.processed.Load(),
		Skipped:   p.skipped.Load(),
		Failed:    p.failed.Load(),
		Cycles:    p.cycles.Load(),
		Duration:  d,
	}
}

// splitList splits a comma-separated field into trimmed parts.
func splitList(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
