package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/songlift/songlift/pkg/assetstore"
	"github.com/songlift/songlift/pkg/ledger"
	"github.com/songlift/songlift/pkg/output"
	"github.com/songlift/songlift/pkg/sanitize"
)

// runCycle performs one synchronization cycle: push the library
// directory and ledger, upload missing local assets, reconcile remote
// URLs into entries, push the updated ledger again. Cycles are
// best-effort end to end; a failing step is logged and the run
// continues.
func (p *Pipeline) runCycle(ctx context.Context) {
	cycle := int(p.cycles.Add(1))
	log := p.logger.With(zap.Int("cycle", cycle))
	log.Info("synchronization cycle started")

	p.push(ctx, log, p.cfg.LibraryDir, p.ledger.Path())

	var uploaded, existing, reconciled int
	if p.store != nil {
		uploaded, existing, reconciled = p.syncAssets(ctx, log)
	} else {
		log.Info("no asset store configured, cycle is push-only")
	}

	p.push(ctx, log, p.ledger.Path())

	_ = p.writer.WriteSync(ctx, &output.SyncRecord{
		Cycle:      cycle,
		Uploaded:   uploaded,
		Existing:   existing,
		Reconciled: reconciled,
	})
	log.Info("synchronization cycle finished",
		zap.Int("uploaded", uploaded),
		zap.Int("existing", existing),
		zap.Int("reconciled", reconciled))
}

func (p *Pipeline) push(ctx context.Context, log *zap.Logger, paths ...string) {
	if err := p.pusher.Push(ctx, paths, p.cfg.PushMessage); err != nil {
		log.Warn("push failed", zap.Strings("paths", paths), zap.Error(err))
		_ = p.writer.WriteError(ctx, &output.ErrorRecord{
			Code:    output.ErrCodePush,
			Message: err.Error(),
			Index:   -1,
		})
	}
}

// syncAssets uploads local artifacts missing from the release and
// reconciles the resulting asset map into the ledger.
func (p *Pipeline) syncAssets(ctx context.Context, log *zap.Logger) (uploaded, existing, reconciled int) {
	rel, err := p.store.FindOrCreateRelease(ctx, p.cfg.ReleaseTag, p.cfg.ReleaseTag)
	if err != nil {
		p.storeError(ctx, log, "resolve release", err)
		return 0, 0, 0
	}

	assets, err := p.store.ListAssets(ctx, rel)
	if err != nil {
		p.storeError(ctx, log, "list assets", err)
		return 0, 0, 0
	}

	for _, path := range p.localAssets(log) {
		name := filepath.Base(path)
		if _, ok := assets[name]; ok {
			existing++
			continue
		}
		url, err := p.uploadOne(ctx, rel, path, name)
		if err != nil {
			log.Warn("asset upload failed", zap.String("asset", name), zap.Error(err))
			_ = p.writer.WriteError(ctx, &output.ErrorRecord{
				Code:    output.ErrCodeUpload,
				Message: err.Error(),
				Index:   -1,
				Title:   name,
			})
			continue
		}
		assets[name] = url
		uploaded++
	}

	if err := p.ledger.Update(func(l *ledger.Ledger) {
		reconciled = Reconcile(l, assets)
	}); err != nil {
		log.Warn("persist reconciled ledger failed", zap.Error(err))
	}
	return uploaded, existing, reconciled
}

// localAssets returns the artifact and cover files currently in the
// library directory.
func (p *Pipeline) localAssets(log *zap.Logger) []string {
	var paths []string
	for _, pattern := range []string{"*.mp3", "*.jpg"} {
		matches, err := doublestar.FilepathGlob(filepath.Join(p.cfg.LibraryDir, pattern))
		if err != nil {
			log.Warn("library glob failed", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		paths = append(paths, matches...)
	}
	return paths
}

func (p *Pipeline) uploadOne(ctx context.Context, rel *assetstore.Release, path, name string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	return p.store.Upload(ctx, rel, name, assetstore.MimeForName(name), f, st.Size())
}

func (p *Pipeline) storeError(ctx context.Context, log *zap.Logger, op string, err error) {
	code := output.ErrCodeUpload
	if assetstore.IsMissingToken(err) {
		code = output.ErrCodeCredential
	}
	log.Warn("asset store unavailable", zap.String("op", op), zap.Error(err))
	_ = p.writer.WriteError(ctx, &output.ErrorRecord{
		Code:    code,
		Message: err.Error(),
		Index:   -1,
	})
}

// Reconcile assigns remote references to ledger entries by matching
// sanitized titles against sanitized asset stems. It returns the
// number of entries that gained an artifact URL. Unmatched entries
// keep their null references for a later cycle.
func Reconcile(l *ledger.Ledger, assets assetstore.AssetMap) int {
	if len(assets) == 0 {
		return 0
	}

	files := map[string]string{}
	covers := map[string]string{}
	for name, url := range assets {
		stem := sanitize.Name(sanitize.StripExt(name))
		switch strings.ToLower(filepath.Ext(name)) {
		case ".mp3":
			files[stem] = url
		case ".jpg", ".jpeg":
			covers[stem] = url
		}
	}

	gained := 0
	for i := range l.Songs {
		e := &l.Songs[i]
		key := sanitize.Name(e.Title)
		if e.FileURL == nil {
			if url, ok := files[key]; ok {
				u := url
				e.FileURL = &u
				gained++
			}
		}
		if e.CoverURL == nil {
			if url, ok := covers[key]; ok {
				u := url
				e.CoverURL = &u
			}
		}
	}
	return gained
}
