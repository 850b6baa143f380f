package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/config"
	"github.com/tanukirift/novelpress/internal/contenthash"
	"github.com/tanukirift/novelpress/internal/novel"
	"github.com/tanukirift/novelpress/internal/progress"
	"github.com/tanukirift/novelpress/internal/runner"
	"github.com/tanukirift/novelpress/internal/store"
	"github.com/tanukirift/novelpress/internal/translate"
)

// ChapterPublisher is an optional downstream sink for translated chapters.
// *store.ChapterStore satisfies it.
type ChapterPublisher interface {
	PublishChapter(ctx context.Context, workSlug string, volume int, ch novel.ChapterEntry) error
}

// TranslateOptions narrows what a translation run touches.
type TranslateOptions struct {
	// Works restricts the run to these work slugs; empty means every
	// harvested work.
	Works []string
	// SkipChapters are chapter slugs to mark skipped without translating.
	SkipChapters []string
	// Overwrite re-translates chapters whose source is unchanged.
	Overwrite bool
}

// Translation runs the translation stage over harvested works.
type Translation struct {
	translator translate.Translator
	store      *store.FileStore
	publisher  ChapterPublisher
	cfg        config.Translate
	logger     *zap.Logger
}

// NewTranslation wires the translation stage. publisher may be nil.
func NewTranslation(tr translate.Translator, st *store.FileStore, publisher ChapterPublisher, cfg config.Translate, logger *zap.Logger) *Translation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translation{
		translator: tr,
		store:      st,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// TranslateAll resolves the work list and translates each work in turn.
// The summaries are merged; a failure in one work does not stop the next.
func (t *Translation) TranslateAll(ctx context.Context, opts TranslateOptions) (Summary, error) {
	slugs := opts.Works
	if len(slugs) == 0 {
		var err error
		slugs, err = t.store.ListWorks()
		if err != nil {
			return Summary{}, err
		}
	}
	var total Summary
	for _, slug := range slugs {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		sum, err := t.TranslateWork(ctx, slug, opts)
		total.Completed += sum.Completed
		total.Failed += sum.Failed
		total.Skipped += sum.Skipped
		if err != nil {
			return total, fmt.Errorf("translating %s: %w", slug, err)
		}
	}
	return total, nil
}

// chapterAction is the classification of one chapter before the
// concurrent phase.
type chapterAction int

const (
	actionTranslate chapterAction = iota
	actionReuse
	actionSkipList
	actionHold
)

// chapterTask pins a chapter to its volume position through the
// concurrent phase.
type chapterTask struct {
	volumeIdx  int
	volNumber  int
	chapterIdx int
	entry      novel.ChapterEntry
	hash       string
	action     chapterAction
	prior      *novel.ChapterEntry
}

// TranslateWork translates one harvested work. Chapters whose source hash
// matches a completed progress entry are reused from the prior translated
// output; failed chapters stay in the progress ledger for a later
// resumption after ResetFailed.
func (t *Translation) TranslateWork(ctx context.Context, slug string, opts TranslateOptions) (Summary, error) {
	var sum Summary

	idx, err := t.store.ReadIndex(slug)
	if err != nil {
		return sum, fmt.Errorf("reading index: %w", err)
	}

	volumes := make([]*novel.VolumeRecord, len(idx.Volumes))
	for i, meta := range idx.Volumes {
		vol, err := t.store.ReadVolume(slug, meta.Number)
		if err != nil {
			return sum, fmt.Errorf("reading volume %d: %w", meta.Number, err)
		}
		volumes[i] = vol
	}

	prior := t.loadPriorTranslations(slug, idx)

	tracker := progress.NewTracker(t.store.ProgressPath(slug), t.logger)
	var allKeys []string
	for _, vol := range volumes {
		for _, ch := range vol.Chapters {
			allKeys = append(allKeys, ch.Slug)
		}
	}
	rec, _, err := tracker.Resume(slug, allKeys)
	if err != nil {
		return sum, fmt.Errorf("resuming progress: %w", err)
	}

	skipSet := make(map[string]bool, len(opts.SkipChapters))
	for _, s := range opts.SkipChapters {
		skipSet[s] = true
	}

	// Classification happens before any goroutines exist; the concurrent
	// phase touches the record only through the tracker's Mark methods.
	var tasks []chapterTask
	for vi, vol := range volumes {
		for ci, ch := range vol.Chapters {
			task := chapterTask{
				volumeIdx:  vi,
				volNumber:  vol.Number,
				chapterIdx: ci,
				entry:      ch,
				hash:       contenthash.Sum(ch.Title, ch.RichText.Text),
			}
			switch {
			case skipSet[ch.Slug]:
				task.action = actionSkipList
			case rec.ShouldSkip(ch.Slug, task.hash, opts.Overwrite):
				// A completed entry whose prior output is gone gets
				// re-translated rather than dropped.
				if p, ok := prior[ch.Slug]; ok {
					task.action = actionReuse
					task.prior = p
				} else {
					task.action = actionTranslate
				}
			case rec.Items[ch.Slug].Status == progress.StatusFailed && !opts.Overwrite:
				// Failed chapters wait for an explicit reset.
				task.action = actionHold
			default:
				task.action = actionTranslate
			}
			tasks = append(tasks, task)
		}
	}

	t.logger.Info("translation planned",
		zap.String("slug", slug),
		zap.Int("chapters", len(tasks)),
		zap.String("provider", t.translator.Name()))

	results := runner.RunAll(ctx, tasks, t.cfg.Concurrency, t.cfg.Delay,
		func(ctx context.Context, task chapterTask) chapterResult {
			return t.translateChapter(ctx, tracker, rec, task)
		})

	out := make([]*novel.VolumeRecord, len(volumes))
	for i, vol := range volumes {
		out[i] = &novel.VolumeRecord{
			WorkID:   vol.WorkID,
			Number:   vol.Number,
			Title:    vol.Title,
			Chapters: make([]novel.ChapterEntry, 0, len(vol.Chapters)),
		}
	}
	for i, res := range results {
		task := tasks[i]
		switch res.status {
		case progress.StatusCompleted:
			sum.Completed++
		case progress.StatusFailed:
			sum.Failed++
			continue
		default:
			sum.Skipped++
			if res.entry == nil {
				continue
			}
		}
		out[task.volumeIdx].Chapters = append(out[task.volumeIdx].Chapters, *res.entry)
	}

	translatedIdx := &novel.WorkIndex{
		WorkID:      idx.WorkID,
		Title:       idx.Title,
		Slug:        idx.Slug,
		Synopsis:    idx.Synopsis,
		GeneratedAt: time.Now().UTC(),
	}
	for _, vol := range out {
		if len(vol.Chapters) == 0 {
			continue
		}
		if err := t.store.WriteTranslatedVolume(slug, vol); err != nil {
			return sum, fmt.Errorf("writing translated volume %d: %w", vol.Number, err)
		}
		translatedIdx.Volumes = append(translatedIdx.Volumes, novel.VolumeMeta{
			Number:   vol.Number,
			Title:    vol.Title,
			Chapters: len(vol.Chapters),
			File:     store.VolumeFile(vol.Number),
		})
		translatedIdx.TotalChapters += len(vol.Chapters)
	}
	if err := t.store.WriteTranslatedIndex(slug, translatedIdx); err != nil {
		return sum, fmt.Errorf("writing translated index: %w", err)
	}

	t.logger.Info("translation finished",
		zap.String("slug", slug),
		zap.String("summary", sum.String()))
	return sum, nil
}

// chapterResult is the outcome of one chapter's concurrent phase. entry is
// nil when there is nothing to carry into the translated volume.
type chapterResult struct {
	status progress.Status
	entry  *novel.ChapterEntry
}

func (t *Translation) translateChapter(ctx context.Context, tracker *progress.Tracker, rec *progress.Record, task chapterTask) chapterResult {
	slug := task.entry.Slug

	switch task.action {
	case actionSkipList:
		if err := tracker.MarkSkipped(rec, slug, task.hash); err != nil {
			t.logger.Error("persisting skip", zap.String("chapter", slug), zap.Error(err))
		}
		return chapterResult{status: progress.StatusSkipped}
	case actionReuse:
		return chapterResult{status: progress.StatusSkipped, entry: task.prior}
	case actionHold:
		return chapterResult{status: progress.StatusFailed}
	}

	if task.entry.Premium || task.entry.RichText.Text == "" {
		// Nothing translatable was harvested for this chapter.
		if err := tracker.MarkSkipped(rec, slug, task.hash); err != nil {
			t.logger.Error("persisting skip", zap.String("chapter", slug), zap.Error(err))
		}
		return chapterResult{status: progress.StatusSkipped}
	}

	title, err := t.translator.Translate(ctx, task.entry.Title, t.cfg.TargetLang)
	if err == nil {
		var body string
		body, err = t.translator.Translate(ctx, task.entry.RichText.Text, t.cfg.TargetLang)
		if err == nil {
			translated := task.entry
			translated.Title = title
			translated.RichText = novel.RichText{Text: body, Markdown: body}
			outPath := store.VolumeFile(task.volNumber)

			if t.publisher != nil {
				if pubErr := t.publisher.PublishChapter(ctx, rec.JobKey, task.volNumber, translated); pubErr != nil {
					t.logger.Warn("publishing chapter",
						zap.String("chapter", slug), zap.Error(pubErr))
				}
			}
			if err := tracker.MarkCompleted(rec, slug, task.hash, outPath); err != nil {
				t.logger.Error("persisting completion", zap.String("chapter", slug), zap.Error(err))
			}
			return chapterResult{status: progress.StatusCompleted, entry: &translated}
		}
	}

	t.logger.Warn("chapter translation failed",
		zap.String("chapter", slug), zap.Error(err))
	if markErr := tracker.MarkFailed(rec, slug, err.Error()); markErr != nil {
		t.logger.Error("persisting failure", zap.String("chapter", slug), zap.Error(markErr))
	}
	return chapterResult{status: progress.StatusFailed}
}

// loadPriorTranslations maps chapter slug to its previously translated
// entry so unchanged chapters survive a re-run without an API call.
func (t *Translation) loadPriorTranslations(slug string, idx *novel.WorkIndex) map[string]*novel.ChapterEntry {
	prior := make(map[string]*novel.ChapterEntry)
	for _, meta := range idx.Volumes {
		vol, err := t.store.ReadTranslatedVolume(slug, meta.Number)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				t.logger.Warn("reading prior translation",
					zap.Int("volume", meta.Number), zap.Error(err))
			}
			continue
		}
		for i := range vol.Chapters {
			prior[vol.Chapters[i].Slug] = &vol.Chapters[i]
		}
	}
	return prior
}

// ResetFailed flips every failed chapter of a work back to pending so the
// next run retries them. It returns the number of chapters reset.
func (t *Translation) ResetFailed(slug string) (int, error) {
	tracker := progress.NewTracker(t.store.ProgressPath(slug), t.logger)
	return tracker.ResetFailed(slug)
}
