package orchestrate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/config"
	"github.com/tanukirift/novelpress/internal/fetcher"
	"github.com/tanukirift/novelpress/internal/metrics"
	"github.com/tanukirift/novelpress/internal/novel"
	"github.com/tanukirift/novelpress/internal/parse"
	"github.com/tanukirift/novelpress/internal/runner"
	"github.com/tanukirift/novelpress/internal/sanitize"
	"github.com/tanukirift/novelpress/internal/store"
)

// Harvester fetches a work's index and episodes and persists them as
// JSON records under the output directory.
type Harvester struct {
	fetcher *fetcher.Fetcher
	parser  *parse.Parser
	store   *store.FileStore
	slugger *novel.Slugger
	cfg     config.Harvest
	logger  *zap.Logger
	now     func() time.Time
}

// NewHarvester wires a harvester from its collaborators.
func NewHarvester(f *fetcher.Fetcher, st *store.FileStore, cfg config.Harvest, logger *zap.Logger) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		fetcher: f,
		parser:  parse.NewParser(logger),
		store:   st,
		slugger: novel.NewSlugger(),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// plannedEpisode carries a table-of-contents entry plus the volume it
// belongs to, in discovery order.
type plannedEpisode struct {
	link      parse.EpisodeLink
	volumeIdx int
}

// episodeResult is the per-episode outcome of the concurrent fetch phase.
type episodeResult struct {
	entry novel.ChapterEntry
	err   error
}

// HarvestWork runs the full harvest for one work URL. Episodes that fail
// to fetch or parse are dropped from the output and counted in the
// summary; the index and volumes are written for whatever succeeded.
func (h *Harvester) HarvestWork(ctx context.Context, workURL string) (*novel.WorkIndex, Summary, error) {
	var sum Summary

	// Identity errors are fatal before any network traffic happens.
	if _, err := parse.WorkIDFromURL(workURL); err != nil {
		return nil, sum, err
	}

	indexHTML, err := h.fetcher.Fetch(ctx, workURL)
	if err != nil {
		return nil, sum, fmt.Errorf("fetching index page: %w", err)
	}

	draft, err := h.parser.ParseIndex(indexHTML, workURL)
	if err != nil {
		return nil, sum, fmt.Errorf("parsing index page: %w", err)
	}

	slug := novel.Slugify(draft.Title)
	if slug == "" {
		slug = draft.WorkID
	}
	// Same-title works harvested in one run must not share a directory.
	slug = h.slugger.Unique(slug)

	planned := h.planEpisodes(draft)
	h.logger.Info("harvest planned",
		zap.String("work_id", draft.WorkID),
		zap.String("slug", slug),
		zap.Int("volumes", len(draft.Volumes)),
		zap.Int("episodes", len(planned)))

	results := runner.RunAll(ctx, planned, h.cfg.Concurrency, h.cfg.Delay,
		func(ctx context.Context, ep plannedEpisode) episodeResult {
			return h.harvestEpisode(ctx, ep.link)
		})

	volumes := make([]*novel.VolumeRecord, len(draft.Volumes))
	for i, v := range draft.Volumes {
		volumes[i] = &novel.VolumeRecord{
			WorkID: draft.WorkID,
			Number: v.Number,
			Title:  v.Title,
		}
	}
	// Heading-parsed numerals and positional fallbacks can collide or run
	// out of order. Volume numbers key the on-disk files, so each must be
	// unique and ascending in discovery order.
	lastNumber := 0
	for _, vol := range volumes {
		if vol.Number <= lastNumber {
			h.logger.Warn("volume renumbered",
				zap.String("title", vol.Title),
				zap.Int("from", vol.Number),
				zap.Int("to", lastNumber+1))
			vol.Number = lastNumber + 1
		}
		lastNumber = vol.Number
	}
	for i, res := range results {
		if res.err != nil {
			sum.Failed++
			h.logger.Warn("episode dropped",
				zap.String("episode_id", planned[i].link.EpisodeID),
				zap.Error(res.err))
			continue
		}
		if res.entry.Premium {
			sum.Skipped++
		} else {
			sum.Completed++
		}
		vol := volumes[planned[i].volumeIdx]
		vol.Chapters = append(vol.Chapters, res.entry)
	}

	// Serial and per-volume numbers are assigned after the concurrent
	// phase so they reflect discovery order, not completion order.
	serial := 0
	for _, vol := range volumes {
		for i := range vol.Chapters {
			serial++
			vol.Chapters[i].Serial = serial
			vol.Chapters[i].Number = i + 1
		}
	}

	idx := &novel.WorkIndex{
		WorkID:      draft.WorkID,
		Title:       draft.Title,
		Slug:        slug,
		GeneratedAt: h.now().UTC(),
		Synopsis:    richText(draft.SynopsisHTML),
	}
	for _, vol := range volumes {
		if len(vol.Chapters) == 0 {
			continue
		}
		if err := h.store.WriteVolume(slug, vol); err != nil {
			return nil, sum, fmt.Errorf("writing volume %d: %w", vol.Number, err)
		}
		idx.Volumes = append(idx.Volumes, novel.VolumeMeta{
			Number:   vol.Number,
			Title:    vol.Title,
			Chapters: len(vol.Chapters),
			File:     store.VolumeFile(vol.Number),
		})
		idx.TotalChapters += len(vol.Chapters)
	}
	if err := h.store.WriteIndex(slug, idx); err != nil {
		return nil, sum, fmt.Errorf("writing index: %w", err)
	}

	h.logger.Info("harvest finished",
		zap.String("slug", slug),
		zap.Int("chapters", idx.TotalChapters),
		zap.String("summary", sum.String()))
	return idx, sum, nil
}

// planEpisodes flattens the volume drafts into fetch order, applying the
// optional episode cap across the whole work.
func (h *Harvester) planEpisodes(draft *parse.IndexDraft) []plannedEpisode {
	var planned []plannedEpisode
	for vi, vol := range draft.Volumes {
		for _, link := range vol.Episodes {
			if h.cfg.MaxEpisodes > 0 && len(planned) >= h.cfg.MaxEpisodes {
				return planned
			}
			planned = append(planned, plannedEpisode{link: link, volumeIdx: vi})
		}
	}
	return planned
}

// harvestEpisode fetches and converts one episode. Premium episodes are
// recorded from their table-of-contents entry without fetching.
func (h *Harvester) harvestEpisode(ctx context.Context, link parse.EpisodeLink) episodeResult {
	entry := novel.ChapterEntry{
		Premium:   link.Premium,
		Slug:      "ep-" + link.EpisodeID,
		Title:     link.Title,
		CreatedAt: h.now().UTC(),
		Source: novel.SourceRef{
			URL:       link.URL,
			EpisodeID: link.EpisodeID,
		},
	}
	if link.Premium {
		metrics.ObserveEpisode("premium")
		return episodeResult{entry: entry}
	}

	body, err := h.fetcher.Fetch(ctx, link.URL)
	if err != nil {
		metrics.ObserveEpisode("error")
		return episodeResult{err: fmt.Errorf("fetching episode %s: %w", link.EpisodeID, err)}
	}
	draft, err := h.parser.ParseEpisode(body)
	if err != nil {
		metrics.ObserveEpisode("error")
		return episodeResult{err: fmt.Errorf("parsing episode %s: %w", link.EpisodeID, err)}
	}

	if draft.Title != "" {
		entry.Title = draft.Title
	}
	entry.PublishedAt = draft.PublishedAt
	entry.UpdatedAt = draft.UpdatedAt
	entry.RichText = richText(draft.BodyHTML)

	metrics.ObserveEpisode("ok")
	return episodeResult{entry: entry}
}

// richText renders the three persisted forms of a block of HTML.
func richText(rawHTML string) novel.RichText {
	if rawHTML == "" {
		return novel.RichText{}
	}
	return novel.RichText{
		HTML:     sanitize.Sanitize(rawHTML),
		Text:     sanitize.ToText(rawHTML),
		Markdown: sanitize.ToMarkdown(rawHTML),
	}
}
