package orchestrate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/config"
	"github.com/tanukirift/novelpress/internal/fetcher"
	"github.com/tanukirift/novelpress/internal/novel"
	"github.com/tanukirift/novelpress/internal/parse"
	"github.com/tanukirift/novelpress/internal/store"
)

const testWorkID = "4852201425154874595"

func testIndexHTML() string {
	ep := func(id, label, class string) string {
		return fmt.Sprintf(`<li class=%q><a href="/works/%s/episodes/%s">%s</a></li>`,
			class, testWorkID, id, label)
	}
	return `<html><head>
<meta property="og:title" content="Frontier Alchemist">
<meta name="description" content="A quiet alchemist rebuilds a frontier town, one transmutation at a time, through seasons of trade and trouble.">
</head><body>
<h2>第一章 旅立ち</h2>
<ol>` + ep("101", "第1話", "") + ep("102", "第2話", "") + ep("103", "第3話", "") + `</ol>
<h2>第二章 帰還</h2>
<ol>` + ep("201", "第4話", "") + ep("202", "第5話", "premium") + `</ol>
</body></html>`
}

func testEpisodeHTML(id string) string {
	return fmt.Sprintf(`<html><head>
<meta property="article:published_time" content="2024-03-01T12:00:00Z">
</head><body>
<p class="widget-episodeTitle">Episode %s</p>
<div class="widget-episodeBody">
<p>Body of episode %s.</p>
<p>Second paragraph.</p>
</div>
</body></html>`, id, id)
}

func newHarvestServer(t *testing.T, failEpisodes map[string]int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/works/"+testWorkID, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, testIndexHTML())
	})
	mux.HandleFunc("/works/"+testWorkID+"/episodes/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/works/"+testWorkID+"/episodes/"):]
		if code, ok := failEpisodes[id]; ok {
			w.WriteHeader(code)
			return
		}
		fmt.Fprint(w, testEpisodeHTML(id))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestHarvester(t *testing.T, cfg config.Harvest) (*Harvester, *store.FileStore) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	f := fetcher.New(fetcher.Options{
		Retries:     0,
		BackoffBase: time.Millisecond,
		Timeout:     5 * time.Second,
	}, zap.NewNop())
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	return NewHarvester(f, st, cfg, zap.NewNop()), st
}

func TestHarvestWorkEndToEnd(t *testing.T) {
	t.Parallel()

	srv := newHarvestServer(t, nil)
	h, st := newTestHarvester(t, config.Harvest{})

	idx, sum, err := h.HarvestWork(context.Background(), srv.URL+"/works/"+testWorkID)
	require.NoError(t, err)
	require.NoError(t, sum.Err())
	require.Equal(t, 4, sum.Completed)
	require.Equal(t, 1, sum.Skipped, "premium episode recorded without fetching")

	require.Equal(t, "frontier-alchemist", idx.Slug)
	require.Equal(t, testWorkID, idx.WorkID)
	require.Equal(t, 5, idx.TotalChapters)
	require.Len(t, idx.Volumes, 2)
	require.Equal(t, "第一章 旅立ち", idx.Volumes[0].Title)
	require.Equal(t, "volume-001.json", idx.Volumes[0].File)
	require.NotEmpty(t, idx.Synopsis.Text)

	vol1, err := st.ReadVolume(idx.Slug, 1)
	require.NoError(t, err)
	require.Len(t, vol1.Chapters, 3)
	vol2, err := st.ReadVolume(idx.Slug, 2)
	require.NoError(t, err)
	require.Len(t, vol2.Chapters, 2)

	// Serials run across volumes in discovery order; numbers restart per
	// volume.
	serial := 0
	for _, vol := range []*novel.VolumeRecord{vol1, vol2} {
		for i, ch := range vol.Chapters {
			serial++
			require.Equal(t, serial, ch.Serial)
			require.Equal(t, i+1, ch.Number)
		}
	}

	first := vol1.Chapters[0]
	require.Equal(t, "ep-101", first.Slug)
	require.Equal(t, "Episode 101", first.Title)
	require.Contains(t, first.RichText.Text, "Body of episode 101.")
	require.Contains(t, first.RichText.HTML, "<p>")
	require.Contains(t, first.RichText.Markdown, "Body of episode 101.")
	require.Equal(t, "101", first.Source.EpisodeID)
	require.Equal(t, 2024, first.PublishedAt.Year())

	premium := vol2.Chapters[1]
	require.True(t, premium.Premium)
	require.Equal(t, "第5話", premium.Title, "premium chapters keep their contents-page title")
	require.Empty(t, premium.RichText.Text)
}

func TestHarvestWorkDropsFailedEpisodes(t *testing.T) {
	t.Parallel()

	srv := newHarvestServer(t, map[string]int{"102": http.StatusNotFound})
	h, st := newTestHarvester(t, config.Harvest{})

	idx, sum, err := h.HarvestWork(context.Background(), srv.URL+"/works/"+testWorkID)
	require.NoError(t, err, "a partial harvest still writes its output")
	require.Equal(t, 1, sum.Failed)
	require.Error(t, sum.Err())

	require.Equal(t, 4, idx.TotalChapters)
	vol1, err := st.ReadVolume(idx.Slug, 1)
	require.NoError(t, err)
	require.Len(t, vol1.Chapters, 2)
	for _, ch := range vol1.Chapters {
		require.NotEqual(t, "ep-102", ch.Slug)
	}
}

func TestHarvestWorkEpisodeCap(t *testing.T) {
	t.Parallel()

	srv := newHarvestServer(t, nil)
	h, _ := newTestHarvester(t, config.Harvest{MaxEpisodes: 2})

	idx, sum, err := h.HarvestWork(context.Background(), srv.URL+"/works/"+testWorkID)
	require.NoError(t, err)
	require.Equal(t, 2, sum.Completed)
	require.Equal(t, 2, idx.TotalChapters)
	require.Len(t, idx.Volumes, 1)
}

func TestHarvestWorkRenumbersCollidingVolumes(t *testing.T) {
	t.Parallel()

	// "Prologue Arc" carries no numeral and takes its position, which
	// collides with the parsed number of 第一章.
	indexHTML := `<html><head>
<meta property="og:title" content="Collision Test">
</head><body>
<h2>Prologue Arc</h2>
<ol><li><a href="/works/` + testWorkID + `/episodes/001">Opening</a></li></ol>
<h2>第一章 出発</h2>
<ol><li><a href="/works/` + testWorkID + `/episodes/101">第1話</a></li></ol>
</body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/works/"+testWorkID, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, indexHTML)
	})
	mux.HandleFunc("/works/"+testWorkID+"/episodes/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/works/"+testWorkID+"/episodes/"):]
		fmt.Fprint(w, testEpisodeHTML(id))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h, st := newTestHarvester(t, config.Harvest{})
	idx, sum, err := h.HarvestWork(context.Background(), srv.URL+"/works/"+testWorkID)
	require.NoError(t, err)
	require.Equal(t, 2, sum.Completed)

	require.Len(t, idx.Volumes, 2)
	require.Equal(t, 1, idx.Volumes[0].Number)
	require.Equal(t, "Prologue Arc", idx.Volumes[0].Title)
	require.Equal(t, 2, idx.Volumes[1].Number)
	require.Equal(t, "第一章 出発", idx.Volumes[1].Title)

	// Every harvested chapter stays reachable through its own file.
	vol1, err := st.ReadVolume(idx.Slug, 1)
	require.NoError(t, err)
	require.Len(t, vol1.Chapters, 1)
	require.Equal(t, "ep-001", vol1.Chapters[0].Slug)
	vol2, err := st.ReadVolume(idx.Slug, 2)
	require.NoError(t, err)
	require.Len(t, vol2.Chapters, 1)
	require.Equal(t, "ep-101", vol2.Chapters[0].Slug)
}

func TestHarvestWorkDistinguishesSameTitleWorks(t *testing.T) {
	t.Parallel()

	workIDs := []string{"1111", "2222"}
	mux := http.NewServeMux()
	for _, id := range workIDs {
		workID := id
		indexHTML := `<html><head>
<meta property="og:title" content="Twin Title">
</head><body>
<h2>第一章</h2>
<ol><li><a href="/works/` + workID + `/episodes/` + workID + `-1">第1話</a></li></ol>
</body></html>`
		mux.HandleFunc("/works/"+workID, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, indexHTML)
		})
		mux.HandleFunc("/works/"+workID+"/episodes/", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, testEpisodeHTML(workID))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h, st := newTestHarvester(t, config.Harvest{})

	first, _, err := h.HarvestWork(context.Background(), srv.URL+"/works/1111")
	require.NoError(t, err)
	second, _, err := h.HarvestWork(context.Background(), srv.URL+"/works/2222")
	require.NoError(t, err)

	require.Equal(t, "twin-title", first.Slug)
	require.Equal(t, "twin-title-2", second.Slug)

	vol, err := st.ReadVolume(first.Slug, 1)
	require.NoError(t, err)
	require.Equal(t, "ep-1111-1", vol.Chapters[0].Slug)
	vol, err = st.ReadVolume(second.Slug, 1)
	require.NoError(t, err)
	require.Equal(t, "ep-2222-1", vol.Chapters[0].Slug)
}

func TestHarvestWorkRejectsBadURLBeforeFetching(t *testing.T) {
	t.Parallel()

	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	h, _ := newTestHarvester(t, config.Harvest{})
	_, _, err := h.HarvestWork(context.Background(), srv.URL+"/ranking/weekly")

	var identityErr *parse.IdentityError
	require.ErrorAs(t, err, &identityErr)
	require.Zero(t, atomic.LoadInt32(&requests), "no request may be issued for an unidentifiable URL")
}

func TestHarvestWorkIndexFetchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	h, _ := newTestHarvester(t, config.Harvest{})
	_, _, err := h.HarvestWork(context.Background(), srv.URL+"/works/"+testWorkID)
	require.Error(t, err)
}
