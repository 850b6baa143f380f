package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseEpisodeSiteSelectorsWin(t *testing.T) {
	t.Parallel()

	page := `<html><head>
<meta property="og:title" content="og title">
<meta property="article:published_time" content="2023-05-01T10:00:00Z">
<meta property="article:modified_time" content="2023-05-02T11:30:00Z">
</head><body>
<h1>ページ見出し</h1>
<div class="widget-episodeTitle">第1話　出発</div>
<div class="widget-episodeBody">
  <div class="ad">広告</div>
  <p>本文の一行目。</p>
  <p>本文の二行目。</p>
</div>
</body></html>`

	draft, err := NewParser(zap.NewNop()).ParseEpisode(page)
	require.NoError(t, err)
	require.Equal(t, "第1話　出発", draft.Title)
	require.Contains(t, draft.BodyHTML, "本文の一行目。")
	require.NotContains(t, draft.BodyHTML, "広告")
	require.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), draft.PublishedAt)
	require.Equal(t, time.Date(2023, 5, 2, 11, 30, 0, 0, time.UTC), draft.UpdatedAt)
}

func TestParseEpisodeFallbackCascade(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>doc title</title></head><body>
<article><p>story text</p></article>
</body></html>`

	draft, err := NewParser(zap.NewNop()).ParseEpisode(page)
	require.NoError(t, err)
	require.Equal(t, "doc title", draft.Title)
	require.Contains(t, draft.BodyHTML, "story text")
}

func TestParseEpisodeUntitledFallback(t *testing.T) {
	t.Parallel()

	draft, err := NewParser(zap.NewNop()).ParseEpisode(`<html><body><main><p>x</p></main></body></html>`)
	require.NoError(t, err)
	require.Equal(t, "Untitled", draft.Title)
}

func TestParseEpisodeTimeElements(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<time datetime="2022-01-15T09:00:00Z">published</time>
<time datetime="2022-02-20T09:00:00Z">updated</time>
<article><p>body</p></article>
</body></html>`

	draft, err := NewParser(zap.NewNop()).ParseEpisode(page)
	require.NoError(t, err)
	require.Equal(t, 15, draft.PublishedAt.Day())
	require.Equal(t, 20, draft.UpdatedAt.Day())
}

func TestParseEpisodeEmptyBody(t *testing.T) {
	t.Parallel()

	draft, err := NewParser(zap.NewNop()).ParseEpisode(`<html><body><p>outside</p></body></html>`)
	require.NoError(t, err)
	require.Equal(t, "", draft.BodyHTML)
	require.True(t, draft.PublishedAt.IsZero())
}

func TestParseEpisodeDoesNotMutateSharedState(t *testing.T) {
	t.Parallel()

	// The furniture strip must run on a detached copy, so repeated parses of
	// the same page see identical input.
	page := `<html><body><article><nav>toc</nav><p>content</p></article></body></html>`
	p := NewParser(zap.NewNop())

	first, err := p.ParseEpisode(page)
	require.NoError(t, err)
	second, err := p.ParseEpisode(page)
	require.NoError(t, err)
	require.Equal(t, first.BodyHTML, second.BodyHTML)
	require.NotContains(t, first.BodyHTML, "toc")
}
