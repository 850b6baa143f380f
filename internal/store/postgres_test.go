package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tanukirift/novelpress/internal/novel"
)

func TestPublishChapterUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewChapterStoreWithPool(mock, "chapters")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	ch := novel.ChapterEntry{
		Slug:   "ep-1177354054886312802",
		Serial: 3,
		Number: 1,
		Title:  "The Second Volume Opens",
		RichText: novel.RichText{
			Text:     "Translated body.",
			Markdown: "Translated body.",
		},
		Premium:     false,
		PublishedAt: now,
		UpdatedAt:   now,
		Source: novel.SourceRef{
			URL:       "https://novel.example.com/works/w/episodes/1177354054886312802",
			EpisodeID: "1177354054886312802",
		},
	}

	mock.ExpectExec("INSERT INTO chapters").
		WithArgs(
			"my-work",
			ch.Slug,
			2,
			ch.Serial,
			ch.Number,
			ch.Title,
			ch.RichText.Text,
			ch.RichText.Markdown,
			ch.Premium,
			ch.Source.URL,
			ch.Source.EpisodeID,
			ch.PublishedAt,
			ch.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = st.PublishChapter(context.Background(), "my-work", 2, ch)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishChapterRejectsMissingSlugs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewChapterStoreWithPool(mock, "chapters")
	require.NoError(t, err)

	require.Error(t, st.PublishChapter(context.Background(), "", 1, novel.ChapterEntry{Slug: "ep-1"}))
	require.Error(t, st.PublishChapter(context.Background(), "my-work", 1, novel.ChapterEntry{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewChapterStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewChapterStoreWithPool(mock, "chapters; DROP TABLE works")
	require.Error(t, err)

	st, err := NewChapterStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "chapters", st.table)
}
