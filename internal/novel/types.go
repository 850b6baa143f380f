// Package novel defines the persisted domain records produced by a harvest:
// the work index, per-volume chapter files, and the chapter entries that the
// translation stage and the publication sink consume.
package novel

import "time"

// RichText carries the three renderings of a block of harvested content.
type RichText struct {
	Text     string `json:"text"`
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
}

// SourceRef identifies where a chapter was harvested from. It is provenance
// only; identity is always carried by the chapter slug.
type SourceRef struct {
	URL       string `json:"url"`
	EpisodeID string `json:"sourceEpisodeId"`
}

// ChapterEntry is one translatable unit.
//
// Slug is the join key for progress tracking and later publication: it is
// unique within a work and stable across re-harvests. Serial runs 1..N across
// the whole work in harvest order; Number runs 1..n within the owning volume.
type ChapterEntry struct {
	Premium     bool      `json:"premium"`
	Slug        string    `json:"slug"`
	Serial      int       `json:"serial"`
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"createdAt"`
	PublishedAt time.Time `json:"publishedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	RichText    RichText  `json:"richText"`
	Source      SourceRef `json:"source"`
}

// VolumeMeta summarizes one volume inside a WorkIndex.
type VolumeMeta struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Chapters int    `json:"chapters"`
	File     string `json:"file"`
}

// WorkIndex is the top-level record for one harvested work. Volumes are
// sorted ascending by number and TotalChapters equals the sum of the
// per-volume chapter counts.
type WorkIndex struct {
	WorkID        string       `json:"workId"`
	Title         string       `json:"title"`
	Slug          string       `json:"slug"`
	Synopsis      RichText     `json:"synopsis"`
	Volumes       []VolumeMeta `json:"volumes"`
	TotalChapters int          `json:"totalChapters"`
	GeneratedAt   time.Time    `json:"generatedAt"`
}

// VolumeRecord holds one volume's chapters, persisted independently of the
// index to bound memory and file size.
type VolumeRecord struct {
	WorkID   string         `json:"workId"`
	Number   int            `json:"number"`
	Title    string         `json:"title"`
	Chapters []ChapterEntry `json:"chapters"`
}
