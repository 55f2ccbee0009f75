// Package models defines the Video and Moment types shared by the store,
// history, facade and transport layers, together with their persisted
// representations.
package models

import "time"

// Video is one piece of source media the user opened, together with its
// moments (most recent first).
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ThumbnailURL string    `json:"thumbnail"`
	URL          string    `json:"url"`
	AddedAt      time.Time `json:"addedAt"`
	Author       string    `json:"author,omitempty"`
	APIThumbnail string    `json:"apiThumbnail,omitempty"`
	IsFromAPI    bool      `json:"isFromApi"`

	// NextMomentNumber feeds "Moment N" titles; it only grows.
	NextMomentNumber int `json:"nextMomentNumber"`

	Moments []Moment `json:"moments"`
}

// VideoData carries the fields a caller supplies when opening a video.
// Empty fields never overwrite stored values on merge.
type VideoData struct {
	ID           string
	Title        string
	ThumbnailURL string
	URL          string
	Author       string
	APIThumbnail string
	IsFromAPI    bool
}

// VideoSummary is the index-blob entry for a video: every attribute but
// the moments themselves, which live in the per-video blob.
type VideoSummary struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ThumbnailURL     string    `json:"thumbnail"`
	URL              string    `json:"url"`
	AddedAt          time.Time `json:"addedAt"`
	Author           string    `json:"author,omitempty"`
	APIThumbnail     string    `json:"apiThumbnail,omitempty"`
	IsFromAPI        bool      `json:"isFromApi"`
	MomentCount      int       `json:"momentCount"`
	NextMomentNumber int       `json:"nextMomentNumber"`
}

// Summary drops the moments and records their count.
func (v Video) Summary() VideoSummary {
	return VideoSummary{
		ID:               v.ID,
		Title:            v.Title,
		ThumbnailURL:     v.ThumbnailURL,
		URL:              v.URL,
		AddedAt:          v.AddedAt,
		Author:           v.Author,
		APIThumbnail:     v.APIThumbnail,
		IsFromAPI:        v.IsFromAPI,
		MomentCount:      len(v.Moments),
		NextMomentNumber: v.NextMomentNumber,
	}
}

// Video rebuilds a Video from the summary and the moments read from the
// per-video blob.
func (s VideoSummary) Video(moments []Moment) Video {
	next := s.NextMomentNumber
	if next <= len(moments) {
		// older data carried no counter
		next = len(moments) + 1
	}
	return Video{
		ID:               s.ID,
		Title:            s.Title,
		ThumbnailURL:     s.ThumbnailURL,
		URL:              s.URL,
		AddedAt:          s.AddedAt,
		Author:           s.Author,
		APIThumbnail:     s.APIThumbnail,
		IsFromAPI:        s.IsFromAPI,
		NextMomentNumber: next,
		Moments:          moments,
	}
}

// Merge overlays the non-empty fields of d onto v.
func (v *Video) Merge(d VideoData) {
	if d.Title != "" {
		v.Title = d.Title
	}
	if d.ThumbnailURL != "" {
		v.ThumbnailURL = d.ThumbnailURL
	}
	if d.URL != "" {
		v.URL = d.URL
	}
	if d.Author != "" {
		v.Author = d.Author
	}
	if d.APIThumbnail != "" {
		v.APIThumbnail = d.APIThumbnail
	}
	if d.IsFromAPI {
		v.IsFromAPI = true
	}
}

// Clone returns a deep copy, so callers cannot mutate cached state.
func (v Video) Clone() Video {
	out := v
	if v.Moments != nil {
		out.Moments = make([]Moment, len(v.Moments))
		for i, m := range v.Moments {
			out.Moments[i] = m.Clone()
		}
	}
	return out
}

// CloneVideos deep-copies a slice of videos.
func CloneVideos(in []Video) []Video {
	if in == nil {
		return nil
	}
	out := make([]Video, len(in))
	for i, v := range in {
		out[i] = v.Clone()
	}
	return out
}

// TotalMoments sums moment counts across videos.
func TotalMoments(videos []Video) int {
	n := 0
	for _, v := range videos {
		n += len(v.Moments)
	}
	return n
}
