// Package moments is the surface screens use: capture, edit and delete
// moments, open videos, and watch the collection change.
package moments

import (
	"context"

	"github.com/dmitrijs2005/moments/internal/models"
)

// CaptureRequest describes one bookmark. Title, ThumbnailURL and URL only
// matter when the video is not in history yet.
type CaptureRequest struct {
	VideoID      string
	Timestamp    float64
	Duration     float64
	Title        string
	ThumbnailURL string
	URL          string
	Notes        string
	Tags         []string
}

// Listener receives the full video list after every successful mutation.
type Listener func(videos []models.Video)

// Service is implemented by the in-process Facade and by the gRPC client,
// so a front end can run against either.
type Service interface {
	Capture(ctx context.Context, req CaptureRequest) (models.Moment, error)
	OpenVideo(ctx context.Context, rawURL string) (models.Video, error)

	Videos(ctx context.Context) ([]models.Video, error)
	Video(ctx context.Context, videoID string) (models.Video, error)
	MomentsForVideo(ctx context.Context, videoID string) ([]models.Moment, error)
	Search(ctx context.Context, query string) ([]models.Video, error)
	TotalMoments(ctx context.Context) (int, error)

	UpdateMoment(ctx context.Context, momentID string, patch models.MomentPatch) (models.Moment, error)
	DeleteMoment(ctx context.Context, videoID, momentID string) error
	DeleteAllMomentsForVideo(ctx context.Context, videoID string) error
	DeleteVideo(ctx context.Context, videoID string) error
	ClearAll(ctx context.Context) error

	// Subscribe registers fn until the returned function is called or ctx
	// is done. There is no replay of earlier changes.
	Subscribe(ctx context.Context, fn Listener) (unsubscribe func(), err error)
}

// UpdateNotes replaces the notes of a moment.
func UpdateNotes(ctx context.Context, s Service, momentID, notes string) (models.Moment, error) {
	return s.UpdateMoment(ctx, momentID, models.MomentPatch{Notes: &notes})
}

// UpdateTags replaces the tags of a moment; nil clears them.
func UpdateTags(ctx context.Context, s Service, momentID string, tags []string) (models.Moment, error) {
	return s.UpdateMoment(ctx, momentID, models.MomentPatch{Tags: tags, SetTags: true})
}

// RenameMoment replaces the title of a moment.
func RenameMoment(ctx context.Context, s Service, momentID, title string) (models.Moment, error) {
	return s.UpdateMoment(ctx, momentID, models.MomentPatch{Title: &title})
}
