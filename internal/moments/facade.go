package moments

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dmitrijs2005/moments/internal/common"
	"github.com/dmitrijs2005/moments/internal/history"
	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/metadata"
	"github.com/dmitrijs2005/moments/internal/models"
	"github.com/dmitrijs2005/moments/internal/youtube"
)

// MetadataFetcher resolves a video URL to its metadata.
type MetadataFetcher interface {
	Fetch(ctx context.Context, rawURL string) (metadata.Info, error)
}

// Facade is the in-process Service over a history.Manager.
type Facade struct {
	history *history.Manager
	broker  *Broker
	fetcher MetadataFetcher
	settle  time.Duration
	now     func() time.Time
	logger  logging.Logger

	// pubMu keeps notifications in mutation order.
	pubMu sync.Mutex
}

var _ Service = (*Facade)(nil)

// Option customises a Facade.
type Option func(*Facade)

// WithFetcher lets Capture and OpenVideo resolve metadata for unknown
// videos.
func WithFetcher(f MetadataFetcher) Option { return func(fc *Facade) { fc.fetcher = f } }

// WithSettleDelay waits d before a capture that creates a video is
// written.
func WithSettleDelay(d time.Duration) Option { return func(fc *Facade) { fc.settle = d } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(fc *Facade) { fc.now = now } }

// New returns a Facade publishing every successful mutation to b.
func New(h *history.Manager, b *Broker, logger logging.Logger, opts ...Option) *Facade {
	f := &Facade{
		history: h,
		broker:  b,
		now:     time.Now,
		logger:  logging.OrNop(logger).With("module", "moments"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Capture records a moment, creating the video first if history does not
// know it. The moment is titled "Moment N" with N the video's next number.
// A new video and its first moment are written together.
func (f *Facade) Capture(ctx context.Context, req CaptureRequest) (models.Moment, error) {
	if req.VideoID == "" {
		return models.Moment{}, fmt.Errorf("video id is required: %w", common.ErrorValidation)
	}
	if req.Timestamp < 0 || math.IsNaN(req.Timestamp) || math.IsInf(req.Timestamp, 0) {
		return models.Moment{}, fmt.Errorf("invalid timestamp %v: %w", req.Timestamp, common.ErrorValidation)
	}

	var data *models.VideoData
	if _, ok := f.history.VideoByID(req.VideoID); !ok {
		d, err := f.newVideoData(ctx, req)
		if err != nil {
			return models.Moment{}, err
		}
		if err := f.settleWait(ctx); err != nil {
			return models.Moment{}, err
		}
		data = &d
	}

	now := f.now()
	duration := req.Duration
	if duration <= 0 {
		duration = models.DefaultMomentDuration
	}
	moment := models.Moment{
		ID:        models.NewMomentID(req.VideoID, req.Timestamp, now),
		VideoID:   req.VideoID,
		Timestamp: req.Timestamp,
		Duration:  duration,
		Notes:     req.Notes,
		Tags:      req.Tags,
		CreatedAt: now,
	}

	var (
		m   models.Moment
		err error
	)
	if data != nil {
		m, err = f.history.AddVideoMoment(ctx, *data, moment)
	} else {
		m, err = f.history.AddMoment(ctx, req.VideoID, moment)
	}
	if err != nil {
		return models.Moment{}, fmt.Errorf("failed to capture moment: %w", err)
	}

	f.logger.Info(ctx, "moment captured", "video_id", req.VideoID, "moment_id", m.ID, "timestamp", req.Timestamp)
	f.notify(ctx)
	return m, nil
}

// newVideoData describes a video Capture is about to create. Without a
// title in the request the fetcher supplies one.
func (f *Facade) newVideoData(ctx context.Context, req CaptureRequest) (models.VideoData, error) {
	data := models.VideoData{
		ID:           req.VideoID,
		Title:        req.Title,
		ThumbnailURL: req.ThumbnailURL,
		URL:          req.URL,
	}

	if data.Title == "" {
		if f.fetcher == nil {
			return models.VideoData{}, fmt.Errorf("video %s: %w", req.VideoID, common.ErrorNotFound)
		}
		info, err := f.fetcher.Fetch(ctx, youtube.CanonicalURL(req.VideoID))
		if err != nil {
			return models.VideoData{}, fmt.Errorf("failed to resolve video %s: %w", req.VideoID, err)
		}
		data = videoData(info)
		data.ID = req.VideoID
	}
	if data.URL == "" {
		data.URL = youtube.CanonicalURL(req.VideoID)
	}
	if data.ThumbnailURL == "" {
		data.ThumbnailURL = youtube.ThumbnailURL(req.VideoID)
	}
	return data, nil
}

func (f *Facade) settleWait(ctx context.Context) error {
	if f.settle <= 0 {
		return nil
	}
	t := time.NewTimer(f.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// OpenVideo adds the video behind rawURL to history, or refreshes it and
// moves it to the front if it is already there.
func (f *Facade) OpenVideo(ctx context.Context, rawURL string) (models.Video, error) {
	id := youtube.ExtractVideoID(rawURL)
	if id == "" {
		return models.Video{}, fmt.Errorf("%q: %w", rawURL, common.ErrorValidation)
	}

	info := metadata.Fallback(id)
	if f.fetcher != nil {
		var err error
		info, err = f.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return models.Video{}, fmt.Errorf("failed to resolve video %s: %w", id, err)
		}
	}

	data := videoData(info)
	data.ID = id
	data.URL = youtube.CanonicalURL(id)

	v, err := f.history.AddVideo(ctx, data)
	if err != nil {
		return models.Video{}, fmt.Errorf("failed to add video: %w", err)
	}

	f.notify(ctx)
	return v, nil
}

func videoData(info metadata.Info) models.VideoData {
	return models.VideoData{
		ID:           info.VideoID,
		Title:        info.Title,
		ThumbnailURL: info.ThumbnailURL,
		Author:       info.Author,
		APIThumbnail: info.APIThumbnail,
		IsFromAPI:    info.IsFromAPI,
	}
}

// Videos returns every video, most recently added first.
func (f *Facade) Videos(ctx context.Context) ([]models.Video, error) {
	return f.history.Videos(), nil
}

// Video returns one video with its moments.
func (f *Facade) Video(ctx context.Context, videoID string) (models.Video, error) {
	v, ok := f.history.VideoByID(videoID)
	if !ok {
		return models.Video{}, fmt.Errorf("video %s: %w", videoID, common.ErrorNotFound)
	}
	return v, nil
}

// MomentsForVideo is empty for an unknown video.
func (f *Facade) MomentsForVideo(ctx context.Context, videoID string) ([]models.Moment, error) {
	v, ok := f.history.VideoByID(videoID)
	if !ok || v.Moments == nil {
		return []models.Moment{}, nil
	}
	return v.Moments, nil
}

// Search matches query against video titles and moment titles, notes and tags.
func (f *Facade) Search(ctx context.Context, query string) ([]models.Video, error) {
	return f.history.Search(query), nil
}

// TotalMoments counts moments across all videos.
func (f *Facade) TotalMoments(ctx context.Context) (int, error) {
	return f.history.TotalMoments(), nil
}

func (f *Facade) UpdateMoment(ctx context.Context, momentID string, patch models.MomentPatch) (models.Moment, error) {
	if patch.IsEmpty() {
		return models.Moment{}, fmt.Errorf("nothing to update: %w", common.ErrorValidation)
	}
	m, err := f.history.UpdateMoment(ctx, momentID, patch)
	if err != nil {
		return models.Moment{}, fmt.Errorf("failed to update moment: %w", err)
	}
	f.notify(ctx)
	return m, nil
}

// DeleteMoment removes momentID, which must belong to videoID.
func (f *Facade) DeleteMoment(ctx context.Context, videoID, momentID string) error {
	v, ok := f.history.VideoByID(videoID)
	if !ok {
		return fmt.Errorf("video %s: %w", videoID, common.ErrorNotFound)
	}
	found := false
	for _, m := range v.Moments {
		if m.ID == momentID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("moment %s of video %s: %w", momentID, videoID, common.ErrorNotFound)
	}

	if err := f.history.DeleteMoment(ctx, momentID); err != nil {
		return fmt.Errorf("failed to delete moment: %w", err)
	}
	f.notify(ctx)
	return nil
}

func (f *Facade) DeleteAllMomentsForVideo(ctx context.Context, videoID string) error {
	if err := f.history.DeleteAllMomentsForVideo(ctx, videoID); err != nil {
		return fmt.Errorf("failed to delete moments: %w", err)
	}
	f.notify(ctx)
	return nil
}

func (f *Facade) DeleteVideo(ctx context.Context, videoID string) error {
	if err := f.history.DeleteVideo(ctx, videoID); err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	f.notify(ctx)
	return nil
}

func (f *Facade) ClearAll(ctx context.Context) error {
	if err := f.history.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	f.notify(ctx)
	return nil
}

// Replace swaps the whole collection, for import and restore.
func (f *Facade) Replace(ctx context.Context, videos []models.Video) error {
	if err := f.history.Replace(ctx, videos); err != nil {
		return err
	}
	f.notify(ctx)
	return nil
}

// Merge adds unknown videos and moments, for import.
func (f *Facade) Merge(ctx context.Context, videos []models.Video) (int, error) {
	n, err := f.history.Merge(ctx, videos)
	if err != nil {
		return 0, err
	}
	f.notify(ctx)
	return n, nil
}

// Subscribe registers fn with the broker. When ctx can be cancelled the
// subscription ends with it.
func (f *Facade) Subscribe(ctx context.Context, fn Listener) (func(), error) {
	unsubscribe := f.broker.Subscribe(fn)
	done := ctx.Done()
	if done == nil {
		return unsubscribe, nil
	}

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			unsubscribe()
		})
	}
	go func() {
		select {
		case <-done:
			cancel()
		case <-stop:
		}
	}()
	return cancel, nil
}

func (f *Facade) notify(ctx context.Context) {
	f.pubMu.Lock()
	defer f.pubMu.Unlock()
	f.broker.Publish(ctx, f.history.Videos())
}
