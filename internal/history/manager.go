// Package history is the single source of truth for the user's videos and
// their moments.
//
// The store is authoritative. Every mutation re-reads the blobs it touches,
// writes the index blob and the affected per-video blobs as one atomic
// batch, and only then refreshes the in-memory cache. Mutations are
// serialised by a mutex, so two overlapping calls can no longer lose each
// other's writes. Readers receive deep copies of the cache.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/moments/internal/common"
	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/models"
	"github.com/dmitrijs2005/moments/internal/storage"
)

// Manager owns the Video/Moment collection.
type Manager struct {
	store  storage.Store
	logger logging.Logger
	now    func() time.Time

	// mu serialises read-modify-write cycles against the store.
	mu sync.Mutex

	cacheMu sync.RWMutex
	videos  []models.Video
	byID    map[string]int
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager with an empty cache; call Load to populate it.
func NewManager(store storage.Store, logger logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logging.OrNop(logger).With("module", "history"),
		now:    time.Now,
		byID:   map[string]int{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Load replaces the cache with what the store holds. Videos whose blob is
// missing or unreadable load with no moments. Any failure to read the
// index leaves an empty collection and is logged, never returned.
func (m *Manager) Load(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndex(ctx)
	if err != nil {
		m.logger.Error(ctx, "failed to load history", "error", err)
		m.setCache(nil)
		return
	}

	videos := make([]models.Video, 0, len(index))
	for _, s := range index {
		moments, err := m.readMoments(ctx, s.ID)
		if err != nil {
			m.logger.Error(ctx, "failed to load moments", "video_id", s.ID, "error", err)
			moments = nil
		}
		videos = append(videos, s.Video(moments))
	}

	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].AddedAt.After(videos[j].AddedAt)
	})

	m.setCache(videos)
	m.logger.Debug(ctx, "history loaded", "videos", len(videos), "moments", models.TotalMoments(videos))
}

// AddVideo records that the user opened a video. A known video has the
// incoming non-empty fields merged in, is re-timestamped and moves to the
// front; its moments are kept. An unknown video is added with none.
func (m *Manager) AddVideo(ctx context.Context, data models.VideoData) (models.Video, error) {
	if data.ID == "" {
		return models.Video{}, fmt.Errorf("video id is required: %w", common.ErrorValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndexForWrite(ctx)
	if err != nil {
		return models.Video{}, err
	}

	now := m.now()
	summary := models.VideoSummary{ID: data.ID, NextMomentNumber: 1}

	if i := findSummary(index, data.ID); i >= 0 {
		summary = index[i]
		index = append(index[:i], index[i+1:]...)
	}

	v := summary.Video(nil)
	v.Merge(data)
	v.AddedAt = now
	merged := v.Summary()
	merged.MomentCount = summary.MomentCount

	index = append([]models.VideoSummary{merged}, index...)

	if err := m.commit(ctx, index, nil, nil); err != nil {
		return models.Video{}, err
	}

	out, _ := m.VideoByID(data.ID)
	return out, nil
}

// AddMoment prepends moment to the video's list and returns it as stored.
// A moment without a title is named after the video's next moment number.
// The video must exist. On a store failure nothing is written and the
// cache is left as it was.
func (m *Manager) AddMoment(ctx context.Context, videoID string, moment models.Moment) (models.Moment, error) {
	return m.addMoment(ctx, models.VideoData{ID: videoID}, moment, false)
}

// AddVideoMoment is AddMoment for a video history may not know yet. An
// unknown video is created from data in the same batch as its first
// moment, so a failed write leaves neither behind. A known video keeps its
// fields.
func (m *Manager) AddVideoMoment(ctx context.Context, data models.VideoData, moment models.Moment) (models.Moment, error) {
	if data.ID == "" {
		return models.Moment{}, fmt.Errorf("video id is required: %w", common.ErrorValidation)
	}
	return m.addMoment(ctx, data, moment, true)
}

func (m *Manager) addMoment(ctx context.Context, data models.VideoData, moment models.Moment, create bool) (models.Moment, error) {
	videoID := data.ID
	if moment.ID == "" {
		return models.Moment{}, fmt.Errorf("moment id is required: %w", common.ErrorValidation)
	}
	if moment.VideoID == "" {
		moment.VideoID = videoID
	}
	if moment.VideoID != videoID {
		return models.Moment{}, fmt.Errorf("moment belongs to %q, not %q: %w", moment.VideoID, videoID, common.ErrorValidation)
	}
	if moment.Duration <= 0 {
		moment.Duration = models.DefaultMomentDuration
	}
	if moment.CreatedAt.IsZero() {
		moment.CreatedAt = m.now()
	}
	moment.Tags = models.NormalizeTags(moment.Tags)

	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndexForWrite(ctx)
	if err != nil {
		return models.Moment{}, err
	}

	var moments []models.Moment
	i := findSummary(index, videoID)
	switch {
	case i >= 0:
		moments, err = m.readMomentsForWrite(ctx, videoID)
		if err != nil {
			return models.Moment{}, err
		}
	case create:
		v := models.VideoSummary{ID: videoID, NextMomentNumber: 1}.Video(nil)
		v.Merge(data)
		v.AddedAt = m.now()
		index = append([]models.VideoSummary{v.Summary()}, index...)
		i = 0
		// a blob without an index entry is stale
		moments = []models.Moment{}
	default:
		return models.Moment{}, fmt.Errorf("video %s: %w", videoID, common.ErrorNotFound)
	}

	next := nextNumber(index[i], len(moments))
	if moment.Title == "" {
		moment.Title = models.MomentTitle(next)
	}
	moments = append([]models.Moment{moment}, moments...)

	index[i].MomentCount = len(moments)
	index[i].NextMomentNumber = next + 1

	if err := m.commit(ctx, index, map[string][]models.Moment{videoID: moments}, nil); err != nil {
		return models.Moment{}, err
	}
	return moment.Clone(), nil
}

// UpdateMoment shallow-merges patch into the moment with the given id and
// returns the result. Only title, notes and tags can change.
func (m *Manager) UpdateMoment(ctx context.Context, momentID string, patch models.MomentPatch) (models.Moment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc, err := m.locate(ctx, momentID)
	if err != nil {
		return models.Moment{}, err
	}

	updated := patch.Apply(loc.moments[loc.momentIdx])
	loc.moments[loc.momentIdx] = updated

	videoID := loc.index[loc.videoIdx].ID
	if err := m.commit(ctx, loc.index, map[string][]models.Moment{videoID: loc.moments}, nil); err != nil {
		return models.Moment{}, err
	}
	return updated.Clone(), nil
}

// DeleteMoment removes the moment with the given id. A video left without
// moments is removed together with its blob.
func (m *Manager) DeleteMoment(ctx context.Context, momentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc, err := m.locate(ctx, momentID)
	if err != nil {
		return err
	}

	videoID := loc.index[loc.videoIdx].ID
	moments := append(loc.moments[:loc.momentIdx:loc.momentIdx], loc.moments[loc.momentIdx+1:]...)

	if len(moments) == 0 {
		index := append(loc.index[:loc.videoIdx:loc.videoIdx], loc.index[loc.videoIdx+1:]...)
		m.logger.Debug(ctx, "last moment deleted, dropping video", "video_id", videoID)
		return m.commit(ctx, index, nil, []string{videoID})
	}

	loc.index[loc.videoIdx].MomentCount = len(moments)
	return m.commit(ctx, loc.index, map[string][]models.Moment{videoID: moments}, nil)
}

// DeleteAllMomentsForVideo drops the video and every one of its moments.
func (m *Manager) DeleteAllMomentsForVideo(ctx context.Context, videoID string) error {
	return m.deleteVideo(ctx, videoID)
}

// DeleteVideo removes the video and its blob.
func (m *Manager) DeleteVideo(ctx context.Context, videoID string) error {
	return m.deleteVideo(ctx, videoID)
}

func (m *Manager) deleteVideo(ctx context.Context, videoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndexForWrite(ctx)
	if err != nil {
		return err
	}

	i := findSummary(index, videoID)
	if i < 0 {
		return fmt.Errorf("video %s: %w", videoID, common.ErrorNotFound)
	}
	index = append(index[:i], index[i+1:]...)

	return m.commit(ctx, index, nil, []string{videoID})
}

// ClearAll removes the index and every per-video blob. Calling it on an
// empty store is a no-op.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.store.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	doomed := []string{models.IndexKey}
	for _, k := range keys {
		if models.IsMomentsKey(k) {
			doomed = append(doomed, k)
		}
	}

	if err := m.store.RemoveMany(ctx, doomed); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	m.setCache(nil)
	m.logger.Info(ctx, "history cleared", "keys_removed", len(doomed))
	return nil
}

// Replace swaps the whole collection for videos in one batch. Moment ids
// must be unique across the collection: later duplicates are dropped, and
// so are videos left without moments. Entries sharing a video id are
// combined.
func (m *Manager) Replace(ctx context.Context, videos []models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, err := m.store.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	seen := make(map[string]struct{})
	pos := make(map[string]int, len(videos))
	index := make([]models.VideoSummary, 0, len(videos))
	changed := make(map[string][]models.Moment, len(videos))
	for _, v := range videos {
		if v.ID == "" {
			return fmt.Errorf("video id is required: %w", common.ErrorValidation)
		}
		moments := uniqueMoments(normalizeMoments(v.ID, v.Moments), seen)
		if len(moments) == 0 {
			continue
		}
		if j, ok := pos[v.ID]; ok {
			moments = append(changed[v.ID], moments...)
			changed[v.ID] = moments
			index[j].MomentCount = len(moments)
			if index[j].NextMomentNumber <= len(moments) {
				index[j].NextMomentNumber = len(moments) + 1
			}
			continue
		}
		v.Moments = moments
		if v.AddedAt.IsZero() {
			v.AddedAt = m.now()
		}
		if v.NextMomentNumber <= len(moments) {
			v.NextMomentNumber = len(moments) + 1
		}
		pos[v.ID] = len(index)
		index = append(index, v.Summary())
		changed[v.ID] = moments
	}

	var removed []string
	for _, k := range keys {
		if id, ok := models.VideoIDFromKey(k); ok {
			if _, keep := changed[id]; !keep {
				removed = append(removed, id)
			}
		}
	}

	return m.commit(ctx, index, changed, removed)
}

// Merge adds videos that are unknown and, for known ones, the moments whose
// ids are not present yet. A moment id already held by any video is
// skipped, and an unknown video with nothing left to add is not created.
// It returns how many moments were added.
func (m *Manager) Merge(ctx context.Context, videos []models.Video) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndexForWrite(ctx)
	if err != nil {
		return 0, err
	}

	blobs := make(map[string][]models.Moment, len(index))
	seen := make(map[string]struct{})
	for _, s := range index {
		moments, err := m.readMomentsForWrite(ctx, s.ID)
		if err != nil {
			return 0, err
		}
		blobs[s.ID] = moments
		for _, mo := range moments {
			seen[mo.ID] = struct{}{}
		}
	}

	changed := make(map[string][]models.Moment)
	added := 0

	for _, v := range videos {
		if v.ID == "" {
			return 0, fmt.Errorf("video id is required: %w", common.ErrorValidation)
		}
		incoming := uniqueMoments(normalizeMoments(v.ID, v.Moments), seen)
		if len(incoming) == 0 {
			continue
		}

		i := findSummary(index, v.ID)
		if i < 0 {
			v.Moments = incoming
			if v.AddedAt.IsZero() {
				v.AddedAt = m.now()
			}
			if v.NextMomentNumber <= len(incoming) {
				v.NextMomentNumber = len(incoming) + 1
			}
			index = append(index, v.Summary())
			blobs[v.ID] = incoming
			changed[v.ID] = incoming
			added += len(incoming)
			continue
		}

		existing := append(blobs[v.ID], incoming...)
		sort.SliceStable(existing, func(a, b int) bool {
			return existing[a].CreatedAt.After(existing[b].CreatedAt)
		})
		next := nextNumber(index[i], len(existing)-len(incoming))
		index[i].MomentCount = len(existing)
		index[i].NextMomentNumber = next + len(incoming)
		blobs[v.ID] = existing
		changed[v.ID] = existing
		added += len(incoming)
	}

	sort.SliceStable(index, func(a, b int) bool {
		return index[a].AddedAt.After(index[b].AddedAt)
	})

	if err := m.commit(ctx, index, changed, nil); err != nil {
		return 0, err
	}
	return added, nil
}

// VideoByID returns a copy of the cached video.
func (m *Manager) VideoByID(id string) (models.Video, bool) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return models.Video{}, false
	}
	return m.videos[i].Clone(), true
}

// Videos returns a copy of the whole cached collection, most recent first.
func (m *Manager) Videos() []models.Video {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	out := models.CloneVideos(m.videos)
	if out == nil {
		out = []models.Video{}
	}
	return out
}

// TotalMoments counts moments across all cached videos.
func (m *Manager) TotalMoments() int {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	return models.TotalMoments(m.videos)
}

// NextMomentNumber is the number the next auto-titled capture of videoID
// will carry; 0 when the video is unknown.
func (m *Manager) NextMomentNumber(videoID string) int {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	i, ok := m.byID[videoID]
	if !ok {
		return 0
	}
	v := m.videos[i]
	if v.NextMomentNumber <= len(v.Moments) {
		return len(v.Moments) + 1
	}
	return v.NextMomentNumber
}

func (m *Manager) setCache(videos []models.Video) {
	byID := make(map[string]int, len(videos))
	for i, v := range videos {
		byID[v.ID] = i
	}

	m.cacheMu.Lock()
	m.videos = videos
	m.byID = byID
	m.cacheMu.Unlock()
}

// commit writes index plus the changed blobs and removes the blobs of
// removed videos in one batch, then rebuilds the cache from what was
// written. Videos not in changed keep their cached moments, or are read
// back from the store if the cache has never seen them.
func (m *Manager) commit(ctx context.Context, index []models.VideoSummary, changed map[string][]models.Moment, removed []string) error {
	if index == nil {
		index = []models.VideoSummary{}
	}

	b := storage.NewBatch()

	raw, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	b.Set(models.IndexKey, raw)

	for id, moments := range changed {
		if moments == nil {
			moments = []models.Moment{}
		}
		raw, err := json.Marshal(moments)
		if err != nil {
			return fmt.Errorf("failed to encode moments of %s: %w", id, err)
		}
		b.Set(models.MomentsKey(id), raw)
	}
	for _, id := range removed {
		b.Remove(models.MomentsKey(id))
	}

	if err := m.store.Apply(ctx, b); err != nil {
		m.logger.Error(ctx, "failed to persist history", "error", err)
		return fmt.Errorf("failed to persist history: %w", err)
	}

	m.cacheMu.RLock()
	cached := make(map[string][]models.Moment, len(m.videos))
	for _, v := range m.videos {
		cached[v.ID] = v.Moments
	}
	m.cacheMu.RUnlock()

	videos := make([]models.Video, 0, len(index))
	for _, s := range index {
		moments, ok := changed[s.ID]
		if !ok {
			moments, ok = cached[s.ID]
		}
		if !ok {
			moments, err = m.readMoments(ctx, s.ID)
			if err != nil {
				m.logger.Warn(ctx, "failed to refresh moments", "video_id", s.ID, "error", err)
			}
		}
		videos = append(videos, s.Video(moments))
	}

	m.setCache(videos)
	return nil
}
