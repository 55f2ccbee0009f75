package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/moments/internal/common"
	"github.com/dmitrijs2005/moments/internal/models"
)

var errUndecodable = errors.New("undecodable blob")

// readIndex returns the persisted summaries. An absent index is empty.
func (m *Manager) readIndex(ctx context.Context) ([]models.VideoSummary, error) {
	raw, ok, err := m.store.Get(ctx, models.IndexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if !ok || len(raw) == 0 {
		return []models.VideoSummary{}, nil
	}

	var index []models.VideoSummary
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	if index == nil {
		index = []models.VideoSummary{}
	}
	return index, nil
}

// readIndexForWrite treats an undecodable index as empty, the same way
// Load does, but still fails on store errors.
func (m *Manager) readIndexForWrite(ctx context.Context) ([]models.VideoSummary, error) {
	raw, ok, err := m.store.Get(ctx, models.IndexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if !ok || len(raw) == 0 {
		return []models.VideoSummary{}, nil
	}

	var index []models.VideoSummary
	if err := json.Unmarshal(raw, &index); err != nil {
		m.logger.Warn(ctx, "index is unreadable, starting empty", "error", err)
		return []models.VideoSummary{}, nil
	}
	if index == nil {
		index = []models.VideoSummary{}
	}
	return index, nil
}

// readMoments returns the video's blob. An absent blob has no moments.
func (m *Manager) readMoments(ctx context.Context, videoID string) ([]models.Moment, error) {
	raw, ok, err := m.store.Get(ctx, models.MomentsKey(videoID))
	if err != nil {
		return nil, fmt.Errorf("failed to read moments of %s: %w", videoID, err)
	}
	if !ok || len(raw) == 0 {
		return []models.Moment{}, nil
	}

	var moments []models.Moment
	if err := json.Unmarshal(raw, &moments); err != nil {
		return nil, fmt.Errorf("failed to decode moments of %s: %w: %v", videoID, errUndecodable, err)
	}
	return normalizeMoments(videoID, moments), nil
}

// readMomentsForWrite fails on store errors but treats an undecodable
// blob as empty.
func (m *Manager) readMomentsForWrite(ctx context.Context, videoID string) ([]models.Moment, error) {
	moments, err := m.readMoments(ctx, videoID)
	if errors.Is(err, errUndecodable) {
		m.logger.Warn(ctx, "moments blob is unreadable, starting empty", "video_id", videoID, "error", err)
		return []models.Moment{}, nil
	}
	return moments, err
}

type location struct {
	index     []models.VideoSummary
	videoIdx  int
	moments   []models.Moment
	momentIdx int
}

// locate finds the video owning momentID. The cache is only used as a
// hint for which blob to read first; the answer always comes from the
// store.
func (m *Manager) locate(ctx context.Context, momentID string) (location, error) {
	index, err := m.readIndexForWrite(ctx)
	if err != nil {
		return location{}, err
	}

	order := make([]int, 0, len(index))
	if hint := m.ownerHint(momentID); hint != "" {
		if i := findSummary(index, hint); i >= 0 {
			order = append(order, i)
		}
	}
	for i := range index {
		if len(order) > 0 && order[0] == i {
			continue
		}
		order = append(order, i)
	}

	for _, i := range order {
		moments, err := m.readMomentsForWrite(ctx, index[i].ID)
		if err != nil {
			return location{}, err
		}
		for j, mo := range moments {
			if mo.ID == momentID {
				return location{index: index, videoIdx: i, moments: moments, momentIdx: j}, nil
			}
		}
	}

	return location{}, fmt.Errorf("moment %s: %w", momentID, common.ErrorNotFound)
}

func (m *Manager) ownerHint(momentID string) string {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	for _, v := range m.videos {
		for _, mo := range v.Moments {
			if mo.ID == momentID {
				return v.ID
			}
		}
	}
	return ""
}

func findSummary(index []models.VideoSummary, id string) int {
	for i, s := range index {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// nextNumber is the number the next capture takes given the summary and
// how many moments the blob holds right now.
func nextNumber(s models.VideoSummary, count int) int {
	if s.NextMomentNumber <= count {
		return count + 1
	}
	return s.NextMomentNumber
}

// normalizeMoments drops moments without an id and sets the owning video
// id, default duration and normalised tags of the rest. A moment always
// belongs to the video whose list holds it.
func normalizeMoments(videoID string, in []models.Moment) []models.Moment {
	out := make([]models.Moment, 0, len(in))
	for _, mo := range in {
		if mo.ID == "" {
			continue
		}
		mo.VideoID = videoID
		if mo.Duration == 0 {
			mo.Duration = models.DefaultMomentDuration
		}
		mo.Tags = models.NormalizeTags(mo.Tags)
		out = append(out, mo)
	}
	return out
}

// uniqueMoments drops moments whose id is already in seen and records the
// ids it keeps.
func uniqueMoments(in []models.Moment, seen map[string]struct{}) []models.Moment {
	out := in[:0]
	for _, mo := range in {
		if _, dup := seen[mo.ID]; dup {
			continue
		}
		seen[mo.ID] = struct{}{}
		out = append(out, mo)
	}
	return out
}
