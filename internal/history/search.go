package history

import (
	"strings"

	"github.com/dmitrijs2005/moments/internal/models"
)

// Search filters the cached collection with a case-insensitive substring
// match. A video whose title matches is returned whole. Otherwise it is
// returned with only the moments whose title, notes or a tag match, and
// dropped if none do. An empty query returns everything.
func (m *Manager) Search(query string) []models.Video {
	q := strings.ToLower(strings.TrimSpace(query))
	videos := m.Videos()
	if q == "" {
		return videos
	}

	out := make([]models.Video, 0, len(videos))
	for _, v := range videos {
		if strings.Contains(strings.ToLower(v.Title), q) {
			out = append(out, v)
			continue
		}

		var hits []models.Moment
		for _, mo := range v.Moments {
			if momentMatches(mo, q) {
				hits = append(hits, mo)
			}
		}
		if len(hits) > 0 {
			v.Moments = hits
			out = append(out, v)
		}
	}
	return out
}

func momentMatches(mo models.Moment, q string) bool {
	if strings.Contains(strings.ToLower(mo.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(mo.Notes), q) {
		return true
	}
	for _, t := range mo.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}
