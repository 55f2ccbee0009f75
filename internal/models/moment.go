package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMomentDuration is the descriptive capture length in seconds.
const DefaultMomentDuration = 30

// Moment is a timestamped bookmark within a Video. ID, VideoID and
// Timestamp never change after creation.
type Moment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	Timestamp float64   `json:"timestamp"`
	Duration  float64   `json:"duration"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MomentPatch is a shallow update: nil fields are left untouched.
type MomentPatch struct {
	Title *string
	Notes *string
	Tags  []string
	// SetTags distinguishes "clear tags" (SetTags with nil Tags) from
	// "leave tags alone".
	SetTags bool
}

// IsEmpty reports whether the patch changes nothing.
func (p MomentPatch) IsEmpty() bool {
	return p.Title == nil && p.Notes == nil && !p.SetTags
}

// Apply returns m with the patch applied.
func (p MomentPatch) Apply(m Moment) Moment {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
	if p.SetTags {
		m.Tags = NormalizeTags(p.Tags)
	}
	return m
}

// MomentTitle is the auto-generated display title for the n-th capture.
func MomentTitle(n int) string {
	return fmt.Sprintf("Moment %d", n)
}

// Clone deep-copies the tag slice.
func (m Moment) Clone() Moment {
	if m.Tags != nil {
		m.Tags = append([]string(nil), m.Tags...)
	}
	return m
}

// HasTag matches tag case-insensitively.
func (m Moment) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// NormalizeTags trims tags, drops empty ones and removes case-insensitive
// duplicates while keeping the first spelling seen.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseTags splits a comma or whitespace separated list.
func ParseTags(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	return NormalizeTags(fields)
}
