package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/moments/internal/models"
)

// Version is written into every document; ReadJSON rejects newer ones.
const Version = 1

var ErrUnsupportedVersion = errors.New("unsupported export version")

// Document is the on-disk export format.
type Document struct {
	Version    int            `json:"version"`
	ExportedAt time.Time      `json:"exportedAt"`
	Videos     []models.Video `json:"videos"`
}

func NewDocument(videos []models.Video, at time.Time) Document {
	if videos == nil {
		videos = []models.Video{}
	}
	return Document{Version: Version, ExportedAt: at.UTC(), Videos: videos}
}

// TotalMoments counts moments across the document.
func (d Document) TotalMoments() int {
	return models.TotalMoments(d.Videos)
}

func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

func ReadJSON(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("failed to read export: %w", err)
	}
	if doc.Version < 1 || doc.Version > Version {
		return Document{}, fmt.Errorf("version %d: %w", doc.Version, ErrUnsupportedVersion)
	}
	return doc, nil
}

// Mode says how Import treats what is already in history.
type Mode string

const (
	ModeMerge   Mode = "merge"
	ModeReplace Mode = "replace"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	}
	return "", fmt.Errorf("unknown import mode %q", s)
}

// Target is anything that can take a batch of videos, such as the
// history manager or the facade.
type Target interface {
	Merge(ctx context.Context, videos []models.Video) (int, error)
	Replace(ctx context.Context, videos []models.Video) error
}

// Import loads doc into t and returns how many moments were added.
// Videos without moments are skipped.
func Import(ctx context.Context, t Target, doc Document, mode Mode) (int, error) {
	videos := make([]models.Video, 0, len(doc.Videos))
	for _, v := range doc.Videos {
		if v.ID == "" || len(v.Moments) == 0 {
			continue
		}
		videos = append(videos, v)
	}

	switch mode {
	case ModeReplace:
		if err := t.Replace(ctx, videos); err != nil {
			return 0, fmt.Errorf("failed to replace history: %w", err)
		}
		return models.TotalMoments(videos), nil
	case ModeMerge, "":
		n, err := t.Merge(ctx, videos)
		if err != nil {
			return 0, fmt.Errorf("failed to merge history: %w", err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unknown import mode %q", mode)
}
