package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/moments/internal/models"
)

// Payloads travel as google.protobuf.Struct. Each message below is the
// JSON object carried inside one.

type captureMsg struct {
	VideoID      string   `json:"videoId"`
	Timestamp    float64  `json:"timestamp"`
	Duration     float64  `json:"duration,omitempty"`
	Title        string   `json:"title,omitempty"`
	ThumbnailURL string   `json:"thumbnail,omitempty"`
	URL          string   `json:"url,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

type urlMsg struct {
	URL string `json:"url"`
}

type idMsg struct {
	VideoID string `json:"videoId"`
}

type searchMsg struct {
	Query string `json:"query"`
}

type updateMsg struct {
	MomentID string   `json:"momentId"`
	Title    *string  `json:"title,omitempty"`
	Notes    *string  `json:"notes,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	SetTags  bool     `json:"setTags,omitempty"`
}

type deleteMomentMsg struct {
	VideoID  string `json:"videoId"`
	MomentID string `json:"momentId"`
}

type momentMsg struct {
	Moment models.Moment `json:"moment"`
}

type momentsMsg struct {
	Moments []models.Moment `json:"moments"`
}

type videoMsg struct {
	Video models.Video `json:"video"`
}

type videosMsg struct {
	Videos []models.Video `json:"videos"`
}

type countMsg struct {
	Count int `json:"count"`
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
