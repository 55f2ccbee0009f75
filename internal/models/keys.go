package models

import "strings"

const (
	// IndexKey holds the JSON array of VideoSummary.
	IndexKey = "video_history"
	// MomentsKeyPrefix prefixes every per-video moment blob.
	MomentsKeyPrefix = "moments_"
	// FoldersKey holds the JSON array of folders.
	FoldersKey = "folders"
)

// MomentsKey is the per-video blob key for videoID.
func MomentsKey(videoID string) string {
	return MomentsKeyPrefix + videoID
}

// IsMomentsKey reports whether key is a per-video blob key.
func IsMomentsKey(key string) bool {
	return strings.HasPrefix(key, MomentsKeyPrefix) && len(key) > len(MomentsKeyPrefix)
}

// VideoIDFromKey is the inverse of MomentsKey.
func VideoIDFromKey(key string) (string, bool) {
	if !IsMomentsKey(key) {
		return "", false
	}
	return strings.TrimPrefix(key, MomentsKeyPrefix), true
}
