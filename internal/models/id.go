package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewMomentID builds "<videoId>_<timestamp>_<unixMillis>_<suffix>". The
// first three parts mirror how moments were always keyed; the random
// suffix keeps two captures of the same second in the same millisecond
// apart.
func NewMomentID(videoID string, timestamp float64, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return videoID + "_" +
		strconv.FormatFloat(timestamp, 'f', -1, 64) + "_" +
		strconv.FormatInt(at.UnixMilli(), 10) + "_" +
		suffix
}
