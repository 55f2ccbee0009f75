// Package youtube parses and builds YouTube URLs.
package youtube

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// IsValidID reports whether id looks like a YouTube video id.
func IsValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ExtractVideoID accepts watch, youtu.be, shorts, embed, live and mobile
// links as well as a bare id. It returns "" when no id can be found.
func ExtractVideoID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if IsValidID(raw) {
		return raw
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = segments[0]
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch segments[0] {
		case "watch":
			id = u.Query().Get("v")
		case "shorts", "embed", "live", "v", "e":
			if len(segments) > 1 {
				id = segments[1]
			}
		default:
			id = u.Query().Get("v")
		}
	default:
		return ""
	}

	if !IsValidID(id) {
		return ""
	}
	return id
}

// CanonicalURL is the watch URL for id.
func CanonicalURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// TimestampURL links to id starting at the given second.
func TimestampURL(id string, seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("https://youtu.be/%s?t=%d", id, int(seconds))
}

// ThumbnailURL is the high-quality default thumbnail for id.
func ThumbnailURL(id string) string {
	return "https://img.youtube.com/vi/" + id + "/hqdefault.jpg"
}
