// Package metadata resolves a video's title, author and thumbnail through
// YouTube's oEmbed endpoint, with a cache in front and a synthetic
// fallback behind.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/youtube"
)

// ErrInvalidURL is returned when no video id can be extracted.
var ErrInvalidURL = errors.New("invalid video url")

const (
	DefaultEndpoint = "https://www.youtube.com/oembed"
	DefaultTimeout  = 5 * time.Second
	DefaultTTL      = 24 * time.Hour
)

// Info is what the app knows about a video beyond its id.
type Info struct {
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	Author       string `json:"author,omitempty"`
	ThumbnailURL string `json:"thumbnail"`
	APIThumbnail string `json:"apiThumbnail,omitempty"`
	IsFromAPI    bool   `json:"isFromApi"`
}

// Fallback is used whenever the endpoint cannot be reached or answers
// with something unusable.
func Fallback(videoID string) Info {
	return Info{
		VideoID:      videoID,
		Title:        fmt.Sprintf("YouTube Video (%s)", videoID),
		ThumbnailURL: youtube.ThumbnailURL(videoID),
		IsFromAPI:    false,
	}
}

// Cache stores resolved Info by video id.
type Cache interface {
	Get(ctx context.Context, videoID string) (Info, bool, error)
	Set(ctx context.Context, videoID string, info Info, ttl time.Duration) error
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Fetcher looks up video metadata.
type Fetcher struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
	ttl      time.Duration
	cache    Cache
	logger   logging.Logger
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }
func WithEndpoint(u string) Option         { return func(f *Fetcher) { f.endpoint = u } }
func WithTimeout(d time.Duration) Option   { return func(f *Fetcher) { f.timeout = d } }
func WithTTL(d time.Duration) Option       { return func(f *Fetcher) { f.ttl = d } }
func WithCache(c Cache) Option             { return func(f *Fetcher) { f.cache = c } }

func NewFetcher(logger logging.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		endpoint: DefaultEndpoint,
		timeout:  DefaultTimeout,
		ttl:      DefaultTTL,
		logger:   logging.OrNop(logger).With("module", "metadata"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch resolves the metadata for rawURL (any form youtube.ExtractVideoID
// accepts). Only an unparseable URL is an error; every lookup failure
// degrades to Fallback. Successful lookups are cached, fallbacks are not.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Info, error) {
	id := youtube.ExtractVideoID(rawURL)
	if id == "" {
		return Info{}, fmt.Errorf("%q: %w", rawURL, ErrInvalidURL)
	}

	if f.cache != nil {
		info, ok, err := f.cache.Get(ctx, id)
		if err != nil {
			f.logger.Warn(ctx, "metadata cache read failed", "video_id", id, "error", err)
		} else if ok {
			return info, nil
		}
	}

	info, err := f.lookup(ctx, id)
	if err != nil {
		f.logger.Warn(ctx, "metadata lookup failed, using fallback", "video_id", id, "error", err)
		return Fallback(id), nil
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, id, info, f.ttl); err != nil {
			f.logger.Warn(ctx, "metadata cache write failed", "video_id", id, "error", err)
		}
	}
	return info, nil
}

func (f *Fetcher) lookup(ctx context.Context, id string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("url", youtube.CanonicalURL(id))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Info{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("failed to call oembed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("oembed returned %d", resp.StatusCode)
	}

	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Info{}, fmt.Errorf("failed to decode oembed: %w", err)
	}
	if body.Title == "" {
		return Info{}, errors.New("oembed returned no title")
	}

	return Info{
		VideoID:      id,
		Title:        body.Title,
		Author:       body.AuthorName,
		ThumbnailURL: youtube.ThumbnailURL(id),
		APIThumbnail: body.ThumbnailURL,
		IsFromAPI:    true,
	}, nil
}
