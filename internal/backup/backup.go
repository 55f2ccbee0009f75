// Package backup seals an export of the whole history with a passphrase
// and keeps it in object storage.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/moments/internal/cryptox"
	"github.com/dmitrijs2005/moments/internal/export"
	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/models"
)

// KeyPrefix is where every archive lives in the bucket.
const KeyPrefix = "backups/"

var ErrEmptyPassphrase = errors.New("passphrase is required")

// ObjectStore is where archives go; S3Store is the production one.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Source supplies the videos to back up.
type Source interface {
	Videos(ctx context.Context) ([]models.Video, error)
}

type Service struct {
	objects ObjectStore
	source  Source
	target  export.Target
	logger  logging.Logger
	now     func() time.Time
}

func New(objects ObjectStore, source Source, target export.Target, logger logging.Logger) *Service {
	return &Service{
		objects: objects,
		source:  source,
		target:  target,
		logger:  logging.OrNop(logger).With("module", "backup"),
		now:     time.Now,
	}
}

// Key builds backups/yyyy/mm/dd/<uuid>.bin for t.
func Key(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s.bin", KeyPrefix, t.Year(), t.Month(), t.Day(), uuid.New())
}

// Backup uploads a sealed snapshot and returns its key.
func (s *Service) Backup(ctx context.Context, passphrase []byte) (string, error) {
	if len(passphrase) == 0 {
		return "", ErrEmptyPassphrase
	}

	videos, err := s.source.Videos(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read history: %w", err)
	}

	now := s.now()
	var buf bytes.Buffer
	if err := export.WriteJSON(&buf, export.NewDocument(videos, now)); err != nil {
		return "", err
	}

	sealed, err := cryptox.Seal(buf.Bytes(), passphrase)
	if err != nil {
		return "", fmt.Errorf("failed to seal backup: %w", err)
	}

	key := Key(now)
	if err := s.objects.Put(ctx, key, sealed); err != nil {
		return "", err
	}

	s.logger.Info(ctx, "backup uploaded", "key", key, "videos", len(videos), "bytes", len(sealed))
	return key, nil
}

// Restore downloads key, opens it with passphrase and imports it.
func (s *Service) Restore(ctx context.Context, key string, passphrase []byte, mode export.Mode) (int, error) {
	if len(passphrase) == 0 {
		return 0, ErrEmptyPassphrase
	}

	sealed, err := s.objects.Get(ctx, key)
	if err != nil {
		return 0, err
	}

	plain, err := cryptox.Open(sealed, passphrase)
	if err != nil {
		return 0, fmt.Errorf("failed to open backup %s: %w", key, err)
	}

	doc, err := export.ReadJSON(bytes.NewReader(plain))
	if err != nil {
		return 0, err
	}

	n, err := export.Import(ctx, s.target, doc, mode)
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "backup restored", "key", key, "mode", string(mode), "moments", n)
	return n, nil
}

// List returns stored archives, newest first.
func (s *Service) List(ctx context.Context) ([]Object, error) {
	objects, err := s.objects.List(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(objects, func(i, j int) bool {
		if objects[i].LastModified.Equal(objects[j].LastModified) {
			return objects[i].Key > objects[j].Key
		}
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	return objects, nil
}
