// Package folders keeps named playlists of videos. Folders hold video ids
// only; a video that leaves history is pruned from every folder.
package folders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/moments/internal/common"
	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/models"
	"github.com/dmitrijs2005/moments/internal/storage"
)

type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	VideoIDs  []string  `json:"videoIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (f Folder) Contains(videoID string) bool {
	for _, id := range f.VideoIDs {
		if id == videoID {
			return true
		}
	}
	return false
}

func (f Folder) clone() Folder {
	f.VideoIDs = append([]string{}, f.VideoIDs...)
	return f
}

// Manager reads and writes the folders blob.
type Manager struct {
	store  storage.Store
	logger logging.Logger
	now    func() time.Time
	exists func(videoID string) bool

	mu sync.Mutex
}

type Option func(*Manager)

// WithVideoLookup makes AddVideo reject ids that exists reports unknown.
func WithVideoLookup(exists func(videoID string) bool) Option {
	return func(m *Manager) { m.exists = exists }
}

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func New(store storage.Store, logger logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logging.OrNop(logger).With("module", "folders"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) read(ctx context.Context) ([]Folder, error) {
	raw, ok, err := m.store.Get(ctx, models.FoldersKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read folders: %w", err)
	}
	if !ok || len(raw) == 0 {
		return []Folder{}, nil
	}

	var out []Folder
	if err := json.Unmarshal(raw, &out); err != nil {
		m.logger.Warn(ctx, "folders blob is unreadable, starting empty", "error", err)
		return []Folder{}, nil
	}
	return out, nil
}

func (m *Manager) write(ctx context.Context, folders []Folder) error {
	raw, err := json.Marshal(folders)
	if err != nil {
		return fmt.Errorf("failed to encode folders: %w", err)
	}
	if err := m.store.Set(ctx, models.FoldersKey, raw); err != nil {
		return fmt.Errorf("failed to write folders: %w", err)
	}
	return nil
}

// update runs fn over the current folders and writes the result back.
func (m *Manager) update(ctx context.Context, fn func([]Folder) ([]Folder, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	folders, err := m.read(ctx)
	if err != nil {
		return err
	}
	folders, err = fn(folders)
	if err != nil {
		return err
	}
	return m.write(ctx, folders)
}

func find(folders []Folder, id string) int {
	for i, f := range folders {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func validName(folders []Folder, name, skipID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("folder name is required: %w", common.ErrorValidation)
	}
	for _, f := range folders {
		if f.ID != skipID && strings.EqualFold(f.Name, name) {
			return "", fmt.Errorf("folder %q already exists: %w", name, common.ErrorValidation)
		}
	}
	return name, nil
}

func (m *Manager) Create(ctx context.Context, name string) (Folder, error) {
	var created Folder
	err := m.update(ctx, func(folders []Folder) ([]Folder, error) {
		name, err := validName(folders, name, "")
		if err != nil {
			return nil, err
		}
		now := m.now()
		created = Folder{ID: uuid.NewString(), Name: name, VideoIDs: []string{}, CreatedAt: now, UpdatedAt: now}
		return append(folders, created), nil
	})
	if err != nil {
		return Folder{}, err
	}
	return created.clone(), nil
}

func (m *Manager) Rename(ctx context.Context, id, name string) (Folder, error) {
	var renamed Folder
	err := m.update(ctx, func(folders []Folder) ([]Folder, error) {
		i := find(folders, id)
		if i < 0 {
			return nil, fmt.Errorf("folder %s: %w", id, common.ErrorNotFound)
		}
		name, err := validName(folders, name, id)
		if err != nil {
			return nil, err
		}
		folders[i].Name = name
		folders[i].UpdatedAt = m.now()
		renamed = folders[i]
		return folders, nil
	})
	if err != nil {
		return Folder{}, err
	}
	return renamed.clone(), nil
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.update(ctx, func(folders []Folder) ([]Folder, error) {
		i := find(folders, id)
		if i < 0 {
			return nil, fmt.Errorf("folder %s: %w", id, common.ErrorNotFound)
		}
		return append(folders[:i], folders[i+1:]...), nil
	})
}

// AddVideo appends videoID to the folder. Adding it twice is a no-op.
func (m *Manager) AddVideo(ctx context.Context, folderID, videoID string) error {
	if m.exists != nil && !m.exists(videoID) {
		return fmt.Errorf("video %s: %w", videoID, common.ErrorNotFound)
	}
	return m.update(ctx, func(folders []Folder) ([]Folder, error) {
		i := find(folders, folderID)
		if i < 0 {
			return nil, fmt.Errorf("folder %s: %w", folderID, common.ErrorNotFound)
		}
		if !folders[i].Contains(videoID) {
			folders[i].VideoIDs = append(folders[i].VideoIDs, videoID)
			folders[i].UpdatedAt = m.now()
		}
		return folders, nil
	})
}

func (m *Manager) RemoveVideo(ctx context.Context, folderID, videoID string) error {
	return m.update(ctx, func(folders []Folder) ([]Folder, error) {
		i := find(folders, folderID)
		if i < 0 {
			return nil, fmt.Errorf("folder %s: %w", folderID, common.ErrorNotFound)
		}
		folders[i].VideoIDs = without(folders[i].VideoIDs, videoID)
		folders[i].UpdatedAt = m.now()
		return folders, nil
	})
}

// List returns folders sorted by name.
func (m *Manager) List(ctx context.Context) ([]Folder, error) {
	m.mu.Lock()
	folders, err := m.read(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Folder, len(folders))
	for i, f := range folders {
		out[i] = f.clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (m *Manager) Get(ctx context.Context, id string) (Folder, error) {
	m.mu.Lock()
	folders, err := m.read(ctx)
	m.mu.Unlock()
	if err != nil {
		return Folder{}, err
	}
	i := find(folders, id)
	if i < 0 {
		return Folder{}, fmt.Errorf("folder %s: %w", id, common.ErrorNotFound)
	}
	return folders[i].clone(), nil
}

// Prune drops every video id not in videos and returns how many entries
// were removed. Nothing is written when nothing changes.
func (m *Manager) Prune(ctx context.Context, videos []models.Video) (int, error) {
	known := make(map[string]struct{}, len(videos))
	for _, v := range videos {
		known[v.ID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	folders, err := m.read(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range folders {
		kept := folders[i].VideoIDs[:0]
		for _, id := range folders[i].VideoIDs {
			if _, ok := known[id]; ok {
				kept = append(kept, id)
				continue
			}
			removed++
		}
		folders[i].VideoIDs = kept
	}
	if removed == 0 {
		return 0, nil
	}
	if err := m.write(ctx, folders); err != nil {
		return 0, err
	}
	return removed, nil
}

// Listener returns a change listener that prunes folders after every
// history change. Errors are logged.
func (m *Manager) Listener() func(videos []models.Video) {
	return func(videos []models.Video) {
		ctx := context.Background()
		n, err := m.Prune(ctx, videos)
		if err != nil {
			m.logger.Error(ctx, "failed to prune folders", "error", err)
			return
		}
		if n > 0 {
			m.logger.Debug(ctx, "pruned folders", "removed", n)
		}
	}
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
