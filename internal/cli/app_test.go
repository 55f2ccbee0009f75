package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/moments/internal/backup"
	"github.com/dmitrijs2005/moments/internal/export"
	"github.com/dmitrijs2005/moments/internal/folders"
	"github.com/dmitrijs2005/moments/internal/history"
	"github.com/dmitrijs2005/moments/internal/moments"
	"github.com/dmitrijs2005/moments/internal/storage"
)

const vid = "dQw4w9WgXcQ"

// syncBuffer lets the watch listener and the REPL write concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	app    *App
	out    *syncBuffer
	facade *moments.Facade
	dir    string
}

func newFixture(t *testing.T, input string, opts ...Option) *fixture {
	t.Helper()

	store := storage.NewMemoryStore()
	h := history.NewManager(store, nil)
	f := moments.New(h, moments.NewBroker(nil), nil)
	fm := folders.New(store, nil, folders.WithVideoLookup(func(id string) bool {
		_, ok := h.VideoByID(id)
		return ok
	}))

	out := &syncBuffer{}
	dir := t.TempDir()
	base := []Option{
		WithIO(strings.NewReader(input), out, false),
		WithTarget(f),
		WithFolders(fm),
		WithExportDir(dir),
		WithClock(func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }),
	}
	return &fixture{
		app:    NewApp(f, append(base, opts...)...),
		out:    out,
		facade: f,
		dir:    dir,
	}
}

func (fx *fixture) run(t *testing.T) *[]string {
	t.Helper()
	lines := capturePrintln(t)
	fx.app.Run(context.Background())
	return lines
}

func TestApp_OpenCaptureListCount(t *testing.T) {
	fx := newFixture(t, strings.Join([]string{
		"open https://youtu.be/" + vid,
		"capture " + vid + " 1:05 great riff",
		"capture https://www.youtube.com/watch?v=" + vid + " 90",
		"list",
		"count",
	}, "\n"))
	lines := fx.run(t)

	out := fx.out.String()
	assert.Contains(t, out, "Opened "+vid+": YouTube Video ("+vid+") (0 moments)")
	assert.Contains(t, out, `Captured "Moment 1" at 1:05`)
	assert.Contains(t, out, `Captured "Moment 2" at 1:30`)
	assert.Contains(t, out, vid+"  YouTube Video ("+vid+")  (2 moments)")
	assert.Contains(t, out, "2 moments\n")
	assert.Empty(t, *lines)

	ms, err := fx.facade.MomentsForVideo(context.Background(), vid)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "great riff", ms[1].Notes)
}

func TestApp_CaptureErrors(t *testing.T) {
	fx := newFixture(t, "capture "+vid+" soon\ncapture "+vid+"\ncapture "+vid+" 10\n")
	lines := fx.run(t)

	require.Len(t, *lines, 3)
	assert.Contains(t, (*lines)[0], "invalid timestamp")
	assert.Contains(t, (*lines)[1], "usage: capture")
	// unknown video without a metadata fetcher
	assert.Contains(t, (*lines)[2], "not found")
}

func TestApp_EditMoment(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	_, err := fx.facade.OpenVideo(ctx, "https://youtu.be/"+vid)
	require.NoError(t, err)
	m, err := fx.facade.Capture(ctx, moments.CaptureRequest{VideoID: vid, Timestamp: 42})
	require.NoError(t, err)

	fx.app.reader = reader(strings.Join([]string{
		"notes " + m.ID + " remember this",
		"tags " + m.ID + " #guitar, solo guitar",
		"rename " + m.ID + " The solo",
		"show " + vid,
		"search solo",
	}, "\n"))
	lines := fx.run(t)
	assert.Empty(t, *lines)

	got, err := fx.facade.MomentsForVideo(ctx, vid)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "The solo", got[0].Title)
	assert.Equal(t, "remember this", got[0].Notes)
	assert.Equal(t, []string{"guitar", "solo"}, got[0].Tags)

	out := fx.out.String()
	assert.Contains(t, out, "[0:42] The solo")
	assert.Contains(t, out, "https://youtu.be/"+vid+"?t=42")
	assert.Contains(t, out, "tags: guitar, solo")
}

func TestApp_ShowRaw(t *testing.T) {
	fx := newFixture(t, "open "+vid+"\nshow "+vid+" raw\n")
	fx.run(t)
	assert.Contains(t, fx.out.String(), "NextMomentNumber")
}

func TestApp_DeleteAndClear(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	_, err := fx.facade.OpenVideo(ctx, vid)
	require.NoError(t, err)
	m1, err := fx.facade.Capture(ctx, moments.CaptureRequest{VideoID: vid, Timestamp: 1})
	require.NoError(t, err)
	_, err = fx.facade.Capture(ctx, moments.CaptureRequest{VideoID: vid, Timestamp: 2})
	require.NoError(t, err)

	fx.app.reader = reader(strings.Join([]string{
		"delete " + vid + " " + m1.ID,
		"count",
		"clear",
		"count",
		"clear -y",
		"count",
	}, "\n"))
	lines := fx.run(t)

	require.Len(t, *lines, 1)
	assert.Contains(t, (*lines)[0], "not confirmed")
	assert.Contains(t, fx.out.String(), "1 moments\n1 moments\nHistory cleared.\n0 moments\n")
}

func TestApp_DeleteVideoInteractiveConfirm(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	_, err := fx.facade.Capture(ctx, moments.CaptureRequest{VideoID: vid, Title: "t", Timestamp: 1})
	require.NoError(t, err)

	fx.app.interactive = true
	fx.app.reader = reader("deletevideo " + vid + "\nn\ndeletevideo " + vid + "\ny\n")
	lines := fx.run(t)

	assert.Contains(t, *lines, "Error: not confirmed (pass -y to skip the question)")
	n, err := fx.facade.TotalMoments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestApp_ExportImport(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	_, err := fx.facade.Capture(ctx, moments.CaptureRequest{VideoID: vid, Title: "Song", Timestamp: 61})
	require.NoError(t, err)

	path := filepath.Join(fx.dir, "out.json")
	fx.app.reader = reader("export json " + path + "\nexport md -\nexport md\n")
	lines := fx.run(t)
	require.Empty(t, *lines)

	out := fx.out.String()
	assert.Contains(t, out, "Exported 1 moments to "+path)
	assert.Contains(t, out, "# Moments")
	assert.Contains(t, out, filepath.Join(fx.dir, "moments-20260304-050607.md"))
	_, err = os.Stat(filepath.Join(fx.dir, "moments-20260304-050607.md"))
	require.NoError(t, err)

	other := newFixture(t, "import "+path+" replace\nimport "+path+" bogus\n")
	lines = other.run(t)
	require.Len(t, *lines, 1)
	assert.Contains(t, (*lines)[0], "unknown import mode")
	assert.Contains(t, other.out.String(), "Imported 1 moments (replace)")

	videos, err := other.facade.Videos(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "Song", videos[0].Title)
}

func TestApp_ImportUnavailable(t *testing.T) {
	fx := newFixture(t, "import whatever.json\n")
	fx.app.target = nil
	lines := fx.run(t)
	assert.Equal(t, []string{"Error: " + errNoImport.Error()}, *lines)
}

func TestApp_Folders(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	_, err := fx.facade.Capture(ctx, moments.CaptureRequest{VideoID: vid, Title: "Song", Timestamp: 1})
	require.NoError(t, err)

	fx.app.reader = reader("folder create Music videos\nfolder\n")
	lines := fx.run(t)
	require.Empty(t, *lines)
	assert.Contains(t, fx.out.String(), "Created folder Music videos")

	list, err := fx.app.folders.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID

	fx.app.reader = reader(strings.Join([]string{
		"folder add " + id + " https://youtu.be/" + vid,
		"folder show " + id,
		"folder rename " + id + " Tunes",
		"folder remove " + id + " " + vid,
		"folder delete " + id,
		"folder list",
		"folder frobnicate",
	}, "\n"))
	lines = fx.run(t)

	out := fx.out.String()
	assert.Contains(t, out, "  "+vid+"  Song")
	assert.Contains(t, out, "Renamed folder to Tunes")
	assert.Contains(t, out, "No folders.")
	require.Len(t, *lines, 1)
	assert.Contains(t, (*lines)[0], "usage: folder")
}

func TestApp_FoldersUnavailable(t *testing.T) {
	fx := newFixture(t, "folder list\n")
	fx.app.folders = nil
	lines := fx.run(t)
	assert.Equal(t, []string{"Error: " + errNoFolders.Error()}, *lines)
}

type fakeBackups struct {
	passphrases []string
	restored    []string
	mode        export.Mode
}

func (f *fakeBackups) Backup(_ context.Context, pw []byte) (string, error) {
	f.passphrases = append(f.passphrases, string(pw))
	return "backups/2026/03/04/x.bin", nil
}

func (f *fakeBackups) Restore(_ context.Context, key string, pw []byte, mode export.Mode) (int, error) {
	f.passphrases = append(f.passphrases, string(pw))
	f.restored = append(f.restored, key)
	f.mode = mode
	return 3, nil
}

func (f *fakeBackups) List(context.Context) ([]backup.Object, error) {
	return []backup.Object{{Key: "backups/2026/03/04/x.bin", Size: 10, LastModified: time.Now()}}, nil
}

func TestApp_BackupRestoreScripted(t *testing.T) {
	b := &fakeBackups{}
	fx := newFixture(t, "backup\nhunter2\nbackups\nrestore backups/2026/03/04/x.bin replace\nhunter2\n", WithBackups(b))
	lines := fx.run(t)
	require.Empty(t, *lines)

	assert.Equal(t, []string{"hunter2", "hunter2"}, b.passphrases)
	assert.Equal(t, []string{"backups/2026/03/04/x.bin"}, b.restored)
	assert.Equal(t, export.ModeReplace, b.mode)

	out := fx.out.String()
	assert.Contains(t, out, "Backup stored as backups/2026/03/04/x.bin")
	assert.Contains(t, out, "backups/2026/03/04/x.bin  10 bytes")
	assert.Contains(t, out, "Restored 3 moments (replace)")
}

func TestApp_BackupInteractivePassphraseMismatch(t *testing.T) {
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	answers := []string{"one", "two"}
	readPassword = func(int) ([]byte, error) {
		pw := answers[0]
		answers = answers[1:]
		return []byte(pw), nil
	}

	b := &fakeBackups{}
	fx := newFixture(t, "backup\n", WithBackups(b))
	fx.app.interactive = true
	lines := fx.run(t)

	assert.Contains(t, *lines, "Error: "+errMismatch.Error())
	assert.Empty(t, b.passphrases)
}

func TestApp_BackupsUnavailable(t *testing.T) {
	fx := newFixture(t, "backup\nbackups\nrestore k\n")
	lines := fx.run(t)
	assert.Equal(t, []string{
		"Error: " + errNoBackups.Error(),
		"Error: " + errNoBackups.Error(),
		"Error: " + errNoBackups.Error(),
	}, *lines)
}

func TestApp_Watch(t *testing.T) {
	fx := newFixture(t, "")
	ctx := context.Background()
	_, err := fx.facade.OpenVideo(ctx, vid)
	require.NoError(t, err)

	fx.app.reader = reader("watch\ncapture " + vid + " 5\nwatch\ncapture " + vid + " 6\n")
	fx.run(t)

	out := fx.out.String()
	assert.Contains(t, out, "Watching for changes")
	assert.Contains(t, out, "Stopped watching.")
	assert.Equal(t, 1, strings.Count(out, "* history changed: 1 videos, 1 moments"))
	assert.NotContains(t, out, "2 moments\n* ")
}

func TestApp_RunUnsubscribesOnExit(t *testing.T) {
	fx := newFixture(t, "watch\n")
	fx.run(t)
	assert.Nil(t, fx.app.unwatch)
}
