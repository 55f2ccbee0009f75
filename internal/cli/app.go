package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/k0kubun/pp/v3"

	"github.com/dmitrijs2005/moments/internal/backup"
	"github.com/dmitrijs2005/moments/internal/export"
	"github.com/dmitrijs2005/moments/internal/folders"
	"github.com/dmitrijs2005/moments/internal/logging"
	"github.com/dmitrijs2005/moments/internal/moments"
)

// FolderStore is the folder surface the shell drives; folders.Manager
// implements it.
type FolderStore interface {
	Create(ctx context.Context, name string) (folders.Folder, error)
	Rename(ctx context.Context, id, name string) (folders.Folder, error)
	Delete(ctx context.Context, id string) error
	AddVideo(ctx context.Context, folderID, videoID string) error
	RemoveVideo(ctx context.Context, folderID, videoID string) error
	List(ctx context.Context) ([]folders.Folder, error)
	Get(ctx context.Context, id string) (folders.Folder, error)
}

// Backups is the backup surface the shell drives; backup.Service
// implements it.
type Backups interface {
	Backup(ctx context.Context, passphrase []byte) (string, error)
	Restore(ctx context.Context, key string, passphrase []byte, mode export.Mode) (int, error)
	List(ctx context.Context) ([]backup.Object, error)
}

type App struct {
	svc       moments.Service
	target    export.Target
	folders   FolderStore
	backups   Backups
	exportDir string
	mode      string
	logger    logging.Logger

	reader      *bufio.Reader
	out         io.Writer
	interactive bool
	printer     *pp.PrettyPrinter
	now         func() time.Time

	mu      sync.Mutex
	unwatch func()
}

type Option func(*App)

// WithTarget enables import. The facade and the gRPC client both qualify.
func WithTarget(t export.Target) Option { return func(a *App) { a.target = t } }

func WithFolders(f FolderStore) Option { return func(a *App) { a.folders = f } }

func WithBackups(b Backups) Option { return func(a *App) { a.backups = b } }

func WithExportDir(dir string) Option { return func(a *App) { a.exportDir = dir } }

// WithMode labels the prompt, e.g. "local" or "remote".
func WithMode(mode string) Option { return func(a *App) { a.mode = mode } }

func WithLogger(l logging.Logger) Option { return func(a *App) { a.logger = l } }

// WithIO replaces stdin/stdout. interactive controls prompts and
// confirmation questions.
func WithIO(in io.Reader, out io.Writer, interactive bool) Option {
	return func(a *App) {
		a.reader = bufio.NewReader(in)
		a.out = out
		a.interactive = interactive
	}
}

func WithClock(now func() time.Time) Option { return func(a *App) { a.now = now } }

func NewApp(svc moments.Service, opts ...Option) *App {
	a := &App{
		svc:         svc,
		exportDir:   ".",
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		interactive: StdinIsTerminal(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = logging.OrNop(a.logger).With("module", "cli")
	a.printer = pp.New()
	a.printer.SetOutput(a.out)
	a.printer.SetColoringEnabled(a.interactive)
	return a
}

// Run starts the REPL and blocks until the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	defer a.stopWatch()

	if a.interactive {
		a.println("Moments (type 'help' for commands)")
	}
	runREPL(ctx, a, a.prompt, a.reader)
}

func (a *App) prompt() string {
	if !a.interactive {
		return ""
	}
	if a.mode == "" {
		return "moments> "
	}
	return fmt.Sprintf("moments (%s)> ", a.mode)
}

func (a *App) println(args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}
