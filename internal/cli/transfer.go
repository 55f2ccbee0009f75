package cli

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/moments/internal/export"
	"github.com/dmitrijs2005/moments/internal/filex"
	"github.com/dmitrijs2005/moments/internal/models"
)

var (
	errNoImport  = errors.New("import is not available in this mode")
	errNoBackups = errors.New("backups are not configured (set MOMENTS_S3_* or s3_* in the config file)")
	errMismatch  = errors.New("passphrases do not match")
)

func (a *App) Export(ctx context.Context, args []string) error {
	if len(args) > 2 {
		return errUsage("export [md|json] [path|-]")
	}
	format := "md"
	if len(args) > 0 {
		format = args[0]
	}
	if format != "md" && format != "json" {
		return errUsage("export [md|json] [path|-]")
	}

	videos, err := a.svc.Videos(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case "json":
		if err := export.WriteJSON(&buf, export.NewDocument(videos, a.now())); err != nil {
			return err
		}
	default:
		md, err := export.Markdown(videos)
		if err != nil {
			return err
		}
		buf.WriteString(md)
	}

	if len(args) == 2 && args[1] == "-" {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, err := a.out.Write(buf.Bytes())
		return err
	}

	path := filepath.Join(a.exportDir, fmt.Sprintf("moments-%s.%s", a.now().Format("20060102-150405"), format))
	if len(args) == 2 {
		path = args[1]
	}
	if err := filex.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	a.printf("Exported %d moments to %s\n", models.TotalMoments(videos), path)
	return nil
}

func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage("import <path> [merge|replace]")
	}
	if a.target == nil {
		return errNoImport
	}
	mode, err := parseModeArg(args[1:])
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := export.ReadJSON(f)
	if err != nil {
		return err
	}
	n, err := export.Import(ctx, a.target, doc, mode)
	if err != nil {
		return err
	}
	a.printf("Imported %d moments (%s)\n", n, mode)
	return nil
}

func parseModeArg(args []string) (export.Mode, error) {
	if len(args) == 0 {
		return export.ModeMerge, nil
	}
	return export.ParseMode(args[0])
}

// passphrase reads a backup passphrase: without echo on a terminal, as a
// plain line otherwise. With repeat set, a terminal user types it twice.
func (a *App) passphrase(repeat bool) ([]byte, error) {
	if !a.interactive {
		line, err := readLine(a.reader)
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	}

	pw, err := GetPassword("Passphrase", a.out)
	if err != nil {
		return nil, err
	}
	if !repeat {
		return pw, nil
	}
	again, err := GetPassword("Repeat passphrase", a.out)
	if err != nil {
		wipe(pw)
		return nil, err
	}
	defer wipe(again)
	if subtle.ConstantTimeCompare(pw, again) != 1 {
		wipe(pw)
		return nil, errMismatch
	}
	return pw, nil
}

func (a *App) Backup(ctx context.Context, args []string) error {
	if a.backups == nil {
		return errNoBackups
	}
	pw, err := a.passphrase(true)
	if err != nil {
		return err
	}
	defer wipe(pw)

	key, err := a.backups.Backup(ctx, pw)
	if err != nil {
		return err
	}
	a.printf("Backup stored as %s\n", key)
	return nil
}

func (a *App) Backups(ctx context.Context, args []string) error {
	if a.backups == nil {
		return errNoBackups
	}
	objects, err := a.backups.List(ctx)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		a.println("No backups.")
		return nil
	}
	for _, o := range objects {
		a.printf("%s  %s  %d bytes\n", o.LastModified.Local().Format("2006-01-02 15:04"), o.Key, o.Size)
	}
	return nil
}

func (a *App) Restore(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage("restore <key> [merge|replace]")
	}
	if a.backups == nil {
		return errNoBackups
	}
	mode, err := parseModeArg(args[1:])
	if err != nil {
		return err
	}
	pw, err := a.passphrase(false)
	if err != nil {
		return err
	}
	defer wipe(pw)

	n, err := a.backups.Restore(ctx, args[0], pw, mode)
	if err != nil {
		return err
	}
	a.printf("Restored %d moments (%s)\n", n, mode)
	return nil
}
