package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/moments/internal/common"
	"github.com/dmitrijs2005/moments/internal/export"
	"github.com/dmitrijs2005/moments/internal/models"
	"github.com/dmitrijs2005/moments/internal/moments"
	"github.com/dmitrijs2005/moments/internal/youtube"
)

const helpText = `Commands:
  open <url>                      open a video
  capture <video|url> <time> [n]  capture a moment, optional notes (time as s, m:ss or h:mm:ss)
  list                            list videos
  show <video> [raw]              show a video and its moments
  search <query>                  search titles, notes and tags
  notes <moment> [text]           set notes
  tags <moment> <tag,...>         set tags
  rename <moment> <title>         rename a moment
  delete <video> <moment>         delete one moment
  deletevideo <video>             delete a video and its moments
  clear [-y]                      delete everything
  count                           total moments
  export [md|json] [path|-]       export history
  import <path> [merge|replace]   import a JSON export
  folder list|show|create|rename|delete|add|remove
  backup | backups | restore <key> [merge|replace]
  watch                           toggle change notifications
  exit                            leave`

func (a *App) Help(ctx context.Context, args []string) error {
	a.println(helpText)
	return nil
}

// ParseTimestamp accepts plain seconds ("95", "95.5") or clock notation
// ("1:35", "1:02:03").
func ParseTimestamp(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 || parts[0] == "" {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, common.ErrorValidation)
	}

	var total float64
	for i, p := range parts {
		last := i == len(parts)-1
		var v float64
		var err error
		if last {
			v, err = strconv.ParseFloat(p, 64)
		} else {
			var n int
			n, err = strconv.Atoi(p)
			v = float64(n)
		}
		if err != nil || v < 0 || (i > 0 && v >= 60) {
			return 0, fmt.Errorf("invalid timestamp %q: %w", s, common.ErrorValidation)
		}
		total = total*60 + v
	}
	return total, nil
}

// videoRef resolves a supported URL to its id; anything else is taken as
// an id verbatim.
func videoRef(s string) (id, url string) {
	id = youtube.ExtractVideoID(s)
	if id == "" {
		return s, ""
	}
	if id != s {
		url = youtube.CanonicalURL(id)
	}
	return id, url
}

func (a *App) Open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage("open <url>")
	}
	v, err := a.svc.OpenVideo(ctx, args[0])
	if err != nil {
		return err
	}
	a.printf("Opened %s: %s (%d moments)\n", v.ID, v.Title, len(v.Moments))
	return nil
}

func (a *App) Capture(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage("capture <video|url> <time> [notes]")
	}
	id, url := videoRef(args[0])
	ts, err := ParseTimestamp(args[1])
	if err != nil {
		return err
	}

	m, err := a.svc.Capture(ctx, moments.CaptureRequest{
		VideoID:   id,
		Timestamp: ts,
		URL:       url,
		Notes:     strings.Join(args[2:], " "),
	})
	if err != nil {
		return err
	}
	a.printf("Captured %q at %s (%s)\n", m.Title, export.FormatTimestamp(m.Timestamp), m.ID)
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	videos, err := a.svc.Videos(ctx)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		a.println("No moments yet.")
		return nil
	}
	for _, v := range videos {
		a.printf("%s  %s  (%d moments)\n", v.ID, v.Title, len(v.Moments))
	}
	return nil
}

func (a *App) printMoments(v models.Video) {
	for _, m := range v.Moments {
		a.printf("  [%s] %s  %s\n", export.FormatTimestamp(m.Timestamp), m.Title, m.ID)
		a.printf("         %s\n", youtube.TimestampURL(v.ID, m.Timestamp))
		if m.Notes != "" {
			a.printf("         notes: %s\n", strings.ReplaceAll(m.Notes, "\n", " / "))
		}
		if len(m.Tags) > 0 {
			a.printf("         tags: %s\n", strings.Join(m.Tags, ", "))
		}
	}
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage("show <video> [raw]")
	}
	id, _ := videoRef(args[0])
	v, err := a.svc.Video(ctx, id)
	if err != nil {
		return err
	}

	if len(args) == 2 && args[1] == "raw" {
		a.mu.Lock()
		defer a.mu.Unlock()
		_, err := a.printer.Println(v)
		return err
	}

	a.printf("%s  %s\n", v.ID, v.Title)
	if v.Author != "" {
		a.printf("by %s\n", v.Author)
	}
	a.printf("%s\n", v.URL)
	a.printMoments(v)
	return nil
}

func (a *App) Search(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	videos, err := a.svc.Search(ctx, query)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		a.printf("Nothing matches %q.\n", query)
		return nil
	}
	for _, v := range videos {
		a.printf("%s  %s\n", v.ID, v.Title)
		a.printMoments(v)
	}
	return nil
}

func (a *App) Notes(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage("notes <moment> [text]")
	}
	notes := strings.Join(args[1:], " ")
	if len(args) == 1 && a.interactive {
		text, err := GetMultiline(a.reader, "Notes", a.out)
		if err != nil {
			return err
		}
		notes = text
	}
	m, err := moments.UpdateNotes(ctx, a.svc, args[0], notes)
	if err != nil {
		return err
	}
	a.printf("Updated notes of %q\n", m.Title)
	return nil
}

func (a *App) Tags(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage("tags <moment> <tag,...>")
	}
	m, err := moments.UpdateTags(ctx, a.svc, args[0], models.ParseTags(strings.Join(args[1:], " ")))
	if err != nil {
		return err
	}
	if len(m.Tags) == 0 {
		a.printf("Cleared tags of %q\n", m.Title)
		return nil
	}
	a.printf("Tagged %q: %s\n", m.Title, strings.Join(m.Tags, ", "))
	return nil
}

func (a *App) Rename(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage("rename <moment> <title>")
	}
	m, err := moments.RenameMoment(ctx, a.svc, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	a.printf("Renamed to %q\n", m.Title)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage("delete <video> <moment>")
	}
	if err := a.svc.DeleteMoment(ctx, args[0], args[1]); err != nil {
		return err
	}
	a.println("Deleted.")
	return nil
}

// confirmed reports whether a destructive command may proceed: -y was
// given, or an interactive user agreed.
func (a *App) confirmed(args []string, question string) bool {
	for _, arg := range args {
		if arg == "-y" || arg == "--yes" {
			return true
		}
	}
	if !a.interactive {
		return false
	}
	return Confirm(a.reader, question, a.out)
}

var errNotConfirmed = errors.New("not confirmed (pass -y to skip the question)")

func (a *App) DeleteVideo(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage("deletevideo <video> [-y]")
	}
	if !a.confirmed(args[1:], fmt.Sprintf("Delete video %s and all its moments?", args[0])) {
		return errNotConfirmed
	}
	if err := a.svc.DeleteVideo(ctx, args[0]); err != nil {
		return err
	}
	a.println("Deleted.")
	return nil
}

func (a *App) Clear(ctx context.Context, args []string) error {
	if !a.confirmed(args, "Delete ALL moments?") {
		return errNotConfirmed
	}
	if err := a.svc.ClearAll(ctx); err != nil {
		return err
	}
	a.println("History cleared.")
	return nil
}

func (a *App) Count(ctx context.Context, args []string) error {
	n, err := a.svc.TotalMoments(ctx)
	if err != nil {
		return err
	}
	a.printf("%d moments\n", n)
	return nil
}
