package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for REPL chrome (prompt, errors, unknown commands).
var printlnFn = fmt.Println

// shell is the command surface the REPL dispatches to. App satisfies it;
// tests can provide a lightweight stub.
type shell interface {
	Help(ctx context.Context, args []string) error
	Open(ctx context.Context, args []string) error
	Capture(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Search(ctx context.Context, args []string) error
	Notes(ctx context.Context, args []string) error
	Tags(ctx context.Context, args []string) error
	Rename(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	DeleteVideo(ctx context.Context, args []string) error
	Clear(ctx context.Context, args []string) error
	Count(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
	Import(ctx context.Context, args []string) error
	Folder(ctx context.Context, args []string) error
	Backup(ctx context.Context, args []string) error
	Backups(ctx context.Context, args []string) error
	Restore(ctx context.Context, args []string) error
	Watch(ctx context.Context, args []string) error
}

// errUsage marks a command invoked with the wrong arguments; the message
// is the usage line.
type errUsage string

func (e errUsage) Error() string { return "usage: " + string(e) }

// runREPL reads one line at a time from reader, dispatches the first token
// to s and prints any error. It returns on EOF, on "exit"/"quit" or when ctx
// is done.
//
// Commands:
//
//	open <url>                      - open a video
//	capture <video|url> <time> [n]  - capture a moment at time (s, m:ss, h:mm:ss) with notes
//	list                            - list videos
//	show <video> [raw]              - show a video and its moments
//	search <query>                  - search titles, notes and tags
//	notes <moment> [text]           - set notes
//	tags <moment> <tag,...>         - set tags
//	rename <moment> <title>         - rename a moment
//	delete <video> <moment>         - delete one moment
//	deletevideo <video>             - delete a video and its moments
//	clear [-y]                      - delete everything
//	count                           - total moments
//	export [md|json] [path|-]       - export history
//	import <path> [merge|replace]   - import a JSON export
//	folder <sub> ...                - manage folders
//	backup | backups | restore      - S3 backups
//	watch                           - toggle change notifications
//	exit | quit                     - leave
func runREPL(ctx context.Context, s shell, promptFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		if p := promptFn(); p != "" {
			printlnFn(p)
		}

		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		var cmdErr error
		switch cmd {
		case "help", "?":
			cmdErr = s.Help(ctx, args)
		case "open":
			cmdErr = s.Open(ctx, args)
		case "capture", "c":
			cmdErr = s.Capture(ctx, args)
		case "list", "l":
			cmdErr = s.List(ctx, args)
		case "show":
			cmdErr = s.Show(ctx, args)
		case "search", "find":
			cmdErr = s.Search(ctx, args)
		case "notes":
			cmdErr = s.Notes(ctx, args)
		case "tags":
			cmdErr = s.Tags(ctx, args)
		case "rename":
			cmdErr = s.Rename(ctx, args)
		case "delete":
			cmdErr = s.Delete(ctx, args)
		case "deletevideo":
			cmdErr = s.DeleteVideo(ctx, args)
		case "clear":
			cmdErr = s.Clear(ctx, args)
		case "count":
			cmdErr = s.Count(ctx, args)
		case "export":
			cmdErr = s.Export(ctx, args)
		case "import":
			cmdErr = s.Import(ctx, args)
		case "folder", "folders":
			cmdErr = s.Folder(ctx, args)
		case "backup":
			cmdErr = s.Backup(ctx, args)
		case "backups":
			cmdErr = s.Backups(ctx, args)
		case "restore":
			cmdErr = s.Restore(ctx, args)
		case "watch":
			cmdErr = s.Watch(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}

		if err != nil {
			return
		}
	}
}
