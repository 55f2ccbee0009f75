package cli

import (
	"context"
	"errors"
	"strings"
)

var errNoFolders = errors.New("folders are only available with a local store")

const folderUsage = "folder list | show <id> | create <name> | rename <id> <name> | delete <id> | add <id> <video> | remove <id> <video>"

func (a *App) Folder(ctx context.Context, args []string) error {
	if a.folders == nil {
		return errNoFolders
	}
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "list", "ls":
		list, err := a.folders.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			a.println("No folders.")
			return nil
		}
		for _, f := range list {
			a.printf("%s  %s  (%d videos)\n", f.ID, f.Name, len(f.VideoIDs))
		}
		return nil

	case "show":
		if len(rest) != 1 {
			return errUsage(folderUsage)
		}
		f, err := a.folders.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		a.printf("%s  %s\n", f.ID, f.Name)
		for _, id := range f.VideoIDs {
			title := ""
			if v, err := a.svc.Video(ctx, id); err == nil {
				title = v.Title
			}
			a.printf("  %s  %s\n", id, title)
		}
		return nil

	case "create", "new":
		if len(rest) == 0 {
			return errUsage(folderUsage)
		}
		f, err := a.folders.Create(ctx, strings.Join(rest, " "))
		if err != nil {
			return err
		}
		a.printf("Created folder %s (%s)\n", f.Name, f.ID)
		return nil

	case "rename":
		if len(rest) < 2 {
			return errUsage(folderUsage)
		}
		f, err := a.folders.Rename(ctx, rest[0], strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		a.printf("Renamed folder to %s\n", f.Name)
		return nil

	case "delete", "rm":
		if len(rest) != 1 {
			return errUsage(folderUsage)
		}
		if err := a.folders.Delete(ctx, rest[0]); err != nil {
			return err
		}
		a.println("Folder deleted.")
		return nil

	case "add":
		if len(rest) != 2 {
			return errUsage(folderUsage)
		}
		id, _ := videoRef(rest[1])
		if err := a.folders.AddVideo(ctx, rest[0], id); err != nil {
			return err
		}
		a.println("Added.")
		return nil

	case "remove":
		if len(rest) != 2 {
			return errUsage(folderUsage)
		}
		id, _ := videoRef(rest[1])
		if err := a.folders.RemoveVideo(ctx, rest[0], id); err != nil {
			return err
		}
		a.println("Removed.")
		return nil
	}

	return errUsage(folderUsage)
}
