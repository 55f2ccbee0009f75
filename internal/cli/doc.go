// Package cli implements the interactive moments shell.
//
// The shell runs against any moments.Service: the in-process facade or a
// remote momentsd reached over gRPC. Folder management and S3 backups are
// optional and only available when the caller wires them in.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits
// or stdin is exhausted. Prompts are printed only when stdin is a terminal,
// so the shell can also be driven by a script piped into it.
package cli
